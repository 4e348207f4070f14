/*
 * Copyright 2022 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package versioner

import (
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
)

// _Trees synthesizes the arithmetic of versioning tests. Everything is done
// in 64 bits, and constant operands are folded whenever the result fits.
type _Trees struct {
    m *il.Method
}

func (self _Trees) c64(v int64) *il.Node {
    return self.m.Const(il.Int64, v)
}

func (self _Trees) wide(p *il.Node) *il.Node {
    switch {
        case p.Type == il.Int64  : return p
        case p.Op == il.OpConst  : return self.c64(p.Const)
        default                  : return self.m.Unary(il.OpI2L, il.Int64, p)
    }
}

func (self _Trees) fold(x *il.Node, y *il.Node, fn func(a Int65, b Int65) Int65) *il.Node {
    if x.Op != il.OpConst || y.Op != il.OpConst {
        return nil
    } else if v, ok := fn(Int65i(x.Const), Int65i(y.Const)).Int64(); !ok {
        return nil
    } else {
        return self.c64(v)
    }
}

func (self _Trees) add(x *il.Node, y *il.Node) *il.Node {
    x, y = self.wide(x), self.wide(y)
    switch {
        case y.IsConst(0) : return x
        case x.IsConst(0) : return y
    }
    if p := self.fold(x, y, Int65.Add); p != nil {
        return p
    } else {
        return self.m.Binary(il.OpAdd, x, y)
    }
}

func (self _Trees) sub(x *il.Node, y *il.Node) *il.Node {
    x, y = self.wide(x), self.wide(y)
    if y.IsConst(0) {
        return x
    }
    if p := self.fold(x, y, Int65.Sub); p != nil {
        return p
    } else {
        return self.m.Binary(il.OpSub, x, y)
    }
}

func (self _Trees) addc(x *il.Node, c int64) *il.Node {
    return self.add(x, self.c64(c))
}

func (self _Trees) mulc(x *il.Node, c int64) *il.Node {
    x = self.wide(x)
    switch {
        case c == 1: {
            return x
        }

        case x.Op == il.OpConst: {
            if v, ok := mulInt64(x.Const, c); ok {
                return self.c64(v)
            }
        }
    }
    return self.m.Binary(il.OpMul, x, self.c64(c))
}

func (self _Trees) divc(x *il.Node, c int64) *il.Node {
    if x = self.wide(x); c == 1 {
        return x
    } else {
        return self.m.Binary(il.OpDiv, x, self.c64(c))
    }
}

// test builds a versioning test, taken when the fast loop must not run.
func (self _Trees) test(op il.Opcode, x *il.Node, y *il.Node) *il.Node {
    return self.m.If(op.BranchOf(), x, y, nil)
}

// test64 builds a versioning test on the widened operands.
func (self _Trees) test64(op il.Opcode, x *il.Node, y *il.Node) *il.Node {
    return self.test(op, self.wide(x), self.wide(y))
}
