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

package il

import (
    `fmt`
)

// Builder assembles small methods block by block. Blocks are declared up
// front, in layout order, and referred to by name afterwards.
type Builder struct {
    *Method
    cur   *Block
    names map[string]*Block
}

func NewBuilder(name string, blocks ...string) *Builder {
    ret := &Builder {
        Method : NewMethod(name),
        names  : make(map[string]*Block, len(blocks)),
    }

    /* declare all the blocks */
    for _, s := range blocks {
        if _, ok := ret.names[s]; ok {
            panic(fmt.Sprintf("duplicated block name: %s", s))
        }
        ret.names[s] = ret.NewBlock()
    }
    return ret
}

// B returns the block declared under name.
func (self *Builder) B(name string) *Block {
    if bb, ok := self.names[name]; !ok {
        panic("undeclared block: " + name)
    } else {
        return bb
    }
}

// At selects the block that subsequent trees are appended to.
func (self *Builder) At(name string) *Builder {
    self.cur = self.B(name)
    return self
}

func (self *Builder) Emit(trees ...*Node) *Builder {
    self.cur.Append(trees...)
    return self
}

// Eval anchors a value under a treetop.
func (self *Builder) Eval(p *Node) *Builder {
    return self.Emit(self.Treetop(p))
}

func (self *Builder) Set(sym *Symbol, val *Node) *Builder {
    return self.Emit(self.Store(sym, val))
}

func (self *Builder) Br(op Opcode, x *Node, y *Node, target string) *Builder {
    return self.Emit(self.If(op, x, y, self.B(target)))
}

func (self *Builder) Jmp(target string) *Builder {
    return self.Emit(self.Goto(self.B(target)))
}

func (self *Builder) Ret(val ...*Node) *Builder {
    return self.Emit(self.Return(val...))
}

func (self *Builder) Freq(freq int32) *Builder {
    self.cur.Freq = freq
    return self
}

func (self *Builder) MarkCold() *Builder {
    self.cur.Cold = true
    return self
}

// Build finishes the method: edges, reference counts, baseline and the
// structure graph.
func (self *Builder) Build() *Method {
    self.Finish()
    return self.Method
}
