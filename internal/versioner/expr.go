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
    `encoding/binary`
    `fmt`
    `strings`

    `github.com/bytedance/gopkg/lang/dirtmake`
    `github.com/bytedance/gopkg/util/xxhash3`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
)

const (
    _MaxExprArity = 3
)

// Expr is the canonical form of a tree. Two trees with the same operator,
// operands and mandatory flags intern to the same Expr.
type Expr struct {
    Id    int
    Op    il.Opcode
    Type  il.DataType
    Const int64
    Sym   *il.Symbol
    Class string
    Flags il.NodeFlags
    Guard il.GuardKind
    Kids  []*Expr
    BCI   int32
    Node  *il.Node
}

func (self *Expr) String() string {
    var sb strings.Builder
    self.format(&sb)
    return sb.String()
}

func (self *Expr) format(sb *strings.Builder) {
    fmt.Fprintf(sb, "e%d:%s", self.Id, self.Op)

    /* leaves */
    switch {
        case self.Op == il.OpConst : fmt.Fprintf(sb, " %d", self.Const)
        case self.Op == il.OpClass : fmt.Fprintf(sb, " <%s>", self.Class)
        case self.Sym != nil       : fmt.Fprintf(sb, " %s", self.Sym)
    }

    /* children */
    if len(self.Kids) != 0 {
        sb.WriteString(" (")
        for i, k := range self.Kids {
            if i != 0 {
                sb.WriteString(", ")
            }
            k.format(sb)
        }
        sb.WriteString(")")
    }
}

// Contains reports whether e is self or one of its descendants.
func (self *Expr) Contains(e *Expr) bool {
    if self == e {
        return true
    }
    for _, k := range self.Kids {
        if k.Contains(e) {
            return true
        }
    }
    return false
}

// ExprError tells why a tree has no canonical form.
type ExprError struct {
    Class string
    Node  *il.Node
}

func (self *ExprError) Error() string {
    return fmt.Sprintf("cannot canonicalize %s (%s)", self.Node, self.Class)
}

// ExprTable hash-conses the trees of one loop.
type ExprTable struct {
    all     []*Expr
    memo    map[int]*Expr
    buckets map[uint64][]*Expr
    scratch []byte
}

func NewExprTable() *ExprTable {
    return &ExprTable {
        memo    : make(map[int]*Expr),
        buckets : make(map[uint64][]*Expr),
        scratch : dirtmake.Bytes(0, 64),
    }
}

func (self *ExprTable) Len() int {
    return len(self.all)
}

// Lookup returns the canonical form of a tree interned before, if any.
func (self *ExprTable) Lookup(p *il.Node) *Expr {
    return self.memo[p.Id]
}

func unrepresentable(p *il.Node) string {
    switch {
        case len(p.Kids) > _MaxExprArity          : return "arity"
        case p.Type == il.BCD || p.Op == il.OpBCD2I : return "bcd"
        case p.Op.IsCall() || p.Op == il.OpNew    : return "call"
        case p.Guard == il.GuardBreakpoint        : return "guard"
        case p.Op.IsStore() || p.Op.IsCheck()     : return "effect"
        case p.Op == il.OpGoto || p.Op.IsExit()   : return "effect"
        case p.Op == il.OpAsyncCheck              : return "effect"
        case p.Op == il.OpTreetop                 : return "effect"
        case p.Op == il.OpDebugCounter            : return "effect"
        case p.Op == il.OpBad                     : return "bad"
        default                                   : return ""
    }
}

// Intern returns the canonical form of the tree rooted at p.
func (self *ExprTable) Intern(p *il.Node) (*Expr, error) {
    if e, ok := self.memo[p.Id]; ok {
        return e, nil
    }

    /* check for trees that cannot leave their context */
    if cls := unrepresentable(p); cls != "" {
        return nil, &ExprError{Class: cls, Node: p}
    }

    /* intern the children first */
    kids := make([]*Expr, len(p.Kids))
    for i, k := range p.Kids {
        if e, err := self.Intern(k); err != nil {
            return nil, err
        } else {
            kids[i] = e
        }
    }

    /* build the candidate */
    e := &Expr {
        Op    : p.Op,
        Type  : p.Type,
        Const : p.Const,
        Sym   : p.Sym,
        Class : p.Class,
        Flags : p.Flags & il.MandatoryFlags,
        Guard : p.Guard,
        Kids  : kids,
        BCI   : p.BCI,
        Node  : p,
    }

    /* find the bucket */
    h := self.hash(e)
    for _, q := range self.buckets[h] {
        if q.same(e) {
            self.memo[p.Id] = q
            return q, nil
        }
    }

    /* this is a new expression */
    e.Id = len(self.all) + 1
    self.all = append(self.all, e)
    self.memo[p.Id] = e
    self.buckets[h] = append(self.buckets[h], e)
    return e, nil
}

func (self *ExprTable) hash(e *Expr) uint64 {
    buf := self.scratch[:0]
    buf = append(buf, byte(e.Op), byte(e.Type), byte(e.Guard))
    buf = binary.LittleEndian.AppendUint16(buf, uint16(e.Flags))
    buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Const))

    /* symbol reference */
    if e.Sym != nil {
        buf = binary.LittleEndian.AppendUint32(buf, uint32(e.Sym.Id))
    }

    /* class name */
    buf = append(buf, e.Class...)
    buf = append(buf, 0)

    /* children are already canonical */
    for _, k := range e.Kids {
        buf = binary.LittleEndian.AppendUint32(buf, uint32(k.Id))
    }

    /* keep the grown buffer around */
    self.scratch = buf
    return xxhash3.Hash(buf)
}

func (self *Expr) same(e *Expr) bool {
    if self.Op != e.Op || self.Type != e.Type || self.Const != e.Const || self.Sym != e.Sym {
        return false
    }
    if self.Class != e.Class || self.Flags != e.Flags || self.Guard != e.Guard || len(self.Kids) != len(e.Kids) {
        return false
    }
    for i, k := range self.Kids {
        if k != e.Kids[i] {
            return false
        }
    }
    return true
}
