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
    `strings`
)

type NodeFlags uint16

const (
    FlagUnsigned NodeFlags = 1 << iota
    FlagNonNull
    FlagCannotOverflow
    FlagSkipWrtBar
    FlagHeapification
)

// MandatoryFlags are the flags that change the meaning of a node. Everything
// else attached to a node (byte-code index, frequencies) is advisory.
const MandatoryFlags = FlagUnsigned | FlagNonNull | FlagCannotOverflow | FlagSkipWrtBar | FlagHeapification

type GuardKind uint8

const (
    GuardNone GuardKind = iota
    GuardVirtual
    GuardProfiled
    GuardHCR
    GuardOSR
    GuardBreakpoint
)

func (self GuardKind) String() string {
    switch self {
        case GuardNone       : return "none"
        case GuardVirtual    : return "virtual"
        case GuardProfiled   : return "profiled"
        case GuardHCR        : return "hcr"
        case GuardOSR        : return "osr"
        case GuardBreakpoint : return "breakpoint"
        default              : panic("unreachable")
    }
}

// IsNopable reports guards that are patched at runtime rather than evaluated.
func (self GuardKind) IsNopable() bool {
    return self == GuardHCR || self == GuardOSR || self == GuardBreakpoint
}

type Node struct {
    Id       int
    Op       Opcode
    Type     DataType
    Kids     []*Node
    Sym      *Symbol
    Const    int64
    Class    string
    Target   *Block
    Flags    NodeFlags
    Guard    GuardKind
    BCI      int32
    RefCount int32
}

func (self *Node) Is(f NodeFlags) bool {
    return self.Flags & f != 0
}

func (self *Node) Kid(i int) *Node {
    if i < len(self.Kids) {
        return self.Kids[i]
    } else {
        return nil
    }
}

// IsConst reports an integral or reference constant with value v.
func (self *Node) IsConst(v int64) bool {
    return self.Op == OpConst && self.Const == v
}

func (self *Node) IsNullConst() bool {
    return self.Op == OpConst && self.Type == Address && self.Const == 0
}

// IsLoadOf reports a direct load of sym.
func (self *Node) IsLoadOf(sym *Symbol) bool {
    return self.Op == OpLoad && self.Sym == sym
}

// NullCheckReference returns the reference a NULLCHK tests: the base of
// the access the check anchors.
func (self *Node) NullCheckReference() *Node {
    if self.Op != OpNullChk || len(self.Kids) == 0 {
        return nil
    }

    /* the checked access is the first child, its first child is the base */
    acc := self.Kids[0]
    if len(acc.Kids) == 0 {
        return nil
    }

    /* array accesses go through an internal pointer */
    base := acc.Kids[0]
    if base.Op == OpArrayAddr {
        return base.Kids[0]
    } else {
        return base
    }
}

// IsGuard reports a compare-and-branch that guards an inlined or patchable path.
func (self *Node) IsGuard() bool {
    return self.Op.IsIf() && self.Guard != GuardNone
}

// Walk visits every node of the tree rooted at self once, children before
// parents. Shared nodes are visited once.
func (self *Node) Walk(fn func(*Node)) {
    self.walk(make(map[int]bool), fn)
}

func (self *Node) walk(seen map[int]bool, fn func(*Node)) {
    if !seen[self.Id] {
        seen[self.Id] = true
        for _, k := range self.Kids { k.walk(seen, fn) }
        fn(self)
    }
}

// Contains reports whether any node of the tree satisfies pred.
func (self *Node) Contains(pred func(*Node) bool) (ret bool) {
    self.Walk(func(p *Node) { ret = ret || pred(p) })
    return
}

func (self *Node) String() string {
    var sb strings.Builder
    self.format(&sb)
    return sb.String()
}

func (self *Node) format(sb *strings.Builder) {
    sb.WriteString(self.Op.String())

    /* constants and symbols */
    switch {
        case self.Op == OpConst  : fmt.Fprintf(sb, " %d", self.Const)
        case self.Op == OpClass  : fmt.Fprintf(sb, " <%s>", self.Class)
        case self.Sym != nil     : fmt.Fprintf(sb, " %s", self.Sym)
    }

    /* guard kinds */
    if self.Guard != GuardNone {
        fmt.Fprintf(sb, " [%s guard]", self.Guard)
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

    /* branch target */
    if self.Target != nil {
        fmt.Fprintf(sb, " -> bb_%d", self.Target.Id)
    }
}
