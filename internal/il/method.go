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

type Method struct {
    Name        string
    Nodes       []*Node
    Symbols     []*Symbol
    Blocks      []*Block
    Entry       *Block
    Root        *Region
    Classes     *ClassTable
    Baseline    int
    Irreducible bool
    blocks      map[int]*Block
    nextBlock   int
}

func NewMethod(name string) *Method {
    return &Method {
        Name    : name,
        Classes : NewClassTable(),
        blocks  : make(map[int]*Block),
    }
}

// CreateBlock allocates a block that is not yet part of the layout.
func (self *Method) CreateBlock() *Block {
    self.nextBlock++
    bb := &Block{Id: self.nextBlock}
    self.blocks[bb.Id] = bb
    return bb
}

// NewBlock allocates a block and appends it to the layout. The first block
// created becomes the method entry.
func (self *Method) NewBlock() *Block {
    bb := self.CreateBlock()
    self.Blocks = append(self.Blocks, bb)

    /* the first block is the entry */
    if self.Entry == nil {
        self.Entry = bb
    }
    return bb
}

func (self *Method) Block(id int) *Block {
    return self.blocks[id]
}

func (self *Method) MaxBlock() int {
    return self.nextBlock
}

// LayoutIndex returns the position of bb in the layout, or -1.
func (self *Method) LayoutIndex(bb *Block) int {
    return blockIndex(self.Blocks, bb)
}

// LayoutNext returns the block bb falls through to.
func (self *Method) LayoutNext(bb *Block) *Block {
    if i := self.LayoutIndex(bb); i < 0 || i + 1 >= len(self.Blocks) {
        return nil
    } else {
        return self.Blocks[i + 1]
    }
}

// Place inserts the blocks into the layout right after `after`, or at the
// end of the method when after is nil.
func (self *Method) Place(after *Block, bbs ...*Block) {
    if after == nil {
        self.Blocks = append(self.Blocks, bbs...)
        return
    }

    /* find the insertion point */
    i := self.LayoutIndex(after)
    if i < 0 {
        panic(fmt.Sprintf("block %s is not in the layout", after))
    }

    /* splice the blocks */
    rem := append([]*Block(nil), self.Blocks[i + 1:]...)
    self.Blocks = append(append(self.Blocks[:i + 1], bbs...), rem...)
}

/** Symbols **/

func (self *Method) newSymbol(name string, kind SymbolKind, vt DataType) *Symbol {
    sym := &Symbol {
        Id   : len(self.Symbols) + 1,
        Name : name,
        Kind : kind,
        Type : vt,
    }
    self.Symbols = append(self.Symbols, sym)
    return sym
}

func (self *Method) Auto(name string, vt DataType) *Symbol   { return self.newSymbol(name, SymAuto, vt) }
func (self *Method) Parm(name string, vt DataType) *Symbol   { return self.newSymbol(name, SymParm, vt) }
func (self *Method) Static(name string, vt DataType) *Symbol { return self.newSymbol(name, SymStatic, vt) }

// Temp allocates a versioner temporary.
func (self *Method) Temp(vt DataType) *Symbol {
    return self.newSymbol(fmt.Sprintf("$t%d", len(self.Symbols) + 1), SymTemp, vt)
}

// Shadow allocates the symbol of an instance field declared by owner.
func (self *Method) Shadow(owner string, name string, vt DataType) *Symbol {
    sym := self.newSymbol(owner + "." + name, SymShadow, vt)
    sym.Owner = owner
    return sym
}

// ArrayShadow allocates the symbol standing for the elements of arrays of
// the given element type.
func (self *Method) ArrayShadow(vt DataType) *Symbol {
    return self.newSymbol("<array-shadow " + vt.String() + ">", SymArrayShadow, vt)
}

// Callee allocates a method symbol. A nil kill set means the callee may write
// any non-private symbol.
func (self *Method) Callee(name string, ret DataType, kills []*Symbol) *Symbol {
    sym := self.newSymbol(name, SymMethod, ret)
    sym.Kills = kills
    return sym
}

/** Nodes **/

func (self *Method) NewNode(op Opcode, vt DataType, kids ...*Node) *Node {
    p := &Node {
        Id   : len(self.Nodes) + 1,
        Op   : op,
        Type : vt,
        Kids : kids,
    }
    self.Nodes = append(self.Nodes, p)
    return p
}

func (self *Method) Const(vt DataType, v int64) *Node {
    p := self.NewNode(OpConst, vt)
    p.Const = vt.Truncate(v)
    return p
}

func (self *Method) Null() *Node {
    return self.Const(Address, 0)
}

func (self *Method) ClassConst(name string) *Node {
    p := self.NewNode(OpClass, Address)
    p.Class = name
    return p
}

func (self *Method) Load(sym *Symbol) *Node {
    p := self.NewNode(OpLoad, sym.Type)
    p.Sym = sym
    return p
}

func (self *Method) Loadi(sym *Symbol, base *Node) *Node {
    p := self.NewNode(OpLoadi, sym.Type, base)
    p.Sym = sym
    return p
}

func (self *Method) Store(sym *Symbol, val *Node) *Node {
    op := OpStore
    if sym.Type == Address && sym.IsMemory() {
        op = OpWrtBar
    }
    p := self.NewNode(op, NoType, val)
    p.Sym = sym
    return p
}

func (self *Method) Storei(sym *Symbol, base *Node, val *Node) *Node {
    p := self.NewNode(OpStorei, NoType, base, val)
    p.Sym = sym
    return p
}

// WrtBari stores a reference into a field or array element of obj. base is
// the address written (obj itself or an ArrayAddr into it).
func (self *Method) WrtBari(sym *Symbol, base *Node, val *Node, obj *Node) *Node {
    p := self.NewNode(OpWrtBari, NoType, base, val, obj)
    p.Sym = sym
    return p
}

func (self *Method) LoadAddr(sym *Symbol) *Node {
    p := self.NewNode(OpLoadAddr, Address)
    p.Sym = sym
    return p
}

func (self *Method) ArrayAddr(base *Node, index *Node) *Node {
    return self.NewNode(OpArrayAddr, Address, base, index)
}

func (self *Method) ArrayLength(base *Node) *Node {
    return self.NewNode(OpArrayLength, Int32, base)
}

func (self *Method) Vft(obj *Node) *Node {
    return self.NewNode(OpVft, Address, obj)
}

// IsArrayClass tests whether the class computed by vft is an array class.
func (self *Method) IsArrayClass(vft *Node) *Node {
    return self.NewNode(OpIsArray, Int32, vft)
}

func (self *Method) Binary(op Opcode, x *Node, y *Node) *Node {
    return self.NewNode(op, x.Type, x, y)
}

func (self *Method) Unary(op Opcode, vt DataType, x *Node) *Node {
    return self.NewNode(op, vt, x)
}

func (self *Method) Compare(op Opcode, x *Node, y *Node) *Node {
    return self.NewNode(op.CompareOf(), Int32, x, y)
}

func (self *Method) InstanceOf(obj *Node, class *Node) *Node {
    return self.NewNode(OpInstanceOf, Int32, obj, class)
}

func (self *Method) Call(sym *Symbol, args ...*Node) *Node {
    p := self.NewNode(OpCall, sym.Type, args...)
    p.Sym = sym
    return p
}

func (self *Method) New(class string) *Node {
    p := self.NewNode(OpNew, Address)
    p.Class = class
    return p
}

func (self *Method) If(op Opcode, x *Node, y *Node, to *Block) *Node {
    p := self.NewNode(op.BranchOf(), NoType, x, y)
    p.Target = to
    return p
}

// Guard builds a guard branch of the given kind, taken towards the slow path.
func (self *Method) Guard(kind GuardKind, op Opcode, x *Node, y *Node, slow *Block) *Node {
    p := self.If(op, x, y, slow)
    p.Guard = kind
    return p
}

// NopGuard builds a runtime-patchable guard that is never taken until the
// runtime patches it.
func (self *Method) NopGuard(kind GuardKind, slow *Block) *Node {
    return self.Guard(kind, OpIfNe, self.Const(Int32, 0), self.Const(Int32, 0), slow)
}

func (self *Method) Goto(to *Block) *Node {
    p := self.NewNode(OpGoto, NoType)
    p.Target = to
    return p
}

func (self *Method) Return(val ...*Node) *Node {
    return self.NewNode(OpReturn, NoType, val...)
}

func (self *Method) Treetop(p *Node) *Node {
    return self.NewNode(OpTreetop, NoType, p)
}

func (self *Method) AsyncCheck() *Node {
    return self.NewNode(OpAsyncCheck, NoType)
}

func (self *Method) NullChk(acc *Node) *Node {
    return self.NewNode(OpNullChk, NoType, acc)
}

func (self *Method) BndChk(bound *Node, index *Node) *Node {
    return self.NewNode(OpBndChk, NoType, bound, index)
}

func (self *Method) SpineChk(acc *Node, base *Node, bound *Node, index *Node) *Node {
    return self.NewNode(OpSpineChk, NoType, acc, base, bound, index)
}

func (self *Method) DivChk(div *Node) *Node {
    return self.NewNode(OpDivChk, NoType, div)
}

func (self *Method) CheckCast(obj *Node, class *Node) *Node {
    return self.NewNode(OpCheckCast, NoType, obj, class)
}

func (self *Method) ArrayStoreChk(store *Node) *Node {
    return self.NewNode(OpArrayStoreChk, NoType, store)
}

func (self *Method) DebugCounter(name string) *Node {
    p := self.NewNode(OpDebugCounter, NoType)
    p.Class = name
    return p
}

// Duplicate deep-copies the tree rooted at p. Nodes reachable more than once
// from the copied trees are copied once, so sharing is preserved through the
// seen map, keyed by the original node id.
func (self *Method) Duplicate(p *Node, seen map[int]*Node) *Node {
    if q, ok := seen[p.Id]; ok {
        return q
    }

    /* copy the node itself */
    q := self.NewNode(p.Op, p.Type)
    id := q.Id
    *q = *p
    q.Id = id
    q.RefCount = 0
    q.Kids = make([]*Node, len(p.Kids))
    seen[p.Id] = q

    /* copy the children */
    for i, k := range p.Kids {
        q.Kids[i] = self.Duplicate(k, seen)
    }
    return q
}

/** Graph maintenance **/

// Successors computes the successors implied by the last tree of bb and the
// current layout.
func (self *Method) Successors(bb *Block) []*Block {
    var ret []*Block
    add := func(p *Block) {
        if p != nil && blockIndex(ret, p) < 0 {
            ret = append(ret, p)
        }
    }

    /* fall-through edge */
    if bb.FallsThrough() {
        add(self.LayoutNext(bb))
    }

    /* explicit branch target */
    if br := bb.Branch(); br != nil {
        add(br.Target)
    }
    return ret
}

// RecomputeEdges rebuilds every Succ and Pred list from the trees and the
// layout.
func (self *Method) RecomputeEdges() {
    for _, bb := range self.Blocks {
        bb.Pred = bb.Pred[:0]
    }
    for _, bb := range self.Blocks {
        bb.Succ = self.Successors(bb)
        for _, s := range bb.Succ {
            s.Pred = append(s.Pred, bb)
        }
    }
}

// RecomputeRefCounts recounts the parents of every live node. A tree root
// counts its anchoring as one reference.
func (self *Method) RecomputeRefCounts() {
    for _, p := range self.Nodes {
        p.RefCount = 0
    }
    for _, bb := range self.Blocks {
        seen := make(map[int]bool)
        for _, t := range bb.Trees {
            t.RefCount++
            self.countRefs(t, seen)
        }
    }
}

func (self *Method) countRefs(p *Node, seen map[int]bool) {
    if !seen[p.Id] {
        seen[p.Id] = true
        for _, k := range p.Kids {
            k.RefCount++
            self.countRefs(k, seen)
        }
    }
}

// NodeCount returns the number of distinct nodes reachable from the trees.
func (self *Method) NodeCount() int {
    nb := 0
    for _, bb := range self.Blocks {
        for _, t := range bb.Trees {
            t.Walk(func(*Node) { nb++ })
        }
    }
    return nb
}

// Finish wires up the edges and reference counts, records the baseline size
// and builds the structure graph. It must be called after the method is fully
// built and before any pass runs on it.
func (self *Method) Finish() {
    self.RecomputeEdges()
    self.RecomputeRefCounts()
    self.Baseline = self.NodeCount()
    BuildStructure(self)
}

func (self *Method) String() string {
    buf := []string { fmt.Sprintf("method %s {", self.Name) }
    for _, bb := range self.Blocks {
        buf = append(buf, bb.Dump())
    }
    buf = append(buf, "}")
    return strings.Join(buf, "\n")
}
