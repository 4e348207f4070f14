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
    `sort`
    `strings`
)

type RegionKind uint8

const (
    RegionProper RegionKind = iota
    RegionLoop
)

func (self RegionKind) String() string {
    switch self {
        case RegionProper : return "proper"
        case RegionLoop   : return "loop"
        default           : panic("unreachable")
    }
}

// Structure is a node of the structure graph: either a single block or a
// region made of sub-structures. Its number is the id of its entry block.
type Structure interface {
    Number() int
    Parent() *Region
    EntryBlock() *Block
    CollectBlocks(buf []*Block) []*Block
    setParent(p *Region)
}

type BlockStructure struct {
    Block  *Block
    parent *Region
}

func (self *BlockStructure) Number() int            { return self.Block.Id }
func (self *BlockStructure) Parent() *Region        { return self.parent }
func (self *BlockStructure) EntryBlock() *Block     { return self.Block }
func (self *BlockStructure) setParent(p *Region)    { self.parent = p }

func (self *BlockStructure) CollectBlocks(buf []*Block) []*Block {
    return append(buf, self.Block)
}

// SubNode is the position of a sub-structure inside its parent region, along
// with the edges between sibling sub-structures.
type SubNode struct {
    Num       int
    Structure Structure
    Succ      []int
    Pred      []int
}

// ExitEdge leaves a region, from sub-node From to block To outside of it.
type ExitEdge struct {
    From int
    To   int
}

type Region struct {
    Num       int
    Kind      RegionKind
    Subnodes  []*SubNode
    Exits     []ExitEdge
    Invariant *Block
    Versioned *Region
    parent    *Region
}

func NewRegion(num int, kind RegionKind) *Region {
    return &Region{Num: num, Kind: kind}
}

func (self *Region) Number() int            { return self.Num }
func (self *Region) Parent() *Region        { return self.parent }
func (self *Region) setParent(p *Region)    { self.parent = p }
func (self *Region) IsLoop() bool           { return self.Kind == RegionLoop }

func (self *Region) String() string {
    return fmt.Sprintf("%s_region_%d", self.Kind, self.Num)
}

func (self *Region) EntryBlock() *Block {
    if sn := self.Subnode(self.Num); sn == nil {
        return nil
    } else {
        return sn.Structure.EntryBlock()
    }
}

// Header is the entry block of a loop.
func (self *Region) Header() *Block {
    return self.EntryBlock()
}

func (self *Region) CollectBlocks(buf []*Block) []*Block {
    for _, sn := range self.Subnodes {
        buf = sn.Structure.CollectBlocks(buf)
    }
    return buf
}

// Blocks returns every block of the region, nested regions included.
func (self *Region) Blocks() []*Block {
    return self.CollectBlocks(nil)
}

// BlockSet returns the ids of every block of the region.
func (self *Region) BlockSet() map[int]bool {
    ret := make(map[int]bool)
    for _, bb := range self.Blocks() {
        ret[bb.Id] = true
    }
    return ret
}

func (self *Region) Contains(bb *Block) bool {
    for _, p := range self.Blocks() {
        if p == bb {
            return true
        }
    }
    return false
}

func (self *Region) Subnode(num int) *SubNode {
    for _, sn := range self.Subnodes {
        if sn.Num == num {
            return sn
        }
    }
    return nil
}

// AddSubnode adopts the structure as a direct child.
func (self *Region) AddSubnode(st Structure) *SubNode {
    sn := &SubNode{Num: st.Number(), Structure: st}
    st.setParent(self)
    self.Subnodes = append(self.Subnodes, sn)
    return sn
}

// RemoveSubnode drops the child numbered num and returns its structure.
func (self *Region) RemoveSubnode(num int) Structure {
    for i, sn := range self.Subnodes {
        if sn.Num == num {
            self.Subnodes = append(self.Subnodes[:i], self.Subnodes[i + 1:]...)
            sn.Structure.setParent(nil)
            return sn.Structure
        }
    }
    return nil
}

// Depth returns the number of loops enclosing the region, itself included.
func (self *Region) Depth() int {
    nb := 0
    for p := self; p != nil; p = p.parent {
        if p.IsLoop() {
            nb++
        }
    }
    return nb
}

// EnclosingLoop returns the nearest loop strictly enclosing the region.
func (self *Region) EnclosingLoop() *Region {
    for p := self.parent; p != nil; p = p.parent {
        if p.IsLoop() {
            return p
        }
    }
    return nil
}

// InnerLoops returns the outermost loops nested in the region, looking
// through proper regions.
func (self *Region) InnerLoops() []*Region {
    var ret []*Region
    for _, sn := range self.Subnodes {
        if r, ok := sn.Structure.(*Region); ok {
            if r.IsLoop() {
                ret = append(ret, r)
            } else {
                ret = append(ret, r.InnerLoops()...)
            }
        }
    }
    return ret
}

// Loops returns every loop nested in the region, outer loops first.
func (self *Region) Loops() []*Region {
    var ret []*Region
    for _, r := range self.InnerLoops() {
        ret = append(ret, r)
        ret = append(ret, r.Loops()...)
    }
    return ret
}

// InnermostLoop returns the innermost loop of the region containing bb.
func (self *Region) InnermostLoop(bb *Block) *Region {
    for _, r := range self.InnerLoops() {
        if r.Contains(bb) {
            if p := r.InnermostLoop(bb); p != nil {
                return p
            } else {
                return r
            }
        }
    }
    return nil
}

// regionEdges computes the sibling edges and exit edges implied by the CFG.
func (self *Region) regionEdges() (map[int][]int, map[int][]int, []ExitEdge) {
    succ := make(map[int][]int)
    pred := make(map[int][]int)
    exit := []ExitEdge(nil)
    owner := make(map[int]*SubNode)

    /* find the owning sub-node of every block */
    for _, sn := range self.Subnodes {
        for _, bb := range sn.Structure.CollectBlocks(nil) {
            owner[bb.Id] = sn
        }
    }

    /* classify every edge leaving a sub-node */
    for _, sn := range self.Subnodes {
        for _, bb := range sn.Structure.CollectBlocks(nil) {
            for _, s := range bb.Succ {
                t, ok := owner[s.Id]

                /* edges leaving the region */
                if !ok {
                    if e := (ExitEdge{sn.Num, s.Id}); !hasExit(exit, e) {
                        exit = append(exit, e)
                    }
                    continue
                }

                /* sibling edges, including back edges to the loop header */
                if t != sn || (s == sn.Structure.EntryBlock() && !isRegion(sn.Structure)) {
                    if !hasInt(succ[sn.Num], t.Num) {
                        succ[sn.Num] = append(succ[sn.Num], t.Num)
                        pred[t.Num] = append(pred[t.Num], sn.Num)
                    }
                }
            }
        }
    }
    return succ, pred, exit
}

// RecomputeEdges rebuilds the sub-node edges of the region from the CFG.
func (self *Region) RecomputeEdges() {
    succ, pred, exit := self.regionEdges()
    self.Exits = exit

    /* assign the edges */
    for _, sn := range self.Subnodes {
        sn.Succ = succ[sn.Num]
        sn.Pred = pred[sn.Num]
    }
}

// RecomputeAllEdges rebuilds the edges of the region and all its descendants.
func (self *Region) RecomputeAllEdges() {
    self.RecomputeEdges()
    for _, sn := range self.Subnodes {
        if r, ok := sn.Structure.(*Region); ok {
            r.RecomputeAllEdges()
        }
    }
}

// SortSubnodes orders the sub-nodes by the layout position of their entries.
func (self *Region) SortSubnodes(m *Method) {
    sort.SliceStable(self.Subnodes, func(i int, j int) bool {
        return m.LayoutIndex(self.Subnodes[i].Structure.EntryBlock()) < m.LayoutIndex(self.Subnodes[j].Structure.EntryBlock())
    })
}

func (self *Region) Dump() string {
    var buf []string
    self.dump(&buf, 0)
    return strings.Join(buf, "\n")
}

func (self *Region) dump(buf *[]string, depth int) {
    ind := strings.Repeat("    ", depth)
    inv := ""

    /* the loop pre-header */
    if self.Invariant != nil {
        inv = fmt.Sprintf(" invariant %s", self.Invariant)
    }

    /* the region itself */
    *buf = append(*buf, fmt.Sprintf("%s%s%s", ind, self, inv))

    /* all the sub-nodes */
    for _, sn := range self.Subnodes {
        switch st := sn.Structure.(type) {
            case *Region         : st.dump(buf, depth + 1)
            case *BlockStructure : *buf = append(*buf, fmt.Sprintf("%s    %s -> %v", ind, st.Block, sn.Succ))
        }
    }
}

func isRegion(st Structure) bool {
    _, ok := st.(*Region)
    return ok
}

func hasInt(list []int, v int) bool {
    for _, x := range list {
        if x == v {
            return true
        }
    }
    return false
}

func hasExit(list []ExitEdge, e ExitEdge) bool {
    for _, x := range list {
        if x == e {
            return true
        }
    }
    return false
}
