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
    `fmt`

    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/utils`
)

// VirtualGuardPair is a virtual guard of the fast loop along with the cold
// copy of its slow path. If the guard survives, it may branch straight into
// the slow loop instead.
type VirtualGuardPair struct {
    Guard *il.Node
    Block *il.Block
    Cold  *il.Block
}

// VersionedLoop describes the outcome of cloning a loop.
type VersionedLoop struct {
    Hot     *il.Region
    Cold    *il.Region
    Region  *il.Region
    Entry   *il.Block
    ColdPre *il.Block
    Tests   []*il.Block
    Helpers []*il.Block
    Pairs   []VirtualGuardPair
}

type _Goto struct {
    bb  *il.Block
    rgn *il.Region
}

type _Cloner struct {
    ctx     *LoopContext
    out     *VersionedLoop
    blocks  map[int]*il.Block
    regions map[*il.Region]*il.Region
    owner   map[int]*il.Region
    inner   []_Goto
    outer   []*il.Block
}

// Clone duplicates the loop into a cold copy, and lays out the preps in a
// chain of test blocks in front of the original loop. The first failing test
// jumps to the cold copy. The original loop becomes the fast one.
func (self *LoopContext) Clone(order []*Prep) *VersionedLoop {
    c := &_Cloner {
        ctx     : self,
        out     : &VersionedLoop{Hot: self.Loop},
        blocks  : make(map[int]*il.Block),
        regions : make(map[*il.Region]*il.Region),
        owner   : make(map[int]*il.Region),
    }

    /* the cold copy first, then the tests that lead to it */
    c.collectOwners(self.Loop)
    c.cloneBlocks()
    c.layoutClones()
    c.emitChain(order)
    c.restructure()

    /* the CFG and the structure graph are stale now */
    self.M.RecomputeEdges()
    self.M.Root.RecomputeAllEdges()
    return c.out
}

func (self *_Cloner) cloneBlocks() {
    m := self.ctx.M
    for _, bb := range self.ctx.Blocks {
        cb := m.CreateBlock()
        cb.Freq = bb.Freq
        cb.Cold = true
        self.blocks[bb.Id] = cb

        /* sharing is preserved within a block, never across blocks */
        seen := make(map[int]*il.Node)
        for _, t := range bb.Trees {
            cb.Append(m.Duplicate(t, seen))
        }
    }

    /* branches inside the loop go to the copies */
    for _, bb := range self.ctx.Blocks {
        cb := self.blocks[bb.Id]
        br := cb.Branch()

        /* branches leaving the loop stay as they are */
        if br == nil || !self.ctx.InLoop(br.Target) {
            continue
        }

        /* virtual guards may transfer into the slow loop later on */
        cold := self.blocks[br.Target.Id]
        if g := bb.Branch(); g.IsGuard() && g.Guard == il.GuardVirtual {
            self.out.Pairs = append(self.out.Pairs, VirtualGuardPair {
                Guard : g,
                Block : bb,
                Cold  : cold,
            })
        }

        /* retarget the copy */
        br.Target = cold
    }
}

// layoutClones appends the cold pre-header and the copies to the layout, and
// adds a goto wherever a copy no longer falls through to the right block.
func (self *_Cloner) layoutClones() {
    m := self.ctx.M
    fall := make(map[int]*il.Block)

    /* remember where the originals fall through to */
    for _, bb := range self.ctx.Blocks {
        if bb.FallsThrough() {
            fall[bb.Id] = m.LayoutNext(bb)
            utils.Assert(fall[bb.Id] != nil, "%s falls off the end of %s", bb, m.Name)
        }
    }

    /* the cold pre-header jumps into the cold loop */
    pre := m.CreateBlock()
    pre.Cold = true
    pre.Freq = self.ctx.Pre.Freq
    pre.Append(m.Goto(self.blocks[self.ctx.Header.Id]))
    self.out.ColdPre = pre

    /* append everything at the end */
    m.Place(nil, pre)
    for _, bb := range self.ctx.Blocks {
        m.Place(nil, self.blocks[bb.Id])
    }

    /* fix the fall-through edges */
    for _, bb := range self.ctx.Blocks {
        f, ok := fall[bb.Id]
        if !ok {
            continue
        }

        /* where the copy should go */
        cb := self.blocks[bb.Id]
        want := f
        if self.ctx.InLoop(f) {
            want = self.blocks[f.Id]
        }

        /* already in place */
        if m.LayoutNext(cb) == want {
            continue
        }

        /* insert a goto */
        g := m.CreateBlock()
        g.Cold = true
        g.Freq = cb.Freq
        g.Append(m.Goto(want))
        m.Place(cb, g)
        self.placeGoto(g, bb, f)
    }
}

// placeGoto records which region a synthetic goto belongs to: the innermost
// copied region containing both ends, or the new proper region when the goto
// leaves the loop.
func (self *_Cloner) placeGoto(g *il.Block, from *il.Block, to *il.Block) {
    if !self.ctx.InLoop(to) {
        self.outer = append(self.outer, g)
        return
    }

    /* find the original regions */
    a, b := self.owner[from.Id], self.owner[to.Id]

    /* the common ancestor */
    anc := make(map[*il.Region]bool)
    for p := a; p != nil; p = p.Parent() {
        anc[p] = true
    }
    for !anc[b] {
        b = b.Parent()
    }

    /* remember it for later */
    self.inner = append(self.inner, _Goto{g, b})
}

func (self *_Cloner) collectOwners(r *il.Region) {
    for _, sn := range r.Subnodes {
        switch st := sn.Structure.(type) {
            case *il.Region         : self.collectOwners(st)
            case *il.BlockStructure : self.owner[st.Block.Id] = r
        }
    }
}

// materialize copies a tree out of the loop, reading privatized values from
// their temporaries.
func (self *_Cloner) materialize(p *il.Node, seen map[int]*il.Node) *il.Node {
    if q, ok := seen[p.Id]; ok {
        return q
    }

    /* privatized values */
    m := self.ctx.M
    if e := self.ctx.Exprs.Lookup(p); e != nil {
        if tmp := self.ctx.Temps[e]; tmp != nil {
            q := m.Load(tmp)
            seen[p.Id] = q
            return q
        }
    }

    /* copy the node */
    q := m.NewNode(p.Op, p.Type)
    id := q.Id
    *q = *p
    q.Id = id
    q.RefCount = 0
    q.Kids = make([]*il.Node, len(p.Kids))
    seen[p.Id] = q

    /* and its children */
    for i, k := range p.Kids {
        q.Kids[i] = self.materialize(k, seen)
    }
    return q
}

// emitChain splices the test blocks between the pre-header and the loop.
func (self *_Cloner) emitChain(order []*Prep) {
    m := self.ctx.M
    pre := self.ctx.Pre
    hdr := self.ctx.Header

    /* the pre-header now falls into the first test */
    if p := pre.Last(); p != nil && p.Op == il.OpGoto {
        pre.Trees = pre.Trees[:len(pre.Trees) - 1]
    }

    /* one block per prep */
    for _, p := range order {
        bb := m.CreateBlock()
        bb.Freq = pre.Freq
        p.Block = bb
        self.out.Tests = append(self.out.Tests, bb)

        /* privatizations store to a fresh temporary */
        if p.Kind == PrepPrivatize {
            val := self.materialize(p.Node, make(map[int]*il.Node))
            p.Temp = m.Temp(p.Node.Type)
            self.ctx.Temps[p.Expr] = p.Temp
            bb.Append(m.Store(p.Temp, val))
            continue
        }

        /* tests branch to a helper block on failure */
        h := m.CreateBlock()
        h.Cold = true
        h.Append(m.DebugCounter(fmt.Sprintf("loop_%d: %s", self.ctx.Loop.Num, p.Expr)), m.Goto(self.out.ColdPre))
        self.out.Helpers = append(self.out.Helpers, h)

        /* the test itself */
        t := self.materialize(p.Node, make(map[int]*il.Node))
        t.Target = h
        bb.Append(t)
    }

    /* the new pre-header of the fast loop */
    ent := m.CreateBlock()
    ent.Freq = pre.Freq
    self.out.Entry = ent

    /* lay out the chain right after the old pre-header */
    chain := append(append([]*il.Block(nil), self.out.Tests...), ent)
    next := m.LayoutNext(pre)
    m.Place(pre, chain...)

    /* the last block must still reach the header */
    if next != hdr {
        ent.Append(m.Goto(hdr))
    }

    /* helpers go at the very end */
    m.Place(nil, self.out.Helpers...)
}

func (self *_Cloner) cloneRegion(r *il.Region) *il.Region {
    nr := il.NewRegion(self.blocks[r.Num].Id, r.Kind)
    self.regions[r] = nr

    /* nested pre-headers belong to the loop */
    if r.Invariant != nil && self.ctx.InLoop(r.Invariant) {
        nr.Invariant = self.blocks[r.Invariant.Id]
    }

    /* copy the children */
    for _, sn := range r.Subnodes {
        switch st := sn.Structure.(type) {
            case *il.Region         : nr.AddSubnode(self.cloneRegion(st))
            case *il.BlockStructure : nr.AddSubnode(&il.BlockStructure{Block: self.blocks[st.Block.Id]})
        }
    }
    return nr
}

// restructure replaces the pre-header and the loop in the parent region by a
// proper region holding the tests, both loops and their pre-headers.
func (self *_Cloner) restructure() {
    m := self.ctx.M
    lp := self.ctx.Loop
    par := lp.Parent()

    /* detach the pre-header and the loop */
    pst := par.RemoveSubnode(self.ctx.Pre.Id)
    utils.Assert(pst != nil, "%s is not a direct child of %s", self.ctx.Pre, par)
    par.RemoveSubnode(lp.Num)

    /* the cold loop */
    cold := self.cloneRegion(lp)
    cold.Invariant = self.out.ColdPre

    /* synthetic gotos inside the cold loop */
    for _, g := range self.inner {
        self.regions[g.rgn].AddSubnode(&il.BlockStructure{Block: g.bb})
    }

    /* the proper region holding everything */
    rgn := il.NewRegion(self.ctx.Pre.Id, il.RegionProper)
    rgn.AddSubnode(pst)
    for _, bb := range self.out.Tests   { rgn.AddSubnode(&il.BlockStructure{Block: bb}) }
    for _, bb := range self.out.Helpers { rgn.AddSubnode(&il.BlockStructure{Block: bb}) }
    for _, bb := range self.outer       { rgn.AddSubnode(&il.BlockStructure{Block: bb}) }

    /* pre-headers and loops */
    rgn.AddSubnode(&il.BlockStructure{Block: self.out.Entry})
    rgn.AddSubnode(&il.BlockStructure{Block: self.out.ColdPre})
    rgn.AddSubnode(lp)
    rgn.AddSubnode(cold)

    /* mark the counterparts */
    lp.Invariant = self.out.Entry
    lp.Versioned = cold
    cold.Versioned = lp

    /* keep everything in layout order */
    for _, r := range self.regions {
        r.SortSubnodes(m)
    }

    /* and hook the region into the parent */
    rgn.SortSubnodes(m)
    par.AddSubnode(rgn)
    par.SortSubnodes(m)
    self.out.Cold = cold
    self.out.Region = rgn
}
