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
    `sort`

    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/opts`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/oracle`
    `github.com/nikandfor/tlog`
)

type _SymWrites struct {
    stores   []*il.Node
    sites    []*il.Block
    killed   bool
    heapOnly bool
}

// LoopContext is the scratch state of one versioning attempt. It is created
// for a single loop and dropped when that loop is done.
type LoopContext struct {
    M       *il.Method
    Loop    *il.Region
    Header  *il.Block
    Pre     *il.Block
    Latch   *il.Block
    Blocks  []*il.Block
    Order   []*il.Block
    Dom     il.DominatorTree
    Test    *LoopTest
    IVs     map[int]*IV
    Checks  [_KindMax][]Check
    Exprs   *ExprTable
    Preps   *PrepTable
    Temps   map[*Expr]*il.Symbol
    Opts    *opts.Options
    Oracles *oracle.Set
    Span    tlog.Span
    Hottest int32
    inLoop  map[int]bool
    writes  map[int]*_SymWrites
    killAll bool
    calls   []*il.Node
    trip    *il.Node
    tripPre []*il.Node
}

func newLoopContext(m *il.Method, lp *il.Region, o *opts.Options, oc *oracle.Set) *LoopContext {
    ctx := &LoopContext {
        M       : m,
        Loop    : lp,
        Header  : lp.Header(),
        Pre     : lp.Invariant,
        IVs     : make(map[int]*IV),
        Exprs   : NewExprTable(),
        Temps   : make(map[*Expr]*il.Symbol),
        Opts    : o,
        Oracles : oc,
        inLoop  : lp.BlockSet(),
        writes  : make(map[int]*_SymWrites),
    }

    /* blocks in layout order */
    ctx.Blocks = lp.Blocks()
    sort.Slice(ctx.Blocks, func(i int, j int) bool {
        return m.LayoutIndex(ctx.Blocks[i]) < m.LayoutIndex(ctx.Blocks[j])
    })

    /* and in reverse post-order, following only the edges inside the loop */
    ctx.Order = il.NewBlockIter(ctx.Header, ctx.loopSuccessors).Reversed()
    ctx.Preps = newPrepTable(ctx)
    ctx.Dom = il.BuildDominatorTree(m)
    ctx.findLatch()
    ctx.findHottest()
    ctx.collectWrites()
    return ctx
}

func (self *LoopContext) loopSuccessors(bb *il.Block) []*il.Block {
    var ret []*il.Block
    for _, p := range bb.Succ {
        if self.inLoop[p.Id] && p != self.Header {
            ret = append(ret, p)
        }
    }
    return ret
}

// InLoop reports whether bb belongs to the loop being versioned.
func (self *LoopContext) InLoop(bb *il.Block) bool {
    return bb != nil && self.inLoop[bb.Id]
}

// findLatch finds the only block branching back to the header.
func (self *LoopContext) findLatch() {
    for _, p := range self.Header.Pred {
        if self.inLoop[p.Id] {
            if self.Latch != nil {
                self.Latch = nil
                return
            }
            self.Latch = p
        }
    }
}

func (self *LoopContext) findHottest() {
    self.Hottest = self.Header.Freq
    for p := self.Loop.EnclosingLoop(); p != nil; p = p.EnclosingLoop() {
        if h := p.Header(); h.Freq > self.Hottest {
            self.Hottest = h.Freq
        }
    }
}

// IsUnimportant reports blocks not worth optimizing for.
func (self *LoopContext) IsUnimportant(bb *il.Block) bool {
    return bb.Cold || self.Opts.IsUnimportant(bb.Freq, self.Hottest)
}

// ContainsNested reports whether bb sits in a loop nested inside ours.
func (self *LoopContext) ContainsNested(bb *il.Block) bool {
    return self.Loop.InnermostLoop(bb) != nil
}

func (self *LoopContext) symWrites(sym *il.Symbol) *_SymWrites {
    if w, ok := self.writes[sym.Id]; ok {
        return w
    }
    w := &_SymWrites{heapOnly: true}
    self.writes[sym.Id] = w
    return w
}

// collectWrites records every symbol the loop may write.
func (self *LoopContext) collectWrites() {
    for _, bb := range self.Blocks {
        for _, t := range bb.Trees {
            t.Walk(func(p *il.Node) {
                switch {
                    case p.Op.IsStore() : self.addStore(bb, p)
                    case p.Op.IsCall()  : self.addCall(p)
                }
            })
        }
    }
}

func (self *LoopContext) addStore(bb *il.Block, p *il.Node) {
    w := self.symWrites(p.Sym)
    w.stores = append(w.stores, p)
    w.sites = append(w.sites, bb)
    w.heapOnly = w.heapOnly && p.Is(il.FlagHeapification)
}

func (self *LoopContext) addCall(p *il.Node) {
    self.calls = append(self.calls, p)

    /* pure callees write nothing */
    if p.Sym.Is(il.SymPure) {
        return
    }

    /* a call with no kill set may write any shared symbol */
    if p.Sym.KillsAll() {
        self.killAll = true
        return
    }

    /* otherwise only the listed ones */
    for _, s := range p.Sym.Kills {
        w := self.symWrites(s)
        w.killed = true
        w.heapOnly = false
    }
}

// IsWritten reports whether the loop may change the value of sym.
func (self *LoopContext) IsWritten(sym *il.Symbol) bool {
    w, ok := self.writes[sym.Id]

    /* calls with an unknown kill set write everything that is not private */
    if self.killAll && !sym.IsPrivate() && !sym.Is(il.SymFinal) {
        return true
    }

    /* not written at all */
    if !ok {
        return false
    }

    /* heapification stores may be ignored on request */
    return !(w.heapOnly && !w.killed && self.Opts.IgnoreHeapStores)
}

// Stores returns the stores to sym inside the loop.
func (self *LoopContext) Stores(sym *il.Symbol) ([]*il.Node, []*il.Block) {
    if w, ok := self.writes[sym.Id]; ok && !w.killed {
        return w.stores, w.sites
    } else {
        return nil, nil
    }
}

// HasCalls reports whether the loop body contains any call.
func (self *LoopContext) HasCalls() bool {
    return len(self.calls) != 0
}

// FirstUse returns the index of the first tree of bb evaluating p, or -1.
func FirstUse(bb *il.Block, p *il.Node) int {
    for i, t := range bb.Trees {
        if t.Contains(func(q *il.Node) bool { return q == p }) {
            return i
        }
    }
    return -1
}

func (self *LoopContext) trace(msg string, kvs ...interface{}) {
    self.Span.Printw(msg, kvs...)
}

func (self *LoopContext) postDominators() *il.DominatorTree {
    if self.Oracles == nil {
        return nil
    } else {
        return self.Oracles.PostDominators
    }
}
