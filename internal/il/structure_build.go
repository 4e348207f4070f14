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
    `sort`

    `gonum.org/v1/gonum/graph`
    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/topo`
)

type _NaturalLoop struct {
    header *Block
    body   map[int]*Block
    parent *_NaturalLoop
    region *Region
}

func (self *_NaturalLoop) contains(bb *Block) bool {
    _, ok := self.body[bb.Id]
    return ok
}

// BlockGraph converts the CFG into a gonum directed graph. Self edges are not
// representable there and are dropped.
func BlockGraph(m *Method) *simple.DirectedGraph {
    g := simple.NewDirectedGraph()

    /* add all the blocks */
    for _, bb := range m.Blocks {
        g.AddNode(simple.Node(bb.Id))
    }

    /* add all the edges */
    for _, bb := range m.Blocks {
        for _, s := range bb.Succ {
            if s != bb {
                g.SetEdge(g.NewEdge(simple.Node(bb.Id), simple.Node(s.Id)))
            }
        }
    }
    return g
}

// isReducible checks that every strongly connected component has a block
// dominating all of its members, which is the case when all of its cycles
// are entered through a single header.
func isReducible(m *Method, dom DominatorTree) bool {
    for _, scc := range topo.TarjanSCC(BlockGraph(m)) {
        if len(scc) > 1 && !hasDominatingMember(m, dom, scc) {
            return false
        }
    }
    return true
}

func hasDominatingMember(m *Method, dom DominatorTree, scc []graph.Node) bool {
    for _, h := range scc {
        hb := m.Block(int(h.ID()))
        ok := true

        /* check all the other reachable members */
        for _, p := range scc {
            if pb := m.Block(int(p.ID())); dom.Contains(pb) && !dom.Dominates(hb, pb) {
                ok = false
                break
            }
        }

        /* found the header */
        if ok {
            return true
        }
    }
    return false
}

func findNaturalLoops(m *Method, dom DominatorTree) []*_NaturalLoop {
    loops := make(map[int]*_NaturalLoop)
    order := []*_NaturalLoop(nil)

    /* every back edge defines a natural loop */
    for _, bb := range m.Blocks {
        for _, h := range bb.Succ {
            if !dom.Contains(bb) || !dom.Dominates(h, bb) {
                continue
            }

            /* multiple back edges to the same header share a loop */
            lp, ok := loops[h.Id]
            if !ok {
                lp = &_NaturalLoop{header: h, body: map[int]*Block{h.Id: h}}
                loops[h.Id] = lp
                order = append(order, lp)
            }

            /* walk backwards from the latch up to the header */
            wl := []*Block{bb}
            for len(wl) != 0 {
                p := wl[len(wl) - 1]
                wl = wl[:len(wl) - 1]

                /* add to the body */
                if _, ok = lp.body[p.Id]; !ok {
                    lp.body[p.Id] = p
                    for _, q := range p.Pred {
                        if dom.Contains(q) {
                            wl = append(wl, q)
                        }
                    }
                }
            }
        }
    }

    /* smaller loops are nested deeper */
    sort.SliceStable(order, func(i int, j int) bool {
        return len(order[i].body) < len(order[j].body)
    })

    /* the parent of a loop is the smallest loop containing its header */
    for i, lp := range order {
        for _, q := range order[i + 1:] {
            if q.contains(lp.header) {
                lp.parent = q
                break
            }
        }
    }
    return order
}

// BuildStructure discovers the natural loops of the method and rebuilds its
// structure graph. Methods with irreducible control flow get a flat proper
// region and have Irreducible set.
func BuildStructure(m *Method) {
    dom := BuildDominatorTree(m)
    m.Root = NewRegion(m.Entry.Id, RegionProper)
    m.Irreducible = !isReducible(m, dom)

    /* no loop can be trusted in an irreducible method */
    if m.Irreducible {
        for _, bb := range m.Blocks {
            m.Root.AddSubnode(&BlockStructure{Block: bb})
        }
        m.Root.RecomputeEdges()
        return
    }

    /* build the regions for every loop */
    loops := findNaturalLoops(m, dom)
    for _, lp := range loops {
        lp.region = NewRegion(lp.header.Id, RegionLoop)
        lp.region.Invariant = findInvariantBlock(lp)
    }

    /* attach the regions and the blocks to their innermost owner */
    for _, bb := range m.Blocks {
        var owner *_NaturalLoop
        for _, lp := range loops {
            if lp.contains(bb) {
                owner = lp
                break
            }
        }

        /* blocks outside of any loop belong to the root */
        if owner == nil {
            m.Root.AddSubnode(&BlockStructure{Block: bb})
        } else {
            owner.region.AddSubnode(&BlockStructure{Block: bb})
        }
    }

    /* nest the loops */
    for _, lp := range loops {
        if lp.parent == nil {
            m.Root.AddSubnode(lp.region)
        } else {
            lp.parent.region.AddSubnode(lp.region)
        }
    }

    /* keep the children in layout order and compute the edges */
    for _, lp := range loops {
        lp.region.SortSubnodes(m)
    }

    /* the root as well */
    m.Root.SortSubnodes(m)
    m.Root.RecomputeAllEdges()
}

// findInvariantBlock returns the loop pre-header: the only block outside the
// loop that branches to its header, provided it has no other successor.
func findInvariantBlock(lp *_NaturalLoop) *Block {
    var ret *Block
    for _, p := range lp.header.Pred {
        if !lp.contains(p) {
            if ret != nil {
                return nil
            }
            ret = p
        }
    }

    /* the pre-header must lead only into the loop */
    if ret == nil || len(ret.Succ) != 1 {
        return nil
    } else {
        return ret
    }
}
