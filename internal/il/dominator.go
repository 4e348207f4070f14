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

// DominatorTree holds immediate (post-)dominators keyed by block id. Blocks
// unreachable from the root are absent.
type DominatorTree struct {
    Root        *Block
    DominatedBy map[int]*Block
    DominatorOf map[int][]*Block
}

// Dominates reports whether a dominates b. Every block dominates itself.
func (self DominatorTree) Dominates(a *Block, b *Block) bool {
    if a == b {
        return true
    }

    /* walk up the tree from b */
    for p, ok := self.DominatedBy[b.Id]; ok; p, ok = self.DominatedBy[p.Id] {
        if p == a {
            return true
        }
    }
    return false
}

// Contains reports whether bb was reached when the tree was built.
func (self DominatorTree) Contains(bb *Block) bool {
    _, ok := self.DominatedBy[bb.Id]
    return ok || bb == self.Root
}

type _DomSolver struct {
    idom map[int]*Block
    post map[int]int
}

// intersect finds the closest common dominator of a and b by climbing
// whichever of them comes first in post-order.
func (self *_DomSolver) intersect(a *Block, b *Block) *Block {
    for a != b {
        if self.post[a.Id] < self.post[b.Id] {
            a = self.idom[a.Id]
        } else {
            b = self.idom[b.Id]
        }
    }
    return a
}

// buildDominators is the iterative algorithm of Cooper, Harvey and Kennedy,
// "A Simple, Fast Dominance Algorithm". It relaxes the immediate dominators
// in reverse post-order until nothing changes.
func buildDominators(root *Block, next func(*Block) []*Block) DominatorTree {
    var order []*Block
    pred := make(map[int][]*Block)

    /* walk the blocks in post-order */
    NewBlockIter(root, next).ForEach(func(bb *Block) {
        order = append(order, bb)
    })

    /* the root dominates itself while solving */
    ds := &_DomSolver {
        idom : map[int]*Block{ root.Id: root },
        post : make(map[int]int, len(order)),
    }

    /* record the numbering */
    for i, bb := range order {
        ds.post[bb.Id] = i
    }

    /* predecessors in the problem graph, reachable ones only */
    for _, bb := range order {
        for _, p := range next(bb) {
            if _, ok := ds.post[p.Id]; ok {
                pred[p.Id] = append(pred[p.Id], bb)
            }
        }
    }

    /* relax until stable, the root comes last in post-order */
    for changed := true; changed; {
        changed = false
        for i := len(order) - 2; i >= 0; i-- {
            var d *Block
            bb := order[i]

            /* meet over the processed predecessors */
            for _, p := range pred[bb.Id] {
                if ds.idom[p.Id] == nil {
                    continue
                } else if d == nil {
                    d = p
                } else {
                    d = ds.intersect(d, p)
                }
            }

            /* update the immediate dominator */
            if ds.idom[bb.Id] != d {
                ds.idom[bb.Id] = d
                changed = true
            }
        }
    }

    /* map the dominator relations */
    domby := make(map[int]*Block, len(order))
    domof := make(map[int][]*Block, len(order))

    /* the root has no dominator */
    for _, bb := range order {
        if d := ds.idom[bb.Id]; bb != root && d != nil {
            domby[bb.Id] = d
            domof[d.Id] = append(domof[d.Id], bb)
        }
    }

    /* construct the dominator tree */
    return DominatorTree {
        Root        : root,
        DominatorOf : domof,
        DominatedBy : domby,
    }
}

// BuildDominatorTree computes the dominators of every block reachable from
// the method entry.
func BuildDominatorTree(m *Method) DominatorTree {
    return buildDominators(m.Entry, func(bb *Block) []*Block { return bb.Succ })
}

// BuildPostDominatorTree computes post-dominators on the reversed graph. The
// root is a synthetic exit block (id 0) that every exiting block flows into.
func BuildPostDominatorTree(m *Method) DominatorTree {
    exit := &Block{Id: 0}

    /* collect the exiting blocks */
    for _, bb := range m.Blocks {
        if len(bb.Succ) == 0 {
            exit.Pred = append(exit.Pred, bb)
        }
    }

    /* walk the predecessors */
    return buildDominators(exit, func(bb *Block) []*Block { return bb.Pred })
}
