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
    `github.com/nikandfor/errors`
)

// Verify checks that the CFG agrees with the trees and the layout, and that
// the structure graph agrees with the CFG.
func Verify(m *Method) error {
    if err := verifyCFG(m); err != nil {
        return errors.Wrap(err, "cfg")
    }
    if err := verifyStructure(m); err != nil {
        return errors.Wrap(err, "structure")
    }
    return nil
}

func verifyCFG(m *Method) error {
    seen := make(map[int]bool)

    /* every block is laid out exactly once */
    for _, bb := range m.Blocks {
        if seen[bb.Id] {
            return errors.New("%s is laid out twice", bb)
        }
        seen[bb.Id] = true
    }

    /* nodes are never shared between blocks */
    owner := make(map[int]*Block)
    for _, bb := range m.Blocks {
        for _, t := range bb.Trees {
            var err error
            t.Walk(func(p *Node) {
                if q, ok := owner[p.Id]; ok && q != bb && err == nil {
                    err = errors.New("node %d is shared by %s and %s", p.Id, q, bb)
                }
                owner[p.Id] = bb
            })
            if err != nil {
                return err
            }
        }
    }

    /* the edges must match what the trees say */
    for _, bb := range m.Blocks {
        exp := m.Successors(bb)

        /* branch targets must be laid out */
        if br := bb.Branch(); br != nil && !seen[br.Target.Id] {
            return errors.New("%s branches to %s which is not laid out", bb, br.Target)
        }

        /* only the last tree may branch */
        for _, t := range bb.Trees[:maxInt(len(bb.Trees) - 1, 0)] {
            if t.Op.IsBranch() || t.Op.IsExit() {
                return errors.New("%s has a branch in the middle: %s", bb, t)
            }
        }

        /* compare the successors */
        if !sameBlocks(exp, bb.Succ) {
            return errors.New("%s has successors %v, trees imply %v", bb, bb.Succ, exp)
        }

        /* and the reverse edges */
        for _, s := range bb.Succ {
            if blockIndex(s.Pred, bb) < 0 {
                return errors.New("%s is missing predecessor %s", s, bb)
            }
        }
        for _, p := range bb.Pred {
            if blockIndex(p.Succ, bb) < 0 {
                return errors.New("%s has stale predecessor %s", bb, p)
            }
        }
    }
    return nil
}

func verifyStructure(m *Method) error {
    if m.Root == nil {
        return errors.New("no structure graph")
    }

    /* every block belongs to exactly one leaf */
    owner := make(map[int]bool)
    for _, bb := range m.Root.Blocks() {
        if owner[bb.Id] {
            return errors.New("%s appears twice", bb)
        }
        owner[bb.Id] = true
    }

    /* and every laid out block is in the graph */
    for _, bb := range m.Blocks {
        if !owner[bb.Id] {
            return errors.New("%s is not in the structure graph", bb)
        }
    }

    /* check the regions */
    return verifyRegion(m, m.Root)
}

func verifyRegion(m *Method, r *Region) error {
    if r.EntryBlock() == nil {
        return errors.New("%s has no entry sub-node", r)
    }

    /* versioned loops point at each other */
    if r.Versioned != nil && r.Versioned.Versioned != r {
        return errors.New("%s and %s are not versioned counterparts", r, r.Versioned)
    }

    /* the sub-node edges must match the CFG */
    succ, _, exit := r.regionEdges()
    for _, sn := range r.Subnodes {
        if sn.Structure.Parent() != r {
            return errors.New("%s has a wrong parent", sn.Structure)
        }
        if !sameInts(succ[sn.Num], sn.Succ) {
            return errors.New("%s: sub-node %d has successors %v, cfg implies %v", r, sn.Num, sn.Succ, succ[sn.Num])
        }
    }

    /* exit edges as well */
    if len(exit) != len(r.Exits) {
        return errors.New("%s has exits %v, cfg implies %v", r, r.Exits, exit)
    }
    for _, e := range exit {
        if !hasExit(r.Exits, e) {
            return errors.New("%s is missing exit edge %v", r, e)
        }
    }

    /* edges into a sibling region must enter through its entry */
    for _, sn := range r.Subnodes {
        for _, bb := range sn.Structure.CollectBlocks(nil) {
            for _, s := range bb.Succ {
                for _, t := range r.Subnodes {
                    if t != sn && isRegion(t.Structure) && s != t.Structure.EntryBlock() && t.Structure.(*Region).Contains(s) {
                        return errors.New("%s enters %s through %s", bb, t.Structure, s)
                    }
                }
            }
        }
    }

    /* recurse into the children */
    for _, sn := range r.Subnodes {
        if c, ok := sn.Structure.(*Region); ok {
            if err := verifyRegion(m, c); err != nil {
                return err
            }
        }
    }
    return nil
}

func sameBlocks(a []*Block, b []*Block) bool {
    if len(a) != len(b) {
        return false
    }
    for _, p := range a {
        if blockIndex(b, p) < 0 {
            return false
        }
    }
    return true
}

func sameInts(a []int, b []int) bool {
    if len(a) != len(b) {
        return false
    }
    for _, v := range a {
        if !hasInt(b, v) {
            return false
        }
    }
    return true
}

func maxInt(a int, b int) int {
    if a > b {
        return a
    } else {
        return b
    }
}
