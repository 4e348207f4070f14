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
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/utils`
)

// Active returns the removals whose assumptions all hold under flags.
func Active(rems []*Removal, flags GuardFlags) []*Removal {
    var ret []*Removal
    for _, r := range rems {
        if r.Needs &^ flags == 0 {
            ret = append(ret, r)
        }
    }
    return ret
}

// solveGuardRemoval finds the largest set of assumptions that still hold
// once the removals relying on them are performed. It starts from every
// assumption some removal wants and drops the ones a surviving operation
// of the fast loop violates, until nothing changes. The IR is not modified.
func (self *LoopContext) solveGuardRemoval(rems []*Removal) GuardFlags {
    var want GuardFlags
    for _, r := range rems {
        want |= r.Needs
    }

    /* nothing to decide */
    if want == 0 {
        return 0
    }

    /* shrink until stable */
    for flags, iter := want, 0; ; iter++ {
        next := flags &^ self.violations(Active(rems, flags))
        utils.Assert(next &^ flags == 0, "guard flags grew from %#x to %#x", flags, next)

        /* reached the fixed point */
        if next == flags {
            self.trace("guard flags", "flags", flags, "iterations", iter + 1)
            return flags
        }

        /* go around again with fewer removals */
        flags = next
    }
}

// violations walks the fast loop as it would look with the removals
// applied, and reports the assumptions some surviving operation breaks.
func (self *LoopContext) violations(rems []*Removal) GuardFlags {
    var ret GuardFlags
    gone := make(map[int]bool)
    effect := make(map[int]Effect)

    /* branches that fold away */
    for _, r := range rems {
        if r.Effect != EffectNone {
            t := r.Check.Where().Tree
            gone[t.Id] = true
            effect[t.Id] = r.Effect
        }
    }

    /* successors of a block once its branch is folded */
    next := func(bb *il.Block) []*il.Block {
        br := bb.Branch()
        if br == nil {
            return self.loopSuccessors(bb)
        }

        /* pick the side that remains */
        var to *il.Block
        switch effect[br.Id] {
            case EffectNone        : return self.loopSuccessors(bb)
            case EffectTaken       : to = br.Target
            case EffectFallThrough : to = self.M.LayoutNext(bb)
        }

        /* only blocks inside the loop */
        if self.InLoop(to) && to != self.Header {
            return []*il.Block{to}
        } else {
            return nil
        }
    }

    /* look at every reachable tree */
    il.NewBlockIter(self.Header, next).ForEach(func(bb *il.Block) {
        for _, t := range bb.Trees {
            if !gone[t.Id] {
                ret |= violatedBy(t)
            }
        }
    })
    return ret
}

// violatedBy tells which assumptions an operation left in the fast loop
// breaks. A call may observe or change privatized values, a yield point may
// patch guards, and any collection may tenure objects.
func violatedBy(t *il.Node) GuardFlags {
    var ret GuardFlags
    t.Walk(func(p *il.Node) {
        if p.Op.IsCall() {
            ret |= NeedPrivatization
        }
        if p.Op.IsOSRPoint() {
            ret |= NeedHCR | NeedOSR
        }
        if p.Op.IsGCPoint() {
            ret |= NeedWrtBar
        }
    })
    return ret
}
