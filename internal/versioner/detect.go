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
)

// Detect collects every candidate of every enabled category in a single walk
// over the loop body. Cold blocks are skipped, so are the arguments of calls.
func (self *LoopContext) Detect() int {
    for _, bb := range self.Order {
        if self.IsUnimportant(bb) {
            continue
        }

        /* scan the trees */
        seen := make(map[int]bool)
        for _, t := range bb.Trees {
            self.detectTree(Site{bb, t}, t, seen)
        }

        /* the branch at the end of the block */
        if br := bb.Branch(); br != nil && br.Op.IsIf() {
            self.detectBranch(bb, br)
        }
    }

    /* count what we have found */
    nb := 0
    for k, list := range self.Checks {
        if len(list) != 0 {
            nb += len(list)
            self.trace("candidates", "kind", CheckKind(k), "count", len(list))
        }
    }
    return nb
}

func (self *LoopContext) add(c Check) {
    if k := c.Kind(); self.Opts.CanVersion(int(k)) {
        self.Checks[k] = append(self.Checks[k], c)
    }
}

func (self *LoopContext) detectTree(site Site, p *il.Node, seen map[int]bool) {
    if seen[p.Id] {
        return
    }

    /* calls may write anything while their arguments are evaluated */
    seen[p.Id] = true
    if p.Op.IsCall() {
        return
    }

    /* children first */
    for _, k := range p.Kids {
        self.detectTree(site, k, seen)
    }

    /* value profiles on plain loads */
    if p.Op == il.OpLoad && p.Type.IsIntegral() {
        self.detectValue(site, p)
    }

    /* the checks themselves */
    switch p.Op {
        case il.OpNullChk: {
            if ref := p.NullCheckReference(); ref != nil {
                self.add(&NullCheckSite{Site: site, Ref: ref})
            }
        }

        case il.OpBndChk: {
            self.add(&BoundCheckSite{Site: site, Bound: p.Kids[0], Index: p.Kids[1]})
        }

        case il.OpSpineChk: {
            self.add(&SpineCheckSite{Site: site, Access: p.Kids[0], Base: p.Kids[1], Bound: p.Kids[2], Index: p.Kids[3]})
        }

        case il.OpDivChk: {
            if div := p.Kids[0]; div.Op.IsDivide() {
                self.add(&DivCheckSite{Site: site, Divisor: div.Kids[1]})
            }
        }

        case il.OpCheckCast: {
            self.add(&CastCheckSite{Site: site, Object: p.Kids[0], Class: p.Kids[1]})
        }

        case il.OpArrayStoreChk: {
            if st := p.Kids[0]; st.Op == il.OpWrtBari {
                self.add(&StoreCheckSite{Site: site, Array: st.Kids[2], Value: st.Kids[1]})
            }
        }

        case il.OpWrtBari: {
            if !p.Is(il.FlagSkipWrtBar) {
                self.add(&BarrierSite{Site: site, Store: p, Object: p.Kids[2]})
            }
        }
    }
}

func (self *LoopContext) detectValue(site Site, p *il.Node) {
    oc := self.Oracles
    if oc == nil || oc.Profile == nil {
        return
    }

    /* the value must be seen most of the time */
    if v, n, total, ok := oc.Profile.ValueProfile(p); ok && n * 100 >= total * int64(self.Opts.BiasPercent) && total > 0 {
        self.add(&ValueSite{Site: site, Node: p, Value: v})
    }
}

func (self *LoopContext) detectBranch(bb *il.Block, br *il.Node) {
    if self.Test != nil && br == self.Test.Branch {
        return
    }

    /* runtime guards */
    site := Site{bb, br}
    if br.IsGuard() {
        if br.Guard != il.GuardBreakpoint {
            self.add(&CondSite{Site: site, Guard: br.Guard})
        }
        return
    }

    /* highly biased branches, as told by the profile */
    if oc := self.Oracles; oc != nil && oc.Profile != nil {
        if taken, total, ok := oc.Profile.BranchCounts(br); ok && self.Opts.IsHighlyBiased(taken, total) {
            self.add(&CondSite{Site: site, Biased: true, ColdTaken: taken * 2 < total})
            return
        }
    }

    /* or by the block frequencies */
    if cold, ok := self.coldSide(bb, br); ok {
        self.add(&CondSite{Site: site, Biased: true, ColdTaken: cold})
    }
}
