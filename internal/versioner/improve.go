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
)

// Improve edits the fast loop once the tests are in place. Privatizations go
// first, removals relying on a vetoed privatization are skipped. Every edit is
// subject to the transformation gate on its own.
func (self *LoopContext) Improve(order []*Prep, rems []*Removal) []*Removal {
    var vetoed []*Prep
    var ret []*Removal

    /* hot loop reads of privatized values use the temporaries */
    for _, p := range order {
        if p.Kind != PrepPrivatize {
            continue
        }

        /* ask for permission */
        if !self.Oracles.Permit(fmt.Sprintf("privatize %s in loop %d", p.Expr, self.Loop.Num)) {
            vetoed = append(vetoed, p)
            continue
        }

        /* replace the reads */
        nb := self.privatize(p)
        countPrivatized()
        self.trace("privatized", "expr", p.Expr, "temp", p.Temp, "uses", nb)
    }

    /* then the removals */
    for _, r := range rems {
        if dependsOnAny(r, vetoed) {
            self.trace("removal skipped", "what", r.Desc, "reason", "privatization vetoed")
            continue
        }

        /* ask for permission */
        if !self.Oracles.Permit(r.Desc) {
            self.trace("removal vetoed", "what", r.Desc)
            continue
        }

        /* and do it */
        if r.Apply != nil && r.Apply() {
            ret = append(ret, r)
            countRemoved(r.Check.Kind())
            self.trace("removed", "what", r.Desc)
        }
    }

    /* privatized reads dropped their children, removals dropped whole trees */
    self.M.RecomputeRefCounts()
    return ret
}

func dependsOnAny(r *Removal, preps []*Prep) bool {
    for _, p := range r.Preps {
        for _, q := range preps {
            if p == q || p.DependsOn(q) {
                return true
            }
        }
    }
    return false
}

// privatize turns every read of the privatized value in the fast loop into a
// load of its temporary. Nodes are converted in place, so every parent sees
// the change.
func (self *LoopContext) privatize(p *Prep) int {
    nb := 0
    done := make(map[int]bool)

    /* scan the fast loop */
    for _, bb := range self.Blocks {
        for _, t := range bb.Trees {
            t.Walk(func(q *il.Node) {
                if !done[q.Id] && q.Op == p.Expr.Op && q.Sym == p.Expr.Sym && self.sameValue(q, p.Expr) {
                    done[q.Id] = true
                    q.Op = il.OpLoad
                    q.Sym = p.Temp
                    q.Kids = nil
                    nb++
                }
            })
        }
    }
    return nb
}

// sameValue reports whether q computes the expression e.
func (self *LoopContext) sameValue(q *il.Node, e *Expr) bool {
    if f := self.Exprs.Lookup(q); f != nil {
        return f == e
    }

    /* trees we have never seen before */
    f, err := self.Exprs.Intern(q)
    return err == nil && f == e
}
