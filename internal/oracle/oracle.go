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

package oracle

import (
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
)

// UseDef answers which stores may define the value read by a direct load.
type UseDef interface {
    Definitions(load *il.Node) ([]*il.Node, bool)
}

// ValueNumbers partitions nodes into classes of provably equal values.
type ValueNumbers interface {
    ValueNumber(p *il.Node) (int, bool)
}

// Profile exposes the profiling data recorded for the method.
type Profile interface {
    BranchCounts(br *il.Node) (taken int64, total int64, ok bool)
    ValueProfile(p *il.Node) (value int64, count int64, total int64, ok bool)
    LoopIterations(header *il.Block) (int64, bool)
}

// Gate is asked before every transformation, so that an embedder can
// disable individual edits deterministically.
type Gate interface {
    PerformTransformation(what string) bool
}

// Set bundles the analyses a versioning run can consult. Every member but the
// gate is optional, a nil member makes the pass take the conservative path.
type Set struct {
    UseDef         UseDef
    ValueNumbers   ValueNumbers
    Profile        Profile
    PostDominators *il.DominatorTree
    Gate           Gate
}

// Permit consults the gate, allowing everything when there is none.
func (self *Set) Permit(what string) bool {
    return self == nil || self.Gate == nil || self.Gate.PerformTransformation(what)
}
