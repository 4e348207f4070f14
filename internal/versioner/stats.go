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
    `sync/atomic`
)

var (
    LoopCount      uint64
    VersionedCount uint64
    VetoCount      uint64
    BudgetCount    uint64
    TestCount      uint64
    PrivateCount   uint64
    BadExprCount   uint64
    RemovedCount   [_KindMax]uint64
)

func countLoop()            { atomic.AddUint64(&LoopCount, 1) }
func countVersioned()       { atomic.AddUint64(&VersionedCount, 1) }
func countVetoed()          { atomic.AddUint64(&VetoCount, 1) }
func countBudget()          { atomic.AddUint64(&BudgetCount, 1) }
func countTests(n int)      { atomic.AddUint64(&TestCount, uint64(n)) }
func countPrivatized()      { atomic.AddUint64(&PrivateCount, 1) }
func countUnrepresentable() { atomic.AddUint64(&BadExprCount, 1) }

func countRemoved(kind CheckKind) {
    atomic.AddUint64(&RemovedCount[kind], 1)
}

// Removed returns the number of checks removed so far, by category name.
func Removed() map[string]int {
    ret := make(map[string]int, _KindMax)
    for i := range RemovedCount {
        if n := atomic.LoadUint64(&RemovedCount[i]); n != 0 {
            ret[CheckKind(i).String()] = int(n)
        }
    }
    return ret
}
