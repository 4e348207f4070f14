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

package debug

import (
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/versioner`
)

// A Stats records statistics about the loop versioner.
type Stats struct {
    Loops   LoopStats
    Checks  CheckStats
}

// A LoopStats records what happened to the loops considered.
type LoopStats struct {
    Visited   int
    Versioned int
    Vetoed    int
    OverSized int
}

// A CheckStats records statistics about the checks and the tests.
type CheckStats struct {
    Tests           int
    Privatized      int
    Unrepresentable int
    Removed         map[string]int
}

// GetStats returns statistics of the loop versioner.
func GetStats() Stats {
    return Stats {
        Loops: LoopStats {
            Visited   : int(versioner.LoopCount),
            Versioned : int(versioner.VersionedCount),
            Vetoed    : int(versioner.VetoCount),
            OverSized : int(versioner.BudgetCount),
        },
        Checks: CheckStats {
            Tests           : int(versioner.TestCount),
            Privatized      : int(versioner.PrivateCount),
            Unrepresentable : int(versioner.BadExprCount),
            Removed         : versioner.Removed(),
        },
    }
}
