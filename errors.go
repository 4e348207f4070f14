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

package loopver

import (
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/utils`
)

// InternalError occures when the versioner detects a violation of one of its
// own invariants. The method being versioned must be thrown away.
type InternalError = utils.InternalError

// BudgetError describes why a loop was considered too expensive to version.
type BudgetError = utils.BudgetError
