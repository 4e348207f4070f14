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
    `strings`
)

// AllowAll permits every transformation.
type AllowAll struct{}

func (AllowAll) PerformTransformation(string) bool {
    return true
}

// Bisect permits the first Limit transformations and refuses the rest,
// remembering every query it was asked.
type Bisect struct {
    Limit int
    Asked []string
}

func (self *Bisect) PerformTransformation(what string) bool {
    self.Asked = append(self.Asked, what)
    return len(self.Asked) <= self.Limit
}

// Deny refuses every transformation whose description contains one of the
// substrings.
type Deny []string

func (self Deny) PerformTransformation(what string) bool {
    for _, s := range self {
        if strings.Contains(what, s) {
            return false
        }
    }
    return true
}
