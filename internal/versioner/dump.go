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
    `github.com/davecgh/go-spew/spew`
)

var _Dumper = spew.ConfigState {
    Indent                  : "    ",
    MaxDepth                : 4,
    SortKeys                : true,
    DisablePointerAddresses : true,
    DisableCapacities       : true,
}

// Dump formats the candidates, the preps and the IV facts of the loop.
func (self *LoopContext) Dump() string {
    return _Dumper.Sdump(map[string]interface{} {
        "loop"  : self.Loop.String(),
        "test"  : self.Test,
        "ivs"   : self.IVs,
        "preps" : self.prepStrings(),
        "exprs" : self.Exprs.Len(),
    })
}

func (self *LoopContext) prepStrings() []string {
    ret := make([]string, 0, self.Preps.Len())
    for _, p := range self.Preps.All() {
        ret = append(ret, p.String())
    }
    return ret
}
