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

package opts

import (
    `os`
    `strconv`

    `github.com/klauspost/cpuid/v2`
)

const (
    _DefaultMaxLoopBlocks  = 256    // loops bigger than this are never duplicated
    _DefaultMaxNesting     = 6      // cutoff at 6 levels of nested loops
    _DefaultColdRatio      = 20     // block is unimportant below 1/20 of the hottest header
    _DefaultBiasPercent    = 95     // branch is highly biased above 95% one way
    _DefaultGrowthPercent  = 200    // method may grow to 200% of its baseline size
    _DefaultMinFrequency   = 0      // loops colder than this are not worth versioning
)

const (
    _ReferenceL1I   = 32 << 10
    _MinGrowth      = 150
    _MaxGrowth      = 400
)

var (
    MaxLoopBlocks  = parseOrDefault("LOOPVER_MAX_LOOP_BLOCKS", _DefaultMaxLoopBlocks, 1)
    MaxNesting     = parseOrDefault("LOOPVER_MAX_NESTING", _DefaultMaxNesting, 0)
    ColdRatio      = parseOrDefault("LOOPVER_COLD_RATIO", _DefaultColdRatio, 1)
    BiasPercent    = parseOrDefault("LOOPVER_BIAS_PERCENT", _DefaultBiasPercent, 50)
    GrowthPercent  = parseOrDefault("LOOPVER_GROWTH_PERCENT", hostGrowthPercent(), 100)
    Trace          = os.Getenv("LOOPVER_TRACE") != ""
)

func parseOrDefault(key string, def int, min int) int {
    if env := os.Getenv(key); env == "" {
        return def
    } else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
        panic("loopver: invalid value for " + key)
    } else if ret := int(val); ret <= min {
        panic("loopver: value too small for " + key)
    } else {
        return ret
    }
}

// hostGrowthPercent scales the code growth budget with the size of the L1
// instruction cache, duplicated loops are cheaper when both copies fit.
func hostGrowthPercent() int {
    l1i := cpuid.CPU.Cache.L1I

    /* unknown cache geometry */
    if l1i <= 0 {
        return _DefaultGrowthPercent
    }

    /* scale and clamp */
    ret := _DefaultGrowthPercent * l1i / _ReferenceL1I
    if ret < _MinGrowth { ret = _MinGrowth }
    if ret > _MaxGrowth { ret = _MaxGrowth }
    return ret
}
