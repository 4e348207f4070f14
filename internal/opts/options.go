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

type Options struct {
    MaxLoopBlocks    int
    MaxNesting       int
    ColdRatio        int
    BiasPercent      int
    GrowthPercent    int
    MinFrequency     int32
    Aggressive       bool
    Disabled         uint32
    LoopTransfer     bool
    IgnoreHeapStores bool
    Paranoid         bool
    Trace            bool
}

// CanVersion reports whether the check category with the given ordinal is
// enabled.
func (self *Options) CanVersion(kind int) bool {
    return self.Disabled & (1 << uint(kind)) == 0
}

// Disable turns off the check category with the given ordinal.
func (self *Options) Disable(kind int) {
    self.Disabled |= 1 << uint(kind)
}

// IsUnimportant reports whether a block executed freq times is too cold
// compared to the hottest enclosing loop header.
func (self *Options) IsUnimportant(freq int32, hottest int32) bool {
    ratio := int64(self.ColdRatio)

    /* aggressive mode tolerates colder blocks */
    if self.Aggressive {
        ratio *= 4
    }

    /* unknown frequencies are never considered cold */
    if hottest <= 0 || freq < 0 {
        return false
    } else {
        return int64(freq) * ratio < int64(hottest)
    }
}

// IsHighlyBiased reports whether a branch taken `taken` times out of `total`
// goes overwhelmingly one way.
func (self *Options) IsHighlyBiased(taken int64, total int64) bool {
    pct := int64(self.BiasPercent)

    /* aggressive mode accepts less biased branches */
    if self.Aggressive && pct > 80 {
        pct = 80
    }

    /* not enough samples */
    if total <= 0 {
        return false
    }

    /* either direction counts */
    return taken * 100 >= total * pct || (total - taken) * 100 >= total * pct
}

// IsHotEnough reports whether a loop with the given header frequency should
// be considered at all.
func (self *Options) IsHotEnough(freq int32) bool {
    if self.Aggressive {
        return true
    } else {
        return freq >= self.MinFrequency
    }
}

// WithinGrowth reports whether a method that had `baseline` nodes before the
// pass may grow to `now` nodes.
func (self *Options) WithinGrowth(baseline int, now int) bool {
    if self.GrowthPercent == 0 || baseline == 0 {
        return true
    } else {
        return now * 100 <= baseline * self.GrowthPercent
    }
}

func GetDefaultOptions() Options {
    return Options {
        MaxLoopBlocks : MaxLoopBlocks,
        MaxNesting    : MaxNesting,
        ColdRatio     : ColdRatio,
        BiasPercent   : BiasPercent,
        GrowthPercent : GrowthPercent,
        MinFrequency  : _DefaultMinFrequency,
        LoopTransfer  : true,
        Trace         : Trace,
    }
}
