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
    `math`
    `math/bits`
    `strconv`
)

var (
    MinInt65 = Int65{0, 1}
    MaxInt65 = Int65{math.MaxUint64, 0}
)

const (
    _MinInt65Str = "-18446744073709551616"
)

// Int65 is a 65-bit two's complement integer, wide enough to hold the sum or
// difference of any two 64-bit integers without wrapping.
type Int65 struct {
    u uint64
    s uint64
}

func Int65i(v int64) Int65 {
    return Int65 {
        u: uint64(v),
        s: uint64(v) >> 63,
    }
}

func (self Int65) String() string {
    if self.s == 0 {
        return strconv.FormatUint(self.u, 10)
    } else if self.u != 0 {
        return "-" + strconv.FormatUint(-self.u, 10)
    } else {
        return _MinInt65Str
    }
}

func (self Int65) OneLess() (r Int65) {
    r.u, r.s = bits.Sub64(self.u, 1, 0)
    r.s = (self.s - r.s) & 1
    return
}

func (self Int65) OneMore() (r Int65) {
    r.u, r.s = bits.Add64(self.u, 1, 0)
    r.s = (self.s + r.s) & 1
    return
}

func (self Int65) Add(other Int65) (r Int65) {
    var c uint64
    r.u, c = bits.Add64(self.u, other.u, 0)
    r.s = (self.s + other.s + c) & 1
    return
}

func (self Int65) Sub(other Int65) (r Int65) {
    var b uint64
    r.u, b = bits.Sub64(self.u, other.u, 0)
    r.s = (self.s - other.s - b) & 1
    return
}

func (self Int65) Compare(other Int65) int {
    if self.s == 0 && other.s != 0 {
        return 1
    } else if self.s != 0 && other.s == 0 {
        return -1
    } else {
        return cmpu64(self.u, other.u)
    }
}

func (self Int65) CompareZero() int {
    if self.s != 0 {
        return -1
    } else if self.u != 0 {
        return 1
    } else {
        return 0
    }
}

// Int64 converts back, reporting whether the value fits.
func (self Int65) Int64() (int64, bool) {
    v := int64(self.u)
    return v, uint64(v >> 63) & 1 == self.s
}

// FitsInt32 reports whether the value is a valid 32-bit integer.
func (self Int65) FitsInt32() bool {
    return self.Compare(Int65i(math.MinInt32)) >= 0 && self.Compare(Int65i(math.MaxInt32)) <= 0
}

// mulInt64 multiplies two 64-bit integers, reporting whether the product
// fits in 64 bits.
func mulInt64(a int64, b int64) (int64, bool) {
    neg := (a < 0) != (b < 0)
    hi, lo := bits.Mul64(absu64(a), absu64(b))

    /* the magnitude must fit in 63 bits, or be exactly 2^63 when negative */
    switch {
        case hi != 0                          : return 0, false
        case lo <= math.MaxInt64 && !neg      : return int64(lo), true
        case lo <= math.MaxInt64              : return -int64(lo), true
        case lo == 1 << 63 && neg             : return math.MinInt64, true
        default                               : return 0, false
    }
}

func absu64(v int64) uint64 {
    if v < 0 {
        return uint64(-v)
    } else {
        return uint64(v)
    }
}

func cmpu64(a uint64, b uint64) int {
    if a > b {
        return 1
    } else if a < b {
        return -1
    } else {
        return 0
    }
}
