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

package il

type DataType uint8

const (
    NoType DataType = iota
    Int32
    Int64
    Address
    Float
    Double
    BCD
)

func (self DataType) String() string {
    switch self {
        case NoType  : return "void"
        case Int32   : return "i32"
        case Int64   : return "i64"
        case Address : return "ref"
        case Float   : return "f32"
        case Double  : return "f64"
        case BCD     : return "bcd"
        default      : panic("unreachable")
    }
}

// IsIntegral reports whether values of this type take part in integer
// arithmetic (and therefore in induction variable reasoning).
func (self DataType) IsIntegral() bool {
    return self == Int32 || self == Int64
}

// Truncate wraps v to the width of the type.
func (self DataType) Truncate(v int64) int64 {
    if self == Int32 {
        return int64(int32(v))
    } else {
        return v
    }
}
