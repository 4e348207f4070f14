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

type Opcode uint8

const (
    OpBad Opcode = iota

    /* anchors and constants */
    OpTreetop
    OpConst
    OpClass

    /* memory access */
    OpLoad
    OpLoadi
    OpStore
    OpStorei
    OpWrtBar
    OpWrtBari
    OpLoadAddr
    OpArrayAddr
    OpArrayLength
    OpComponentClass
    OpVft

    /* arithmetic */
    OpAdd
    OpSub
    OpMul
    OpDiv
    OpRem
    OpNeg
    OpAnd
    OpOr
    OpXor
    OpShl
    OpShr
    OpI2L
    OpL2I
    OpBCD2I

    /* calls and allocations */
    OpCall
    OpNew

    /* type and heap queries */
    OpInstanceOf
    OpIsTenured
    OpIsContiguous
    OpIsArray

    /* value comparisons */
    OpCmpEq
    OpCmpNe
    OpCmpLt
    OpCmpLe
    OpCmpGt
    OpCmpGe

    /* compare-and-branch */
    OpIfEq
    OpIfNe
    OpIfLt
    OpIfLe
    OpIfGt
    OpIfGe

    /* control flow */
    OpGoto
    OpReturn
    OpThrow
    OpAsyncCheck

    /* checks */
    OpNullChk
    OpBndChk
    OpSpineChk
    OpDivChk
    OpCheckCast
    OpArrayStoreChk

    /* instrumentation */
    OpDebugCounter

    _OpMax
)

type _OpProps uint32

const (
    _P_branch _OpProps = 1 << iota
    _P_cond
    _P_check
    _P_load
    _P_store
    _P_call
    _P_compare
    _P_hoistable
    _P_gcpoint
    _P_osrpoint
    _P_indirect
    _P_exit
)

type _OpInfo struct {
    name  string
    props _OpProps
}

var _OpTab = [_OpMax]_OpInfo {
    OpBad            : { "bad"            , 0 },
    OpTreetop        : { "treetop"        , 0 },
    OpConst          : { "const"          , _P_hoistable },
    OpClass          : { "class"          , _P_hoistable },
    OpLoad           : { "load"           , _P_load | _P_hoistable },
    OpLoadi          : { "loadi"          , _P_load | _P_indirect | _P_hoistable },
    OpStore          : { "store"          , _P_store },
    OpStorei         : { "storei"         , _P_store | _P_indirect },
    OpWrtBar         : { "wrtbar"         , _P_store },
    OpWrtBari        : { "wrtbari"        , _P_store | _P_indirect },
    OpLoadAddr       : { "loadaddr"       , _P_hoistable },
    OpArrayAddr      : { "arrayaddr"      , _P_hoistable },
    OpArrayLength    : { "arraylength"    , _P_hoistable },
    OpComponentClass : { "componentclass" , _P_hoistable },
    OpVft            : { "vft"            , _P_hoistable },
    OpAdd            : { "add"            , _P_hoistable },
    OpSub            : { "sub"            , _P_hoistable },
    OpMul            : { "mul"            , _P_hoistable },
    OpDiv            : { "div"            , _P_hoistable },
    OpRem            : { "rem"            , _P_hoistable },
    OpNeg            : { "neg"            , _P_hoistable },
    OpAnd            : { "and"            , _P_hoistable },
    OpOr             : { "or"             , _P_hoistable },
    OpXor            : { "xor"            , _P_hoistable },
    OpShl            : { "shl"            , _P_hoistable },
    OpShr            : { "shr"            , _P_hoistable },
    OpI2L            : { "i2l"            , _P_hoistable },
    OpL2I            : { "l2i"            , _P_hoistable },
    OpBCD2I          : { "bcd2i"          , 0 },
    OpCall           : { "call"           , _P_call | _P_gcpoint | _P_osrpoint },
    OpNew            : { "new"            , _P_gcpoint },
    OpInstanceOf     : { "instanceof"     , _P_hoistable },
    OpIsTenured      : { "istenured"      , _P_hoistable },
    OpIsContiguous   : { "iscontiguous"   , _P_hoistable },
    OpIsArray        : { "isarray"        , _P_hoistable },
    OpCmpEq          : { "cmpeq"          , _P_compare | _P_hoistable },
    OpCmpNe          : { "cmpne"          , _P_compare | _P_hoistable },
    OpCmpLt          : { "cmplt"          , _P_compare | _P_hoistable },
    OpCmpLe          : { "cmple"          , _P_compare | _P_hoistable },
    OpCmpGt          : { "cmpgt"          , _P_compare | _P_hoistable },
    OpCmpGe          : { "cmpge"          , _P_compare | _P_hoistable },
    OpIfEq           : { "ifeq"           , _P_branch | _P_cond | _P_compare },
    OpIfNe           : { "ifne"           , _P_branch | _P_cond | _P_compare },
    OpIfLt           : { "iflt"           , _P_branch | _P_cond | _P_compare },
    OpIfLe           : { "ifle"           , _P_branch | _P_cond | _P_compare },
    OpIfGt           : { "ifgt"           , _P_branch | _P_cond | _P_compare },
    OpIfGe           : { "ifge"           , _P_branch | _P_cond | _P_compare },
    OpGoto           : { "goto"           , _P_branch },
    OpReturn         : { "return"         , _P_exit },
    OpThrow          : { "throw"          , _P_exit | _P_gcpoint },
    OpAsyncCheck     : { "asynccheck"     , _P_gcpoint | _P_osrpoint },
    OpNullChk        : { "nullchk"        , _P_check },
    OpBndChk         : { "bndchk"         , _P_check },
    OpSpineChk       : { "spinechk"       , _P_check },
    OpDivChk         : { "divchk"         , _P_check },
    OpCheckCast      : { "checkcast"      , _P_check },
    OpArrayStoreChk  : { "arraystorechk"  , _P_check },
    OpDebugCounter   : { "debugcounter"   , 0 },
}

func (self Opcode) String() string {
    if self >= _OpMax {
        return "???"
    } else {
        return _OpTab[self].name
    }
}

func (self Opcode) has(p _OpProps) bool {
    return self < _OpMax && _OpTab[self].props & p != 0
}

func (self Opcode) IsBranch()    bool { return self.has(_P_branch) }
func (self Opcode) IsIf()        bool { return self.has(_P_cond) }
func (self Opcode) IsCheck()     bool { return self.has(_P_check) }
func (self Opcode) IsLoad()      bool { return self.has(_P_load) }
func (self Opcode) IsStore()     bool { return self.has(_P_store) }
func (self Opcode) IsCall()      bool { return self.has(_P_call) }
func (self Opcode) IsCompare()   bool { return self.has(_P_compare) }
func (self Opcode) IsHoistable() bool { return self.has(_P_hoistable) }
func (self Opcode) IsGCPoint()   bool { return self.has(_P_gcpoint) }
func (self Opcode) IsOSRPoint()  bool { return self.has(_P_osrpoint) }
func (self Opcode) IsIndirect()  bool { return self.has(_P_indirect) }
func (self Opcode) IsExit()      bool { return self.has(_P_exit) }

// IsDivide reports division and remainder, the two operations guarded by DIVCHK.
func (self Opcode) IsDivide() bool {
    return self == OpDiv || self == OpRem
}

// IsConversion reports the width conversions that preserve sign and value
// for in-range operands.
func (self Opcode) IsConversion() bool {
    return self == OpI2L || self == OpL2I
}

var _IfToCmp = map[Opcode]Opcode {
    OpIfEq: OpCmpEq,
    OpIfNe: OpCmpNe,
    OpIfLt: OpCmpLt,
    OpIfLe: OpCmpLe,
    OpIfGt: OpCmpGt,
    OpIfGe: OpCmpGe,
}

var _CmpToIf = map[Opcode]Opcode {
    OpCmpEq: OpIfEq,
    OpCmpNe: OpIfNe,
    OpCmpLt: OpIfLt,
    OpCmpLe: OpIfLe,
    OpCmpGt: OpIfGt,
    OpCmpGe: OpIfGe,
}

// CompareOf maps a compare-and-branch to the value comparison it tests.
func (self Opcode) CompareOf() Opcode {
    if op, ok := _IfToCmp[self]; ok {
        return op
    } else {
        return self
    }
}

// BranchOf maps a value comparison to its compare-and-branch form.
func (self Opcode) BranchOf() Opcode {
    if op, ok := _CmpToIf[self]; ok {
        return op
    } else {
        return self
    }
}

// Reversed returns the comparison that holds exactly when self does not.
func (self Opcode) Reversed() Opcode {
    switch self {
        case OpIfEq  : return OpIfNe
        case OpIfNe  : return OpIfEq
        case OpIfLt  : return OpIfGe
        case OpIfLe  : return OpIfGt
        case OpIfGt  : return OpIfLe
        case OpIfGe  : return OpIfLt
        case OpCmpEq : return OpCmpNe
        case OpCmpNe : return OpCmpEq
        case OpCmpLt : return OpCmpGe
        case OpCmpLe : return OpCmpGt
        case OpCmpGt : return OpCmpLe
        case OpCmpGe : return OpCmpLt
        default      : panic("not a comparison: " + self.String())
    }
}

// Swapped returns the comparison that holds for swapped operands.
func (self Opcode) Swapped() Opcode {
    switch self {
        case OpIfLt  : return OpIfGt
        case OpIfLe  : return OpIfGe
        case OpIfGt  : return OpIfLt
        case OpIfGe  : return OpIfLe
        case OpCmpLt : return OpCmpGt
        case OpCmpLe : return OpCmpGe
        case OpCmpGt : return OpCmpLt
        case OpCmpGe : return OpCmpLe
        default      : return self
    }
}

// Compare evaluates the comparison on two signed integers.
func (self Opcode) Compare(a int64, b int64) bool {
    switch self.CompareOf() {
        case OpCmpEq : return a == b
        case OpCmpNe : return a != b
        case OpCmpLt : return a < b
        case OpCmpLe : return a <= b
        case OpCmpGt : return a > b
        case OpCmpGe : return a >= b
        default      : panic("not a comparison: " + self.String())
    }
}
