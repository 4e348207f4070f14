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
    `fmt`

    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
)

type CheckKind int

const (
    NullCheck CheckKind = iota
    BoundCheck
    SpineCheck
    DivCheck
    CheckCast
    ArrayStoreCheck
    WriteBarrier
    Conditional
    ProfiledValue
    _KindMax
)

var _KindNames = [_KindMax]string {
    NullCheck       : "nullchk",
    BoundCheck      : "bndchk",
    SpineCheck      : "spinechk",
    DivCheck        : "divchk",
    CheckCast       : "checkcast",
    ArrayStoreCheck : "arraystorechk",
    WriteBarrier    : "wrtbar",
    Conditional     : "conditional",
    ProfiledValue   : "profiled",
}

func (self CheckKind) String() string {
    if self < 0 || self >= _KindMax {
        return fmt.Sprintf("CheckKind(%d)", int(self))
    } else {
        return _KindNames[self]
    }
}

// Kinds lists every check category.
func Kinds() []CheckKind {
    ret := make([]CheckKind, _KindMax)
    for i := range ret {
        ret[i] = CheckKind(i)
    }
    return ret
}

// Site is the position of a candidate in the loop body.
type Site struct {
    Block *il.Block
    Tree  *il.Node
}

func (self Site) Where() Site {
    return self
}

// Check is a candidate occurrence of one of the check categories.
type Check interface {
    Kind() CheckKind
    Where() Site
}

type NullCheckSite struct {
    Site
    Ref *il.Node
}

type BoundCheckSite struct {
    Site
    Bound *il.Node
    Index *il.Node
}

type SpineCheckSite struct {
    Site
    Access *il.Node
    Base   *il.Node
    Bound  *il.Node
    Index  *il.Node
}

type DivCheckSite struct {
    Site
    Divisor *il.Node
}

type CastCheckSite struct {
    Site
    Object *il.Node
    Class  *il.Node
}

type StoreCheckSite struct {
    Site
    Array *il.Node
    Value *il.Node
}

type BarrierSite struct {
    Site
    Store  *il.Node
    Object *il.Node
}

// CondSite is a conditional branch. ColdTaken tells which successor the fast
// loop gives up on.
type CondSite struct {
    Site
    Guard     il.GuardKind
    Biased    bool
    ColdTaken bool
    Ext       *Extremum
}

type ValueSite struct {
    Site
    Node  *il.Node
    Value int64
}

func (*NullCheckSite)  Kind() CheckKind { return NullCheck }
func (*BoundCheckSite) Kind() CheckKind { return BoundCheck }
func (*SpineCheckSite) Kind() CheckKind { return SpineCheck }
func (*DivCheckSite)   Kind() CheckKind { return DivCheck }
func (*CastCheckSite)  Kind() CheckKind { return CheckCast }
func (*StoreCheckSite) Kind() CheckKind { return ArrayStoreCheck }
func (*BarrierSite)    Kind() CheckKind { return WriteBarrier }
func (*CondSite)       Kind() CheckKind { return Conditional }
func (*ValueSite)      Kind() CheckKind { return ProfiledValue }
