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

import (
    `fmt`
)

type SymbolKind uint8

const (
    SymAuto SymbolKind = iota
    SymParm
    SymTemp
    SymStatic
    SymShadow
    SymArrayShadow
    SymMethod
)

func (self SymbolKind) String() string {
    switch self {
        case SymAuto        : return "auto"
        case SymParm        : return "parm"
        case SymTemp        : return "temp"
        case SymStatic      : return "static"
        case SymShadow      : return "shadow"
        case SymArrayShadow : return "array-shadow"
        case SymMethod      : return "method"
        default             : panic("unreachable")
    }
}

type SymbolFlags uint16

const (
    SymVolatile SymbolFlags = 1 << iota
    SymUnresolved
    SymFinal
    SymSuppressInvariance
    SymSuppressPrivatization
    SymAddressTaken
    SymArraylet
    SymPure
)

type Symbol struct {
    Id    int
    Name  string
    Kind  SymbolKind
    Type  DataType
    Flags SymbolFlags
    Owner string
    Kills []*Symbol
}

func (self *Symbol) String() string {
    return fmt.Sprintf("%s#%d", self.Name, self.Id)
}

func (self *Symbol) Is(f SymbolFlags) bool {
    return self.Flags & f != 0
}

// IsPrivate reports symbols that no other thread and no callee can observe:
// autos whose address never escapes, parameters, and versioner temporaries.
func (self *Symbol) IsPrivate() bool {
    switch self.Kind {
        case SymAuto, SymParm : return !self.Is(SymAddressTaken)
        case SymTemp          : return true
        default               : return false
    }
}

// IsMemory reports symbols that live in the heap or in static storage.
func (self *Symbol) IsMemory() bool {
    return self.Kind == SymStatic || self.Kind == SymShadow || self.Kind == SymArrayShadow
}

// KillsAll reports whether a call through this method symbol may write every
// non-private symbol.
func (self *Symbol) KillsAll() bool {
    return self.Kind == SymMethod && !self.Is(SymPure) && self.Kills == nil
}
