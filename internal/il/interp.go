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

const (
    _ClassBase   = int64(1) << 40
    _DefaultStep = 100000
)

type Object struct {
    Class   string
    Fields  map[string]int64
    Elems   []int64
    Tenured bool
}

// Exception is raised by a failing check or by an explicit throw.
type Exception struct {
    Kind string
    Node *Node
}

func (self *Exception) Error() string {
    return fmt.Sprintf("%s at %s", self.Kind, self.Node)
}

// Crash is an unchecked fault: a null dereference, an out of bounds access
// or a division by zero that no check guarded.
type Crash struct {
    Reason string
    Node   *Node
}

func (self *Crash) Error() string {
    return fmt.Sprintf("crash: %s at %s", self.Reason, self.Node)
}

type _Frame struct {
    locals map[int]int64
    memo   map[int]int64
}

// Interp executes a method over a small object heap. Fields, statics and
// callees are keyed by name, so one setup can drive several builds of the
// same method.
type Interp struct {
    M        *Method
    Heap     []*Object
    Statics  map[string]int64
    Calls    map[string]func(args []int64) int64
    Patched  map[GuardKind]bool
    Counters map[string]int
    Visits   map[int]int
    Barriers int
    Steps    int
    classes  []string
    frame    *_Frame
}

func NewInterp(m *Method) *Interp {
    return &Interp {
        M        : m,
        Statics  : make(map[string]int64),
        Calls    : make(map[string]func([]int64) int64),
        Patched  : make(map[GuardKind]bool),
        Counters : make(map[string]int),
        Visits   : make(map[int]int),
        Steps    : _DefaultStep,
    }
}

// NewObject allocates an object and returns its reference.
func (self *Interp) NewObject(class string) int64 {
    self.Heap = append(self.Heap, &Object{Class: class, Fields: make(map[string]int64)})
    return int64(len(self.Heap))
}

// NewArray allocates an array of n zeroed elements.
func (self *Interp) NewArray(class string, n int) int64 {
    ref := self.NewObject(class)
    self.Heap[ref - 1].Elems = make([]int64, n)
    return ref
}

func (self *Interp) Object(ref int64) *Object {
    if ref <= 0 || ref > int64(len(self.Heap)) {
        return nil
    } else {
        return self.Heap[ref - 1]
    }
}

func (self *Interp) classOf(name string) int64 {
    for i, s := range self.classes {
        if s == name {
            return _ClassBase + int64(i)
        }
    }
    self.classes = append(self.classes, name)
    return _ClassBase + int64(len(self.classes) - 1)
}

func (self *Interp) className(v int64) string {
    if i := v - _ClassBase; i < 0 || i >= int64(len(self.classes)) {
        return ""
    } else {
        return self.classes[i]
    }
}

// Run executes the method with the arguments bound to its parameters in
// declaration order.
func (self *Interp) Run(args ...int64) (int64, error) {
    self.frame = &_Frame{locals: make(map[int]int64)}
    nargs := 0

    /* bind the parameters */
    for _, sym := range self.M.Symbols {
        if sym.Kind == SymParm {
            if nargs < len(args) {
                self.frame.locals[sym.Id] = args[nargs]
            }
            nargs++
        }
    }

    /* execute from the entry block */
    for bb, steps := self.M.Entry, 0; bb != nil; steps++ {
        if steps >= self.Steps {
            return 0, fmt.Errorf("step limit exceeded in %s", self.M.Name)
        }

        /* execute the block */
        next, ret, done, err := self.exec(bb)
        if err != nil || done {
            return ret, err
        }

        /* move to the next block */
        bb = next
    }
    return 0, nil
}

func (self *Interp) exec(bb *Block) (next *Block, ret int64, done bool, err error) {
    self.Visits[bb.Id]++
    self.frame.memo = make(map[int]int64)

    /* faults unwind as panics internally */
    defer func() {
        if v := recover(); v != nil {
            switch e := v.(type) {
                case *Exception : err = e
                case *Crash     : err = e
                default         : panic(v)
            }
        }
    }()

    /* evaluate all the trees */
    for _, t := range bb.Trees {
        switch t.Op {
            case OpReturn: {
                if len(t.Kids) != 0 {
                    ret = self.eval(t.Kids[0])
                }
                return nil, ret, true, nil
            }

            case OpGoto: {
                return t.Target, 0, false, nil
            }

            case OpIfEq, OpIfNe, OpIfLt, OpIfLe, OpIfGt, OpIfGe: {
                if self.taken(t) {
                    return t.Target, 0, false, nil
                } else {
                    return self.M.LayoutNext(bb), 0, false, nil
                }
            }

            default: {
                self.eval(t)
            }
        }
    }

    /* fall through */
    return self.M.LayoutNext(bb), 0, false, nil
}

func (self *Interp) taken(p *Node) bool {
    if p.Guard.IsNopable() {
        return self.Patched[p.Guard]
    } else {
        return p.Op.Compare(self.eval(p.Kids[0]), self.eval(p.Kids[1]))
    }
}

func (self *Interp) throw(kind string, p *Node) {
    panic(&Exception{Kind: kind, Node: p})
}

func (self *Interp) crash(reason string, p *Node) {
    panic(&Crash{Reason: reason, Node: p})
}

func (self *Interp) deref(ref int64, p *Node) *Object {
    if obj := self.Object(ref); obj == nil {
        self.crash("null dereference", p)
        panic("unreachable")
    } else {
        return obj
    }
}

func (self *Interp) eval(p *Node) int64 {
    if v, ok := self.frame.memo[p.Id]; ok {
        return v
    }

    /* compute and remember the value */
    v := p.Type.Truncate(self.compute(p))
    self.frame.memo[p.Id] = v
    return v
}

func (self *Interp) load(sym *Symbol) int64 {
    if sym.IsMemory() {
        return self.Statics[sym.Name]
    } else {
        return self.frame.locals[sym.Id]
    }
}

func (self *Interp) store(sym *Symbol, v int64) {
    if sym.IsMemory() {
        self.Statics[sym.Name] = v
    } else {
        self.frame.locals[sym.Id] = v
    }
}

// element resolves an internal pointer built by ArrayAddr.
func (self *Interp) element(p *Node) (*Object, int64) {
    if p.Op != OpArrayAddr {
        self.crash("not an element address", p)
    }

    /* fetch the array and the index */
    arr := self.deref(self.eval(p.Kids[0]), p)
    idx := self.eval(p.Kids[1])

    /* unchecked out of bounds access */
    if idx < 0 || idx >= int64(len(arr.Elems)) {
        self.crash("out of bounds access", p)
    }
    return arr, idx
}

func (self *Interp) loadi(p *Node) int64 {
    if p.Sym.Kind == SymArrayShadow {
        arr, idx := self.element(p.Kids[0])
        return arr.Elems[idx]
    } else {
        return self.deref(self.eval(p.Kids[0]), p).Fields[p.Sym.Name]
    }
}

func (self *Interp) storei(p *Node, v int64) {
    if p.Sym.Kind == SymArrayShadow {
        arr, idx := self.element(p.Kids[0])
        arr.Elems[idx] = v
    } else {
        self.deref(self.eval(p.Kids[0]), p).Fields[p.Sym.Name] = v
    }
}

func (self *Interp) isInstance(ref int64, class string) bool {
    if obj := self.Object(ref); obj == nil {
        return false
    } else {
        return self.M.Classes.IsSubclass(obj.Class, class)
    }
}

func (self *Interp) compute(p *Node) int64 {
    switch p.Op {
        case OpConst       : return p.Const
        case OpClass       : return self.classOf(p.Class)
        case OpLoad        : return self.load(p.Sym)
        case OpLoadi       : return self.loadi(p)
        case OpLoadAddr    : return 0
        case OpArrayLength : return int64(len(self.deref(self.eval(p.Kids[0]), p).Elems))
        case OpVft         : return self.classOf(self.deref(self.eval(p.Kids[0]), p).Class)
        case OpI2L         : return self.eval(p.Kids[0])
        case OpL2I         : return self.eval(p.Kids[0])
        case OpBCD2I       : return self.eval(p.Kids[0])
        case OpNew         : return self.NewObject(p.Class)
        case OpIsContiguous: return 1
        case OpDebugCounter: self.Counters[p.Class]++; return 0
        case OpAsyncCheck  : return 0
        case OpTreetop     : return self.eval(p.Kids[0])
    }

    /* type tests */
    switch p.Op {
        case OpComponentClass: {
            return self.classOf(self.M.Classes.Component(self.className(self.eval(p.Kids[0]))))
        }

        case OpInstanceOf: {
            return b2i(self.isInstance(self.eval(p.Kids[0]), p.Kids[1].Class))
        }

        case OpIsTenured: {
            return b2i(self.deref(self.eval(p.Kids[0]), p).Tenured)
        }

        case OpIsArray: {
            return b2i(self.M.Classes.IsArray(self.className(self.eval(p.Kids[0]))))
        }
    }

    /* arithmetic and comparisons */
    if len(p.Kids) == 2 && (p.Op.IsCompare() || p.Op >= OpAdd && p.Op <= OpShr) {
        return self.binary(p, self.eval(p.Kids[0]), self.eval(p.Kids[1]))
    }

    /* everything else has side effects */
    return self.effect(p)
}

func (self *Interp) binary(p *Node, x int64, y int64) int64 {
    switch p.Op {
        case OpAdd : return x + y
        case OpSub : return x - y
        case OpMul : return x * y
        case OpAnd : return x & y
        case OpOr  : return x | y
        case OpXor : return x ^ y
        case OpShl : return x << uint(y & shiftMask(p.Type))
        case OpShr : return x >> uint(y & shiftMask(p.Type))
    }

    /* division */
    if p.Op.IsDivide() {
        if y == 0 {
            self.crash("division by zero", p)
        }
        if p.Op == OpDiv {
            return x / y
        } else {
            return x % y
        }
    }

    /* must be a comparison */
    return b2i(p.Op.Compare(x, y))
}

func (self *Interp) effect(p *Node) int64 {
    switch p.Op {
        case OpNeg: {
            return -self.eval(p.Kids[0])
        }

        case OpStore, OpWrtBar: {
            self.store(p.Sym, self.eval(p.Kids[0]))
            self.barrier(p)
            return 0
        }

        case OpStorei: {
            self.storei(p, self.eval(p.Kids[1]))
            return 0
        }

        case OpWrtBari: {
            self.eval(p.Kids[2])
            self.storei(p, self.eval(p.Kids[1]))
            self.barrier(p)
            return 0
        }

        case OpCall: {
            args := make([]int64, len(p.Kids))
            for i, k := range p.Kids {
                args[i] = self.eval(k)
            }
            if fn, ok := self.Calls[p.Sym.Name]; ok {
                return fn(args)
            } else {
                return 0
            }
        }

        case OpThrow: {
            self.throw("Throwable", p)
            return 0
        }

        case OpNullChk: {
            if ref := p.NullCheckReference(); ref != nil && self.eval(ref) == 0 {
                self.throw("NullPointerException", p)
            }
            return self.eval(p.Kids[0])
        }

        case OpBndChk: {
            self.boundCheck(p, p.Kids[0], p.Kids[1])
            return 0
        }

        case OpSpineChk: {
            self.boundCheck(p, p.Kids[2], p.Kids[3])
            return self.eval(p.Kids[0])
        }

        case OpDivChk: {
            if self.eval(p.Kids[0].Kids[1]) == 0 {
                self.throw("ArithmeticException", p)
            }
            return self.eval(p.Kids[0])
        }

        case OpCheckCast: {
            if ref := self.eval(p.Kids[0]); ref != 0 && !self.isInstance(ref, p.Kids[1].Class) {
                self.throw("ClassCastException", p)
            }
            return 0
        }

        case OpArrayStoreChk: {
            st := p.Kids[0]
            val := self.eval(st.Kids[1])
            arr := self.deref(self.eval(st.Kids[2]), p)

            /* the element class must accept the value */
            if val != 0 && !self.isInstance(val, self.M.Classes.Component(arr.Class)) {
                self.throw("ArrayStoreException", p)
            }
            return self.eval(st)
        }

        default: {
            panic(fmt.Sprintf("cannot interpret %s", p))
        }
    }
}

func (self *Interp) boundCheck(p *Node, bound *Node, index *Node) {
    if n, i := self.eval(bound), self.eval(index); i < 0 || i >= n {
        self.throw("ArrayIndexOutOfBoundsException", p)
    }
}

func (self *Interp) barrier(p *Node) {
    if p.Type == NoType && !p.Is(FlagSkipWrtBar) && (p.Op == OpWrtBar || p.Op == OpWrtBari) {
        self.Barriers++
    }
}

func shiftMask(vt DataType) int64 {
    if vt == Int64 {
        return 63
    } else {
        return 31
    }
}

func b2i(v bool) int64 {
    if v {
        return 1
    } else {
        return 0
    }
}
