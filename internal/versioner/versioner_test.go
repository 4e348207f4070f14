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
    `math`
    `testing`

    `github.com/davecgh/go-spew/spew`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/opts`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/oracle`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func testOptions() *opts.Options {
    o := opts.GetDefaultOptions()
    o.GrowthPercent = 0
    o.Paranoid = true
    o.Trace = false
    return &o
}

// buildSum builds:
//
//     s = 0; i = 0
//     if (i >= n) goto exit
//     do { nullchk a; bndchk a.length, i; s += a[i]; i++ } while (i < n)
//     return s
func buildSum() *il.Builder {
    b := il.NewBuilder("sum", "entry", "pre", "loop", "exit")
    a := b.Parm("a", il.Address)
    n := b.Parm("n", il.Int32)
    i := b.Auto("i", il.Int32)
    s := b.Auto("s", il.Int32)
    e := b.ArrayShadow(il.Int32)

    /* entry */
    b.At("entry").
        Set(s, b.Const(il.Int32, 0)).
        Set(i, b.Const(il.Int32, 0)).
        Br(il.OpIfGe, b.Load(i), b.Load(n), "exit")

    /* the loop body */
    ref := b.Load(a)
    idx := b.Load(i)
    acc := b.Loadi(e, b.ArrayAddr(ref, idx))
    b.At("loop").
        Emit(b.NullChk(b.ArrayLength(ref))).
        Emit(b.BndChk(b.ArrayLength(ref), idx)).
        Set(s, b.Binary(il.OpAdd, b.Load(s), acc)).
        Set(i, b.Binary(il.OpAdd, idx, b.Const(il.Int32, 1))).
        Br(il.OpIfLt, b.Load(i), b.Load(n), "loop").
        Freq(100)

    /* exit */
    b.At("exit").Ret(b.Load(s))
    b.Build()
    return b
}

// buildDiv builds:
//
//     s = 0; i = 0
//     do { divchk x / d; s += x / d; i++ } while (i < n)
//     return s
func buildDiv() *il.Builder {
    b := il.NewBuilder("div", "entry", "pre", "loop", "exit")
    x := b.Parm("x", il.Int32)
    d := b.Parm("d", il.Int32)
    n := b.Parm("n", il.Int32)
    i := b.Auto("i", il.Int32)
    s := b.Auto("s", il.Int32)

    /* entry */
    b.At("entry").
        Set(s, b.Const(il.Int32, 0)).
        Set(i, b.Const(il.Int32, 0))

    /* the loop body */
    div := b.Binary(il.OpDiv, b.Load(x), b.Load(d))
    b.At("loop").
        Emit(b.DivChk(div)).
        Set(s, b.Binary(il.OpAdd, b.Load(s), div)).
        Set(i, b.Binary(il.OpAdd, b.Load(i), b.Const(il.Int32, 1))).
        Br(il.OpIfLt, b.Load(i), b.Load(n), "loop")

    /* exit */
    b.At("exit").Ret(b.Load(s))
    b.Build()
    return b
}

// buildGuarded builds a loop with a patchable guard in front of a call:
//
//     s = 0; i = 0
//     do { if (hcr patched) s += f() else s += 1; i++ } while (i < n)
//     return s
func buildGuarded(callOnFastPath bool) *il.Builder {
    b := il.NewBuilder("guarded", "entry", "pre", "loop", "fast", "slow", "latch", "exit")
    n := b.Parm("n", il.Int32)
    i := b.Auto("i", il.Int32)
    s := b.Auto("s", il.Int32)
    f := b.Callee("f", il.Int32, nil)

    /* entry */
    b.At("entry").
        Set(s, b.Const(il.Int32, 0)).
        Set(i, b.Const(il.Int32, 0))

    /* the guard */
    b.At("loop").Emit(b.NopGuard(il.GuardHCR, b.B("slow")))

    /* the inlined path */
    if b.At("fast"); callOnFastPath {
        b.Set(s, b.Binary(il.OpAdd, b.Load(s), b.Call(f)))
    } else {
        b.Set(s, b.Binary(il.OpAdd, b.Load(s), b.Const(il.Int32, 1)))
    }

    /* the rest of the loop */
    b.Jmp("latch")
    b.At("slow").Set(s, b.Binary(il.OpAdd, b.Load(s), b.Call(f)))
    b.At("latch").
        Set(i, b.Binary(il.OpAdd, b.Load(i), b.Const(il.Int32, 1))).
        Br(il.OpIfLt, b.Load(i), b.Load(n), "loop")

    /* exit */
    b.At("exit").Ret(b.Load(s))
    b.Build()
    return b
}

type _Outcome struct {
    Value int64
    Error string
}

func execute(m *il.Method, setup func(ip *il.Interp) []int64) (*il.Interp, _Outcome) {
    ip := il.NewInterp(m)
    ip.Calls["f"] = func([]int64) int64 { return 10 }
    v, err := ip.Run(setup(ip)...)

    /* keep the kind of exception only */
    switch e := err.(type) {
        case nil           : return ip, _Outcome{Value: v}
        case *il.Exception : return ip, _Outcome{Error: e.Kind}
        default            : return ip, _Outcome{Error: err.Error()}
    }
}

func sumArgs(size int, n int) func(ip *il.Interp) []int64 {
    return func(ip *il.Interp) []int64 {
        if size < 0 {
            return []int64{0, int64(n)}
        }
        arr := ip.NewArray("[I", size)
        for i := range ip.Object(arr).Elems {
            ip.Object(arr).Elems[i] = int64(i + 1)
        }
        return []int64{arr, int64(n)}
    }
}

func countTrees(bb *il.Block, op il.Opcode) int {
    nb := 0
    for _, t := range bb.Trees {
        if t.Op == op {
            nb++
        }
    }
    return nb
}

func TestRun_NullAndBoundChecks(t *testing.T) {
    b := buildSum()
    m := b.Method
    lp := m.Root.Loops()[0]
    hdr := b.B("loop")

    /* version the loop */
    res := Run(m, testOptions(), nil)
    require.True(t, res.Transformed)
    require.NoError(t, il.Verify(m), m.String())
    assert.Equal(t, 1, res.LoopsVersioned)
    assert.Equal(t, Versioned, res.Outcomes[lp.Num])
    assert.Equal(t, map[string]int{"nullchk": 1, "bndchk": 1}, res.Removed)
    assert.True(t, res.Requests.DeadTrees)
    assert.False(t, res.Requests.Specializer)

    /* the loops point at each other */
    cold := lp.Versioned
    require.NotNil(t, cold, m.Root.Dump())
    assert.Same(t, lp, cold.Versioned)
    assert.True(t, cold.Header().Cold)
    assert.NotSame(t, b.B("pre"), lp.Invariant)

    /* only the slow loop keeps the checks */
    assert.Equal(t, 0, countTrees(hdr, il.OpNullChk))
    assert.Equal(t, 0, countTrees(hdr, il.OpBndChk))
    assert.Equal(t, 1, countTrees(cold.Header(), il.OpNullChk))
    assert.Equal(t, 1, countTrees(cold.Header(), il.OpBndChk))

    /* the last index in bounds runs the fast loop */
    ref := buildSum().Method
    ip, out := execute(m, sumArgs(4, 4))
    _, exp := execute(ref, sumArgs(4, 4))
    assert.Equal(t, exp, out)
    assert.Equal(t, _Outcome{Value: 10}, out)
    assert.Equal(t, 4, ip.Visits[hdr.Id])
    assert.Equal(t, 0, ip.Visits[cold.Header().Id])
    assert.Empty(t, ip.Counters)

    /* one past the end goes to the slow loop, which throws */
    ip, out = execute(m, sumArgs(4, 5))
    _, exp = execute(ref, sumArgs(4, 5))
    assert.Equal(t, exp, out)
    assert.Equal(t, "ArrayIndexOutOfBoundsException", out.Error)
    assert.Equal(t, 0, ip.Visits[hdr.Id])
    assert.Equal(t, 5, ip.Visits[cold.Header().Id])
    assert.Len(t, ip.Counters, 1, spew.Sdump(ip.Counters))

    /* null arrays as well */
    ip, out = execute(m, sumArgs(-1, 3))
    _, exp = execute(ref, sumArgs(-1, 3))
    assert.Equal(t, exp, out)
    assert.Equal(t, "NullPointerException", out.Error)
    assert.Equal(t, 0, ip.Visits[hdr.Id])

    /* a single iteration cannot be proven and runs slow, correctly */
    ip, out = execute(m, sumArgs(4, 1))
    _, exp = execute(ref, sumArgs(4, 1))
    assert.Equal(t, exp, out)
    assert.Equal(t, _Outcome{Value: 1}, out)
    assert.Equal(t, 1, ip.Visits[cold.Header().Id])
}

func TestRun_DivideCheck(t *testing.T) {
    b := buildDiv()
    m := b.Method
    hdr := b.B("loop")
    ref := buildDiv().Method

    /* version the loop */
    res := Run(m, testOptions(), nil)
    require.True(t, res.Transformed)
    require.NoError(t, il.Verify(m), m.String())
    assert.Equal(t, map[string]int{"divchk": 1}, res.Removed)
    assert.Equal(t, 0, countTrees(hdr, il.OpDivChk))

    /* runs the same on all inputs */
    for _, args := range [][]int64 {
        {7, 2, 3},
        {7, 0, 3},
        {math.MinInt32, -1, 3},
        {-9, 4, 10},
    } {
        args := args
        setup := func(*il.Interp) []int64 { return args }
        _, exp := execute(ref, setup)
        ip, out := execute(m, setup)
        assert.Equal(t, exp, out, "args %v", args)

        /* dividing by zero is only possible in the slow loop */
        if args[1] == 0 {
            assert.Equal(t, "ArithmeticException", out.Error)
            assert.Equal(t, 0, ip.Visits[hdr.Id])
        } else {
            assert.Empty(t, out.Error)
            assert.Equal(t, int(args[2]), ip.Visits[hdr.Id])
        }
    }
}

func TestRun_PatchableGuard(t *testing.T) {
    b := buildGuarded(false)
    m := b.Method
    lp := m.Root.Loops()[0]
    hdr := b.B("loop")
    ref := buildGuarded(false).Method

    /* version the loop */
    res := Run(m, testOptions(), nil)
    require.True(t, res.Transformed)
    require.NoError(t, il.Verify(m), m.String())
    assert.Equal(t, map[string]int{"conditional": 1}, res.Removed)
    assert.True(t, res.Requests.Simplify)
    assert.True(t, res.Requests.InvalidateAliasSets)
    assert.Nil(t, hdr.Branch())

    /* the guard is never patched */
    args := func(*il.Interp) []int64 { return []int64{5} }
    _, exp := execute(ref, args)
    ip, out := execute(m, args)
    assert.Equal(t, exp, out)
    assert.Equal(t, _Outcome{Value: 5}, out)
    assert.Equal(t, 0, ip.Visits[lp.Versioned.Header().Id])

    /* patched, the slow loop runs the calls */
    ip = il.NewInterp(m)
    ip.Patched[il.GuardHCR] = true
    ip.Calls["f"] = func([]int64) int64 { return 10 }
    v, err := ip.Run(5)
    require.NoError(t, err)
    assert.Equal(t, int64(50), v)
    assert.Equal(t, 0, ip.Visits[hdr.Id])
    assert.Equal(t, 5, ip.Visits[lp.Versioned.Header().Id])
    assert.Len(t, ip.Counters, 1, spew.Sdump(ip.Counters))
}

func TestRun_CallBreaksGuardRemoval(t *testing.T) {
    m := buildGuarded(true).Method
    lp := m.Root.Loops()[0]
    nb := len(m.Blocks)
    res := Run(m, testOptions(), nil)
    assert.False(t, res.Transformed)
    assert.Equal(t, NothingToVersion, res.Outcomes[lp.Num])
    assert.Len(t, m.Blocks, nb)
    assert.Nil(t, lp.Versioned)
}

func TestRun_Vetoed(t *testing.T) {
    m := buildSum().Method
    lp := m.Root.Loops()[0]
    res := Run(m, testOptions(), &oracle.Set{Gate: oracle.Deny{"versioning loop"}})
    assert.False(t, res.Transformed)
    assert.Equal(t, Vetoed, res.Outcomes[lp.Num])
    assert.Len(t, m.Blocks, 4)
    assert.Nil(t, lp.Versioned)
}

func TestRun_VetoedRemovalsKeepTheChecks(t *testing.T) {
    b := buildSum()
    m := b.Method
    lp := m.Root.Loops()[0]
    gate := &oracle.Bisect{Limit: 1}

    /* the loop is split, nothing is removed */
    res := Run(m, testOptions(), &oracle.Set{Gate: gate})
    require.True(t, res.Transformed)
    require.NoError(t, il.Verify(m))
    assert.Empty(t, res.Removed)
    require.Len(t, gate.Asked, 3)
    assert.Equal(t, fmt.Sprintf("versioning loop %d", lp.Num), gate.Asked[0])
    assert.Equal(t, 1, countTrees(b.B("loop"), il.OpBndChk))

    /* and still computes the same thing */
    _, exp := execute(buildSum().Method, sumArgs(4, 5))
    _, out := execute(m, sumArgs(4, 5))
    assert.Equal(t, exp, out)
}

func TestRun_Budgets(t *testing.T) {
    m := buildSum().Method
    lp := m.Root.Loops()[0]
    o := testOptions()
    o.MaxLoopBlocks = 0
    res := Run(m, o, nil)
    assert.False(t, res.Transformed)
    assert.Equal(t, BudgetExceeded, res.Outcomes[lp.Num])

    /* the method may not grow at all */
    m = buildSum().Method
    lp = m.Root.Loops()[0]
    o = testOptions()
    o.GrowthPercent = 100
    res = Run(m, o, nil)
    assert.Equal(t, BudgetExceeded, res.Outcomes[lp.Num])

    /* or nest that deep */
    m = buildSum().Method
    lp = m.Root.Loops()[0]
    o = testOptions()
    o.MaxNesting = 0
    res = Run(m, o, nil)
    assert.Equal(t, BudgetExceeded, res.Outcomes[lp.Num])
}

func TestRun_NoInvariantBlock(t *testing.T) {
    b := il.NewBuilder("noinv", "entry", "other", "loop", "exit")
    x := b.Parm("x", il.Int32)
    n := b.Parm("n", il.Int32)
    i := b.Auto("i", il.Int32)
    b.At("entry").Set(i, b.Const(il.Int32, 0)).Br(il.OpIfEq, b.Load(x), b.Const(il.Int32, 0), "loop")
    b.At("other").Set(i, b.Const(il.Int32, 1))
    b.At("loop").
        Emit(b.DivChk(b.Binary(il.OpDiv, b.Load(n), b.Load(x)))).
        Set(i, b.Binary(il.OpAdd, b.Load(i), b.Const(il.Int32, 1))).
        Br(il.OpIfLt, b.Load(i), b.Load(n), "loop")
    b.At("exit").Ret()
    m := b.Build()

    /* the loop is entered from two places */
    lp := m.Root.Loops()[0]
    require.Nil(t, lp.Invariant)
    res := Run(m, testOptions(), nil)
    assert.False(t, res.Transformed)
    assert.Equal(t, NoInvariantBlock, res.Outcomes[lp.Num])
}

func TestRun_MultipleLatches(t *testing.T) {
    b := il.NewBuilder("latches", "entry", "pre", "loop", "latch", "exit")
    x := b.Parm("x", il.Int32)
    n := b.Parm("n", il.Int32)
    i := b.Auto("i", il.Int32)
    b.At("entry").Set(i, b.Const(il.Int32, 0))
    b.At("loop").
        Emit(b.DivChk(b.Binary(il.OpDiv, b.Load(n), b.Load(x)))).
        Set(i, b.Binary(il.OpAdd, b.Load(i), b.Const(il.Int32, 1))).
        Br(il.OpIfEq, b.Load(x), b.Const(il.Int32, 0), "loop")
    b.At("latch").Br(il.OpIfLt, b.Load(i), b.Load(n), "loop")
    b.At("exit").Ret()
    m := b.Build()

    /* both back edges belong to the same loop */
    lps := m.Root.Loops()
    require.Len(t, lps, 1, m.Root.Dump())
    res := Run(m, testOptions(), nil)
    assert.False(t, res.Transformed)
    assert.Equal(t, NotCanonical, res.Outcomes[lps[0].Num])
}

func TestRun_NothingToVersion(t *testing.T) {
    b := il.NewBuilder("empty", "entry", "pre", "loop", "exit")
    n := b.Parm("n", il.Int32)
    i := b.Auto("i", il.Int32)
    b.At("entry").Set(i, b.Const(il.Int32, 0))
    b.At("loop").
        Set(i, b.Binary(il.OpAdd, b.Load(i), b.Const(il.Int32, 1))).
        Br(il.OpIfLt, b.Load(i), b.Load(n), "loop")
    b.At("exit").Ret(b.Load(i))
    m := b.Build()
    lp := m.Root.Loops()[0]
    res := Run(m, testOptions(), nil)
    assert.False(t, res.Transformed)
    assert.Equal(t, NothingToVersion, res.Outcomes[lp.Num])
    assert.Empty(t, res.Removed)
}

func TestOutcome_String(t *testing.T) {
    assert.Equal(t, "versioned", Versioned.String())
    assert.Equal(t, "budget_exceeded", BudgetExceeded.String())
    assert.Equal(t, "Outcome(42)", Outcome(42).String())
}
