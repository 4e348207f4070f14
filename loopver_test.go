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

package loopver

import (
    `fmt`
    `testing`

    `github.com/eclipse-openj9/openj9-omr-sub023/debug`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/oracle`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/versioner`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

// buildSum builds a loop summing the first n elements of a, and returns the
// index used by its bound check.
func buildSum() (*il.Builder, *il.Node) {
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
    b.At("loop").
        Emit(b.NullChk(b.ArrayLength(ref))).
        Emit(b.BndChk(b.ArrayLength(ref), idx)).
        Set(s, b.Binary(il.OpAdd, b.Load(s), b.Loadi(e, b.ArrayAddr(ref, idx)))).
        Set(i, b.Binary(il.OpAdd, idx, b.Const(il.Int32, 1))).
        Br(il.OpIfLt, b.Load(i), b.Load(n), "loop").
        Freq(100)

    /* exit */
    b.At("exit").Ret(b.Load(s))
    b.Build()
    return b, idx
}

func runSum(m *il.Method, size int, n int) (int64, error) {
    ip := il.NewInterp(m)
    arr := ip.NewArray("[I", size)
    for i := range ip.Object(arr).Elems {
        ip.Object(arr).Elems[i] = int64(i + 1)
    }
    return ip.Run(arr, int64(n))
}

func TestVersion(t *testing.T) {
    b, _ := buildSum()
    lp := b.Root.Loops()[0]
    old := debug.GetStats()

    /* version the loop */
    res, err := Version(b.Method, nil, WithGrowthFactor(0), WithParanoid(true))
    require.NoError(t, err)
    require.True(t, res.Transformed)
    assert.Equal(t, 1, res.LoopsVersioned)
    assert.Equal(t, map[string]int{"nullchk": 1, "bndchk": 1}, res.Removed)
    assert.Equal(t, versioner.Versioned, res.Outcomes[lp.Num])
    assert.True(t, res.Requests.DeadTrees)

    /* the statistics moved */
    now := debug.GetStats()
    assert.Equal(t, old.Loops.Versioned + 1, now.Loops.Versioned)
    assert.Greater(t, now.Loops.Visited, old.Loops.Visited)
    assert.Greater(t, now.Checks.Tests, old.Checks.Tests)
    assert.Equal(t, old.Checks.Removed["bndchk"] + 1, now.Checks.Removed["bndchk"])

    /* and the method still computes the same thing */
    v, err := runSum(b.Method, 4, 4)
    require.NoError(t, err)
    assert.Equal(t, int64(10), v)
    v, err = runSum(b.Method, 4, 2)
    require.NoError(t, err)
    assert.Equal(t, int64(3), v)
    _, err = runSum(b.Method, 4, 5)
    require.Error(t, err)
}

func TestVersion_DisabledChecks(t *testing.T) {
    b, _ := buildSum()
    lp := b.Root.Loops()[0]
    res, err := Version(b.Method, nil, WithGrowthFactor(0), WithDisabledChecks(NullCheck, BoundCheck))
    require.NoError(t, err)
    assert.False(t, res.Transformed)
    assert.Empty(t, res.Removed)
    assert.Equal(t, versioner.NothingToVersion, res.Outcomes[lp.Num])
}

func TestVersion_Vetoed(t *testing.T) {
    b, _ := buildSum()
    lp := b.Root.Loops()[0]
    gate := &oracle.Bisect{}
    res, err := Version(b.Method, &oracle.Set{Gate: gate}, WithGrowthFactor(0))
    require.NoError(t, err)
    assert.False(t, res.Transformed)
    assert.Equal(t, versioner.Vetoed, res.Outcomes[lp.Num])
    assert.Equal(t, []string{fmt.Sprintf("versioning loop %d", lp.Num)}, gate.Asked)
}

func TestVersion_InternalError(t *testing.T) {
    b, idx := buildSum()

    /* the only definition of the index is not a store */
    ud := oracle.StaticUseDef{}
    ud.Define(idx, b.ArrayLength(b.Load(b.Symbols[0])))
    oc := &oracle.Set{UseDef: ud, ValueNumbers: oracle.StaticValueNumbers{}}

    /* the method is given up, the error says why */
    _, err := Version(b.Method, oc, WithGrowthFactor(0))
    require.Error(t, err)
    var ie *InternalError
    require.ErrorAs(t, err, &ie)
    assert.Equal(t, "sum", ie.Method)
    assert.Contains(t, err.Error(), "versioning sum")
}

func TestOptions_Validation(t *testing.T) {
    assert.Panics(t, func() { WithDisabledChecks(CheckKind(-1)) })
    assert.Panics(t, func() { WithDisabledChecks(ProfiledValue + 1) })
    assert.Panics(t, func() { WithColdRatio(0) })
    assert.Panics(t, func() { WithBiasThreshold(50) })
    assert.Panics(t, func() { WithBiasThreshold(101) })
    assert.Panics(t, func() { WithMaxLoopBlocks(0) })
    assert.Panics(t, func() { WithMaxNesting(-1) })
    assert.Panics(t, func() { WithGrowthFactor(99) })
    assert.NotPanics(t, func() { WithGrowthFactor(0) })
    assert.NotPanics(t, func() { WithBiasThreshold(100) })
}

func TestSetMaxNesting(t *testing.T) {
    old := SetMaxNesting(0)
    defer SetMaxNesting(old)
    assert.Equal(t, 0, SetMaxNesting(0))

    /* the new default applies to every method */
    b, _ := buildSum()
    lp := b.Root.Loops()[0]
    res, err := Version(b.Method, nil, WithGrowthFactor(0))
    require.NoError(t, err)
    assert.False(t, res.Transformed)
    assert.Equal(t, versioner.BudgetExceeded, res.Outcomes[lp.Num])
}
