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
    `testing`

    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

// buildInvariance builds:
//
//     i = 0; j = 0
//     do { x = n; f(); j = (j + 1) & n; i++ } while (i < n)
//     return x
//
// f writes the static g only, or everything when killAll is set.
func buildInvariance(killAll bool) *il.Builder {
    b := il.NewBuilder("inv", "entry", "pre", "loop", "exit")
    n := b.Parm("n", il.Int32)
    i := b.Auto("i", il.Int32)
    j := b.Auto("j", il.Int32)
    x := b.Auto("x", il.Int32)
    g := b.Static("g", il.Int32)
    b.Static("h", il.Int32)

    /* the callee */
    kills := []*il.Symbol{g}
    if killAll {
        kills = nil
    }

    /* entry */
    f := b.Callee("f", il.Int32, kills)
    b.At("entry").
        Set(i, b.Const(il.Int32, 0)).
        Set(j, b.Const(il.Int32, 0))

    /* the loop */
    b.At("loop").
        Set(x, b.Load(n)).
        Eval(b.Call(f)).
        Set(j, b.Binary(il.OpAnd, b.Binary(il.OpAdd, b.Load(j), b.Const(il.Int32, 1)), b.Load(n))).
        Set(i, b.Binary(il.OpAdd, b.Load(i), b.Const(il.Int32, 1))).
        Br(il.OpIfLt, b.Load(i), b.Load(n), "loop")

    /* exit */
    b.At("exit").Ret(b.Load(x))
    b.Build()
    return b
}

func symbolOf(m *il.Method, name string) *il.Symbol {
    for _, sym := range m.Symbols {
        if sym.Name == name {
            return sym
        }
    }
    panic("no such symbol: " + name)
}

func contextOf(b *il.Builder) *LoopContext {
    return newLoopContext(b.Method, b.Root.Loops()[0], testOptions(), nil)
}

func TestExprTable_Intern(t *testing.T) {
    m := il.NewMethod("expr")
    n := m.Parm("n", il.Int32)
    f := m.Callee("f", il.Int32, nil)
    tab := NewExprTable()

    /* structurally identical trees share one expression */
    x, err := tab.Intern(m.Binary(il.OpAdd, m.Load(n), m.Const(il.Int32, 1)))
    require.NoError(t, err)
    y, err := tab.Intern(m.Binary(il.OpAdd, m.Load(n), m.Const(il.Int32, 1)))
    require.NoError(t, err)
    assert.Same(t, x, y)
    assert.Equal(t, 3, tab.Len())

    /* mandatory flags are part of the identity */
    p := m.Binary(il.OpAdd, m.Load(n), m.Const(il.Int32, 1))
    p.Flags |= il.FlagCannotOverflow
    z, err := tab.Intern(p)
    require.NoError(t, err)
    assert.NotSame(t, x, z)
    assert.Same(t, z, tab.Lookup(p))

    /* and so are constants */
    w, err := tab.Intern(m.Binary(il.OpAdd, m.Load(n), m.Const(il.Int32, 2)))
    require.NoError(t, err)
    assert.NotSame(t, x, w)
    assert.True(t, w.Contains(x.Kids[0]))

    /* calls cannot leave their position */
    _, err = tab.Intern(m.Binary(il.OpAdd, m.Load(n), m.Call(f)))
    require.Error(t, err)
    ee, ok := err.(*ExprError)
    require.True(t, ok)
    assert.Equal(t, "call", ee.Class)
}

func TestLoopContext_Invariance(t *testing.T) {
    b := buildInvariance(false)
    ctx := contextOf(b)
    n, i, x := symbolOf(b.Method, "n"), symbolOf(b.Method, "i"), symbolOf(b.Method, "x")
    g, h := symbolOf(b.Method, "g"), symbolOf(b.Method, "h")

    /* locals */
    assert.True(t, ctx.IsInvariant(b.Load(n)))
    assert.False(t, ctx.IsInvariant(b.Load(x)))
    assert.False(t, ctx.IsInvariant(b.Load(i)))
    assert.True(t, ctx.IsInvariant(b.Binary(il.OpAdd, b.Load(n), b.Const(il.Int32, 1))))
    assert.False(t, ctx.IsInvariant(b.Binary(il.OpAdd, b.Load(n), b.Load(i))))

    /* statics follow the kill set of the call */
    assert.True(t, ctx.HasCalls())
    assert.False(t, ctx.IsInvariant(b.Load(g)))
    assert.True(t, ctx.IsInvariant(b.Load(h)))

    /* unless asked otherwise */
    h.Flags |= il.SymSuppressInvariance
    assert.False(t, ctx.IsInvariant(b.Load(h)))

    /* only direct stores are reported */
    st, bbs := ctx.Stores(x)
    assert.Len(t, st, 1)
    assert.Equal(t, []*il.Block{b.B("loop")}, bbs)
    st, _ = ctx.Stores(g)
    assert.Empty(t, st)
}

func TestLoopContext_InvarianceWithUnknownCallee(t *testing.T) {
    b := buildInvariance(true)
    h := symbolOf(b.Method, "h")
    n := symbolOf(b.Method, "n")

    /* shared symbols may all be written */
    ctx := contextOf(b)
    assert.False(t, ctx.IsInvariant(b.Load(h)))
    assert.True(t, ctx.IsInvariant(b.Load(n)))

    /* except the immutable ones */
    h.Flags |= il.SymFinal
    assert.True(t, contextOf(b).IsInvariant(b.Load(h)))
}

func TestLoopContext_ClassifyIVs(t *testing.T) {
    b := buildInvariance(false)
    ctx := contextOf(b)
    i, j, x := symbolOf(b.Method, "i"), symbolOf(b.Method, "j"), symbolOf(b.Method, "x")
    require.True(t, ctx.ClassifyIVs())

    /* the primary IV */
    require.NotNil(t, ctx.IVs[i.Id])
    assert.Equal(t, IVPrimary, ctx.IVs[i.Id].Kind)
    assert.Equal(t, int64(1), ctx.IVs[i.Id].Step)
    assert.True(t, ctx.IVs[i.Id].Predictable)

    /* the masked one */
    require.NotNil(t, ctx.IVs[j.Id])
    assert.Equal(t, IVSpecial, ctx.IVs[j.Id].Kind)
    assert.NotNil(t, ctx.IVs[j.Id].Mask)
    assert.Nil(t, ctx.IVs[x.Id])

    /* and the loop test */
    require.NotNil(t, ctx.Test)
    assert.Same(t, ctx.IVs[i.Id], ctx.Test.IV)
    assert.Equal(t, il.OpCmpLt, ctx.Test.Op)
    assert.True(t, ctx.Test.OnNew)
    assert.True(t, ctx.Test.Finite)
}

func TestLoopContext_LinearOf(t *testing.T) {
    b := buildInvariance(false)
    ctx := contextOf(b)
    n, i, j := symbolOf(b.Method, "n"), symbolOf(b.Method, "i"), symbolOf(b.Method, "j")
    require.True(t, ctx.ClassifyIVs())

    /* i * 4 */
    lin := ctx.LinearOf(b.Binary(il.OpMul, b.Load(i), b.Const(il.Int32, 4)))
    require.NotNil(t, lin)
    assert.Equal(t, int64(4), lin.Scale)
    assert.False(t, lin.Exact)
    assert.Empty(t, lin.Terms)

    /* n - i */
    lin = ctx.LinearOf(b.Binary(il.OpSub, b.Load(n), b.Load(i)))
    require.NotNil(t, lin)
    assert.Equal(t, int64(-1), lin.Scale)
    assert.False(t, lin.Increasing())
    require.Len(t, lin.Terms, 1)
    assert.False(t, lin.Terms[0].Neg)

    /* i + n, marked as not overflowing */
    p := b.Binary(il.OpAdd, b.Unary(il.OpI2L, il.Int64, b.Load(i)), b.Load(n))
    p.Flags |= il.FlagCannotOverflow
    lin = ctx.LinearOf(p)
    require.NotNil(t, lin)
    assert.Equal(t, int64(1), lin.Scale)
    assert.True(t, lin.Exact)
    assert.True(t, lin.Increasing())

    /* neither masked IVs nor products of two variables */
    assert.Nil(t, ctx.LinearOf(b.Load(j)))
    assert.Nil(t, ctx.LinearOf(b.Binary(il.OpMul, b.Load(i), b.Load(n))))
}

func TestPrepTable_Dedup(t *testing.T) {
    b := buildSum()
    a := symbolOf(b.Method, "a")
    ctx := contextOf(b)
    tb := _Trees{b.Method}

    /* the length of a needs a null test first */
    p, err := ctx.Preps.Create(PrepTest, tb.test(il.OpCmpEq, b.ArrayLength(b.Load(a)), b.Const(il.Int32, 0)))
    require.NoError(t, err)
    require.Len(t, p.Deps, 1)
    assert.Equal(t, PrepTest, p.Deps[0].Kind)
    assert.False(t, p.RequiresPrivatization)
    assert.True(t, p.DependsOn(p.Deps[0]))

    /* the same test built again is the same prep */
    q, err := ctx.Preps.Create(PrepTest, tb.test(il.OpCmpEq, b.ArrayLength(b.Load(a)), b.Const(il.Int32, 0)))
    require.NoError(t, err)
    assert.Same(t, p, q)
    assert.Equal(t, 2, ctx.Preps.Len())

    /* dependencies come out first, and only once */
    assert.Equal(t, []*Prep{p.Deps[0], p}, ctx.Preps.Schedule([]*Prep{p}))
    assert.Empty(t, ctx.Preps.Schedule([]*Prep{p}))
}

func TestPrepTable_Privatization(t *testing.T) {
    b := buildSum()
    g := b.Static("g", il.Int32)
    ctx := contextOf(b)
    tb := _Trees{b.Method}

    /* shared values are copied before they are tested */
    p, err := ctx.Preps.Create(PrepTest, tb.test(il.OpCmpEq, b.Load(g), b.Const(il.Int32, 0)))
    require.NoError(t, err)
    require.Len(t, p.Deps, 1)
    assert.Equal(t, PrepPrivatize, p.Deps[0].Kind)
    assert.True(t, p.Deps[0].RequiresPrivatization)
    assert.True(t, p.RequiresPrivatization)
    assert.Equal(t, []*Prep{p.Deps[0], p}, ctx.Preps.Schedule([]*Prep{p}))

    /* immutable ones are not */
    g.Flags |= il.SymFinal
    q, err := contextOf(b).Preps.Create(PrepTest, tb.test(il.OpCmpEq, b.Load(g), b.Const(il.Int32, 0)))
    require.NoError(t, err)
    assert.Empty(t, q.Deps)
    assert.False(t, q.RequiresPrivatization)
}

func TestPrepTable_Unrepresentable(t *testing.T) {
    b := buildSum()
    f := b.Callee("f", il.Int32, nil)
    ctx := contextOf(b)

    /* calls have no canonical form */
    _, err := ctx.Preps.Create(PrepTest, _Trees{b.Method}.test(il.OpCmpEq, b.Call(f), b.Const(il.Int32, 0)))
    require.Error(t, err)
    assert.Equal(t, 0, ctx.Preps.Len())
}

func TestSolveGuardRemoval(t *testing.T) {
    for _, tc := range []struct {
        name   string
        call   bool
        flags  GuardFlags
        active int
    } {
        { name: "clean", call: false, flags: NeedHCR, active: 1 },
        { name: "call" , call: true , flags: 0      , active: 0 },
    } {
        t.Run(tc.name, func(t *testing.T) {
            ctx := contextOf(buildGuarded(tc.call))
            require.True(t, ctx.ClassifyIVs())
            require.NotZero(t, ctx.Detect())

            /* the guard wants HCR, a call on the fast path breaks it */
            rems := ctx.BuildRemovals()
            flags := ctx.solveGuardRemoval(rems)
            assert.Equal(t, tc.flags, flags)
            assert.Len(t, Active(rems, flags), tc.active)
        })
    }
}

func TestInt65(t *testing.T) {
    max := Int65i(math.MaxInt64)
    min := Int65i(math.MinInt64)

    /* one past either end of int64 */
    assert.Equal(t, "9223372036854775808", max.OneMore().String())
    assert.Equal(t, "-9223372036854775809", min.OneLess().String())
    assert.Equal(t, "18446744073709551614", max.Add(max).String())
    assert.Equal(t, "-18446744073709551615", min.Sub(max).String())
    assert.Equal(t, _MinInt65Str, MinInt65.String())

    /* conversions back */
    _, ok := max.OneMore().Int64()
    assert.False(t, ok)
    _, ok = min.OneLess().Int64()
    assert.False(t, ok)
    v, ok := min.OneLess().OneMore().Int64()
    assert.True(t, ok)
    assert.Equal(t, int64(math.MinInt64), v)

    /* ordering */
    assert.Equal(t, 1, MaxInt65.Compare(MinInt65))
    assert.Equal(t, -1, Int65i(-2).Compare(Int65i(-1)))
    assert.Equal(t, 1, max.OneMore().Compare(max))
    assert.Equal(t, -1, Int65i(-5).CompareZero())
    assert.Equal(t, 0, Int65i(0).CompareZero())

    /* 32-bit range */
    assert.True(t, Int65i(math.MaxInt32).FitsInt32())
    assert.False(t, Int65i(math.MaxInt32).OneMore().FitsInt32())
    assert.True(t, Int65i(math.MinInt32).FitsInt32())
    assert.False(t, Int65i(math.MinInt32).OneLess().FitsInt32())
}

func TestMulInt64(t *testing.T) {
    for _, tc := range []struct {
        a, b int64
        v    int64
        ok   bool
    } {
        { 3            , -4      , -12          , true  },
        { math.MinInt64, 1       , math.MinInt64, true  },
        { 1 << 32      , -1 << 31, math.MinInt64, true  },
        { 1 << 32      , 1 << 31 , 0            , false },
        { math.MaxInt64, 2       , 0            , false },
    } {
        v, ok := mulInt64(tc.a, tc.b)
        assert.Equal(t, tc.ok, ok, "%d * %d", tc.a, tc.b)
        assert.Equal(t, tc.v, v, "%d * %d", tc.a, tc.b)
    }
}
