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
    `testing`

    `github.com/davecgh/go-spew/spew`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

// buildSum builds:
//
//     s = 0; i = 0
//     if (i >= n) goto exit
//     do { s += a[i]; i++ } while (i < n)
//     return s
func buildSum() (*Method, *Symbol) {
    b := NewBuilder("sum", "entry", "pre", "loop", "exit")
    a := b.Parm("a", Address)
    n := b.Parm("n", Int32)
    i := b.Auto("i", Int32)
    s := b.Auto("s", Int32)
    e := b.ArrayShadow(Int32)

    /* entry */
    b.At("entry").
        Set(s, b.Const(Int32, 0)).
        Set(i, b.Const(Int32, 0)).
        Br(OpIfGe, b.Load(i), b.Load(n), "exit")

    /* the loop body */
    ref := b.Load(a)
    idx := b.Load(i)
    acc := b.Loadi(e, b.ArrayAddr(ref, idx))
    b.At("loop").
        Emit(b.NullChk(b.ArrayLength(ref))).
        Emit(b.BndChk(b.ArrayLength(ref), idx)).
        Set(s, b.Binary(OpAdd, b.Load(s), acc)).
        Set(i, b.Binary(OpAdd, idx, b.Const(Int32, 1))).
        Br(OpIfLt, b.Load(i), b.Load(n), "loop").
        Freq(100)

    /* exit */
    b.At("exit").Ret(b.Load(s))
    return b.Build(), a
}

func TestMethod_Edges(t *testing.T) {
    m, _ := buildSum()
    entry, pre, loop, exit := m.Blocks[0], m.Blocks[1], m.Blocks[2], m.Blocks[3]
    assert.Equal(t, []*Block{pre, exit}, entry.Succ)
    assert.Equal(t, []*Block{loop}, pre.Succ)
    assert.Equal(t, []*Block{exit, loop}, loop.Succ)
    assert.Empty(t, exit.Succ)
    assert.ElementsMatch(t, []*Block{entry, loop}, exit.Pred)
    require.NoError(t, Verify(m))
}

func TestMethod_Structure(t *testing.T) {
    m, _ := buildSum()
    loops := m.Root.Loops()
    require.Len(t, loops, 1, m.Root.Dump())
    lp := loops[0]
    assert.Equal(t, m.Blocks[2], lp.Header())
    assert.Equal(t, m.Blocks[1], lp.Invariant)
    assert.Equal(t, 1, lp.Depth())
    assert.Equal(t, []int{lp.Num}, lp.Subnode(lp.Num).Succ)
    assert.Equal(t, []ExitEdge{{lp.Num, m.Blocks[3].Id}}, lp.Exits)
    assert.False(t, m.Irreducible)
}

func TestMethod_NestedStructure(t *testing.T) {
    b := NewBuilder("nested", "entry", "outer", "pre", "inner", "latch", "exit")
    i := b.Auto("i", Int32)
    j := b.Auto("j", Int32)
    b.At("entry").Set(i, b.Const(Int32, 0))
    b.At("outer").Set(j, b.Const(Int32, 0))
    b.At("inner").
        Set(j, b.Binary(OpAdd, b.Load(j), b.Const(Int32, 1))).
        Br(OpIfLt, b.Load(j), b.Const(Int32, 10), "inner")
    b.At("latch").
        Set(i, b.Binary(OpAdd, b.Load(i), b.Const(Int32, 1))).
        Br(OpIfLt, b.Load(i), b.Const(Int32, 10), "outer")
    b.At("exit").Ret()
    m := b.Build()

    /* check the nesting */
    loops := m.Root.Loops()
    require.Len(t, loops, 2, m.Root.Dump())
    assert.Equal(t, b.B("outer"), loops[0].Header())
    assert.Equal(t, b.B("inner"), loops[1].Header())
    assert.Equal(t, loops[0], loops[1].Parent())
    assert.Equal(t, 2, loops[1].Depth())
    assert.Equal(t, b.B("pre"), loops[1].Invariant)
    assert.Equal(t, b.B("entry"), loops[0].Invariant)
    assert.Equal(t, loops[1], m.Root.InnermostLoop(b.B("inner")))
    assert.Equal(t, loops[0], m.Root.InnermostLoop(b.B("latch")))
    require.NoError(t, Verify(m))

    /* and the interpreter agrees */
    ip := NewInterp(m)
    _, err := ip.Run()
    require.NoError(t, err)
    assert.Equal(t, 10, ip.Visits[b.B("outer").Id])
    assert.Equal(t, 100, ip.Visits[b.B("inner").Id])
}

func TestMethod_Irreducible(t *testing.T) {
    b := NewBuilder("irreducible", "entry", "a", "b", "exit")
    x := b.Parm("x", Int32)
    b.At("entry").Br(OpIfEq, b.Load(x), b.Const(Int32, 0), "b")
    b.At("a").Br(OpIfEq, b.Load(x), b.Const(Int32, 1), "exit")
    b.At("b").Br(OpIfNe, b.Load(x), b.Const(Int32, 2), "a")
    b.At("exit").Ret()
    m := b.Build()
    assert.True(t, m.Irreducible)
    assert.Empty(t, m.Root.Loops())

    /* neither side of the cycle dominates the other */
    dom := BuildDominatorTree(m)
    for _, s := range []string{"a", "b", "exit"} {
        assert.Same(t, b.B("entry"), dom.DominatedBy[b.B(s).Id], s)
    }
    assert.Len(t, dom.DominatorOf[b.B("entry").Id], 3)
}

func TestDominators(t *testing.T) {
    m, _ := buildSum()
    entry, pre, loop, exit := m.Blocks[0], m.Blocks[1], m.Blocks[2], m.Blocks[3]
    dom := BuildDominatorTree(m)
    assert.True(t, dom.Dominates(entry, exit))
    assert.True(t, dom.Dominates(pre, loop))
    assert.False(t, dom.Dominates(loop, exit))
    pdom := BuildPostDominatorTree(m)
    assert.True(t, pdom.Dominates(exit, loop))
    assert.True(t, pdom.Dominates(loop, pre))
    assert.False(t, pdom.Dominates(loop, entry))
}

func TestMethod_Duplicate(t *testing.T) {
    m := NewMethod("dup")
    x := m.Load(m.Auto("x", Int32))
    sum := m.Binary(OpAdd, x, x)
    seen := make(map[int]*Node)
    cp := m.Duplicate(sum, seen)
    require.NotSame(t, sum, cp)
    assert.NotEqual(t, sum.Id, cp.Id)
    assert.Same(t, cp.Kids[0], cp.Kids[1], spew.Sdump(cp.Kids))
    assert.NotSame(t, x, cp.Kids[0])
    assert.Same(t, cp.Kids[0], m.Duplicate(x, seen))
}

func TestMethod_Layout(t *testing.T) {
    m, _ := buildSum()
    pre, loop := m.Blocks[1], m.Blocks[2]
    bb := m.CreateBlock()
    bb.Append(m.Goto(loop))
    m.Place(pre, bb)
    assert.Equal(t, 2, m.LayoutIndex(bb))
    assert.Equal(t, loop, m.LayoutNext(bb))
    m.RecomputeEdges()
    assert.Equal(t, []*Block{bb}, pre.Succ)
    assert.ElementsMatch(t, []*Block{bb, loop}, loop.Pred)
}

func TestVerify_StaleEdges(t *testing.T) {
    m, _ := buildSum()
    m.Blocks[1].Succ = nil
    require.Error(t, Verify(m))
}

func TestVerify_StaleStructure(t *testing.T) {
    m, _ := buildSum()
    loop := m.Blocks[2]
    loop.Trees = loop.Trees[:len(loop.Trees) - 1]
    m.RecomputeEdges()
    require.Error(t, Verify(m))
}

func TestInterp_Sum(t *testing.T) {
    m, _ := buildSum()
    ip := NewInterp(m)
    arr := ip.NewArray("[I", 4)
    copy(ip.Object(arr).Elems, []int64{1, 2, 3, 4})

    /* the whole array */
    v, err := ip.Run(arr, 4)
    require.NoError(t, err)
    assert.Equal(t, int64(10), v)

    /* out of bounds */
    _, err = ip.Run(arr, 5)
    require.Error(t, err)
    var exc *Exception
    require.ErrorAs(t, err, &exc)
    assert.Equal(t, "ArrayIndexOutOfBoundsException", exc.Kind)

    /* null array */
    _, err = ip.Run(0, 1)
    require.ErrorAs(t, err, &exc)
    assert.Equal(t, "NullPointerException", exc.Kind)
}

func TestInterp_Guards(t *testing.T) {
    b := NewBuilder("guard", "entry", "fast", "slow")
    b.At("entry").Emit(b.NopGuard(GuardHCR, b.B("slow")))
    b.At("fast").Ret(b.Const(Int32, 1))
    b.At("slow").Ret(b.Const(Int32, 2))
    m := b.Build()
    ip := NewInterp(m)
    v, err := ip.Run()
    require.NoError(t, err)
    assert.Equal(t, int64(1), v)
    ip.Patched[GuardHCR] = true
    v, err = ip.Run()
    require.NoError(t, err)
    assert.Equal(t, int64(2), v)
}

func TestClassTable(t *testing.T) {
    ct := NewClassTable()
    ct.Define("A", "")
    ct.Define("B", "A")
    ct.DefineArray("[A", "A")
    ct.DefineArray("[B", "B")
    assert.True(t, ct.IsSubclass("B", "A"))
    assert.False(t, ct.IsSubclass("A", "B"))
    assert.True(t, ct.IsSubclass("[B", "[A"))
    assert.True(t, ct.IsSubclass("[B", ObjectClass))
    assert.True(t, ct.IsArray("[A"))
    assert.Equal(t, "A", ct.Component("[A"))
}
