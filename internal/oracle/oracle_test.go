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

package oracle

import (
    `testing`

    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestSet_Permit(t *testing.T) {
    var nilset *Set
    assert.True(t, nilset.Permit("anything"))
    assert.True(t, (&Set{}).Permit("anything"))
    assert.True(t, (&Set{Gate: AllowAll{}}).Permit("anything"))
}

func TestBisect(t *testing.T) {
    gate := &Bisect{Limit: 2}
    oc := &Set{Gate: gate}
    assert.True(t, oc.Permit("a"))
    assert.True(t, oc.Permit("b"))
    assert.False(t, oc.Permit("c"))
    assert.False(t, oc.Permit("d"))
    assert.Equal(t, []string{"a", "b", "c", "d"}, gate.Asked)
}

func TestDeny(t *testing.T) {
    oc := &Set{Gate: Deny{"loop 3", "transfer"}}
    assert.True(t, oc.Permit("versioning loop 2"))
    assert.False(t, oc.Permit("versioning loop 3"))
    assert.False(t, oc.Permit("loop transfer for hcr in block_4"))
}

func TestStaticTables(t *testing.T) {
    m := il.NewMethod("static")
    x := m.Auto("x", il.Int32)
    st1 := m.Store(x, m.Const(il.Int32, 1))
    st2 := m.Store(x, m.Const(il.Int32, 1))
    ld := m.Load(x)

    /* use-def */
    ud := StaticUseDef{}
    _, ok := ud.Definitions(ld)
    assert.False(t, ok)
    ud.Define(ld, st1)
    ud.Define(ld, st2)
    defs, ok := ud.Definitions(ld)
    require.True(t, ok)
    assert.Equal(t, []*il.Node{st1, st2}, defs)

    /* value numbers */
    vn := StaticValueNumbers{}
    vn.Assign(7, st1.Kids[0], st2.Kids[0])
    v, ok := vn.ValueNumber(st2.Kids[0])
    require.True(t, ok)
    assert.Equal(t, 7, v)
    _, ok = vn.ValueNumber(ld)
    assert.False(t, ok)
}

func TestStaticProfile(t *testing.T) {
    b := il.NewBuilder("profile", "entry", "exit")
    n := b.Parm("n", il.Int32)
    br := b.If(il.OpIfEq, b.Load(n), b.Const(il.Int32, 0), b.B("exit"))
    pf := NewStaticProfile()

    /* branches */
    _, _, ok := pf.BranchCounts(br)
    assert.False(t, ok)
    pf.SetBranch(br, 3, 100)
    taken, total, ok := pf.BranchCounts(br)
    require.True(t, ok)
    assert.Equal(t, int64(3), taken)
    assert.Equal(t, int64(100), total)

    /* values */
    pf.SetValue(br.Kids[0], 42, 98, 100)
    val, cnt, tot, ok := pf.ValueProfile(br.Kids[0])
    require.True(t, ok)
    assert.Equal(t, []int64{42, 98, 100}, []int64{val, cnt, tot})

    /* trip counts */
    pf.SetIterations(b.B("entry"), 1000)
    it, ok := pf.LoopIterations(b.B("entry"))
    require.True(t, ok)
    assert.Equal(t, int64(1000), it)
    _, ok = pf.LoopIterations(b.B("exit"))
    assert.False(t, ok)
}
