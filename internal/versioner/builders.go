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

// GuardFlags are the assumptions some removals rely on. They only hold if
// enough of the loop body goes away with the other removals.
type GuardFlags uint8

const (
    NeedPrivatization GuardFlags = 1 << iota
    NeedHCR
    NeedOSR
    NeedWrtBar
)

// Effect tells what a removal does to the control flow of the fast loop.
type Effect uint8

const (
    EffectNone Effect = iota
    EffectFallThrough
    EffectTaken
)

// Removal is a check that the fast loop can do without, provided the tests
// in Preps pass before entering it.
type Removal struct {
    Check  Check
    Preps  []*Prep
    Needs  GuardFlags
    Effect Effect
    Apply  func() bool
    Desc   string
}

type _Builder func(ctx *LoopContext, c Check) *Removal

var _Builders = [_KindMax]_Builder {
    NullCheck       : buildNullCheck,
    BoundCheck      : buildBoundCheck,
    SpineCheck      : buildSpineCheck,
    DivCheck        : buildDivCheck,
    CheckCast       : buildCheckCast,
    ArrayStoreCheck : buildArrayStoreCheck,
    WriteBarrier    : buildWriteBarrier,
    Conditional     : buildConditional,
    ProfiledValue   : buildProfiledValue,
}

// BuildRemovals turns every candidate into a removal when the tests it needs
// can be built.
func (self *LoopContext) BuildRemovals() []*Removal {
    var ret []*Removal
    for k, list := range self.Checks {
        for _, c := range list {
            if r := _Builders[k](self, c); r != nil {
                ret = append(ret, r)
            }
        }
    }
    return ret
}

// newRemoval builds the preps for the tests. Any test that cannot be prepared
// abandons the removal.
func (self *LoopContext) newRemoval(c Check, desc string, tests ...*il.Node) *Removal {
    r := &Removal {
        Check : c,
        Desc  : fmt.Sprintf("%s %s in %s", c.Kind(), desc, c.Where().Block),
    }

    /* prepare all the tests */
    for _, t := range tests {
        p, err := self.Preps.Create(PrepTest, t)
        if err != nil {
            self.trace("candidate abandoned", "kind", c.Kind(), "tree", c.Where().Tree, "err", err)
            return nil
        }
        if !hasPrep(r.Preps, p) {
            r.Preps = append(r.Preps, p)
        }
    }

    /* privatized values are only safe without surviving calls */
    for _, p := range r.Preps {
        if p.RequiresPrivatization {
            r.Needs |= NeedPrivatization
        }
    }
    return r
}

/** Tree edits **/

// toTreetop keeps the value of a check while dropping the check itself.
func toTreetop(p *il.Node, keep *il.Node) {
    p.Op = il.OpTreetop
    p.Type = il.NoType
    p.Kids = []*il.Node{keep}
}

// anchors builds treetops for the non-constant children of a tree being
// dropped, so that they are still evaluated where they used to be.
func (self *LoopContext) anchors(kids ...*il.Node) []*il.Node {
    var ret []*il.Node
    for _, k := range kids {
        if k.Op != il.OpConst {
            ret = append(ret, self.M.Treetop(k))
        }
    }
    return ret
}

/** Null checks **/

func buildNullCheck(ctx *LoopContext, c Check) *Removal {
    s := c.(*NullCheckSite)
    ref := ctx.InvariantForm(s.Ref)
    if ref == nil {
        return nil
    }

    /* ref == null goes to the slow loop */
    tb := _Trees{ctx.M}
    r := ctx.newRemoval(c, s.Ref.String(), tb.test(il.OpCmpEq, ref, ctx.M.Null()))
    if r == nil {
        return nil
    }

    /* the check becomes a plain evaluation */
    r.Apply = func() bool {
        if s.Tree.Op != il.OpNullChk {
            return false
        }
        toTreetop(s.Tree, s.Tree.Kids[0])
        return true
    }
    return r
}

/** Bound checks **/

// indexTests builds the tests proving `0 <= index < bound` on every iteration.
func indexTests(ctx *LoopContext, bb *il.Block, bound *il.Node, index *il.Node) ([]*il.Node, bool) {
    tb := _Trees{ctx.M}
    bnd := ctx.InvariantForm(bound)
    if bnd == nil {
        return nil, false
    }

    /* invariant index, test it directly */
    if idx := ctx.InvariantForm(index); idx != nil {
        return []*il.Node {
            tb.test(il.OpCmpLt, idx, ctx.M.Const(idx.Type, 0)),
            tb.test64(il.OpCmpGe, idx, bnd),
        }, true
    }

    /* masked IVs stay between their initial value and the mask */
    if x := stripWidening(index); x.Op == il.OpLoad {
        if iv := ctx.IVs[x.Sym.Id]; iv != nil && iv.Kind == IVSpecial {
            x0 := ctx.M.Load(iv.Sym)
            return []*il.Node {
                tb.test64(il.OpCmpLt, x0, tb.c64(0)),
                tb.test64(il.OpCmpGe, x0, bnd),
                tb.test64(il.OpCmpLt, iv.Mask, tb.c64(0)),
                tb.test64(il.OpCmpGe, iv.Mask, bnd),
            }, true
        }
    }

    /* linear functions of an IV, check both ends of the range */
    lin := ctx.LinearOf(index)
    if lin == nil {
        return nil, false
    }

    /* compute the range */
    lo, hi, pre, ok := ctx.LinearRange(lin, bb)
    if !ok {
        return nil, false
    }

    /* the range must lie within the array */
    return append(pre,
        tb.test64(il.OpCmpLt, lo, tb.c64(0)),
        tb.test64(il.OpCmpGe, hi, bnd),
    ), true
}

func buildBoundCheck(ctx *LoopContext, c Check) *Removal {
    s := c.(*BoundCheckSite)
    tests, ok := indexTests(ctx, s.Block, s.Bound, s.Index)
    if !ok {
        return nil
    }

    /* build the removal */
    r := ctx.newRemoval(c, s.Index.String(), tests...)
    if r == nil {
        return nil
    }

    /* the operands are still evaluated in place */
    r.Apply = func() bool {
        i := s.Block.IndexOf(s.Tree)
        if i < 0 || s.Tree.Op != il.OpBndChk {
            return false
        }
        s.Block.Replace(i, ctx.anchors(s.Bound, s.Index)...)
        return true
    }
    return r
}

/** Spine checks **/

func buildSpineCheck(ctx *LoopContext, c Check) *Removal {
    s := c.(*SpineCheckSite)
    base := ctx.InvariantForm(s.Base)
    if base == nil {
        return nil
    }

    /* the array must be contiguous */
    tb := _Trees{ctx.M}
    tests := []*il.Node { tb.test(il.OpCmpEq, ctx.M.NewNode(il.OpIsContiguous, il.Int32, base), ctx.M.Const(il.Int32, 0)) }
    bnd, full := indexTests(ctx, s.Block, s.Bound, s.Index)

    /* both the spine and the bounds */
    if full {
        r := ctx.newRemoval(c, s.Index.String(), append(bnd, tests...)...)
        if r == nil {
            return nil
        }
        r.Apply = func() bool {
            i := s.Block.IndexOf(s.Tree)
            if i < 0 || s.Tree.Op != il.OpSpineChk {
                return false
            }
            toTreetop(s.Tree, s.Access)
            s.Block.Replace(i, append(ctx.anchors(s.Bound, s.Index), s.Tree)...)
            return true
        }
        return r
    }

    /* only the spine, the bound check stays */
    r := ctx.newRemoval(c, "spine of " + s.Base.String(), tests...)
    if r == nil {
        return nil
    }
    r.Apply = func() bool {
        i := s.Block.IndexOf(s.Tree)
        if i < 0 || s.Tree.Op != il.OpSpineChk {
            return false
        }
        s.Block.Replace(i, ctx.M.BndChk(s.Bound, s.Index), ctx.M.Treetop(s.Access))
        return true
    }
    return r
}

/** Divide checks **/

func buildDivCheck(ctx *LoopContext, c Check) *Removal {
    var tests []*il.Node
    s := c.(*DivCheckSite)

    /* non-zero constants need no test at all */
    if d := s.Divisor; d.Op != il.OpConst || d.Const == 0 {
        if d = ctx.InvariantForm(d); d == nil {
            return nil
        } else {
            tests = append(tests, _Trees{ctx.M}.test(il.OpCmpEq, d, ctx.M.Const(d.Type, 0)))
        }
    }

    /* build the removal */
    r := ctx.newRemoval(c, s.Divisor.String(), tests...)
    if r == nil {
        return nil
    }

    /* the division is still evaluated */
    r.Apply = func() bool {
        if s.Tree.Op != il.OpDivChk {
            return false
        }
        toTreetop(s.Tree, s.Tree.Kids[0])
        return true
    }
    return r
}

/** Casts **/

func buildCheckCast(ctx *LoopContext, c Check) *Removal {
    s := c.(*CastCheckSite)
    if !ctx.IsInvariant(s.Object) || !ctx.IsInvariant(s.Class) {
        return nil
    }

    /* !(obj instanceof class) goes to the slow loop, null included */
    m := ctx.M
    r := ctx.newRemoval(c, s.Object.String(), _Trees{m}.test(il.OpCmpEq, m.InstanceOf(s.Object, s.Class), m.Const(il.Int32, 0)))
    if r == nil {
        return nil
    }

    /* keep evaluating the object */
    r.Apply = func() bool {
        if s.Tree.Op != il.OpCheckCast {
            return false
        }
        toTreetop(s.Tree, s.Object)
        return true
    }
    return r
}

/** Array stores **/

func buildArrayStoreCheck(ctx *LoopContext, c Check) *Removal {
    s := c.(*StoreCheckSite)
    arr := ctx.InvariantForm(s.Array)
    if arr == nil || s.Value.Class == "" {
        return nil
    }

    /* the component class must be exactly the static class of the value */
    m := ctx.M
    cc := m.NewNode(il.OpComponentClass, il.Address, m.Vft(arr))
    r := ctx.newRemoval(c, s.Array.String(), _Trees{m}.test(il.OpCmpNe, cc, m.ClassConst(s.Value.Class)))
    if r == nil {
        return nil
    }

    /* the store itself stays */
    r.Apply = func() bool {
        if s.Tree.Op != il.OpArrayStoreChk {
            return false
        }
        toTreetop(s.Tree, s.Tree.Kids[0])
        return true
    }
    return r
}

/** Write barriers **/

func buildWriteBarrier(ctx *LoopContext, c Check) *Removal {
    s := c.(*BarrierSite)
    obj := ctx.InvariantForm(s.Object)
    if obj == nil {
        return nil
    }

    /* tenured objects need their barriers */
    m := ctx.M
    r := ctx.newRemoval(c, s.Object.String(), _Trees{m}.test(il.OpCmpNe, m.NewNode(il.OpIsTenured, il.Int32, obj), m.Const(il.Int32, 0)))
    if r == nil {
        return nil
    }

    /* no collection may tenure the object while the loop runs */
    r.Needs |= NeedWrtBar
    r.Apply = func() bool {
        s.Store.Flags |= il.FlagSkipWrtBar
        return true
    }
    return r
}

/** Conditionals **/

func buildConditional(ctx *LoopContext, c Check) *Removal {
    s := c.(*CondSite)
    switch s.Guard {
        case il.GuardNone                     : return buildBranch(ctx, s)
        case il.GuardVirtual, il.GuardProfiled : return buildGuard(ctx, s)
        case il.GuardHCR                      : return buildNopGuard(ctx, s, NeedHCR)
        case il.GuardOSR                      : return buildNopGuard(ctx, s, NeedOSR)
        default                               : return nil
    }
}

// fold makes the fast loop always go one way at the end of the site block.
func fold(ctx *LoopContext, r *Removal, s *CondSite, taken bool) {
    if taken {
        r.Effect = EffectTaken
    } else {
        r.Effect = EffectFallThrough
    }

    /* replace the branch */
    r.Apply = func() bool {
        i := s.Block.IndexOf(s.Tree)
        if i < 0 || !s.Tree.Op.IsIf() {
            return false
        }
        if taken {
            s.Block.Replace(i, ctx.M.Goto(s.Tree.Target))
        } else {
            s.Block.Replace(i)
        }
        return true
    }
}

// buildGuard duplicates the guard condition before the loop. The fast loop
// only runs when the inlined path is the one taken.
func buildGuard(ctx *LoopContext, s *CondSite) *Removal {
    x, y := ctx.InvariantForm(s.Tree.Kids[0]), ctx.InvariantForm(s.Tree.Kids[1])
    if x == nil || y == nil {
        return nil
    }

    /* guard taken goes to the slow loop */
    r := ctx.newRemoval(s, s.Guard.String() + " guard", _Trees{ctx.M}.test(s.Tree.Op, x, y))
    if r == nil {
        return nil
    }

    /* drop the guard */
    fold(ctx, r, s, false)
    return r
}

// buildNopGuard moves a patchable guard in front of the loop. This is only
// valid when nothing left in the fast loop can patch it.
func buildNopGuard(ctx *LoopContext, s *CondSite, need GuardFlags) *Removal {
    r := ctx.newRemoval(s, s.Guard.String() + " guard", ctx.M.NopGuard(s.Guard, nil))
    if r == nil {
        return nil
    }

    /* drop the guard */
    r.Needs |= need
    fold(ctx, r, s, false)
    return r
}

// buildBranch handles branches with a cold side: either both operands are
// invariant and the rare direction is tested once, or the varying operand is
// monotonic and only its extreme value needs testing.
func buildBranch(ctx *LoopContext, s *CondSite) *Removal {
    tb := _Trees{ctx.M}
    x, y := ctx.InvariantForm(s.Tree.Kids[0]), ctx.InvariantForm(s.Tree.Kids[1])

    /* invariant conditions are decided once */
    if x != nil && y != nil {
        op := s.Tree.Op
        if !s.ColdTaken {
            op = op.Reversed()
        }

        /* going the rare way means going to the slow loop */
        r := ctx.newRemoval(s, "biased branch", tb.test(op, x, y))
        if r == nil {
            return nil
        }

        /* the fast loop always goes the common way */
        fold(ctx, r, s, !s.ColdTaken)
        return r
    }

    /* monotonic comparisons */
    ext := ctx.VersionableIfWithExtremum(s.Block, s.Tree)
    if ext == nil {
        return nil
    }

    /* build the tests */
    test, pre, ok := ctx.ExtremumTests(ext, s.Block)
    if !ok {
        return nil
    }

    /* and the removal */
    s.Ext = ext
    r := ctx.newRemoval(s, "extremum branch", append(pre, test)...)
    if r == nil {
        return nil
    }

    /* the hot side is the one the relation leads to */
    fold(ctx, r, s, !ext.Reverse)
    return r
}

/** Profiled values **/

func buildProfiledValue(ctx *LoopContext, c Check) *Removal {
    s := c.(*ValueSite)
    v := ctx.InvariantForm(s.Node)
    if v == nil {
        return nil
    }

    /* any other value goes to the slow loop */
    r := ctx.newRemoval(c, s.Node.String(), _Trees{ctx.M}.test(il.OpCmpNe, v, ctx.M.Const(v.Type, s.Value)))
    if r == nil {
        return nil
    }

    /* the fast loop uses the constant */
    r.Apply = func() bool {
        if s.Node.Op != il.OpLoad {
            return false
        }
        s.Node.Op = il.OpConst
        s.Node.Sym = nil
        s.Node.Kids = nil
        s.Node.Const = s.Node.Type.Truncate(s.Value)
        return true
    }
    return r
}
