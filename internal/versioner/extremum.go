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

    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
)

// Term is an invariant addend of a linear expression.
type Term struct {
    Node *il.Node
    Neg  bool
}

// Linear describes a value of the form Scale * IV + sum(Terms). Exact is set
// when none of the arithmetic involved may overflow.
type Linear struct {
    IV    *IV
    Load  *il.Node
    Scale int64
    Terms []Term
    Exact bool
}

func (self *Linear) negate() {
    self.Scale = -self.Scale
    for i := range self.Terms {
        self.Terms[i].Neg = !self.Terms[i].Neg
    }
}

// Increasing reports whether the value grows from one iteration to the next.
func (self *Linear) Increasing() bool {
    return (self.Scale > 0) == (self.IV.Step > 0)
}

// LinearOf matches a linear function of a primary or derived IV, looking
// through additions and subtractions of invariants, negations and widening
// conversions. A multiplication is only accepted directly over the load of
// the IV and by a constant.
func (self *LoopContext) LinearOf(p *il.Node) *Linear {
    p = stripWidening(p)

    /* the IV itself */
    if p.Op == il.OpLoad {
        if iv := self.IVs[p.Sym.Id]; iv != nil && iv.Kind != IVSpecial && iv.Sym.Type == il.Int32 && iv.Predictable {
            return &Linear{IV: iv, Load: p, Scale: 1, Exact: true}
        } else {
            return nil
        }
    }

    /* arithmetic */
    switch p.Op {
        case il.OpNeg: {
            if ret := self.LinearOf(p.Kids[0]); ret != nil {
                ret.negate()
                ret.Exact = ret.Exact && p.Is(il.FlagCannotOverflow)
                return ret
            }
        }

        case il.OpAdd, il.OpSub: {
            return self.linearSum(p)
        }

        case il.OpMul: {
            return self.linearProduct(p)
        }
    }
    return nil
}

func (self *LoopContext) linearSum(p *il.Node) *Linear {
    for i := 0; i < 2; i++ {
        x, y := p.Kids[i], p.Kids[1 - i]

        /* one side varies, the other one does not */
        inv := self.InvariantForm(y)
        if inv == nil {
            continue
        }

        /* and the varying side must be linear */
        ret := self.LinearOf(x)
        if ret == nil {
            return nil
        }

        /* `inv - lin` flips the sign of the varying part */
        if p.Op == il.OpSub && i == 1 {
            ret.negate()
        }

        /* add the invariant part */
        ret.Terms = append(ret.Terms, Term{Node: inv, Neg: p.Op == il.OpSub && i == 0})
        ret.Exact = ret.Exact && p.Is(il.FlagCannotOverflow)
        return ret
    }
    return nil
}

func (self *LoopContext) linearProduct(p *il.Node) *Linear {
    for i := 0; i < 2; i++ {
        x, c := stripWidening(p.Kids[i]), p.Kids[1 - i]

        /* only `iv * const`, never through temporaries */
        if c.Op != il.OpConst || c.Const == 0 || !Int65i(c.Const).FitsInt32() || x.Op != il.OpLoad {
            continue
        }

        /* the load must be the IV */
        if ret := self.LinearOf(x); ret != nil {
            ret.Scale = c.Const
            ret.Exact = p.Is(il.FlagCannotOverflow)
            return ret
        }
    }
    return nil
}

// tripCount returns K-1 for a loop body that runs K times, along with the
// tests the closed form relies on: the IV must start on the right side of
// the limit, and must never wrap.
func (self *LoopContext) tripCount() (*il.Node, []*il.Node) {
    if self.trip != nil || self.Test == nil || !self.Test.Finite {
        return self.trip, self.tripPre
    }

    /* compute the strict limit */
    tb := _Trees{self.M}
    lt := self.Test
    lim := tb.wide(lt.Limit)
    step := lt.IV.Step
    switch lt.Op {
        case il.OpCmpLe: lim = tb.addc(lim, 1)
        case il.OpCmpGe: lim = tb.addc(lim, -1)
    }

    /* the first value tested */
    first := tb.wide(self.M.Load(lt.IV.Sym))
    if lt.OnNew {
        first = tb.addc(first, step)
    }

    /* the last IV value stored may exceed the last one tested by a step */
    slack := step
    if !lt.OnNew {
        slack *= 2
    }

    /* increasing IVs */
    if step > 0 {
        self.tripPre = append(self.tripPre, tb.test(il.OpCmpGe, first, lim))
        if step != 1 || lt.Op != il.OpCmpLt || !lt.OnNew {
            self.tripPre = append(self.tripPre, tb.test(il.OpCmpGt, tb.addc(lim, slack - 1), tb.c64(math.MaxInt32)))
        }
        self.trip = tb.divc(tb.addc(tb.sub(lim, first), step - 1), step)
        return self.trip, self.tripPre
    }

    /* decreasing IVs */
    self.tripPre = append(self.tripPre, tb.test(il.OpCmpLe, first, lim))
    if step != -1 || lt.Op != il.OpCmpGt || !lt.OnNew {
        self.tripPre = append(self.tripPre, tb.test(il.OpCmpLt, tb.addc(lim, slack + 1), tb.c64(math.MinInt32)))
    }
    self.trip = tb.divc(tb.addc(tb.sub(first, lim), -step - 1), -step)
    return self.trip, self.tripPre
}

// ivValues returns the value of the IV observed by a load in bb on the first
// iteration and, if last is set, on the last one. The second list holds the
// tests the last value relies on.
func (self *LoopContext) ivValues(iv *IV, bb *il.Block, load *il.Node, last bool) ([2]*il.Node, []*il.Node, bool) {
    var ret [2]*il.Node
    tb := _Trees{self.M}

    /* find out which value is observed */
    upd, ok := self.SeesUpdated(iv, bb, load)
    if !ok {
        return ret, nil, false
    }

    /* value on the first iteration */
    ret[0] = tb.wide(self.M.Load(iv.Sym))
    if upd {
        ret[0] = tb.addc(ret[0], iv.Step)
    }

    /* value on the last iteration */
    if !last {
        return ret, nil, true
    }

    /* needs a finite loop test */
    trip, pre := self.tripCount()
    if trip == nil {
        return ret, nil, false
    }

    /* first + trip * step */
    ret[1] = tb.add(ret[0], tb.mulc(trip, iv.Step))
    return ret, pre, true
}

// linearValue applies the linear function to an IV value.
func (self *LoopContext) linearValue(lin *Linear, v *il.Node) *il.Node {
    tb := _Trees{self.M}
    ret := tb.mulc(v, lin.Scale)

    /* add all the terms */
    for _, t := range lin.Terms {
        if t.Neg {
            ret = tb.sub(ret, t.Node)
        } else {
            ret = tb.add(ret, t.Node)
        }
    }
    return ret
}

// LinearRange returns the smallest and the largest value taken by a linear
// expression first evaluated in bb, and the tests they rely on.
func (self *LoopContext) LinearRange(lin *Linear, bb *il.Block) (*il.Node, *il.Node, []*il.Node, bool) {
    vals, pre, ok := self.ivValues(lin.IV, bb, lin.Load, true)
    if !ok {
        return nil, nil, nil, false
    }

    /* apply the function to both ends */
    lo := self.linearValue(lin, vals[0])
    hi := self.linearValue(lin, vals[1])

    /* decreasing functions swap the ends */
    if !lin.Increasing() {
        lo, hi = hi, lo
    }
    return lo, hi, pre, true
}

// Extremum describes a conditional that compares a monotonic function of the
// primary IV against an invariant. The fast loop relies on `varying Need
// invariant` holding on every iteration, which is checked on the extreme
// value of the varying side only.
type Extremum struct {
    Child   int
    Lin     *Linear
    Load    *il.Node
    Step    int64
    Final   bool
    LoopOp  il.Opcode
    Reverse bool
    Need    il.Opcode
    Bound   *il.Node
}

// coldSide decides which successor of a conditional the fast loop may give
// up on. It reports whether that is the taken side.
func (self *LoopContext) coldSide(bb *il.Block, br *il.Node) (bool, bool) {
    taken, fall := br.Target, self.M.LayoutNext(bb)
    if fall == nil {
        return false, false
    }

    /* exactly one successor marked cold */
    if taken.Cold != fall.Cold {
        return taken.Cold, true
    }

    /* with post-dominators, the side that skips the join point may be cold */
    pd := self.postDominators()
    if pd == nil || !pd.Contains(taken) || !pd.Contains(fall) {
        return false, false
    }

    /* the conditionally executed side must be rare */
    switch {
        case pd.Dominates(fall, taken) && self.Opts.IsUnimportant(taken.Freq, bb.Freq) : return true, true
        case pd.Dominates(taken, fall) && self.Opts.IsUnimportant(fall.Freq, bb.Freq)  : return false, true
        default                                                                          : return false, false
    }
}

// VersionableIfWithExtremum matches a conditional that can be decided before
// the loop by looking at the extreme value of its varying side.
func (self *LoopContext) VersionableIfWithExtremum(bb *il.Block, br *il.Node) *Extremum {
    if self.Test == nil || !br.Op.IsIf() || br.IsGuard() || br == self.Test.Branch {
        return nil
    }

    /* exactly one side must be invariant */
    x, y := br.Kids[0], br.Kids[1]
    ix, iy := self.InvariantForm(x), self.InvariantForm(y)
    if (ix == nil) == (iy == nil) || x.Type != y.Type || x.Type != il.Int32 {
        return nil
    }

    /* put the varying side on the left */
    op, child, inv := br.Op, 0, iy
    if ix != nil {
        x, child, inv, op = y, 1, ix, op.Swapped()
    }

    /* the varying side must be a non-overflowing function of the primary IV */
    lin := self.LinearOf(x)
    if lin == nil || !lin.Exact || lin.IV != self.Test.IV {
        return nil
    }

    /* which successor the fast loop gives up on */
    coldTaken, ok := self.coldSide(bb, br)
    if !ok {
        return nil
    }

    /* the relation that must hold on every iteration */
    need := op.CompareOf()
    if coldTaken {
        need = need.Reversed()
    }

    /* which end of the range matters */
    var needMax bool
    switch need {
        case il.OpCmpLt, il.OpCmpLe : needMax = true
        case il.OpCmpGt, il.OpCmpGe : needMax = false
        default                     : return nil
    }

    /* both ends rely on the IV never wrapping, which needs a finite loop test */
    final := needMax == lin.Increasing()
    if !self.Test.Finite {
        return nil
    }

    /* the load must see a well defined IV value */
    if _, ok = self.SeesUpdated(lin.IV, bb, lin.Load); !ok {
        return nil
    }

    /* build the descriptor */
    return &Extremum {
        Child   : child,
        Lin     : lin,
        Load    : lin.Load,
        Step    : lin.IV.Step,
        Final   : final,
        LoopOp  : self.Test.Op,
        Reverse : coldTaken,
        Need    : need,
        Bound   : inv,
    }
}

// ExtremumTests builds the test sending execution to the slow loop when the
// relation may fail on some iteration, along with the tests it relies on.
func (self *LoopContext) ExtremumTests(ext *Extremum, bb *il.Block) (*il.Node, []*il.Node, bool) {
    var pre []*il.Node
    var val *il.Node

    /* the initial value is enough when the relation only gets stronger and
     * the IV cannot wrap around */
    if !ext.Final {
        vals, _, ok := self.ivValues(ext.Lin.IV, bb, ext.Load, false)
        if !ok {
            return nil, nil, false
        }

        /* the trip count tests rule out the wrap */
        trip, tests := self.tripCount()
        if trip == nil {
            return nil, nil, false
        }

        /* the first value */
        pre, val = tests, self.linearValue(ext.Lin, vals[0])
    } else {
        lo, hi, tests, ok := self.LinearRange(ext.Lin, bb)
        if !ok {
            return nil, nil, false
        }

        /* the relevant end of the range */
        if pre, val = tests, lo; ext.Need == il.OpCmpLt || ext.Need == il.OpCmpLe {
            val = hi
        }
    }

    /* fail when the relation does not hold */
    return _Trees{self.M}.test64(ext.Need.Reversed(), val, ext.Bound), pre, true
}
