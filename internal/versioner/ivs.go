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
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
)

type IVKind uint8

const (
    IVPrimary IVKind = iota
    IVSpecial
    IVDerived
)

func (self IVKind) String() string {
    switch self {
        case IVPrimary : return "primary"
        case IVSpecial : return "special"
        case IVDerived : return "derived"
        default        : panic("unreachable")
    }
}

// IV is a symbol written exactly once per iteration by a self-referential
// update: x = x + Step for primary and derived ones, x = (x + Step) & Mask
// for special ones.
type IV struct {
    Kind        IVKind
    Sym         *il.Symbol
    Step        int64
    Mask        *il.Node
    Store       *il.Node
    Block       *il.Block
    Predictable bool
}

// LoopTest is the loop-driving comparison, normalized so that the loop keeps
// going while `IV Op Limit` holds.
type LoopTest struct {
    Branch *il.Node
    IV     *IV
    Load   *il.Node
    Op     il.Opcode
    Limit  *il.Node
    OnNew  bool
    Finite bool
}

// stripWidening looks through sign-extending conversions.
func stripWidening(p *il.Node) *il.Node {
    for p.Op == il.OpI2L {
        p = p.Kids[0]
    }
    return p
}

// stepOf matches `load(sym) + c`, `c + load(sym)` and `load(sym) - c`, also
// when the arithmetic was done in a wider type and converted back.
func stepOf(rhs *il.Node, sym *il.Symbol) (int64, bool) {
    if rhs.Op == il.OpL2I {
        rhs = rhs.Kids[0]
    }

    /* must be an add or a sub */
    if rhs.Op != il.OpAdd && rhs.Op != il.OpSub {
        return 0, false
    }

    /* find the constant */
    x, c := stripWidening(rhs.Kids[0]), rhs.Kids[1]
    if rhs.Op == il.OpAdd && c.Op != il.OpConst {
        x, c = stripWidening(rhs.Kids[1]), rhs.Kids[0]
    }

    /* the other side must be the symbol itself */
    if c.Op != il.OpConst || !x.IsLoadOf(sym) || c.Const == 0 {
        return 0, false
    }

    /* the step is a 32-bit quantity */
    if !Int65i(c.Const).FitsInt32() {
        return 0, false
    } else if rhs.Op == il.OpSub {
        return -c.Const, true
    } else {
        return c.Const, true
    }
}

// maskOf matches `(load(sym) + c) & m` with an invariant mask.
func (self *LoopContext) maskOf(rhs *il.Node, sym *il.Symbol) (int64, *il.Node, bool) {
    if rhs.Op != il.OpAnd {
        return 0, nil, false
    }

    /* either side may be the mask */
    for i := 0; i < 2; i++ {
        add, m := rhs.Kids[i], rhs.Kids[1 - i]
        if step, ok := stepOf(add, sym); ok && step > 0 && self.IsInvariant(m) {
            return step, m, true
        }
    }
    return 0, nil, false
}

// executesEveryIteration reports blocks that run once on every trip around
// the loop and not inside any nested cycle.
func (self *LoopContext) executesEveryIteration(bb *il.Block) bool {
    if self.ContainsNested(bb) {
        return false
    }

    /* dominating the latch is enough */
    if self.Dom.Dominates(bb, self.Latch) {
        return true
    }

    /* so is post-dominating the header, when that is known */
    if pd := self.postDominators(); pd != nil {
        return pd.Contains(bb) && pd.Dominates(bb, self.Header)
    }
    return false
}

// ClassifyIVs finds the induction variables and the loop test. It reports
// false if the loop has no single latch.
func (self *LoopContext) ClassifyIVs() bool {
    if self.Latch == nil {
        return false
    }

    /* look at every symbol written exactly once */
    for _, sym := range self.M.Symbols {
        w, ok := self.writes[sym.Id]
        if !ok || w.killed || len(w.stores) != 1 || !sym.IsPrivate() || !sym.Type.IsIntegral() {
            continue
        }

        /* the store must be a direct one, executed on every iteration */
        st, bb := w.stores[0], w.sites[0]
        if st.Op != il.OpStore || !self.executesEveryIteration(bb) {
            continue
        }

        /* plain additive update */
        if step, ok := stepOf(st.Kids[0], sym); ok {
            self.IVs[sym.Id] = &IV {
                Kind        : IVDerived,
                Sym         : sym,
                Step        : step,
                Store       : st,
                Block       : bb,
                Predictable : true,
            }
            continue
        }

        /* masked update */
        if step, mask, ok := self.maskOf(st.Kids[0], sym); ok {
            self.IVs[sym.Id] = &IV {
                Kind  : IVSpecial,
                Sym   : sym,
                Step  : step,
                Mask  : mask,
                Store : st,
                Block : bb,
            }
        }
    }

    /* find the loop test and the primary IV */
    self.findLoopTest()
    self.checkExits()

    /* dump what we have found */
    for _, iv := range self.IVs {
        self.trace("induction variable", "sym", iv.Sym.Name, "kind", iv.Kind, "step", iv.Step, "predictable", iv.Predictable)
    }
    return true
}

func (self *LoopContext) findLoopTest() {
    br := self.Latch.Branch()
    if br == nil || !br.Op.IsIf() || br.IsGuard() {
        return
    }

    /* normalize to the condition that keeps the loop going */
    var op il.Opcode
    switch {
        case br.Target == self.Header                                                      : op = br.Op
        case self.M.LayoutNext(self.Latch) == self.Header && !self.InLoop(br.Target) : op = br.Op.Reversed()
        default                                                                            : return
    }

    /* find the side that loads an IV */
    for i := 0; i < 2; i++ {
        x, lim := stripWidening(br.Kids[i]), br.Kids[1 - i]
        if x.Op != il.OpLoad || !self.IsInvariant(lim) {
            continue
        }

        /* it must be an additive IV */
        iv := self.IVs[x.Sym.Id]
        if iv == nil || iv.Kind != IVDerived {
            continue
        }

        /* put the IV on the left */
        if i == 1 {
            op = op.Swapped()
        }

        /* find out which value the test sees */
        onNew, ok := self.SeesUpdated(iv, self.Latch, x)
        if !ok {
            continue
        }

        /* this is the primary IV */
        iv.Kind = IVPrimary
        self.Test = &LoopTest {
            Branch : br,
            IV     : iv,
            Load   : x,
            Op     : op.CompareOf(),
            Limit  : lim,
            OnNew  : onNew,
            Finite : isFiniteTest(op.CompareOf(), iv.Step),
        }
        return
    }
}

// isFiniteTest reports whether a monotonic IV eventually fails the test.
func isFiniteTest(op il.Opcode, step int64) bool {
    switch op {
        case il.OpCmpLt, il.OpCmpLe : return step > 0
        case il.OpCmpGt, il.OpCmpGe : return step < 0
        default                     : return false
    }
}

// checkExits disqualifies derived IVs that some early exit branches on, the
// value they end up with is not predictable.
func (self *LoopContext) checkExits() {
    for _, bb := range self.Blocks {
        br := bb.Branch()
        if br == nil || !br.Op.IsIf() || (self.Test != nil && br == self.Test.Branch) {
            continue
        }

        /* only branches leaving the loop */
        if self.InLoop(br.Target) && self.InLoop(self.M.LayoutNext(bb)) {
            continue
        }

        /* every IV the exit depends on is unpredictable */
        br.Walk(func(p *il.Node) {
            if p.Op == il.OpLoad {
                if iv := self.IVs[p.Sym.Id]; iv != nil && iv.Kind == IVDerived {
                    iv.Predictable = false
                }
            }
        })
    }
}

// SeesUpdated tells whether node p, first evaluated in bb, reads the value
// the IV has after its update in the current iteration. The second result
// is false when this cannot be determined.
func (self *LoopContext) SeesUpdated(iv *IV, bb *il.Block, p *il.Node) (bool, bool) {
    if bb == iv.Block {
        use, def := FirstUse(bb, p), bb.IndexOf(iv.Store)
        return use > def, use >= 0
    }

    /* the update runs before bb */
    if self.Dom.Dominates(iv.Block, bb) {
        return true, true
    }

    /* or after it */
    if self.Dom.Dominates(bb, iv.Block) {
        return false, true
    }
    return false, false
}
