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
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/utils`
)

// IsInvariant reports whether the tree rooted at p evaluates to the same
// value on every iteration of the loop.
func (self *LoopContext) IsInvariant(p *il.Node) bool {
    return self.isInvariant(p, make(map[int]bool))
}

func (self *LoopContext) isInvariant(p *il.Node, seen map[int]bool) bool {
    if seen[p.Id] {
        return true
    }

    /* each node is checked once per query */
    seen[p.Id] = true
    if !self.isInvariantNode(p) {
        return false
    }

    /* all the children must be invariant as well */
    for _, k := range p.Kids {
        if !self.isInvariant(k, seen) {
            return false
        }
    }
    return true
}

func (self *LoopContext) isInvariantNode(p *il.Node) bool {
    if p.Type == il.BCD || !p.Op.IsHoistable() {
        return false
    }

    /* nodes without symbols only depend on their children */
    sym := p.Sym
    if sym == nil {
        return true
    }

    /* symbols some other actor may change behind our back */
    if sym.Is(il.SymVolatile | il.SymUnresolved | il.SymSuppressInvariance) {
        return false
    }

    /* elements of discontiguous arrays may move */
    if p.Op == il.OpLoadi && sym.Kind == il.SymArrayShadow && sym.Is(il.SymArraylet) {
        return false
    }

    /* and of course the symbol must not be written in the loop */
    return !self.IsWritten(sym)
}

// InvariantDefinition looks through a direct load that is not invariant by
// itself but is defined, on every reaching definition, by the same invariant
// value. It returns that value, or nil if the answer is unknown.
func (self *LoopContext) InvariantDefinition(p *il.Node) *il.Node {
    oc := self.Oracles
    if oc == nil || oc.UseDef == nil || oc.ValueNumbers == nil {
        return nil
    }

    /* only loads of private symbols qualify */
    if p.Op != il.OpLoad || !p.Sym.IsPrivate() {
        return nil
    }

    /* fetch the definitions */
    defs, ok := oc.UseDef.Definitions(p)
    if !ok || len(defs) == 0 {
        return nil
    }

    /* all of them must store the same invariant value */
    vn := -1
    for _, d := range defs {
        if !d.Op.IsStore() || d.Sym != p.Sym || d.Op.IsIndirect() {
            utils.Fatalf("definition %s does not store %s", d, p.Sym)
        }

        /* the stored value */
        rhs := d.Kids[0]
        if !self.IsInvariant(rhs) {
            return nil
        }

        /* compare the value numbers */
        if v, ok := oc.ValueNumbers.ValueNumber(rhs); !ok || (vn >= 0 && v != vn) {
            return nil
        } else {
            vn = v
        }
    }
    return defs[0].Kids[0]
}

// InvariantForm returns p itself when it is invariant, or an invariant tree
// computing the same value, or nil.
func (self *LoopContext) InvariantForm(p *il.Node) *il.Node {
    if self.IsInvariant(p) {
        return p
    } else {
        return self.InvariantDefinition(p)
    }
}
