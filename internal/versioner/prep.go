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
    `strings`

    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/utils`
    `github.com/oleiade/lane`
    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/topo`
)

type PrepKind uint8

const (
    PrepTest PrepKind = iota
    PrepPrivatize
)

func (self PrepKind) String() string {
    switch self {
        case PrepTest      : return "test"
        case PrepPrivatize : return "privatize"
        default            : panic("unreachable")
    }
}

// Prep is one tree evaluated before the loop. A test sends execution to the
// slow loop when taken, a privatization copies a value into a temporary.
// Deps must be evaluated first.
type Prep struct {
    Id                    int
    Kind                  PrepKind
    Expr                  *Expr
    Node                  *il.Node
    Deps                  []*Prep
    RequiresPrivatization bool
    Emitted               bool
    Temp                  *il.Symbol
    Block                 *il.Block
}

func (self *Prep) String() string {
    var sb strings.Builder
    fmt.Fprintf(&sb, "prep%d %s %s", self.Id, self.Kind, self.Expr)

    /* dependencies */
    if len(self.Deps) != 0 {
        ids := make([]string, len(self.Deps))
        for i, d := range self.Deps {
            ids[i] = fmt.Sprintf("prep%d", d.Id)
        }
        fmt.Fprintf(&sb, " after {%s}", strings.Join(ids, ", "))
    }
    return sb.String()
}

// DependsOn reports whether q is one of the transitive dependencies of the prep.
func (self *Prep) DependsOn(q *Prep) bool {
    for _, d := range self.Deps {
        if d == q || d.DependsOn(q) {
            return true
        }
    }
    return false
}

type _PrepKey struct {
    kind PrepKind
    expr *Expr
}

// PrepTable owns every prep of a loop, deduplicated by kind, expression and
// dependencies.
type PrepTable struct {
    ctx  *LoopContext
    all  []*Prep
    keys map[_PrepKey][]*Prep
}

func newPrepTable(ctx *LoopContext) *PrepTable {
    return &PrepTable {
        ctx  : ctx,
        keys : make(map[_PrepKey][]*Prep),
    }
}

func (self *PrepTable) Len() int {
    return len(self.all)
}

func (self *PrepTable) All() []*Prep {
    return self.all
}

func samePreps(a []*Prep, b []*Prep) bool {
    if len(a) != len(b) {
        return false
    }
    for i, p := range a {
        if b[i] != p {
            return false
        }
    }
    return true
}

// Create returns the prep evaluating p with the given kind, along with every
// test that must pass before p can be evaluated outside of its original
// position. It fails if p, or one of its prerequisites, has no canonical form.
func (self *PrepTable) Create(kind PrepKind, p *il.Node) (*Prep, error) {
    e, err := self.ctx.Exprs.Intern(p)
    if err != nil {
        self.ctx.trace("cannot canonicalize", "class", err.(*ExprError).Class, "node", p)
        countUnrepresentable()
        return nil, err
    }

    /* find all the prerequisites */
    var deps []*Prep
    if deps, err = self.prerequisites(p, kind == PrepPrivatize); err != nil {
        return nil, err
    }

    /* reuse an existing prep when possible */
    key := _PrepKey{kind, e}
    for _, q := range self.keys[key] {
        if samePreps(q.Deps, deps) {
            return q, nil
        }
    }

    /* create a new one */
    ret := &Prep {
        Id   : len(self.all) + 1,
        Kind : kind,
        Expr : e,
        Node : p,
        Deps : deps,
    }

    /* privatizations taint everything depending on them */
    ret.RequiresPrivatization = kind == PrepPrivatize
    for _, d := range deps {
        ret.RequiresPrivatization = ret.RequiresPrivatization || d.RequiresPrivatization
    }

    /* add to the table */
    self.all = append(self.all, ret)
    self.keys[key] = append(self.keys[key], ret)
    self.ctx.trace("new prep", "prep", ret)
    return ret, nil
}

type _PrepWalker struct {
    tab  *PrepTable
    deps []*Prep
    seen map[int]bool
    err  error
}

func (self *_PrepWalker) add(kind PrepKind, p *il.Node) {
    if self.err == nil {
        if q, err := self.tab.Create(kind, p); err != nil {
            self.err = err
        } else if !hasPrep(self.deps, q) {
            self.deps = append(self.deps, q)
        }
    }
}

func hasPrep(list []*Prep, p *Prep) bool {
    for _, q := range list {
        if q == p {
            return true
        }
    }
    return false
}

// prerequisites walks the tree and collects the preps needed to evaluate it
// safely before the loop. The root of a privatization is the privatized
// value itself, so it is not privatized again.
func (self *PrepTable) prerequisites(p *il.Node, isPriv bool) ([]*Prep, error) {
    w := &_PrepWalker {
        tab  : self,
        seen : make(map[int]bool),
    }

    /* walk the children of the root, and the root itself unless privatized */
    if isPriv {
        for _, k := range p.Kids {
            w.visit(k)
        }
        w.needs(p)
    } else {
        w.visit(p)
    }
    return w.deps, w.err
}

func (self *_PrepWalker) visit(p *il.Node) {
    if self.seen[p.Id] || self.err != nil {
        return
    }

    /* each node once */
    self.seen[p.Id] = true
    if self.privatizable(p) {
        self.add(PrepPrivatize, p)
        return
    }

    /* children first */
    for _, k := range p.Kids {
        self.visit(k)
    }

    /* then the node itself */
    self.needs(p)
}

// privatizable reports loads of symbols another thread or the runtime may
// change between the test and the use.
func (self *_PrepWalker) privatizable(p *il.Node) bool {
    if !p.Op.IsLoad() {
        return false
    }

    /* private and immutable symbols are fine */
    sym := p.Sym
    return !sym.IsPrivate() && !sym.Is(il.SymFinal | il.SymSuppressPrivatization)
}

// needs adds the tests guarding the evaluation of p itself.
func (self *_PrepWalker) needs(p *il.Node) {
    tb := _Trees{self.tab.ctx.M}
    m := self.tab.ctx.M

    /* dereferences need a non-null base */
    switch p.Op {
        case il.OpLoadi: {
            base := p.Kids[0]
            if base.Op == il.OpArrayAddr {
                return
            }

            /* null test */
            self.nonNull(base)

            /* type test when the base is not statically known to hold the field */
            if p.Sym.Owner != "" && !m.Classes.IsSubclass(base.Class, p.Sym.Owner) {
                self.add(PrepTest, tb.test(il.OpCmpEq, m.InstanceOf(base, m.ClassConst(p.Sym.Owner)), m.Const(il.Int32, 0)))
            }
        }

        case il.OpArrayAddr: {
            arr, idx := p.Kids[0], p.Kids[1]
            self.nonNull(arr)

            /* the base must be an array, test it when its class is unknown */
            if !m.Classes.IsArray(arr.Class) {
                self.add(PrepTest, tb.test(il.OpCmpEq, m.IsArrayClass(m.Vft(arr)), m.Const(il.Int32, 0)))
            }

            /* and the index within its bounds */
            self.add(PrepTest, tb.test(il.OpCmpLt, idx, m.Const(idx.Type, 0)))
            self.add(PrepTest, tb.test(il.OpCmpGe, idx, m.ArrayLength(arr)))
        }

        case il.OpArrayLength, il.OpVft, il.OpIsTenured: {
            self.nonNull(p.Kids[0])
        }

        case il.OpDiv, il.OpRem: {
            if d := p.Kids[1]; d.Op != il.OpConst || d.Const == 0 {
                self.add(PrepTest, tb.test(il.OpCmpEq, d, m.Const(d.Type, 0)))
            }
        }
    }
}

func (self *_PrepWalker) nonNull(p *il.Node) {
    if !p.Is(il.FlagNonNull) && p.Op != il.OpNew {
        m := self.tab.ctx.M
        self.add(PrepTest, _Trees{m}.test(il.OpCmpEq, p, m.Null()))
    }
}

// Schedule returns the preps needed by roots that have not been emitted yet,
// dependencies first, each of them exactly once, and marks them emitted.
func (self *PrepTable) Schedule(roots []*Prep) []*Prep {
    var ret []*Prep
    st := lane.NewStack()

    /* push the roots in reverse so that they come out in order */
    for i := len(roots) - 1; i >= 0; i-- {
        st.Push(roots[i])
    }

    /* post-order walk over the dependencies */
    for !st.Empty() {
        p := st.Head().(*Prep)
        done := true

        /* already emitted, through another path */
        if p.Emitted {
            st.Pop()
            continue
        }

        /* visit the dependencies first */
        for i := len(p.Deps) - 1; i >= 0; i-- {
            if d := p.Deps[i]; !d.Emitted {
                st.Push(d)
                done = false
            }
        }

        /* all dependencies are out */
        if done {
            st.Pop()
            p.Emitted = true
            ret = append(ret, p)
        }
    }

    /* check the ordering if asked to */
    if self.ctx.Opts.Paranoid {
        self.validate(ret)
    }
    return ret
}

// validate checks that the dependency graph is acyclic and that the emission
// order respects it.
func (self *PrepTable) validate(order []*Prep) {
    g := simple.NewDirectedGraph()
    pos := make(map[int]int, len(order))

    /* build the graph */
    for i, p := range order {
        pos[p.Id] = i
        if g.Node(int64(p.Id)) == nil {
            g.AddNode(simple.Node(p.Id))
        }
        for _, d := range p.Deps {
            if g.Node(int64(d.Id)) == nil {
                g.AddNode(simple.Node(d.Id))
            }
            g.SetEdge(g.NewEdge(simple.Node(d.Id), simple.Node(p.Id)))
        }
    }

    /* must be a DAG */
    if _, err := topo.Sort(g); err != nil {
        utils.Fatalf("prep dependencies are cyclic: %v", err)
    }

    /* with every dependency emitted before its users */
    for _, p := range order {
        for _, d := range p.Deps {
            if i, ok := pos[d.Id]; !ok && !d.Emitted || ok && i >= pos[p.Id] {
                utils.Fatalf("prep%d is emitted before its dependency prep%d", p.Id, d.Id)
            }
        }
    }
}
