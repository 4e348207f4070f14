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
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/opts`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/oracle`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/utils`
    `github.com/nikandfor/tlog`
    `github.com/oleiade/lane`
)

// Outcome is what happened to one loop.
type Outcome uint8

const (
    NoInvariantBlock Outcome = iota
    BudgetExceeded
    NotCanonical
    NothingToVersion
    Vetoed
    Versioned
)

var _OutcomeNames = [...]string {
    NoInvariantBlock : "no_invariant_block",
    BudgetExceeded   : "budget_exceeded",
    NotCanonical     : "not_canonical",
    NothingToVersion : "nothing_to_version",
    Vetoed           : "vetoed",
    Versioned        : "versioned",
}

func (self Outcome) String() string {
    if int(self) < len(_OutcomeNames) {
        return _OutcomeNames[self]
    } else {
        return fmt.Sprintf("Outcome(%d)", self)
    }
}

// Requests are the passes that should run again over the method after it
// has been versioned.
type Requests struct {
    DeadTrees           bool
    Simplify            bool
    Specializer         bool
    AndSimplify         bool
    InvalidateAliasSets bool
}

// Result sums up a run over a whole method.
type Result struct {
    Transformed    bool
    LoopsVersioned int
    Removed        map[string]int
    Outcomes       map[int]Outcome
    Requests       Requests
}

type _Driver struct {
    m     *il.Method
    opts  *opts.Options
    orcs  *oracle.Set
    res   *Result
    pairs []VirtualGuardPair
}

// Run versions every eligible loop of the method, outermost loops first.
func Run(m *il.Method, o *opts.Options, oc *oracle.Set) Result {
    res := Result {
        Removed  : make(map[string]int),
        Outcomes : make(map[int]Outcome),
    }

    /* nothing to do */
    if m.Root == nil || m.Irreducible {
        return res
    }

    /* the growth budget is relative to the method before the pass */
    if m.Baseline == 0 {
        m.Baseline = m.NodeCount()
    }

    /* process the loops */
    d := &_Driver{m: m, opts: o, orcs: oc, res: &res}
    d.run()

    /* surviving virtual guards branch straight into the slow loops */
    if o.LoopTransfer && len(d.pairs) != 0 {
        d.transfer()
    }
    return res
}

func (self *_Driver) run() {
    q := lane.NewQueue()
    for _, lp := range self.m.Root.InnerLoops() {
        q.Enqueue(lp)
    }

    /* visit the loop nest breadth-first */
    for !q.Empty() {
        lp := q.Dequeue().(*il.Region)

        /* cold copies and loops that already have one are left alone */
        if lp.Versioned != nil || lp.Header().Cold {
            continue
        }

        /* try this loop, then its children */
        self.res.Outcomes[lp.Num] = self.visit(lp)
        for _, c := range lp.InnerLoops() {
            q.Enqueue(c)
        }
    }
}

func (self *_Driver) visit(lp *il.Region) (ret Outcome) {
    countLoop()

    /* the pre-header must be a plain block right in front of the loop */
    if ret = self.checkShape(lp); ret != Versioned {
        return
    }

    /* the loop must be worth it and within the budgets */
    if err := self.checkBudgets(lp); err != nil {
        countBudget()
        if self.opts.Trace {
            tlog.Printw("loop skipped", "method", self.m.Name, "err", err)
        }
        return BudgetExceeded
    }

    /* a fresh context for this loop */
    ctx := newLoopContext(self.m, lp, self.opts, self.orcs)
    if self.opts.Trace {
        ctx.Span = tlog.Start("loop_versioner", "method", self.m.Name, "loop", lp.Num)
        defer func() { ctx.Span.Finish("outcome", ret) }()
    }

    /* canonical form */
    if !ctx.ClassifyIVs() {
        ctx.trace("not canonical", "reason", "no single latch")
        return NotCanonical
    }

    /* find the candidates */
    if ctx.Detect() == 0 {
        return NothingToVersion
    }

    /* decide which of them can go */
    rems := ctx.BuildRemovals()
    rems = Active(rems, ctx.solveGuardRemoval(rems))
    if len(rems) == 0 {
        return NothingToVersion
    }

    /* ask for permission */
    if !self.orcs.Permit(fmt.Sprintf("versioning loop %d", lp.Num)) {
        countVetoed()
        return Vetoed
    }

    /* collect the preps */
    var roots []*Prep
    for _, r := range rems {
        for _, p := range r.Preps {
            if !hasPrep(roots, p) {
                roots = append(roots, p)
            }
        }
    }

    /* split the loop, then speed up the fast copy */
    order := ctx.Preps.Schedule(roots)
    out := ctx.Clone(order)
    done := ctx.Improve(order, rems)
    self.commit(ctx, out, order, done)

    /* folded branches changed the CFG of the fast loop */
    if len(done) != 0 {
        self.m.RecomputeEdges()
        self.m.Root.RecomputeAllEdges()
    }

    /* the method must still be well formed */
    if self.opts.Paranoid {
        if err := il.Verify(self.m); err != nil {
            utils.Fatalf("verification failed after versioning loop %d: %v", lp.Num, err)
        }
    }

    /* dump the state when tracing */
    if self.opts.Trace {
        ctx.trace("versioned", "tests", len(out.Tests), "removed", len(done), "state", ctx.Dump())
    }
    return Versioned
}

func (self *_Driver) checkShape(lp *il.Region) Outcome {
    pre := lp.Invariant
    par := lp.Parent()

    /* a loop without a pre-header cannot be versioned */
    if pre == nil || par == nil {
        return NoInvariantBlock
    }

    /* it must be a block of the parent region */
    if sn := par.Subnode(pre.Id); sn == nil {
        return NoInvariantBlock
    } else if _, ok := sn.Structure.(*il.BlockStructure); !ok {
        return NoInvariantBlock
    }

    /* which ends with at most a goto */
    if br := pre.Branch(); br != nil && br.Op != il.OpGoto {
        return NotCanonical
    }

    /* new blocks are appended to the layout */
    if n := len(self.m.Blocks); n == 0 || self.m.Blocks[n - 1].FallsThrough() {
        return NotCanonical
    }
    return Versioned
}

func (self *_Driver) checkBudgets(lp *il.Region) error {
    bbs := lp.Blocks()

    /* too big */
    if len(bbs) > self.opts.MaxLoopBlocks {
        return utils.EBudget(lp.Num, "blocks", self.opts.MaxLoopBlocks, len(bbs))
    }

    /* too deep */
    if d := lp.Depth(); d > self.opts.MaxNesting {
        return utils.EBudget(lp.Num, "nesting", self.opts.MaxNesting, d)
    }

    /* too cold */
    if !self.opts.IsHotEnough(lp.Header().Freq) {
        return utils.EBudget(lp.Num, "frequency", int(self.opts.MinFrequency), int(lp.Header().Freq))
    }

    /* the copy must fit in the growth budget */
    nb := 0
    for _, bb := range bbs {
        for _, t := range bb.Trees {
            t.Walk(func(*il.Node) { nb++ })
        }
    }

    /* check the method size after cloning */
    if now := self.m.NodeCount() + nb; !self.opts.WithinGrowth(self.m.Baseline, now) {
        return utils.EBudget(lp.Num, "growth", self.m.Baseline * self.opts.GrowthPercent / 100, now)
    } else {
        return nil
    }
}

func (self *_Driver) commit(ctx *LoopContext, out *VersionedLoop, order []*Prep, done []*Removal) {
    req := &self.res.Requests
    self.res.Transformed = true
    self.res.LoopsVersioned++
    self.pairs = append(self.pairs, out.Pairs...)

    /* post-dominators are stale from now on */
    if self.orcs != nil && self.orcs.PostDominators != nil {
        oc := *self.orcs
        oc.PostDominators = nil
        self.orcs = &oc
    }

    /* count the tests */
    countVersioned()
    countTests(len(out.Tests))
    req.DeadTrees = true

    /* new temporaries */
    for _, p := range order {
        if p.Kind == PrepPrivatize {
            req.InvalidateAliasSets = true
        }
    }

    /* special IVs are masked, the masks may simplify now */
    for _, iv := range ctx.IVs {
        if iv.Kind == IVSpecial {
            req.AndSimplify = true
        }
    }

    /* what went away */
    for _, r := range done {
        self.res.Removed[r.Check.Kind().String()]++
        switch r.Check.Kind() {
            case Conditional   : req.Simplify = true
            case ProfiledValue : req.Specializer = true
        }

        /* removed guards change what the alias sets may assume */
        if r.Needs & (NeedHCR | NeedOSR) != 0 {
            req.InvalidateAliasSets = true
        }
    }
}

// transfer redirects the virtual guards that are still in the fast loops,
// so that they enter the cold copy instead of the regular slow path.
func (self *_Driver) transfer() {
    nb := 0
    for _, vp := range self.pairs {
        if vp.Block.Branch() != vp.Guard || !vp.Guard.IsGuard() {
            continue
        }

        /* ask for permission */
        if !self.orcs.Permit(fmt.Sprintf("loop transfer for %s in %s", vp.Guard.Guard, vp.Block)) {
            continue
        }

        /* retarget the guard */
        vp.Guard.Target = vp.Cold
        nb++
    }

    /* the loops are no longer natural, rebuild everything */
    if nb != 0 {
        self.m.RecomputeEdges()
        il.BuildStructure(self.m)
        self.res.Requests.InvalidateAliasSets = true
    }
}
