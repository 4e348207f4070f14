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

    `github.com/eclipse-openj9/openj9-omr-sub023/internal/opts`
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithAggressiveVersioning makes the versioner consider colder loops and
// colder blocks, and accept less biased branches.
//
// The default value of this option is "false".
func WithAggressiveVersioning(v bool) Option {
    return func(o *opts.Options) { o.Aggressive = v }
}

// WithDisabledChecks turns off the versioning of the given check categories.
// Checks of these categories are kept in the fast loops.
func WithDisabledChecks(kinds ...CheckKind) Option {
    for _, k := range kinds {
        if k < NullCheck || k > ProfiledValue {
            panic(fmt.Sprintf("loopver: invalid check kind: %d", int(k)))
        }
    }

    /* build the mask */
    return func(o *opts.Options) {
        for _, k := range kinds {
            o.Disable(int(k))
        }
    }
}

// WithColdRatio sets how much colder than the hottest enclosing loop header a
// block must be for its checks to be ignored.
//
// The default value of this option is "20".
func WithColdRatio(ratio int) Option {
    if ratio <= 0 {
        panic(fmt.Sprintf("loopver: invalid cold ratio: %d", ratio))
    } else {
        return func(o *opts.Options) { o.ColdRatio = ratio }
    }
}

// WithBiasThreshold sets the percentage of executions above which a branch is
// considered to always go the same way.
//
// The default value of this option is "95".
func WithBiasThreshold(pct int) Option {
    if pct <= 50 || pct > 100 {
        panic(fmt.Sprintf("loopver: invalid bias threshold: %d", pct))
    } else {
        return func(o *opts.Options) { o.BiasPercent = pct }
    }
}

// WithMaxLoopBlocks sets the number of blocks above which a loop is never
// duplicated.
//
// The default value of this option is "256".
func WithMaxLoopBlocks(n int) Option {
    if n <= 0 {
        panic(fmt.Sprintf("loopver: invalid loop size limit: %d", n))
    } else {
        return func(o *opts.Options) { o.MaxLoopBlocks = n }
    }
}

// WithMaxNesting sets the nesting depth above which loops are not versioned.
//
// The default value of this option is "6".
func WithMaxNesting(depth int) Option {
    if depth < 0 {
        panic(fmt.Sprintf("loopver: invalid nesting depth: %d", depth))
    } else {
        return func(o *opts.Options) { o.MaxNesting = depth }
    }
}

// WithGrowthFactor sets the size the method may grow to, as a percentage of
// its size before the pass.
//
// Set this option to "0" disables this limit.
//
// The default value of this option depends on the instruction cache of the
// host, and is between "150" and "400".
func WithGrowthFactor(pct int) Option {
    if pct != 0 && pct < 100 {
        panic(fmt.Sprintf("loopver: invalid growth factor: %d", pct))
    } else {
        return func(o *opts.Options) { o.GrowthPercent = pct }
    }
}

// WithLoopTransfer controls whether the virtual guards left in a fast loop
// jump straight into the slow loop when they fail.
//
// The default value of this option is "true".
func WithLoopTransfer(v bool) Option {
    return func(o *opts.Options) { o.LoopTransfer = v }
}

// WithParanoid verifies the method after each versioned loop. A failed
// verification makes Version return an InternalError.
//
// The default value of this option is "false".
func WithParanoid(v bool) Option {
    return func(o *opts.Options) { o.Paranoid = v }
}

// WithTrace writes the decisions of the versioner to the default tlog logger.
//
// This value can also be configured with the `LOOPVER_TRACE` environment
// variable.
func WithTrace(v bool) Option {
    return func(o *opts.Options) { o.Trace = v }
}

// WithIgnoreHeapificationStores makes stores that only move a local onto the
// heap not count as writes when deciding invariance.
//
// The default value of this option is "false".
func WithIgnoreHeapificationStores(v bool) Option {
    return func(o *opts.Options) { o.IgnoreHeapStores = v }
}

// SetMaxLoopBlocks sets the default loop size limit for all methods from now
// on.
//
// This value can also be configured with the `LOOPVER_MAX_LOOP_BLOCKS`
// environment variable.
//
// Returns the old opts.MaxLoopBlocks value.
func SetMaxLoopBlocks(n int) int {
    n, opts.MaxLoopBlocks = opts.MaxLoopBlocks, n
    return n
}

// SetMaxNesting sets the default nesting depth limit for all methods from now
// on.
//
// This value can also be configured with the `LOOPVER_MAX_NESTING`
// environment variable.
//
// Returns the old opts.MaxNesting value.
func SetMaxNesting(depth int) int {
    depth, opts.MaxNesting = opts.MaxNesting, depth
    return depth
}
