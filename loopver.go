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

// Package loopver duplicates hot loops into a fast copy and a slow copy. A
// chain of tests in front of the loop proves, once per entry, that the checks
// of the fast copy cannot fail, so they are dropped from it. Any failing test
// sends the execution to the slow copy, which keeps every check.
package loopver

import (
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/opts`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/oracle`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/utils`
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/versioner`
    `github.com/nikandfor/errors`
)

// Result sums up what happened to a method.
type Result = versioner.Result

// Requests lists the passes that should run again after versioning.
type Requests = versioner.Requests

// CheckKind is a category of checks the fast loops can do without.
type CheckKind = versioner.CheckKind

const (
    NullCheck       = versioner.NullCheck
    BoundCheck      = versioner.BoundCheck
    SpineCheck      = versioner.SpineCheck
    DivCheck        = versioner.DivCheck
    CheckCast       = versioner.CheckCast
    ArrayStoreCheck = versioner.ArrayStoreCheck
    WriteBarrier    = versioner.WriteBarrier
    Conditional     = versioner.Conditional
    ProfiledValue   = versioner.ProfiledValue
)

// Version runs the loop versioner over every loop of m. The oracles are
// optional, the pass stays conservative about whatever they do not answer.
//
// Loops that cannot be versioned are skipped silently. An error is only
// returned if the versioner broke one of its own contracts, in which case m
// is in an unspecified state and must be compiled again without this pass.
func Version(m *il.Method, o *oracle.Set, options ...Option) (res Result, err error) {
    op := opts.GetDefaultOptions()
    for _, fn := range options {
        fn(&op)
    }

    /* internal errors only abort this method */
    defer func() {
        if err != nil {
            err = errors.Wrap(err, "versioning %s", m.Name)
        }
    }()

    /* recover from the fatal errors */
    defer utils.Recover(m.Name, &err)
    res = versioner.Run(m, &op, o)
    return
}
