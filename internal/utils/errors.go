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

package utils

import (
    `fmt`
)

// InternalError is raised when the versioner detects a violation of one of its
// own contracts. It aborts the compilation of the current method only.
type InternalError struct {
    Pass   string
    Method string
    Reason string
}

func (self *InternalError) Error() string {
    if self.Method == "" {
        return fmt.Sprintf("internal error in %s: %s", self.Pass, self.Reason)
    } else {
        return fmt.Sprintf("internal error in %s while compiling %s: %s", self.Pass, self.Method, self.Reason)
    }
}

// BudgetError describes a structural budget that stopped a loop from being
// considered. It is never returned to the embedder, it only travels through traces.
type BudgetError struct {
    Loop   int
    What   string
    Limit  int
    Actual int
}

func (self BudgetError) Error() string {
    return fmt.Sprintf("loop %d: %s budget exceeded (%d > %d)", self.Loop, self.What, self.Actual, self.Limit)
}

// Fatalf raises an InternalError. Callers at the method boundary recover it
// with Recover.
func Fatalf(format string, args ...interface{}) {
    panic(&InternalError {
        Pass   : "loop versioner",
        Reason : fmt.Sprintf(format, args...),
    })
}

// Assert raises an InternalError if cond does not hold.
func Assert(cond bool, format string, args ...interface{}) {
    if !cond {
        Fatalf(format, args...)
    }
}

// Recover converts a panicking InternalError into a returned error, and
// re-panics for anything else.
func Recover(method string, err *error) {
    if v := recover(); v != nil {
        if ie, ok := v.(*InternalError); !ok {
            panic(v)
        } else {
            ie.Method = method
            *err = ie
        }
    }
}

func EBudget(loop int, what string, limit int, actual int) BudgetError {
    return BudgetError {
        Loop   : loop,
        What   : what,
        Limit  : limit,
        Actual : actual,
    }
}
