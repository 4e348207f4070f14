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
    `github.com/eclipse-openj9/openj9-omr-sub023/internal/il`
)

// StaticUseDef is a use-def table filled ahead of time, keyed by load id.
type StaticUseDef map[int][]*il.Node

func (self StaticUseDef) Definitions(load *il.Node) ([]*il.Node, bool) {
    defs, ok := self[load.Id]
    return defs, ok
}

// Define records the stores reaching the load.
func (self StaticUseDef) Define(load *il.Node, stores ...*il.Node) {
    self[load.Id] = append(self[load.Id], stores...)
}

// StaticValueNumbers is a value number table filled ahead of time.
type StaticValueNumbers map[int]int

func (self StaticValueNumbers) ValueNumber(p *il.Node) (int, bool) {
    vn, ok := self[p.Id]
    return vn, ok
}

// Assign gives all the nodes the same value number.
func (self StaticValueNumbers) Assign(vn int, nodes ...*il.Node) {
    for _, p := range nodes {
        self[p.Id] = vn
    }
}

type _BranchCount struct {
    taken int64
    total int64
}

type _ValueCount struct {
    value int64
    count int64
    total int64
}

// StaticProfile holds recorded branch, value and trip counts.
type StaticProfile struct {
    branches   map[int]_BranchCount
    values     map[int]_ValueCount
    iterations map[int]int64
}

func NewStaticProfile() *StaticProfile {
    return &StaticProfile {
        branches   : make(map[int]_BranchCount),
        values     : make(map[int]_ValueCount),
        iterations : make(map[int]int64),
    }
}

func (self *StaticProfile) SetBranch(br *il.Node, taken int64, total int64) {
    self.branches[br.Id] = _BranchCount{taken, total}
}

func (self *StaticProfile) SetValue(p *il.Node, value int64, count int64, total int64) {
    self.values[p.Id] = _ValueCount{value, count, total}
}

func (self *StaticProfile) SetIterations(header *il.Block, n int64) {
    self.iterations[header.Id] = n
}

func (self *StaticProfile) BranchCounts(br *il.Node) (int64, int64, bool) {
    v, ok := self.branches[br.Id]
    return v.taken, v.total, ok
}

func (self *StaticProfile) ValueProfile(p *il.Node) (int64, int64, int64, bool) {
    v, ok := self.values[p.Id]
    return v.value, v.count, v.total, ok
}

func (self *StaticProfile) LoopIterations(header *il.Block) (int64, bool) {
    n, ok := self.iterations[header.Id]
    return n, ok
}
