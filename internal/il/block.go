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

package il

import (
    `fmt`
    `strings`
)

type Block struct {
    Id    int
    Trees []*Node
    Succ  []*Block
    Pred  []*Block
    Freq  int32
    Cold  bool
}

func (self *Block) String() string {
    return fmt.Sprintf("bb_%d", self.Id)
}

func (self *Block) Append(trees ...*Node) {
    self.Trees = append(self.Trees, trees...)
}

// Last returns the last tree of the block, or nil for an empty block.
func (self *Block) Last() *Node {
    if n := len(self.Trees); n == 0 {
        return nil
    } else {
        return self.Trees[n - 1]
    }
}

// Branch returns the terminating branch of the block if there is one.
func (self *Block) Branch() *Node {
    if p := self.Last(); p != nil && p.Op.IsBranch() {
        return p
    } else {
        return nil
    }
}

// FallsThrough reports whether control can leave the block by falling into
// its layout successor.
func (self *Block) FallsThrough() bool {
    p := self.Last()
    return p == nil || (p.Op != OpGoto && !p.Op.IsExit())
}

// Replace substitutes the tree at index i with zero or more trees.
func (self *Block) Replace(i int, trees ...*Node) {
    rem := append([]*Node(nil), self.Trees[i + 1:]...)
    self.Trees = append(append(self.Trees[:i], trees...), rem...)
}

// IndexOf returns the position of the tree rooted at p, or -1.
func (self *Block) IndexOf(p *Node) int {
    for i, t := range self.Trees {
        if t == p {
            return i
        }
    }
    return -1
}

func (self *Block) HasSucc(bb *Block) bool {
    return blockIndex(self.Succ, bb) >= 0
}

func (self *Block) Dump() string {
    var buf []string
    var pred []string
    var succ []string

    /* edges */
    for _, p := range self.Pred { pred = append(pred, p.String()) }
    for _, p := range self.Succ { succ = append(succ, p.String()) }

    /* header */
    buf = append(buf, fmt.Sprintf(
        "%s: (freq %d%s) pred = {%s}, succ = {%s}",
        self,
        self.Freq,
        map[bool]string{true: ", cold"}[self.Cold],
        strings.Join(pred, ", "),
        strings.Join(succ, ", "),
    ))

    /* trees */
    for _, t := range self.Trees {
        buf = append(buf, "    " + t.String())
    }

    /* join them together */
    return strings.Join(buf, "\n")
}

func blockIndex(list []*Block, bb *Block) int {
    for i, p := range list {
        if p == bb {
            return i
        }
    }
    return -1
}

func blockreverse(s []*Block) {
    for i, j := 0, len(s) - 1; i < j; i, j = i + 1, j - 1 {
        s[i], s[j] = s[j], s[i]
    }
}
