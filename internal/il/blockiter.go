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
    `github.com/oleiade/lane`
)

// BlockIter walks the blocks reachable from a root in depth-first post-order.
// The successor function decides which edges exist, so callers can walk the
// CFG, a restricted part of it, or a hypothetical version of it.
type BlockIter struct {
    b    *Block
    s    *lane.Stack
    v    map[int]struct{}
    next func(*Block) []*Block
}

func stacknew(bb *Block) *lane.Stack {
    ret := lane.NewStack()
    ret.Push(bb)
    return ret
}

func NewBlockIter(root *Block, next func(*Block) []*Block) *BlockIter {
    return &BlockIter {
        s    : stacknew(root),
        v    : map[int]struct{}{ root.Id: {} },
        next : next,
    }
}

// Successors iterates over the plain CFG.
func Successors(bb *Block) []*Block {
    return bb.Succ
}

func (self *BlockIter) Next() bool {
    var tail bool
    var this *Block

    /* scan until the stack is empty */
    for !self.s.Empty() {
        tail = true
        this = self.s.Head().(*Block)

        /* add all the successors */
        for _, p := range self.next(this) {
            if _, ok := self.v[p.Id]; !ok {
                tail = false
                self.v[p.Id] = struct{}{}
                self.s.Push(p)
                break
            }
        }

        /* all the successors are visited, pop the current node */
        if tail {
            self.b = self.s.Pop().(*Block)
            return true
        }
    }

    /* clear the basic block pointer to indicate no more blocks */
    self.b = nil
    return false
}

func (self *BlockIter) Block() *Block {
    return self.b
}

// Visited reports whether bb has been reached so far.
func (self *BlockIter) Visited(bb *Block) bool {
    _, ok := self.v[bb.Id]
    return ok
}

func (self *BlockIter) ForEach(action func(bb *Block)) {
    for self.Next() {
        action(self.b)
    }
}

// Reversed drains the iterator and returns the blocks in reverse post-order.
func (self *BlockIter) Reversed() []*Block {
    var ret []*Block

    /* dump all the blocks */
    for self.Next() {
        ret = append(ret, self.b)
    }

    /* reverse the order */
    blockreverse(ret)
    return ret
}
