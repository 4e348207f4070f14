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

const (
    ObjectClass = "Object"
)

type ClassTable struct {
    super map[string]string
    elems map[string]string
}

func NewClassTable() *ClassTable {
    return &ClassTable {
        super: make(map[string]string),
        elems: make(map[string]string),
    }
}

// Define declares a class and its direct superclass. An empty superclass
// means the root class.
func (self *ClassTable) Define(name string, super string) {
    if super == "" {
        super = ObjectClass
    }
    self.super[name] = super
}

// DefineArray declares an array class holding elements of class elem.
func (self *ClassTable) DefineArray(name string, elem string) {
    self.super[name] = ObjectClass
    self.elems[name] = elem
}

func (self *ClassTable) IsArray(name string) bool {
    _, ok := self.elems[name]
    return ok
}

// Component returns the element class of an array class.
func (self *ClassTable) Component(name string) string {
    return self.elems[name]
}

// IsKnown reports whether the class has been declared.
func (self *ClassTable) IsKnown(name string) bool {
    _, ok := self.super[name]
    return ok || name == ObjectClass
}

// IsSubclass reports whether sub is sup or inherits from it. Arrays are
// covariant in their element class.
func (self *ClassTable) IsSubclass(sub string, sup string) bool {
    if sub == "" || sup == "" {
        return false
    }

    /* everything is an object */
    if sup == ObjectClass || sub == sup {
        return true
    }

    /* array covariance */
    if self.IsArray(sub) && self.IsArray(sup) {
        return self.IsSubclass(self.elems[sub], self.elems[sup])
    }

    /* walk up the hierarchy */
    for p, ok := self.super[sub]; ok; p, ok = self.super[p] {
        if p == sup {
            return true
        }
    }
    return false
}
