// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package trie builds matchers that identify a name from a fixed set by
// inspecting it one character at a time. Replay uses them to route a
// recorded call name to its handler.
package trie

import (
	"sort"

	"github.com/pkg/errors"
)

// Node is a state of the matcher, reached after Depth characters of the
// name were consumed.
//
// When a single candidate survives the node is a chain: the rest of the name
// must equal Suffix. Otherwise the node branches on the next character, and
// Name is the candidate that ends exactly here.
type Node struct {
	Depth  int
	Single bool
	Suffix string
	Name   int // index of the matched name, or -1
	Cases  []Case
}

// Case is a branch of a Node on one character.
type Case struct {
	Char byte
	Next *Node
}

// Build returns the matcher of names. The names must be distinct.
func Build(names []string) (*Node, error) {
	seen := make(map[string]bool, len(names))
	all := make([]int, len(names))
	for i, n := range names {
		if seen[n] {
			return nil, errors.Errorf("Duplicate name %q", n)
		}
		seen[n] = true
		all[i] = i
	}
	return build(names, all, 0), nil
}

func build(names []string, cands []int, depth int) *Node {
	if len(cands) == 1 {
		i := cands[0]
		return &Node{Depth: depth, Single: true, Suffix: names[i][depth:], Name: i}
	}
	n := &Node{Depth: depth, Name: -1}
	byChar := map[byte][]int{}
	for _, i := range cands {
		if len(names[i]) == depth {
			n.Name = i
			continue
		}
		c := names[i][depth]
		byChar[c] = append(byChar[c], i)
	}
	chars := make([]int, 0, len(byChar))
	for c := range byChar {
		chars = append(chars, int(c))
	}
	sort.Ints(chars)
	for _, c := range chars {
		n.Cases = append(n.Cases, Case{Char: byte(c), Next: build(names, byChar[byte(c)], depth+1)})
	}
	return n
}

// Match returns the index of name in the set the matcher was built from.
func (n *Node) Match(name string) (int, bool) {
	for n != nil {
		if n.Single {
			if name[n.Depth:] == n.Suffix {
				return n.Name, true
			}
			return -1, false
		}
		if len(name) == n.Depth {
			return n.Name, n.Name >= 0
		}
		c := name[n.Depth]
		i := sort.Search(len(n.Cases), func(i int) bool { return n.Cases[i].Char >= c })
		if i == len(n.Cases) || n.Cases[i].Char != c {
			return -1, false
		}
		n = n.Cases[i].Next
	}
	return -1, false
}

// Count returns the number of nodes in the matcher.
func (n *Node) Count() int {
	count := 1
	for _, c := range n.Cases {
		count += c.Next.Count()
	}
	return count
}
