// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"math"
	"slices"
)

// SortServers orders servers for display: project servers first, each
// group in the order its file declares them. Servers missing from the
// declared order go last, keeping their relative order.
func SortServers(servers []ServerDescriptor, order map[Source][]string) []ServerDescriptor {
	index := make(map[Source]map[string]int, len(order))
	for source, names := range order {
		m := make(map[string]int, len(names))
		for i, n := range names {
			if _, dup := m[n]; !dup {
				m[n] = i
			}
		}
		index[source] = m
	}

	position := func(d ServerDescriptor) int {
		if i, ok := index[d.Source][d.Name]; ok {
			return i
		}
		return math.MaxInt
	}

	out := slices.Clone(servers)
	slices.SortStableFunc(out, func(a, b ServerDescriptor) int {
		if a.Source != b.Source {
			if a.Source == SourceProject {
				return -1
			}
			if b.Source == SourceProject {
				return 1
			}
		}
		pa, pb := position(a), position(b)
		switch {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		}
		return 0
	})
	return out
}
