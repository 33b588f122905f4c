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

import "testing"

func TestSortServers(t *testing.T) {
	servers := []ServerDescriptor{
		{Name: "b", Source: SourceGlobal},
		{Name: "x", Source: SourceProject},
		{Name: "a", Source: SourceGlobal},
		{Name: "stray", Source: SourceGlobal},
		{Name: "y", Source: SourceProject},
	}
	order := map[Source][]string{
		SourceGlobal:  {"a", "b"},
		SourceProject: {"y", "x"},
	}

	got := SortServers(servers, order)
	want := []string{"project/y", "project/x", "global/a", "global/b", "global/stray"}
	if len(got) != len(want) {
		t.Fatalf("got %d servers, want %d", len(got), len(want))
	}
	for i, d := range got {
		if key := string(d.Source) + "/" + d.Name; key != want[i] {
			t.Errorf("position %d = %s, want %s", i, key, want[i])
		}
	}

	if servers[0].Name != "b" {
		t.Error("input slice was reordered")
	}
}

func TestSortServers_SameNameBothSources(t *testing.T) {
	servers := []ServerDescriptor{
		{Name: "shared", Source: SourceGlobal},
		{Name: "shared", Source: SourceProject},
	}
	got := SortServers(servers, map[Source][]string{
		SourceGlobal:  {"shared"},
		SourceProject: {"shared"},
	})
	if got[0].Source != SourceProject {
		t.Errorf("first entry source = %s, want project", got[0].Source)
	}
}
