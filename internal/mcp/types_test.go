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

func TestParseSourceRef(t *testing.T) {
	tests := []struct {
		in      string
		want    Source
		wantErr bool
	}{
		{"", "", false},
		{"auto", "", false},
		{"global", SourceGlobal, false},
		{"project", SourceProject, false},
		{"workspace", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSourceRef(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSourceRef(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSourceRef(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if tt.wantErr && ErrorCode(err) != ErrorCodeValidation {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}
