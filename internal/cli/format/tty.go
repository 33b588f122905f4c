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

package format

import (
	"os"

	"golang.org/x/term"
)

// IsTTY determines if output should use terminal formatting.
// Returns false if stdout is piped, NO_COLOR is set, or TERM is "dumb" or empty.
func IsTTY() bool {
	return isTTY(os.Getenv, func() bool { return term.IsTerminal(int(os.Stdout.Fd())) })
}

func isTTY(getenv func(string) string, terminal func() bool) bool {
	if getenv("NO_COLOR") != "" {
		return false
	}
	termEnv := getenv("TERM")
	if termEnv == "dumb" || termEnv == "" {
		return false
	}
	return terminal()
}
