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
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name secrets are stored under.
const KeyringService = "mcphub"

var placeholderPattern = regexp.MustCompile(`\$\{(env|keyring):([^}]+)\}`)

// VariableResolver expands ${env:NAME} and ${keyring:NAME} placeholders in
// the string fields of a ServerConfig.
type VariableResolver struct {
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// LookupSecret defaults to the OS keyring under KeyringService.
	LookupSecret func(string) (string, error)
}

// NewVariableResolver returns a resolver backed by the process environment
// and the OS keyring.
func NewVariableResolver() *VariableResolver {
	return &VariableResolver{
		LookupEnv: os.LookupEnv,
		LookupSecret: func(name string) (string, error) {
			return keyring.Get(KeyringService, name)
		},
	}
}

// Expand rewrites placeholders in command, args, cwd, env, url and headers.
// Unset environment variables expand to the empty string. A missing keyring
// secret is an error.
func (r *VariableResolver) Expand(cfg *ServerConfig) error {
	var err error
	expand := func(s string) string {
		if err != nil {
			return s
		}
		var out string
		out, err = r.expandString(s)
		return out
	}

	cfg.Command = expand(cfg.Command)
	cfg.Cwd = expand(cfg.Cwd)
	cfg.URL = expand(cfg.URL)
	for i, a := range cfg.Args {
		cfg.Args[i] = expand(a)
	}
	for k, v := range cfg.Env {
		cfg.Env[k] = expand(v)
	}
	for k, v := range cfg.Headers {
		cfg.Headers[k] = expand(v)
	}
	return err
}

func (r *VariableResolver) expandString(s string) (string, error) {
	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholderPattern.FindStringSubmatch(m)
		kind, name := parts[1], parts[2]
		switch kind {
		case "env":
			lookup := r.LookupEnv
			if lookup == nil {
				lookup = os.LookupEnv
			}
			v, _ := lookup(name)
			return v
		default:
			if r.LookupSecret == nil {
				return m
			}
			v, err := r.LookupSecret(name)
			if err != nil {
				if firstErr == nil {
					if errors.Is(err, keyring.ErrNotFound) {
						firstErr = fmt.Errorf("keyring secret %q not found in service %q", name, KeyringService)
					} else {
						firstErr = fmt.Errorf("read keyring secret %q: %w", name, err)
					}
				}
				return m
			}
			return v
		}
	})
	return out, firstErr
}

// SecretReferences returns the keyring names referenced by ${keyring:NAME}
// placeholders in data, sorted and without duplicates.
func SecretReferences(data []byte) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllSubmatch(data, -1) {
		if string(m[1]) != "keyring" {
			continue
		}
		name := string(m[2])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
