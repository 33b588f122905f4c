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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a file change is acted on.
const DefaultDebounce = 500 * time.Millisecond

type serverKey struct {
	name   string
	source Source
}

func (k serverKey) String() string {
	return string(k.source) + "/" + k.name
}

// Watcher monitors the configuration files and per-server watch paths and
// reports debounced changes through callbacks.
type Watcher struct {
	// fsWatcher is the underlying filesystem watcher
	fsWatcher *fsnotify.Watcher

	debouncer  *Debouncer
	suppressor *Suppressor
	logger     *slog.Logger

	onConfigChange func(source Source)
	onServerChange func(name string, source Source)

	// configFiles maps a cleaned config file path to its source
	configFiles map[string]Source

	// servers maps a server to the absolute patterns it watches
	servers map[serverKey][]string

	// serverDirs records the directories added for each server
	serverDirs map[serverKey][]string

	// dirRefs counts the reasons each directory is watched
	dirRefs map[string]int

	// mu protects configFiles, servers and dirRefs
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// Debounce is the quiet period before a change is reported (defaults to 500ms)
	Debounce time.Duration

	// Suppressor silences config file events caused by the hub's own writes
	Suppressor *Suppressor

	// OnConfigChange is called after a configuration file changes
	OnConfigChange func(source Source)

	// OnServerChange is called after one of a server's watch paths changes
	OnServerChange func(name string, source Source)
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	suppressor := cfg.Suppressor
	if suppressor == nil {
		suppressor = NewSuppressor(0)
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		fsWatcher:      fsWatcher,
		debouncer:      NewDebouncer(debounce),
		suppressor:     suppressor,
		logger:         logger,
		onConfigChange: cfg.OnConfigChange,
		onServerChange: cfg.OnServerChange,
		configFiles:    make(map[string]Source),
		servers:        make(map[serverKey][]string),
		serverDirs:     make(map[serverKey][]string),
		dirRefs:        make(map[string]int),
		ctx:            ctx,
		cancel:         cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// WatchConfig watches the configuration file for source. The parent
// directory is watched so editors that replace the file are seen. When the
// directory does not exist yet, the nearest existing ancestor is watched
// until it appears.
func (w *Watcher) WatchConfig(source Source, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.configFiles[path] = source
	return w.watchDirLocked(filepath.Dir(path))
}

// WatchServer watches the given paths or glob patterns for a server,
// replacing any earlier set.
func (w *Watcher) WatchServer(name string, source Source, patterns []string) error {
	key := serverKey{name: name, source: source}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.unwatchServerLocked(key)
	if len(patterns) == 0 {
		return nil
	}

	var abs, dirs []string
	var errs []error
	for _, p := range patterns {
		ap, err := filepath.Abs(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to resolve path %s: %w", p, err))
			continue
		}
		ap = filepath.ToSlash(ap)
		if !doublestar.ValidatePattern(ap) {
			errs = append(errs, fmt.Errorf("invalid watch pattern %q", p))
			continue
		}
		abs = append(abs, ap)
		for _, dir := range patternDirs(ap) {
			if err := w.watchDirLocked(dir); err != nil {
				errs = append(errs, err)
				continue
			}
			dirs = append(dirs, dir)
		}
		w.logger.Debug("watching path for mcp server",
			"server", name,
			"source", string(source),
			"pattern", ap,
		)
	}
	w.servers[key] = abs
	w.serverDirs[key] = dirs
	return errors.Join(errs...)
}

// UnwatchServer drops the watches of one server.
func (w *Watcher) UnwatchServer(name string, source Source) {
	key := serverKey{name: name, source: source}

	w.mu.Lock()
	w.unwatchServerLocked(key)
	w.mu.Unlock()

	w.debouncer.Cancel("server:" + key.String())
}

func (w *Watcher) unwatchServerLocked(key serverKey) {
	if _, ok := w.servers[key]; !ok {
		return
	}
	for _, dir := range w.serverDirs[key] {
		w.unwatchDirLocked(dir)
	}
	delete(w.servers, key)
	delete(w.serverDirs, key)
}

// Close stops the watcher and waits for running callbacks.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	w.debouncer.Stop()
	return err
}

// patternDirs returns the directories to watch for a pattern: the static
// base of the pattern plus the directories of every current match.
func patternDirs(pattern string) []string {
	base, _ := doublestar.SplitPattern(pattern)
	dirs := []string{filepath.FromSlash(base)}
	if !strings.ContainsAny(pattern, "*?[{") {
		return dirs
	}
	matches, err := doublestar.FilepathGlob(filepath.FromSlash(pattern), doublestar.WithFilesOnly())
	if err != nil {
		return dirs
	}
	seen := map[string]bool{dirs[0]: true}
	for _, m := range matches {
		d := filepath.Dir(m)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func (w *Watcher) watchDirLocked(dir string) error {
	dir = filepath.Clean(dir)
	target := dir
	for {
		if _, err := os.Stat(target); err == nil {
			break
		}
		parent := filepath.Dir(target)
		if parent == target {
			return fmt.Errorf("no existing ancestor for %s", dir)
		}
		target = parent
	}

	w.dirRefs[target]++
	if w.dirRefs[target] > 1 {
		return nil
	}
	if err := w.fsWatcher.Add(target); err != nil {
		w.dirRefs[target]--
		if w.dirRefs[target] == 0 {
			delete(w.dirRefs, target)
		}
		return fmt.Errorf("failed to watch path %s: %w", target, err)
	}
	return nil
}

func (w *Watcher) unwatchDirLocked(dir string) {
	dir = filepath.Clean(dir)
	for target := dir; ; {
		if n, ok := w.dirRefs[target]; ok {
			if n <= 1 {
				delete(w.dirRefs, target)
				_ = w.fsWatcher.Remove(target)
			} else {
				w.dirRefs[target] = n - 1
			}
			return
		}
		parent := filepath.Dir(target)
		if parent == target {
			return
		}
		target = parent
	}
}

// processEvents processes filesystem events until the watcher is closed.
func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	w.mu.Lock()
	w.promoteCreatedDirLocked(path, event)

	source, isConfig := w.configFiles[path]
	var changed []serverKey
	slashed := filepath.ToSlash(path)
	for key, patterns := range w.servers {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, slashed); ok {
				changed = append(changed, key)
				break
			}
		}
	}
	w.mu.Unlock()

	if isConfig {
		if w.suppressor.Active() {
			recordWatcherEvent("config", "suppressed")
			w.logger.Debug("ignoring config change from own write", "source", string(source), "path", path)
		} else {
			recordWatcherEvent("config", "scheduled")
			w.logger.Debug("config file changed", "source", string(source), "path", path, "op", event.Op.String())
			w.debouncer.Trigger("config:"+string(source), func() {
				if w.ctx.Err() != nil || w.onConfigChange == nil {
					return
				}
				w.onConfigChange(source)
			})
		}
	}

	for _, key := range changed {
		recordWatcherEvent("server", "scheduled")
		w.logger.Info("mcp server watched file changed",
			"server", key.name,
			"source", string(key.source),
			"file", path,
		)
		w.debouncer.Trigger("server:"+key.String(), func() {
			if w.ctx.Err() != nil || w.onServerChange == nil {
				return
			}
			w.onServerChange(key.name, key.source)
		})
	}
}

// promoteCreatedDirLocked moves a watch down to a newly created directory
// that lies on the way to a config file or watch pattern.
func (w *Watcher) promoteCreatedDirLocked(path string, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	wanted := false
	for file := range w.configFiles {
		if isWithin(path, filepath.Dir(file)) {
			wanted = true
			break
		}
	}
	if !wanted {
		for _, patterns := range w.servers {
			for _, p := range patterns {
				base, _ := doublestar.SplitPattern(p)
				if isWithin(path, filepath.FromSlash(base)) {
					wanted = true
				}
			}
		}
	}
	if !wanted {
		return
	}
	if _, ok := w.dirRefs[path]; ok {
		return
	}
	if err := w.fsWatcher.Add(path); err != nil {
		w.logger.Warn("failed to watch created directory", "path", path, "error", err)
		return
	}
	w.dirRefs[path] = 1

	// The config file may have been created together with its directory.
	for file := range w.configFiles {
		if filepath.Dir(file) != path {
			continue
		}
		if _, err := os.Stat(file); err == nil {
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.handleEvent(fsnotify.Event{Name: file, Op: fsnotify.Create})
			}()
		}
	}
}

// isWithin reports whether dir equals target or is one of its ancestors.
func isWithin(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}
