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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/tombee/mcphub/pkg/errors"
)

// ErrLockTimeout is returned when another process holds the settings lock
// for longer than lockTimeout.
var ErrLockTimeout = errors.New("configuration locked by another process")

var (
	lockTimeout       = 5 * time.Second
	lockRetryInterval = 50 * time.Millisecond
)

// SettingsPath returns the full path to the settings.yaml file.
func SettingsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.yaml"), nil
}

func settingsPathOrDefault(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	path, err := SettingsPath()
	if err != nil {
		return "", fmt.Errorf("failed to get settings path: %w", err)
	}
	return path, nil
}

// ReadSettings returns the settings stored at path (the default path when
// empty) with defaults filled in. A missing file yields Default(). Writes
// replace the file by rename, so reads take no lock.
func ReadSettings(path string) (*Config, error) {
	path, err := settingsPathOrDefault(path)
	if err != nil {
		return nil, err
	}
	return readSettingsFile(path)
}

// UpdateSettings applies fn to the stored settings and writes them back.
// The settings lock is held from read to write so concurrent updates from
// several processes do not lose each other's changes.
func UpdateSettings(path string, fn func(cfg *Config) error) error {
	path, err := settingsPathOrDefault(path)
	if err != nil {
		return err
	}

	unlock, err := lockSettings(path)
	if err != nil {
		return err
	}
	defer unlock()

	cfg, err := readSettingsFile(path)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return writeSettingsFile(path, cfg)
}

// SetMCPEnabled persists the global MCP toggle, keeping every other setting.
func SetMCPEnabled(path string, enabled bool) error {
	return UpdateSettings(path, func(cfg *Config) error {
		cfg.MCPEnabled = enabled
		return nil
	})
}

func readSettingsFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &pkgerrors.ConfigError{
			Key:    path,
			Reason: "failed to parse settings YAML",
			Cause:  err,
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// writeSettingsFile replaces path with cfg through a temp file in the same
// directory.
func writeSettingsFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// lockSettings takes an exclusive flock on path + ".lock", retrying until
// lockTimeout. The returned function releases it.
func lockSettings(path string) (func(), error) {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	fd := int(f.Fd())

	_, err = backoff.Retry(context.Background(), func() (struct{}, error) {
		err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, syscall.EWOULDBLOCK):
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(lockRetryInterval)),
		backoff.WithMaxElapsedTime(lockTimeout),
	)
	if err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("failed to lock settings: %w", err)
	}

	return func() {
		_ = syscall.Flock(fd, syscall.LOCK_UN)
		f.Close()
	}, nil
}
