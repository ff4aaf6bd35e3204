// Copyright 2024 Dirstate Authors
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

// Package config loads per-repository settings from <metadir>/dirstate.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"dirstate/internal/artifacts"
	"dirstate/internal/dirstate"
	"dirstate/internal/storage"
)

// FileName is the settings file name inside the metadata directory.
const FileName = "dirstate.yaml"

// IgnoreFileName is the repository-wide ignore file inside the metadata directory.
const IgnoreFileName = "ignore"

// Settings represents per-repository configuration.
type Settings struct {
	Format        string   `yaml:"format"`         // v1 or v2 (default: v1)
	TrackedHint   *bool    `yaml:"tracked-hint"`   // default: false
	Accelerated   *bool    `yaml:"accelerated"`    // default: true
	Workers       int      `yaml:"workers"`        // 0 = GOMAXPROCS
	CheckExec     *bool    `yaml:"check-exec"`     // default: true
	CheckLink     *bool    `yaml:"check-link"`     // default: true
	CaseSensitive *bool    `yaml:"case-sensitive"` // nil = probe
	Gitignore     *bool    `yaml:"gitignore"`      // default: true
	Excludes      []string `yaml:"excludes"`       // force-ignored paths
	DirCacheSize  int      `yaml:"dir-cache-size"` // default: 256
	Logging       string   `yaml:"logging"`        // none, trace, debug, info, warn
}

func boolPtr(b bool) *bool { return &b }

// ApplyDefaults fills zero-value fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.Format == "" {
		s.Format = "v1"
	}
	if s.TrackedHint == nil {
		s.TrackedHint = boolPtr(false)
	}
	if s.Accelerated == nil {
		s.Accelerated = boolPtr(true)
	}
	if s.CheckExec == nil {
		s.CheckExec = boolPtr(true)
	}
	if s.CheckLink == nil {
		s.CheckLink = boolPtr(true)
	}
	if s.Gitignore == nil {
		s.Gitignore = boolPtr(true)
	}
	if s.DirCacheSize <= 0 {
		s.DirCacheSize = 256
	}
}

// ApplyEnv overrides settings from DIRSTATE_* environment variables.
func (s *Settings) ApplyEnv() error {
	if v := os.Getenv("DIRSTATE_FORMAT"); v != "" {
		s.Format = v
	}
	if v := os.Getenv("DIRSTATE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("DIRSTATE_WORKERS: invalid worker count %q", v)
		}
		s.Workers = n
	}
	if v := os.Getenv("DIRSTATE_ACCELERATED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DIRSTATE_ACCELERATED: %w", err)
		}
		s.Accelerated = &b
	}
	if v := os.Getenv("DIRSTATE_LOG_LEVEL"); v != "" {
		s.Logging = v
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (s *Settings) Validate() error {
	if _, err := storage.ParseFormat(s.Format); err != nil {
		return err
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers: must not be negative, got %d", s.Workers)
	}
	switch s.LogLevel() {
	case "", "none", "trace", "debug", "info", "warn":
	default:
		return fmt.Errorf("logging: unknown level %q", s.Logging)
	}
	return nil
}

// LoggingEnabled returns whether logging is enabled (any level other than "none" or empty).
func (s *Settings) LoggingEnabled() bool {
	level := s.LogLevel()
	return level != "" && level != "none"
}

// LogLevel returns the normalized (lowercase) logging level.
func (s *Settings) LogLevel() string {
	return strings.ToLower(s.Logging)
}

// Options converts the settings into engine options. Ignore rules and the
// sparse profile are attached by the caller.
func (s *Settings) Options(metaDir string) dirstate.Options {
	format, _ := storage.ParseFormat(s.Format)
	return dirstate.Options{
		MetaDir:        metaDir,
		Format:         format,
		UseTrackedHint: *s.TrackedHint,
		Accelerated:    *s.Accelerated,
		Workers:        s.Workers,
		CheckExec:      *s.CheckExec,
		CheckLink:      *s.CheckLink,
		CaseSensitive:  s.CaseSensitive,
		DirCacheSize:   s.DirCacheSize,
	}
}

// Default parses the embedded default settings.
func Default() *Settings {
	var s Settings
	if err := yaml.Unmarshal(artifacts.DefaultSettings, &s); err != nil {
		panic("failed to parse embedded default settings: " + err.Error())
	}
	s.ApplyDefaults()
	return &s
}

// LoadFromPath loads settings from a specific file.
// Returns nil if the file does not exist.
func LoadFromPath(path string) (*Settings, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.ApplyDefaults()
	return &s, nil
}

// Load reads <metaPath>/dirstate.yaml, falling back to the embedded
// defaults, then applies environment overrides and validates the result.
func Load(metaPath string) (*Settings, error) {
	s, err := LoadFromPath(filepath.Join(metaPath, FileName))
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = Default()
	}
	if err := s.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Init writes the default settings and ignore files into metaPath unless
// they already exist.
func Init(metaPath string) error {
	if err := os.MkdirAll(metaPath, 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	files := map[string][]byte{
		FileName:       artifacts.DefaultSettings,
		IgnoreFileName: artifacts.DefaultIgnore,
	}
	for name, data := range files {
		p := filepath.Join(metaPath, name)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			if err := os.WriteFile(p, data, 0o644); err != nil {
				return fmt.Errorf("failed to create %s: %w", name, err)
			}
		}
	}
	return nil
}
