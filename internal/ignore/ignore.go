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

// Package ignore evaluates ignore rules for untracked working-directory paths.
package ignore

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"

	"dirstate/internal/common"
)

// Evaluator decides whether a repository-relative path is ignored.
type Evaluator interface {
	Ignored(path string, isDir bool) bool
}

// Func adapts a plain function to an Evaluator.
type Func func(path string, isDir bool) bool

// Ignored implements Evaluator.
func (f Func) Ignored(path string, isDir bool) bool { return f(path, isDir) }

// None ignores nothing.
var None Evaluator = Func(func(string, bool) bool { return false })

// All ignores everything.
var All Evaluator = Func(func(string, bool) bool { return true })

var _ Explainer = (*Rules)(nil)

// Rules collects .gitignore files from a working tree plus force-excluded
// paths. A path is ignored when it or any of its ancestor directories
// matches.
type Rules struct {
	matchers []scopedMatcher
	excludes []string
}

type scopedMatcher struct {
	dirPrefix string
	source    string
	ignore    *gitignore.GitIgnore
}

// Match describes the rule that ignores a path.
type Match struct {
	Path   string // the path, or the ancestor directory, the rule matched
	Source string // ignore file; empty for excludes and inline rules
	LineNo int    // 1-based line in Source, 0 for excludes
	Line   string
}

// Explainer is an Evaluator that can name the rule behind a decision.
type Explainer interface {
	Evaluator
	Explain(path string, isDir bool) (Match, bool)
}

// Config selects which rule sources New reads.
type Config struct {
	Gitignore bool     // scan the tree for .gitignore files
	Files     []string // extra root-scoped ignore files (missing files are skipped)
	Excludes  []string // directory prefixes or doublestar globs
	MetaDir   string   // never descended into while scanning
}

// New builds rules for the tree at root.
func New(root string, cfg Config) (*Rules, error) {
	r := &Rules{excludes: cfg.Excludes}

	for _, f := range cfg.Files {
		data, err := os.ReadFile(f)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		r.add(f, "", data)
	}

	if !cfg.Gitignore {
		return r, nil
	}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debugf("[ignore.New] skipping %s: %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			base := d.Name()
			if p != root && (base == ".git" || base == cfg.MetaDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}
		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil
		}
		relDir, relErr := filepath.Rel(root, filepath.Dir(p))
		if relErr != nil {
			return nil
		}
		r.add(p, common.NormalizePath(relDir), data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Lines compiles root-scoped rules from pattern lines.
func Lines(lines ...string) *Rules {
	r := &Rules{}
	r.matchers = append(r.matchers, scopedMatcher{ignore: gitignore.CompileIgnoreLines(lines...)})
	return r
}

// WithExcludes returns r with additional force-excluded paths.
func (r *Rules) WithExcludes(excludes ...string) *Rules {
	r.excludes = append(r.excludes, excludes...)
	return r
}

func (r *Rules) add(source, dirPrefix string, data []byte) {
	lines := strings.Split(string(data), "\n")
	r.matchers = append(r.matchers, scopedMatcher{
		dirPrefix: dirPrefix,
		source:    source,
		ignore:    gitignore.CompileIgnoreLines(lines...),
	})
	log.Debugf("[ignore.Rules] loaded %d lines scoped to %q", len(lines), dirPrefix)
}

// Ignored implements Evaluator.
func (r *Rules) Ignored(path string, isDir bool) bool {
	if r == nil || path == "" {
		return false
	}
	for _, dir := range common.FindDirs(path) {
		if r.matchOne(dir, true) {
			return true
		}
	}
	return r.matchOne(path, isDir)
}

// Explain returns the rule that ignores path itself or, failing that,
// the nearest ignored ancestor directory.
func (r *Rules) Explain(path string, isDir bool) (Match, bool) {
	if r == nil || path == "" {
		return Match{}, false
	}
	if ok, m := r.explainOne(path, isDir); ok {
		return m, true
	}
	for _, dir := range common.FindDirs(path) {
		if ok, m := r.explainOne(dir, true); ok {
			return m, true
		}
	}
	return Match{}, false
}

func (r *Rules) matchOne(relPath string, isDir bool) bool {
	ok, _ := r.explainOne(relPath, isDir)
	return ok
}

func (r *Rules) explainOne(relPath string, isDir bool) (bool, Match) {
	for _, exc := range r.excludes {
		if relPath == exc || strings.HasPrefix(relPath, exc+"/") {
			return true, Match{Path: relPath, Line: exc}
		}
		if ok, _ := doublestar.Match(exc, relPath); ok {
			return true, Match{Path: relPath, Line: exc}
		}
	}

	checkPath := relPath
	if isDir {
		checkPath = relPath + "/"
	}
	for _, sm := range r.matchers {
		var pathToCheck string
		if sm.dirPrefix == "" {
			pathToCheck = checkPath
		} else {
			prefix := sm.dirPrefix + "/"
			if !strings.HasPrefix(relPath, prefix) {
				continue
			}
			pathToCheck = strings.TrimPrefix(checkPath, prefix)
		}
		if ok, how := sm.ignore.MatchesPathHow(pathToCheck); ok {
			return true, Match{Path: relPath, Source: sm.source, LineNo: how.LineNo, Line: how.Line}
		}
	}
	return false, Match{}
}
