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

// Package match provides the path matchers consumed by the walker and the
// status engine.
package match

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"

	"dirstate/internal/common"
)

// VisitResult is a matcher's decision about descending into a directory.
type VisitResult int

const (
	// VisitNone means nothing below the directory can match.
	VisitNone VisitResult = iota
	// VisitSome means some paths below the directory may match.
	VisitSome
	// VisitAll means every path below the directory matches.
	VisitAll
)

// Kind identifies a matcher implementation.
type Kind int

const (
	KindOther Kind = iota
	KindAlways
	KindNever
	KindExact
	KindInclude
	KindUnion
	KindIntersection
	KindDifference
)

func (k Kind) String() string {
	switch k {
	case KindAlways:
		return "always"
	case KindNever:
		return "never"
	case KindExact:
		return "exact"
	case KindInclude:
		return "include"
	case KindUnion:
		return "union"
	case KindIntersection:
		return "intersection"
	case KindDifference:
		return "difference"
	}
	return "other"
}

// Matcher decides which repository-relative paths an operation covers.
type Matcher interface {
	// Matches reports whether a file path is covered.
	Matches(path string) bool
	// Files returns the explicitly named paths, sorted. "" names the root.
	Files() []string
	// VisitDir decides whether the walker should descend into dir.
	VisitDir(dir string) VisitResult
	// Always reports whether every path matches.
	Always() bool
	// IsExact reports whether only the paths in Files match.
	IsExact() bool
	// PrefixOnly reports whether every pattern is a plain directory prefix.
	PrefixOnly() bool
	Kind() Kind
	// Bad receives per-path errors found while walking.
	Bad(path string, err error)
}

type parent interface {
	children() []Matcher
}

// Composable reports whether m is built only from the kinds the parallel
// status scan understands.
func Composable(m Matcher) bool {
	switch m.Kind() {
	case KindAlways, KindNever, KindExact, KindInclude:
		return true
	case KindUnion, KindIntersection, KindDifference:
		p, ok := m.(parent)
		if !ok {
			return false
		}
		return lo.EveryBy(p.children(), Composable)
	}
	return false
}

type base struct{}

func (base) Files() []string              { return nil }
func (base) Always() bool                 { return false }
func (base) IsExact() bool                { return false }
func (base) PrefixOnly() bool             { return false }
func (base) Bad(string, error)            {}
func (base) VisitDir(string) VisitResult { return VisitSome }

type alwaysMatcher struct{ base }

// Always matches every path.
func Always() Matcher { return alwaysMatcher{} }

func (alwaysMatcher) Matches(string) bool          { return true }
func (alwaysMatcher) VisitDir(string) VisitResult { return VisitAll }
func (alwaysMatcher) Always() bool                 { return true }
func (alwaysMatcher) Kind() Kind                   { return KindAlways }
func (alwaysMatcher) String() string               { return "<always>" }

type neverMatcher struct{ base }

// Never matches nothing.
func Never() Matcher { return neverMatcher{} }

func (neverMatcher) Matches(string) bool          { return false }
func (neverMatcher) VisitDir(string) VisitResult { return VisitNone }
func (neverMatcher) Kind() Kind                   { return KindNever }
func (neverMatcher) String() string               { return "<never>" }

type exactMatcher struct {
	base
	files []string
	set   mapset.Set[string]
	dirs  mapset.Set[string]
}

// Exact matches exactly the given paths.
func Exact(files ...string) Matcher {
	m := &exactMatcher{set: mapset.NewThreadUnsafeSet[string](), dirs: mapset.NewThreadUnsafeSet[string]()}
	for _, f := range files {
		f = common.NormalizePath(f)
		if !m.set.Add(f) {
			continue
		}
		m.files = append(m.files, f)
		m.dirs.Append(common.FindDirs(f)...)
	}
	sort.Strings(m.files)
	return m
}

func (m *exactMatcher) Matches(p string) bool { return m.set.Contains(p) }
func (m *exactMatcher) Files() []string       { return m.files }
func (m *exactMatcher) IsExact() bool         { return true }
func (m *exactMatcher) Kind() Kind            { return KindExact }
func (m *exactMatcher) String() string        { return fmt.Sprintf("<exact %v>", m.files) }

func (m *exactMatcher) VisitDir(dir string) VisitResult {
	if dir == "" || m.dirs.Contains(dir) {
		return VisitSome
	}
	return VisitNone
}

type pattern struct {
	prefix bool   // path: pattern, matches the directory and everything below
	expr   string // doublestar pattern or prefix
	root   string // literal directory the pattern is confined to
}

type includeMatcher struct {
	base
	patterns []pattern
	roots    []string
	prefix   bool
}

// Include matches paths selected by patterns. "path:dir" selects a
// directory prefix, "glob:expr" or a bare expression is a doublestar glob
// anchored at the repository root.
func Include(patterns ...string) (Matcher, error) {
	m := &includeMatcher{prefix: len(patterns) > 0}
	roots := mapset.NewThreadUnsafeSet[string]()
	for _, raw := range patterns {
		var p pattern
		switch {
		case strings.HasPrefix(raw, "path:"):
			p = pattern{prefix: true, expr: common.NormalizePath(strings.TrimPrefix(raw, "path:"))}
			p.root = p.expr
		default:
			expr := strings.TrimPrefix(raw, "glob:")
			expr = strings.TrimPrefix(expr, "/")
			if !doublestar.ValidatePattern(expr) {
				return nil, fmt.Errorf("invalid pattern %q", raw)
			}
			p = pattern{expr: expr, root: globRoot(expr)}
			m.prefix = false
		}
		m.patterns = append(m.patterns, p)
		roots.Add(p.root)
	}
	m.roots = roots.ToSlice()
	sort.Strings(m.roots)
	return m, nil
}

// globRoot returns the literal leading directory of a glob.
func globRoot(expr string) string {
	parts := strings.Split(expr, "/")
	var lit []string
	for _, part := range parts[:len(parts)-1] {
		if strings.ContainsAny(part, "*?[{\\") {
			break
		}
		lit = append(lit, part)
	}
	return strings.Join(lit, "/")
}

func (m *includeMatcher) Matches(p string) bool {
	for _, pat := range m.patterns {
		if pat.prefix {
			if common.IsUnder(p, pat.expr) {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(pat.expr, p); ok {
			return true
		}
	}
	return false
}

func (m *includeMatcher) Files() []string  { return m.roots }
func (m *includeMatcher) PrefixOnly() bool { return m.prefix }
func (m *includeMatcher) Kind() Kind       { return KindInclude }

func (m *includeMatcher) VisitDir(dir string) VisitResult {
	res := VisitNone
	for _, pat := range m.patterns {
		if pat.prefix && common.IsUnder(dir, pat.expr) {
			return VisitAll
		}
		if common.IsUnder(dir, pat.root) || common.IsUnder(pat.root, dir) {
			res = VisitSome
		}
	}
	return res
}

func (m *includeMatcher) String() string {
	return fmt.Sprintf("<include %v>", lo.Map(m.patterns, func(p pattern, _ int) string { return p.expr }))
}

// Predicate wraps an arbitrary function. It is never Composable.
func Predicate(fn func(path string) bool) Matcher {
	return predicateMatcher{fn: fn}
}

type predicateMatcher struct {
	base
	fn func(string) bool
}

func (m predicateMatcher) Matches(p string) bool { return m.fn(p) }
func (m predicateMatcher) Kind() Kind            { return KindOther }
