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

package match

import (
	"sort"

	"github.com/samber/lo"
)

type unionMatcher struct {
	base
	ms []Matcher
}

// Union matches paths matched by any of ms.
func Union(ms ...Matcher) Matcher {
	if len(ms) == 1 {
		return ms[0]
	}
	return &unionMatcher{ms: ms}
}

func (m *unionMatcher) children() []Matcher { return m.ms }
func (m *unionMatcher) Kind() Kind          { return KindUnion }

func (m *unionMatcher) Matches(p string) bool {
	return lo.SomeBy(m.ms, func(c Matcher) bool { return c.Matches(p) })
}

func (m *unionMatcher) Files() []string {
	var files []string
	for _, c := range m.ms {
		files = append(files, c.Files()...)
	}
	files = lo.Uniq(files)
	sort.Strings(files)
	return files
}

func (m *unionMatcher) Always() bool {
	return lo.SomeBy(m.ms, Matcher.Always)
}

func (m *unionMatcher) VisitDir(dir string) VisitResult {
	res := VisitNone
	for _, c := range m.ms {
		res = max(res, c.VisitDir(dir))
	}
	return res
}

func (m *unionMatcher) Bad(p string, err error) {
	if len(m.ms) > 0 {
		m.ms[0].Bad(p, err)
	}
}

type intersectionMatcher struct {
	base
	m1, m2 Matcher
}

// Intersection matches paths matched by both m1 and m2.
func Intersection(m1, m2 Matcher) Matcher {
	if m1 == nil || m1.Always() {
		return m2
	}
	if m2 == nil || m2.Always() {
		return m1
	}
	return &intersectionMatcher{m1: m1, m2: m2}
}

func (m *intersectionMatcher) children() []Matcher     { return []Matcher{m.m1, m.m2} }
func (m *intersectionMatcher) Kind() Kind              { return KindIntersection }
func (m *intersectionMatcher) Matches(p string) bool   { return m.m1.Matches(p) && m.m2.Matches(p) }
func (m *intersectionMatcher) IsExact() bool           { return m.m1.IsExact() || m.m2.IsExact() }
func (m *intersectionMatcher) Bad(p string, err error) { m.m1.Bad(p, err) }

func (m *intersectionMatcher) Files() []string {
	switch {
	case m.m1.IsExact():
		return lo.Filter(m.m1.Files(), func(f string, _ int) bool { return m.m2.Matches(f) })
	case m.m2.IsExact():
		return lo.Filter(m.m2.Files(), func(f string, _ int) bool { return m.m1.Matches(f) })
	}
	// neither side names files, so both sets of roots must be walked
	files := lo.Uniq(append(append([]string{}, m.m1.Files()...), m.m2.Files()...))
	sort.Strings(files)
	return files
}

func (m *intersectionMatcher) VisitDir(dir string) VisitResult {
	return min(m.m1.VisitDir(dir), m.m2.VisitDir(dir))
}

type differenceMatcher struct {
	base
	m1, m2 Matcher
}

// Difference matches paths matched by m1 but not by m2.
func Difference(m1, m2 Matcher) Matcher {
	return &differenceMatcher{m1: m1, m2: m2}
}

func (m *differenceMatcher) children() []Matcher     { return []Matcher{m.m1, m.m2} }
func (m *differenceMatcher) Kind() Kind              { return KindDifference }
func (m *differenceMatcher) Matches(p string) bool   { return m.m1.Matches(p) && !m.m2.Matches(p) }
func (m *differenceMatcher) Files() []string         { return m.m1.Files() }
func (m *differenceMatcher) IsExact() bool           { return m.m1.IsExact() }
func (m *differenceMatcher) Bad(p string, err error) { m.m1.Bad(p, err) }

func (m *differenceMatcher) VisitDir(dir string) VisitResult {
	if m.m2.VisitDir(dir) == VisitAll {
		return VisitNone
	}
	return min(m.m1.VisitDir(dir), VisitSome)
}

type badMatcher struct {
	Matcher
	fn func(string, error)
}

// WithBad returns m with its bad-path channel routed to fn.
func WithBad(m Matcher, fn func(path string, err error)) Matcher {
	return &badMatcher{Matcher: m, fn: fn}
}

func (m *badMatcher) Bad(p string, err error) { m.fn(p, err) }

func (m *badMatcher) children() []Matcher {
	if p, ok := m.Matcher.(parent); ok {
		return p.children()
	}
	return nil
}
