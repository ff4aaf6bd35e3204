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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlwaysNever(t *testing.T) {
	t.Parallel()

	a := Always()
	assert.True(t, a.Matches("x/y"))
	assert.True(t, a.Always())
	assert.Equal(t, VisitAll, a.VisitDir("x"))
	assert.Empty(t, a.Files())

	n := Never()
	assert.False(t, n.Matches("x"))
	assert.Equal(t, VisitNone, n.VisitDir(""))
}

func TestExact(t *testing.T) {
	t.Parallel()

	m := Exact("b/c.txt", "a.txt", "b/c.txt", "/d/e/f")
	assert.Equal(t, []string{"a.txt", "b/c.txt", "d/e/f"}, m.Files())
	assert.True(t, m.IsExact())
	assert.True(t, m.Matches("a.txt"))
	assert.False(t, m.Matches("b"))

	tests := []struct {
		dir  string
		want VisitResult
	}{
		{"", VisitSome},
		{"b", VisitSome},
		{"d/e", VisitSome},
		{"c", VisitNone},
		{"d/e/f", VisitNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.VisitDir(tt.dir), "VisitDir(%q)", tt.dir)
	}
}

func TestInclude(t *testing.T) {
	t.Parallel()

	m, err := Include("path:src", "glob:docs/**/*.md", "*.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "docs", "src"}, m.Files())
	assert.False(t, m.PrefixOnly())

	tests := []struct {
		path string
		want bool
	}{
		{"src", true},
		{"src/a/b.go", true},
		{"srcx/a", false},
		{"docs/a/b.md", true},
		{"docs/a/b.txt", false},
		{"top.txt", true},
		{"sub/top.txt", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Matches(tt.path), "Matches(%q)", tt.path)
	}
	assert.Equal(t, VisitAll, m.VisitDir("src/a"))
	assert.Equal(t, VisitSome, m.VisitDir("docs/x"))
}

func TestIncludePrefixOnly(t *testing.T) {
	t.Parallel()

	m, err := Include("path:a", "path:b/c")
	require.NoError(t, err)
	assert.True(t, m.PrefixOnly())
	assert.Equal(t, VisitSome, m.VisitDir("b"))
	assert.Equal(t, VisitNone, m.VisitDir("d"))

	_, err = Include("glob:[")
	assert.Error(t, err)
}

func TestCombinators(t *testing.T) {
	t.Parallel()

	src, err := Include("path:src")
	require.NoError(t, err)
	docs, err := Include("path:docs")
	require.NoError(t, err)

	u := Union(src, docs)
	assert.True(t, u.Matches("docs/a"))
	assert.Equal(t, []string{"docs", "src"}, u.Files())
	assert.Equal(t, KindUnion, u.Kind())

	i := Intersection(u, Exact("src/a.go", "lib/b.go"))
	assert.Equal(t, []string{"src/a.go"}, i.Files())
	assert.True(t, i.IsExact())
	assert.Equal(t, VisitNone, i.VisitDir("lib"))

	assert.Same(t, src, Intersection(Always(), src))

	d := Difference(Always(), src)
	assert.True(t, d.Matches("docs/a"))
	assert.False(t, d.Matches("src/a"))
	assert.Equal(t, VisitNone, d.VisitDir("src/x"))
	assert.Equal(t, VisitSome, d.VisitDir("docs"))
}

func TestComposable(t *testing.T) {
	t.Parallel()

	src, err := Include("path:src")
	require.NoError(t, err)
	pred := Predicate(func(string) bool { return true })

	assert.True(t, Composable(Always()))
	assert.True(t, Composable(Difference(Union(src, Exact("a")), Never())))
	assert.True(t, Composable(WithBad(Union(src, Exact("a")), func(string, error) {})))
	assert.False(t, Composable(pred))
	assert.False(t, Composable(Union(src, pred)))
	assert.Equal(t, "intersection", KindIntersection.String())
}

func TestWithBad(t *testing.T) {
	t.Parallel()

	var got []string
	m := WithBad(Exact("a"), func(p string, err error) { got = append(got, p+": "+err.Error()) })
	m.Bad("a", errors.New("permission denied"))
	assert.Equal(t, []string{"a: permission denied"}, got)
	assert.True(t, m.IsExact())
}
