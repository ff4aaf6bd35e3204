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

package dirstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func caseInsensitive(o *Options) {
	v := false
	o.CaseSensitive = &v
}

func TestNormalizeTrackedSpellingWins(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t, caseInsensitive)
	_, err := ds.SetTracked("FOO", false)
	require.NoError(t, err)
	_, err = ds.SetTracked("Sub/a", false)
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
	}{
		{"foo", "FOO"},
		{"Foo", "FOO"},
		{"sub", "Sub"},
		{"SUB/A", "Sub/a"},
		{"other", "other"},
	}
	for _, tt := range tests {
		got, err := ds.Normalize(tt.path, false, false)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestNormalizeFileSkipsDirectories(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t, caseInsensitive)
	_, err := ds.SetTracked("Sub/a", false)
	require.NoError(t, err)

	got, err := ds.NormalizeFile("sub", true, false)
	require.NoError(t, err)
	assert.Equal(t, "sub", got)

	got, err = ds.Normalize("sub", true, false)
	require.NoError(t, err)
	assert.Equal(t, "Sub", got)
}

func TestNormalizeMissingPath(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t, caseInsensitive)
	_, err := ds.SetTracked("Sub/a", false)
	require.NoError(t, err)

	got, err := ds.Normalize("sub/missing", false, false)
	require.NoError(t, err)
	assert.Equal(t, "sub/missing", got)

	got, err = ds.Normalize("sub/missing", false, true)
	require.NoError(t, err)
	assert.Equal(t, "Sub/missing", got)
}

func TestNormalizeCaseSensitiveIsIdentity(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	_, err := ds.SetTracked("FOO", false)
	require.NoError(t, err)

	got, err := ds.Normalize("foo", false, false)
	require.NoError(t, err)
	assert.Equal(t, "foo", got)
}

func TestNormalizerDiscoversDiskSpelling(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t, caseInsensitive)
	repo.write("Dir/ReadMe.md", "x")
	sm, err := repo.ds.Map()
	require.NoError(t, err)
	n := normalizer{d: repo.ds, m: sm}

	// the test filesystem folds nothing, so existence is asserted
	yes := true
	assert.Equal(t, "Dir/ReadMe.md", n.normalize("dir/readme.md", false, false, &yes))
	assert.Equal(t, "Dir", sm.DirFoldMap()["dir"], "discovery is remembered")
}

func TestNormalizerRelistsStaleCache(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t, caseInsensitive)
	sm, err := repo.ds.Map()
	require.NoError(t, err)
	n := normalizer{d: repo.ds, m: sm}

	assert.Equal(t, "new", n.fspath("", "new"))
	repo.write("NEW", "x")
	assert.Equal(t, "NEW", n.fspath("", "new"))
}

func TestProbeCaseSensitive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	assert.True(t, probeCaseSensitive(dir+"/does-not-exist"))

	p := dir + "/Probe"
	require.NoError(t, os.Mkdir(p, 0o755))
	_, err := os.Lstat(dir + "/pROBE")
	if err == nil {
		assert.False(t, probeCaseSensitive(p))
	} else {
		assert.True(t, probeCaseSensitive(p))
	}
}

func TestGetcwdAndPathTo(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := t.TempDir()
	tests := []struct {
		name    string
		cwd     string
		wantCwd string
		path    string
		want    string
	}{
		{"at root", root, "", "a/b.txt", filepath.FromSlash("a/b.txt")},
		{"in subdirectory", filepath.Join(root, "a"), "a", "a/b.txt", "b.txt"},
		{"in sibling directory", filepath.Join(root, "c", "d"), "c/d", "a/b.txt", filepath.FromSlash("../../a/b.txt")},
		{"outside", outside, outside, "a/b.txt", mustRel(t, outside, filepath.Join(root, "a", "b.txt"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, _ := memDirstate(t, func(o *Options) { o.Cwd = tt.cwd })
			ds.root = root
			cwd, err := ds.Getcwd()
			require.NoError(t, err)
			assert.Equal(t, tt.wantCwd, cwd)
			assert.Equal(t, tt.want, ds.PathTo(tt.path, cwd))
		})
	}
}

func mustRel(t *testing.T, from, to string) string {
	t.Helper()
	rel, err := filepath.Rel(from, to)
	require.NoError(t, err)
	return rel
}
