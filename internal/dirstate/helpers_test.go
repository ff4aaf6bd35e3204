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
	"time"

	"github.com/stretchr/testify/require"

	"dirstate/internal/storage"
)

// Mtimes used by the tests: files are dated t0, well before the fixed
// boundary.
var (
	t0       = time.Unix(1_700_000_000, 123_456_789)
	boundary = Timestamp{Sec: 1_800_000_000, Nsec: 0}
)

func node(b byte) NodeID {
	var n NodeID
	for i := range n {
		n[i] = b
	}
	return n
}

// testRepo is a working directory on disk with its metadata directory.
type testRepo struct {
	t    *testing.T
	root string
	ds   *Dirstate
}

// newTestRepo creates an empty repository under t.TempDir(). The clock
// is fixed at boundary and the filesystem treated as case sensitive
// unless opts say otherwise.
func newTestRepo(t *testing.T, mutate ...func(*Options)) *testRepo {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, DefaultMetaDir), 0o755))

	opts := DefaultOptions()
	opts.Clock = FixedClock(boundary)
	sensitive := true
	opts.CaseSensitive = &sensitive
	for _, fn := range mutate {
		fn(&opts)
	}
	ds, err := Open(root, opts)
	require.NoError(t, err)
	return &testRepo{t: t, root: root, ds: ds}
}

// reopen returns a fresh Dirstate over the same directories.
func (r *testRepo) reopen() *Dirstate {
	r.t.Helper()
	ds, err := Open(r.root, r.ds.Options())
	require.NoError(r.t, err)
	return ds
}

func (r *testRepo) path(rel string) string {
	return filepath.Join(r.root, filepath.FromSlash(rel))
}

// write creates rel with content and dates it t0.
func (r *testRepo) write(rel, content string) {
	r.writeAt(rel, content, t0)
}

func (r *testRepo) writeAt(rel, content string, mtime time.Time) {
	r.t.Helper()
	p := r.path(rel)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(r.t, os.WriteFile(p, []byte(content), 0o644))
	require.NoError(r.t, os.Chtimes(p, mtime, mtime))
}

func (r *testRepo) remove(rel string) {
	r.t.Helper()
	require.NoError(r.t, os.RemoveAll(r.path(rel)))
}

func (r *testRepo) stat(rel string) *StatResult {
	r.t.Helper()
	st, err := Lstat(r.path(rel))
	require.NoError(r.t, err)
	return st
}

// commitClean records rel as clean against p1 using its current stat.
func (r *testRepo) commitClean(rel string) {
	r.t.Helper()
	st := r.stat(rel)
	require.NoError(r.t, r.ds.SetClean(rel, st.Mode, st.Size, st.Mtime))
}

func (r *testRepo) opener() storage.Opener {
	return storage.NewOpener(filepath.Join(r.root, DefaultMetaDir))
}

// memDirstate returns a Dirstate storing its state in memory.
func memDirstate(t *testing.T, mutate ...func(*Options)) (*Dirstate, *storage.FSOpener) {
	t.Helper()
	opts := DefaultOptions()
	opts.Clock = FixedClock(boundary)
	sensitive := true
	opts.CaseSensitive = &sensitive
	for _, fn := range mutate {
		fn(&opts)
	}
	o := storage.NewMemOpener()
	return New(o, t.TempDir(), opts), o
}

func v2(o *Options) { o.Format = storage.FormatV2 }
