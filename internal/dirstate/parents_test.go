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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirstate/internal/common"
	"dirstate/internal/storage"
)

func TestParentMutationsRequireScope(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	tests := []struct {
		name string
		call func() error
	}{
		{"SetParents", func() error { _, err := ds.SetParents(node(1), NullID); return err }},
		{"UpdateFile", func() error { return ds.UpdateFile("a", true, true, false, false, nil) }},
		{"UpdateFileP1", func() error { return ds.UpdateFileP1("a", true) }},
		{"Rebuild", func() error { return ds.Rebuild(node(1), []string{"a"}, nil) }},
		{"SetBranch", func() error { return ds.SetBranch("dev", nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, common.IsProgrammingError(err))
		})
	}
}

func TestNonParentMutationsForbiddenInScope(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	require.NoError(t, ds.SetClean("a", 0o100644, 1, Timestamp{Sec: 1}))

	tests := []struct {
		name string
		call func() error
	}{
		{"SetTracked", func() error { _, err := ds.SetTracked("b", false); return err }},
		{"SetUntracked", func() error { _, err := ds.SetUntracked("a"); return err }},
		{"SetClean", func() error { return ds.SetClean("a", 0o100644, 1, Timestamp{Sec: 1}) }},
		{"SetPossiblyDirty", func() error { return ds.SetPossiblyDirty("a") }},
		{"Write", func() error { return ds.Write(nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ds.ChangingParents(func() error {
				err := tt.call()
				assert.True(t, common.IsProgrammingError(err), "got %v", err)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestNestedScopesReleaseAtOutermostExit(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	err := ds.ChangingParents(func() error {
		if err := ds.ChangingParents(func() error {
			_, err := ds.SetParents(node(1), NullID)
			return err
		}); err != nil {
			return err
		}
		assert.True(t, ds.ChangingParentsActive())
		_, err := ds.SetTracked("x", false)
		assert.True(t, common.IsProgrammingError(err))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ds.ChangingParentsActive())

	_, err = ds.SetTracked("x", false)
	assert.NoError(t, err)
	p1, err := ds.P1()
	require.NoError(t, err)
	assert.Equal(t, node(1), p1)
}

func TestFailedScopeBlocksUntilInvalidate(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	boom := errors.New("boom")
	err := ds.ChangingParents(func() error {
		_, err := ds.SetParents(node(2), NullID)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, ds.ChangingParentsActive())

	_, err = ds.SetTracked("a", false)
	assert.True(t, common.IsProgrammingError(err))
	assert.True(t, common.IsProgrammingError(ds.Write(nil)))

	ds.Invalidate()
	assert.False(t, ds.ChangingParentsActive())
	p1, err := ds.P1()
	require.NoError(t, err)
	assert.True(t, p1.IsNull(), "the aborted parent change is discarded")
	_, err = ds.SetTracked("a", false)
	assert.NoError(t, err)
}

func TestRestoreInsideScopeKeepsGuard(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	_, err := ds.SetTracked("a", false)
	require.NoError(t, err)
	require.NoError(t, ds.SaveBackup(nil, "bak"))

	require.NoError(t, ds.ChangingParents(func() error {
		return ds.RestoreBackup(nil, "bak")
	}))
	assert.False(t, ds.ChangingParentsActive())
	assert.Zero(t, ds.depth)

	_, err = ds.SetParents(node(9), NullID)
	assert.True(t, common.IsProgrammingError(err), "got %v", err)

	// a fresh scope opens and closes normally
	require.NoError(t, ds.ChangingParents(func() error {
		_, err := ds.SetParents(node(9), NullID)
		return err
	}))
	assert.False(t, ds.ChangingParentsActive())
	p1, err := ds.P1()
	require.NoError(t, err)
	assert.Equal(t, node(9), p1)
}

func TestSetParentsFoldsMergeState(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	require.NoError(t, ds.ChangingParents(func() error {
		if _, err := ds.SetParents(node(1), node(2)); err != nil {
			return err
		}
		if err := ds.UpdateFile("merged", true, true, true, false, nil); err != nil {
			return err
		}
		if err := ds.UpdateFile("other", true, false, true, false, nil); err != nil {
			return err
		}
		return ds.UpdateFile("plain", true, true, false, false, nil)
	}))
	require.NoError(t, ds.Copy("plain", "other"))

	inMerge, err := ds.InMerge()
	require.NoError(t, err)
	assert.True(t, inMerge)

	var copies map[string]string
	require.NoError(t, ds.ChangingParents(func() error {
		copies, err = ds.SetParents(node(1), NullID)
		return err
	}))
	assert.Equal(t, map[string]string{"other": "plain"}, copies)

	it, _, _ := ds.Get("merged")
	assert.False(t, it.P2Info())
	assert.True(t, it.MaybeClean())
	assert.False(t, it.HasMtime())

	it, _, _ = ds.Get("other")
	assert.True(t, it.Added(), "a file only p2 had becomes added")
	_, copied, _ := ds.Copied("other")
	assert.False(t, copied)

	inMerge, _ = ds.InMerge()
	assert.False(t, inMerge)
}

func TestUpdateFile(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	mt := Timestamp{Sec: 50, Nsec: 7}
	pfd := &ParentFileData{Mode: 0o100644, Size: 4, Mtime: &mt}
	require.NoError(t, ds.ChangingParents(func() error {
		if err := ds.UpdateFile("clean", true, true, false, false, pfd); err != nil {
			return err
		}
		if err := ds.UpdateFile("dirty", true, true, false, true, pfd); err != nil {
			return err
		}
		if err := ds.UpdateFile("gone", false, false, false, false, nil); err != nil {
			return err
		}
		return nil
	}))

	it, ok, _ := ds.Get("clean")
	require.True(t, ok)
	assert.True(t, it.MtimeLikelyEqual(mt))
	assert.Equal(t, int64(4), it.Size())

	it, _, _ = ds.Get("dirty")
	assert.False(t, it.HasMtime())
	assert.True(t, it.HasModeAndSize())

	_, ok, _ = ds.Get("gone")
	assert.False(t, ok)
}

func TestUpdateFileP1(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	require.NoError(t, ds.SetClean("kept", 0o100644, 1, Timestamp{Sec: 1}))
	_, err := ds.SetTracked("added", false)
	require.NoError(t, err)
	require.NoError(t, ds.SetClean("dropped", 0o100644, 1, Timestamp{Sec: 1}))
	_, err = ds.SetUntracked("dropped")
	require.NoError(t, err)

	require.NoError(t, ds.ChangingParents(func() error {
		if err := ds.UpdateFileP1("kept", true); err != nil {
			return err
		}
		if err := ds.UpdateFileP1("added", false); err != nil {
			return err
		}
		return ds.UpdateFileP1("dropped", false)
	}))

	it, _, _ := ds.Get("kept")
	assert.True(t, it.MaybeClean())
	assert.False(t, it.HasMtime(), "parent moved: content must be checked")

	it, _, _ = ds.Get("added")
	assert.True(t, it.Added())

	_, ok, _ := ds.Get("dropped")
	assert.False(t, ok)

	// refused during a merge
	err = ds.ChangingParents(func() error {
		if _, err := ds.SetParents(node(1), node(2)); err != nil {
			return err
		}
		return ds.UpdateFileP1("kept", true)
	})
	assert.True(t, common.IsProgrammingError(err))
	ds.Invalidate()
}

func TestRebuild(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	_, err := ds.SetTracked("old", false)
	require.NoError(t, err)
	require.NoError(t, ds.SetClean("keep", 0o100644, 1, Timestamp{Sec: 1}))

	require.NoError(t, ds.ChangingParents(func() error {
		return ds.Rebuild(node(3), []string{"keep", "new"}, nil)
	}))
	m, err := ds.Map()
	require.NoError(t, err)
	assert.Equal(t, []string{"keep", "new"}, m.Paths())
	it, _, _ := ds.Get("new")
	assert.True(t, it.MaybeClean())
	assert.False(t, it.HasMtime())
	p, _ := ds.Parents()
	assert.Equal(t, [2]NodeID{node(3), NullID}, p)

	// partial rebuild touches only the changed files
	require.NoError(t, ds.SetClean("keep", 0o100644, 1, Timestamp{Sec: 1}))
	require.NoError(t, ds.ChangingParents(func() error {
		return ds.Rebuild(node(4), []string{"keep"}, []string{"new"})
	}))
	assert.Equal(t, []string{"keep"}, m.Paths())
	it, _, _ = ds.Get("keep")
	assert.True(t, it.HasMtime())
}

func TestRebuildDuringMerge(t *testing.T) {
	t.Parallel()

	ds, _ := memDirstate(t)
	require.NoError(t, ds.ChangingParents(func() error {
		if _, err := ds.SetParents(node(1), node(2)); err != nil {
			return err
		}
		if err := ds.UpdateFile("merged", true, true, true, false, nil); err != nil {
			return err
		}
		return ds.Rebuild(node(3), []string{"merged", "other"}, nil)
	}))
	inMerge, err := ds.InMerge()
	require.NoError(t, err)
	assert.False(t, inMerge)
	for _, p := range []string{"merged", "other"} {
		it, ok, err := ds.Get(p)
		require.NoError(t, err)
		require.True(t, ok, p)
		assert.True(t, it.MaybeClean(), p)
		assert.False(t, it.P2Info(), p)
	}
}

func TestParentChangeCallbacks(t *testing.T) {
	t.Parallel()

	type call struct {
		category string
		old, new [2]NodeID
	}
	ds, _ := memDirstate(t)
	var calls []call
	record := func(category string) ParentChangeFunc {
		return func(_ *Dirstate, old, new [2]NodeID) {
			calls = append(calls, call{category, old, new})
		}
	}
	ds.AddParentChangeCallback("b", record("b"))
	ds.AddParentChangeCallback("a", func(*Dirstate, [2]NodeID, [2]NodeID) { t.Fatal("replaced callback ran") })
	ds.AddParentChangeCallback("a", record("a"))

	setParents := func(p1 NodeID) {
		t.Helper()
		require.NoError(t, ds.ChangingParents(func() error {
			_, err := ds.SetParents(p1, NullID)
			return err
		}))
	}

	setParents(node(1))
	setParents(node(2))
	require.NoError(t, ds.Write(nil))
	want := [2]NodeID{node(2), NullID}
	assert.Equal(t, []call{
		{"a", [2]NodeID{}, want},
		{"b", [2]NodeID{}, want},
	}, calls)

	// moving back to the persisted parents notifies nobody
	calls = nil
	setParents(node(3))
	setParents(node(2))
	require.NoError(t, ds.Write(nil))
	assert.Empty(t, calls)

	// a change dropped by Invalidate is never reported
	setParents(node(4))
	ds.Invalidate()
	_, err := ds.SetTracked("x", false)
	require.NoError(t, err)
	require.NoError(t, ds.Write(nil))
	assert.Empty(t, calls)
}

func TestBranch(t *testing.T) {
	t.Parallel()

	ds, o := memDirstate(t)
	b, err := ds.Branch()
	require.NoError(t, err)
	assert.Equal(t, DefaultBranch, b)

	tx := storage.NewTx()
	require.NoError(t, ds.ChangingParents(func() error { return ds.SetBranch("feature", tx) }))
	assert.False(t, o.Exists(storage.BranchFileName))
	require.NoError(t, tx.Close())

	data, err := o.Read(storage.BranchFileName)
	require.NoError(t, err)
	assert.Equal(t, "feature\n", string(data))

	ds.Invalidate()
	b, err = ds.Branch()
	require.NoError(t, err)
	assert.Equal(t, "feature", b)

	err = ds.ChangingParents(func() error { return ds.SetBranch("  ", nil) })
	assert.True(t, common.IsAbort(err))
}
