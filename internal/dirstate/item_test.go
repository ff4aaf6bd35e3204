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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemDerivedStates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		wc, p1, p2     bool
		state          byte
		added, removed bool
		merged, fromP2 bool
	}{
		{"clean", true, true, false, 'n', false, false, false, false},
		{"added", true, false, false, 'a', true, false, false, false},
		{"removed", false, true, false, 'r', false, true, false, false},
		{"merged", true, true, true, 'm', false, false, true, false},
		{"from p2", true, false, true, 'n', false, false, false, true},
		{"removed after merge", false, true, true, 'r', false, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			it := NewItem(tt.wc, tt.p1, tt.p2, false, nil)
			assert.Equal(t, string(tt.state), string(it.V1State()))
			assert.Equal(t, tt.added, it.Added())
			assert.Equal(t, tt.removed, it.Removed())
			assert.Equal(t, tt.merged, it.Merged())
			assert.Equal(t, tt.fromP2, it.FromP2())
			assert.True(t, it.AnyTracked())
		})
	}
}

func TestItemV1Sentinels(t *testing.T) {
	t.Parallel()

	mt := Timestamp{Sec: 100}
	clean := NewItem(true, true, false, false, &ParentFileData{Mode: 0o100644, Size: 12, Mtime: &mt})
	assert.Equal(t, int32(12), clean.V1Size())
	assert.Equal(t, int32(100), clean.V1Mtime())

	dirty := NewItem(true, true, false, true, &ParentFileData{Mode: 0o100644, Size: 12, Mtime: &mt})
	assert.Equal(t, int32(12), dirty.V1Size())
	assert.Equal(t, int32(mtimeUnset), dirty.V1Mtime())

	assert.Equal(t, int32(sizeNonNormal), NewItem(true, false, false, false, nil).V1Size())
	assert.Equal(t, int32(sizeFromP2), NewItem(true, false, true, false, nil).V1Size())
	assert.Equal(t, int32(sizeNonNormal), NewItem(false, true, true, false, nil).V1Size())

	ambiguous := mt
	ambiguous.SecondAmbiguous = true
	amb := NewItem(true, true, false, false, &ParentFileData{Mode: 0o100644, Size: 1, Mtime: &ambiguous})
	assert.Equal(t, int32(mtimeUnset), amb.V1Mtime(), "ambiguous mtimes cannot be stored in v1")
}

func TestItemFromV1(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		state    byte
		size     int32
		mtime    int32
		wc, p1   bool
		p2       bool
		hasMtime bool
	}{
		{"normal", 'n', 10, 100, true, true, false, true},
		{"normal lookup", 'n', 10, mtimeUnset, true, true, false, false},
		{"normal from p2", 'n', sizeFromP2, mtimeUnset, true, false, true, false},
		{"added", 'a', sizeNonNormal, mtimeUnset, true, false, false, false},
		{"merged", 'm', sizeFromP2, mtimeUnset, true, true, true, false},
		{"removed", 'r', 0, 0, false, true, false, false},
		{"removed merged", 'r', sizeNonNormal, 0, false, true, true, false},
		{"removed from p2", 'r', sizeFromP2, 0, false, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			it, err := ItemFromV1(tt.state, 0o100644, tt.size, tt.mtime)
			require.NoError(t, err)
			assert.Equal(t, tt.wc, it.Tracked())
			assert.Equal(t, tt.p1, it.P1Tracked())
			assert.Equal(t, tt.p2, it.P2Info())
			assert.Equal(t, tt.hasMtime, it.HasMtime())
			assert.Equal(t, string(tt.state), string(it.V1State()))
		})
	}

	_, err := ItemFromV1('x', 0, 0, 0)
	assert.Error(t, err)
}

func TestItemMutators(t *testing.T) {
	t.Parallel()

	var it Item
	it.setClean(0o100755, 5, Timestamp{Sec: 9, Nsec: 1})
	assert.True(t, it.MaybeClean())
	assert.Equal(t, uint32(0o100755), it.Mode())
	assert.True(t, it.MtimeLikelyEqual(Timestamp{Sec: 9, Nsec: 1}))

	it.setPossiblyDirty()
	assert.False(t, it.HasMtime())
	assert.True(t, it.HasModeAndSize())

	it.setUntracked()
	assert.True(t, it.Removed())
	assert.False(t, it.HasModeAndSize())

	yes := true
	it.SetFallbackExec(&yes)
	v, ok := it.FallbackExec()
	assert.True(t, v)
	assert.True(t, ok)
	it.SetFallbackExec(nil)
	_, ok = it.FallbackExec()
	assert.False(t, ok)
}
