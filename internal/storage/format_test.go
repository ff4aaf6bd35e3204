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

package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirstate/internal/common"
)

func testNode(b byte) NodeID {
	var n NodeID
	for i := range n {
		n[i] = b
	}
	return n
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatV1, false},
		{"v1", FormatV1, false},
		{"V2", FormatV2, false},
		{"2", FormatV2, false},
		{"v3", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.err {
			assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, "v2", FormatV2.String())
}

func TestNodeID(t *testing.T) {
	t.Parallel()

	assert.True(t, NullID.IsNull())
	n := testNode(0xab)
	assert.False(t, n.IsNull())
	assert.Equal(t, "abababababab", n.Short())

	parsed, err := ParseNodeID(n.String())
	require.NoError(t, err)
	assert.Equal(t, n, parsed)

	_, err = ParseNodeID("xyz")
	assert.Error(t, err)
}

func TestV1RoundTrip(t *testing.T) {
	t.Parallel()

	parents := [2]NodeID{testNode(1), NullID}
	entries := []V1Entry{
		{State: 'n', Mode: ModeFile | 0o644, Size: 10, Mtime: 1700000000, Path: "a.txt"},
		{State: 'a', Mode: 0, Size: -1, Mtime: -1, Path: "dir/b", Copy: "a.txt"},
		{State: 'r', Path: "gone"},
		{State: 'm', Size: -2, Mtime: -1, Path: "merged"},
	}
	data := PackV1(parents, entries)
	assert.Equal(t, FormatV1, Detect(data))

	gotParents, gotEntries, err := ParseV1(data)
	require.NoError(t, err)
	assert.Equal(t, parents, gotParents)
	assert.Equal(t, entries, gotEntries)
}

func TestParseV1Empty(t *testing.T) {
	t.Parallel()

	parents, entries, err := ParseV1(nil)
	require.NoError(t, err)
	assert.Equal(t, [2]NodeID{}, parents)
	assert.Empty(t, entries)
}

func TestParseV1Corrupt(t *testing.T) {
	t.Parallel()

	good := PackV1([2]NodeID{}, []V1Entry{{State: 'n', Path: "abc"}})
	tests := map[string][]byte{
		"short parents":  good[:10],
		"truncated head": good[:45],
		"truncated name": good[:len(good)-1],
		"bad state":      append(append([]byte{}, good[:40]...), append([]byte{'x'}, good[41:]...)...),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseV1(data)
			assert.ErrorIs(t, err, common.ErrCorrupt)
		})
	}
}

func TestDocketRoundTrip(t *testing.T) {
	t.Parallel()

	d := &Docket{Parents: [2]NodeID{testNode(2), testNode(3)}, DataSize: 1234, ID: NewDataID()}
	assert.Len(t, d.ID, 32)
	data := d.Pack()
	assert.Equal(t, FormatV2, Detect(data))

	got, err := ParseDocket(data)
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.True(t, strings.HasPrefix(got.DataFileName(), "dirstate."))
}

func TestParseDocketCorrupt(t *testing.T) {
	t.Parallel()

	d := (&Docket{ID: NewDataID()}).Pack()
	for name, data := range map[string][]byte{
		"no marker": []byte("garbage"),
		"truncated": d[:len(DocketMarker)+10],
		"short id":  d[:len(d)-3],
	} {
		_, err := ParseDocket(data)
		assert.ErrorIs(t, err, common.ErrCorrupt, name)
	}
}

func TestV2DataRoundTrip(t *testing.T) {
	t.Parallel()

	entries := []V2Entry{
		{Flags: 0x7, Mode: ModeFile | 0o755, Size: 99, MtimeSec: 1700000000, MtimeNsec: 123456789, Path: "bin/run"},
		{Flags: 0x1, Path: "copied", Copy: "orig"},
	}
	got, err := ParseV2Data(PackV2Data(entries))
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	empty, err := ParseV2Data(PackV2Data(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseV2DataCorrupt(t *testing.T) {
	t.Parallel()

	good := PackV2Data([]V2Entry{{Path: "abc"}})
	for name, data := range map[string][]byte{
		"bad magic": append([]byte("XXXX"), good[4:]...),
		"truncated": good[:len(good)-1],
		"trailing":  append(append([]byte{}, good...), 0),
	} {
		_, err := ParseV2Data(data)
		assert.ErrorIs(t, err, common.ErrCorrupt, name)
	}
}

func TestTrackedHint(t *testing.T) {
	t.Parallel()

	a := PackTrackedHint()
	b := PackTrackedHint()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(string(a), "1\n"))

	tok, err := ParseTrackedHint(a)
	require.NoError(t, err)
	assert.Len(t, tok, 32)

	_, err = ParseTrackedHint([]byte("2\nabc\n"))
	assert.ErrorIs(t, err, common.ErrCorrupt)
}

func TestTx(t *testing.T) {
	t.Parallel()

	tx := NewTx()
	var ran []string
	tx.AddFinalizer("dirstate", func() error { ran = append(ran, "first"); return nil })
	tx.AddFinalizer("branch", func() error { ran = append(ran, "branch"); return nil })
	tx.AddFinalizer("dirstate", func() error { ran = append(ran, "dirstate"); return nil })
	assert.Equal(t, []string{"dirstate", "branch"}, tx.Pending())

	require.NoError(t, tx.Close())
	assert.Equal(t, []string{"dirstate", "branch"}, ran)
	assert.Error(t, tx.Close())

	aborted := NewTx()
	aborted.AddFinalizer("dirstate", func() error { t.Fatal("must not run"); return nil })
	aborted.Abort()
}
