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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirstate/internal/storage"
)

func TestFSClock(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	before := time.Now().Add(-2 * time.Second)
	now, err := FSClock(storage.NewOpener(dir)).Now()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, now.Sec, TimestampOf(before).Sec)
	assert.LessOrEqual(t, now.Sec, TimestampOf(time.Now().Add(2*time.Second)).Sec)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch file removed")
}

func TestClockFunc(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := ClockFunc(func() (Timestamp, error) { return Timestamp{}, boom }).Now()
	assert.ErrorIs(t, err, boom)

	got, err := FixedClock(boundary).Now()
	require.NoError(t, err)
	assert.Equal(t, boundary, got)
}
