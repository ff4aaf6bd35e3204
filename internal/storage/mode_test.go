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
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModePredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                  string
		mode                  uint32
		isDir, isFile, isLink bool
	}{
		{"directory", ModeDir | 0755, true, false, false},
		{"file", ModeFile | 0644, false, true, false},
		{"exec file", ModeFile | 0755, false, true, false},
		{"symlink", ModeSymlink | 0777, false, false, true},
		{"no type", 0644, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.isDir, IsDir(tt.mode), "mode=%o", tt.mode)
			assert.Equal(t, tt.isFile, IsFile(tt.mode), "mode=%o", tt.mode)
			assert.Equal(t, tt.isLink, IsSymlink(tt.mode), "mode=%o", tt.mode)
		})
	}
}

func TestUnixMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mode fs.FileMode
		want uint32
	}{
		{"regular", 0o644, ModeFile | 0o644},
		{"exec", 0o755, ModeFile | 0o755},
		{"dir", fs.ModeDir | 0o755, ModeDir | 0o755},
		{"symlink", fs.ModeSymlink | 0o777, ModeSymlink | 0o777},
		{"fifo", fs.ModeNamedPipe | 0o600, 0o600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, UnixMode(tt.mode))
		})
	}
}

func TestPermissions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint32(0o755), Permissions(ModeFile|0o755))
}

func TestFileIdentityChangesOnRewrite(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(p, []byte("one"), 0o644))
	fi1, err := os.Stat(p)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("three"), 0o644))
	fi2, err := os.Stat(p)
	require.NoError(t, err)

	assert.NotEqual(t, FileIdentity(fi1), FileIdentity(fi2))
}
