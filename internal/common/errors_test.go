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

package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorDefinitions(t *testing.T) {
	t.Parallel()

	errs := []error{
		ErrNotFound,
		ErrExists,
		ErrInvalidPath,
		ErrNameConflict,
		ErrSparseViolation,
		ErrCorrupt,
		ErrUnsupportedFormat,
		ErrNoBackup,
		ErrIO,
	}

	t.Run("all errors are non-nil", func(t *testing.T) {
		t.Parallel()
		for i, err := range errs {
			require.NotNil(t, err, "error at index %d should not be nil", i)
		}
	})

	t.Run("all error messages are unique", func(t *testing.T) {
		t.Parallel()
		seen := make(map[string]bool)
		for _, err := range errs {
			msg := err.Error()
			assert.False(t, seen[msg], "duplicate error message: %s", msg)
			seen[msg] = true
		}
	})
}

func TestAbortError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *AbortError
		want string
	}{
		{"op only", Abort("add", "", ErrInvalidPath), "add: invalid path"},
		{"with path", Abort("add", "a/b", ErrNameConflict), "add a/b: name conflict"},
		{"with hint", &AbortError{Op: "restore", Path: "bk", Err: ErrNoBackup, Hint: "run backup save first"},
			"restore bk: no such backup (run backup save first)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	t.Run("abort unwraps to its cause", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("outer: %w", Abort("add", "x", ErrSparseViolation))
		assert.True(t, IsAbort(err))
		assert.True(t, errors.Is(err, ErrSparseViolation))
		assert.True(t, IsUserFacing(err))
	})

	t.Run("programming error", func(t *testing.T) {
		t.Parallel()
		err := Programming("SetParents", "called outside %s", "ChangingParents")
		assert.Equal(t, "programming error: SetParents: called outside ChangingParents", err.Error())
		assert.True(t, IsProgrammingError(fmt.Errorf("wrap: %w", err)))
		assert.False(t, IsUserFacing(err))
	})

	t.Run("plain sentinels", func(t *testing.T) {
		t.Parallel()
		assert.True(t, IsUserFacing(fmt.Errorf("x: %w", ErrCorrupt)))
		assert.False(t, IsUserFacing(ErrIO))
		assert.False(t, IsUserFacing(nil))
	})
}
