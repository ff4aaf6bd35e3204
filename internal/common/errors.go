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
)

var (
	ErrNotFound          = errors.New("not found")
	ErrExists            = errors.New("already exists")
	ErrInvalidPath       = errors.New("invalid path")
	ErrNameConflict      = errors.New("name conflict")
	ErrSparseViolation   = errors.New("outside the sparse checkout")
	ErrCorrupt           = errors.New("dirstate corrupt")
	ErrUnsupportedFormat = errors.New("unsupported dirstate format")
	ErrNoBackup          = errors.New("no such backup")
	ErrIO                = errors.New("I/O error")
)

// AbortError is a user-facing failure. The operation that produced it has
// not persisted any partial mutation.
type AbortError struct {
	Op   string
	Path string
	Err  error
	Hint string
}

func (e *AbortError) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Err.Error()
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// Abort builds an AbortError for op on path.
func Abort(op, path string, err error) *AbortError {
	return &AbortError{Op: op, Path: path, Err: err}
}

// ProgrammingError reports caller misuse of the API, such as mutating
// parents outside a parent-change scope. It is never recovered from.
type ProgrammingError struct {
	Op  string
	Msg string
}

func (e *ProgrammingError) Error() string {
	return fmt.Sprintf("programming error: %s: %s", e.Op, e.Msg)
}

// Programming builds a ProgrammingError.
func Programming(op, format string, args ...any) *ProgrammingError {
	return &ProgrammingError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsAbort returns true if err is (or wraps) an AbortError.
func IsAbort(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}

// IsProgrammingError returns true if err is (or wraps) a ProgrammingError.
func IsProgrammingError(err error) bool {
	var pe *ProgrammingError
	return errors.As(err, &pe)
}

// IsUserFacing returns true if err should be reported to the user as-is
// rather than as an internal failure.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	if IsAbort(err) {
		return true
	}
	return errors.Is(err, ErrNameConflict) ||
		errors.Is(err, ErrSparseViolation) ||
		errors.Is(err, ErrCorrupt) ||
		errors.Is(err, ErrNoBackup)
}
