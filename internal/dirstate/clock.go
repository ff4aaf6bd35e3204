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
	"fmt"

	"dirstate/internal/storage"
)

// Clock reports the current time as seen by the filesystem holding the
// working directory. Status uses it as the boundary for ambiguous mtimes.
type Clock interface {
	Now() (Timestamp, error)
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() (Timestamp, error)

func (f ClockFunc) Now() (Timestamp, error) { return f() }

// FixedClock always reports t.
func FixedClock(t Timestamp) Clock {
	return ClockFunc(func() (Timestamp, error) { return t, nil })
}

type fsClock struct {
	opener storage.Opener
}

// FSClock reads the time from the mtime of a scratch file created
// through opener, so that the boundary follows the filesystem clock
// rather than the local one.
func FSClock(opener storage.Opener) Clock {
	return fsClock{opener: opener}
}

func (c fsClock) Now() (Timestamp, error) {
	name, err := c.opener.TempFile(".dirstate-now-")
	if err != nil {
		return Timestamp{}, fmt.Errorf("probing filesystem clock: %w", err)
	}
	defer c.opener.Unlink(name)
	fi, err := c.opener.Stat(name)
	if err != nil {
		return Timestamp{}, fmt.Errorf("probing filesystem clock: %w", err)
	}
	return MtimeOf(fi), nil
}
