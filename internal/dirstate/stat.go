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
	"io/fs"
	"os"

	"dirstate/internal/storage"
)

// StatResult is the part of an lstat result the status engine compares.
type StatResult struct {
	Mode  uint32 // POSIX type and permission bits
	Size  int64
	Mtime Timestamp
}

// statOf converts an lstat result.
func statOf(fi fs.FileInfo) *StatResult {
	return &StatResult{
		Mode:  storage.UnixMode(fi.Mode()),
		Size:  fi.Size(),
		Mtime: MtimeOf(fi),
	}
}

// Lstat stats an OS path without following a final symlink.
func Lstat(path string) (*StatResult, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	return statOf(fi), nil
}

func (s *StatResult) IsDir() bool     { return storage.IsDir(s.Mode) }
func (s *StatResult) IsFile() bool    { return storage.IsFile(s.Mode) }
func (s *StatResult) IsSymlink() bool { return storage.IsSymlink(s.Mode) }
