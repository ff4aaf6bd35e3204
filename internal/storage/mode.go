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
)

// File type bits as stored in state records. They follow the POSIX
// st_mode layout so records stay comparable across platforms.
const (
	ModeMask    uint32 = 0o170000
	ModeDir     uint32 = 0o040000
	ModeFile    uint32 = 0o100000
	ModeSymlink uint32 = 0o120000

	ModeExec uint32 = 0o100
	ModePerm uint32 = 0o777
)

// UnixMode converts a Go file mode into POSIX st_mode bits.
// Types other than regular file, directory and symlink yield zero type bits.
func UnixMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m.IsRegular():
		mode |= ModeFile
	case m.IsDir():
		mode |= ModeDir
	case m&fs.ModeSymlink != 0:
		mode |= ModeSymlink
	}
	return mode
}

// IsDir returns true if mode describes a directory
func IsDir(mode uint32) bool {
	return mode&ModeMask == ModeDir
}

// IsFile returns true if mode describes a regular file
func IsFile(mode uint32) bool {
	return mode&ModeMask == ModeFile
}

// IsSymlink returns true if mode describes a symbolic link
func IsSymlink(mode uint32) bool {
	return mode&ModeMask == ModeSymlink
}

// Permissions returns the permission bits
func Permissions(mode uint32) uint32 {
	return mode & ModePerm
}
