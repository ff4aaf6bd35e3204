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
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NormalizePath cleans a repository-relative path. The result always uses
// forward slashes and carries no leading or trailing slash; the repository
// root is the empty string.
func NormalizePath(p string) string {
	p = path.Clean(filepath.ToSlash(p))
	p = strings.Trim(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// SplitPath splits a path into its components
func SplitPath(p string) []string {
	p = NormalizePath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// JoinPath joins path components
func JoinPath(parts ...string) string {
	return NormalizePath(path.Join(parts...))
}

// ParentPath returns the parent directory of a path, "" for top-level entries.
func ParentPath(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// BaseName returns the last component of a path
func BaseName(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

// SplitDirBase splits p into its parent directory and base name.
func SplitDirBase(p string) (string, string) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

// FindDirs returns every ancestor directory of p, deepest first.
// The repository root ("") is not included.
func FindDirs(p string) []string {
	var dirs []string
	for {
		i := strings.LastIndexByte(p, '/')
		if i < 0 {
			return dirs
		}
		p = p[:i]
		dirs = append(dirs, p)
	}
}

// IsUnder reports whether p equals dir or lives below it.
// Every path is under the root ("").
func IsUnder(p, dir string) bool {
	if dir == "" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// JoinRoot converts a repository-relative path to an OS path under root.
func JoinRoot(root, rel string) string {
	if rel == "" {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}

// CheckFilename rejects names that cannot be stored in the state file.
func CheckFilename(p string) error {
	if p == "" || strings.ContainsAny(p, "\n\r\x00") {
		return fmt.Errorf("%q: %w", p, ErrInvalidPath)
	}
	return nil
}

// FindRoot walks up from start looking for a directory containing metaDir.
func FindRoot(start, metaDir string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(filepath.Join(dir, metaDir)); err == nil && fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s directory found from %s: %w", metaDir, start, ErrNotFound)
		}
		dir = parent
	}
}
