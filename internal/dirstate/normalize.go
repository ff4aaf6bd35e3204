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
	"os"
	"path/filepath"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"

	"dirstate/internal/common"
)

// IsCaseSensitive reports whether the working directory's filesystem
// distinguishes names that differ only in case. Unless set in Options,
// the answer is probed once on the metadata directory.
func (d *Dirstate) IsCaseSensitive() bool {
	if d.caseSensitive == nil {
		v := probeCaseSensitive(d.join(d.opts.MetaDir))
		log.Debugf("[Dirstate.IsCaseSensitive] probed %s: %v", d.opts.MetaDir, v)
		d.caseSensitive = &v
	}
	return *d.caseSensitive
}

// probeCaseSensitive looks path up under a case-swapped name. The
// filesystem folds case when both names reach the same file.
func probeCaseSensitive(path string) bool {
	fi, err := os.Lstat(path)
	if err != nil {
		return true
	}
	dir, base := filepath.Split(path)
	swapped := swapCase(base)
	if swapped == base {
		return true
	}
	other, err := os.Lstat(filepath.Join(dir, swapped))
	if err != nil {
		return true
	}
	return !os.SameFile(fi, other)
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsUpper(r):
			return unicode.ToLower(r)
		case unicode.IsLower(r):
			return unicode.ToUpper(r)
		}
		return r
	}, s)
}

// Normalize returns path spelled the way the working copy knows it. On a
// case-sensitive filesystem path is returned unchanged. Otherwise tracked
// files and directories win, then the spelling found on disk. isKnown
// skips the disk lookup. A path missing from disk keeps the caller's
// spelling; with ignoreMissing its existing parent directories are still
// normalized.
func (d *Dirstate) Normalize(path string, isKnown, ignoreMissing bool) (string, error) {
	if d.IsCaseSensitive() {
		return path, nil
	}
	m, err := d.Map()
	if err != nil {
		return "", err
	}
	n := normalizer{d: d, m: m}
	return n.normalize(path, isKnown, ignoreMissing, nil), nil
}

// NormalizeFile is Normalize restricted to file names: directory
// spellings recorded in the map are not consulted.
func (d *Dirstate) NormalizeFile(path string, isKnown, ignoreMissing bool) (string, error) {
	if d.IsCaseSensitive() {
		return path, nil
	}
	m, err := d.Map()
	if err != nil {
		return "", err
	}
	n := normalizer{d: d, m: m}
	return n.normalizeFile(path, isKnown, ignoreMissing, nil), nil
}

type normalizer struct {
	d *Dirstate
	m *StateMap
}

func (n normalizer) normalizeFile(path string, isKnown, ignoreMissing bool, exists *bool) string {
	key := foldCase(path)
	fileFold := n.m.FileFoldMap()
	if folded, ok := fileFold[key]; ok {
		return folded
	}
	if isKnown {
		return path
	}
	return n.discover(path, key, ignoreMissing, exists, fileFold)
}

func (n normalizer) normalize(path string, isKnown, ignoreMissing bool, exists *bool) string {
	key := foldCase(path)
	if folded, ok := n.m.FileFoldMap()[key]; ok {
		return folded
	}
	dirFold := n.m.DirFoldMap()
	if folded, ok := dirFold[key]; ok {
		return folded
	}
	if isKnown {
		return path
	}
	// discovered names go to the directory map so that file lookups do
	// not start matching directories
	return n.discover(path, key, ignoreMissing, exists, dirFold)
}

// discover finds the on-disk spelling of path and records it in store.
func (n normalizer) discover(path, key string, ignoreMissing bool, exists *bool, store map[string]string) string {
	var found bool
	if exists != nil {
		found = *exists
	} else {
		_, err := n.d.fsys.Lstat(n.d.join(path))
		found = err == nil
	}
	if !found {
		if ignoreMissing && strings.Contains(path, "/") {
			dir, base := common.SplitDirBase(path)
			return n.normalize(dir, false, ignoreMissing, nil) + "/" + base
		}
		return path
	}

	var folded string
	if strings.Contains(key, "/") {
		dir, base := common.SplitDirBase(key)
		yes := true
		dir = n.normalize(dir, false, ignoreMissing, &yes)
		folded = dir + "/" + n.fspath(dir, base)
	} else {
		folded = n.fspath("", key)
	}
	store[key] = folded
	return folded
}

// fspath returns the spelling of the entry of dir whose folded name is
// key, or key itself when the directory has no such entry.
func (n normalizer) fspath(dir, key string) string {
	cache := n.d.dirCache
	listing, cached := cache.Get(dir)
	if !cached {
		listing = n.list(dir)
		cache.Add(dir, listing)
	}
	if name, ok := listing[key]; ok {
		return name
	}
	if cached {
		// the cached listing may predate the entry
		listing = n.list(dir)
		cache.Add(dir, listing)
		if name, ok := listing[key]; ok {
			return name
		}
	}
	return key
}

func (n normalizer) list(dir string) map[string]string {
	entries, err := n.d.fsys.ReadDir(n.d.join(dir))
	if err != nil {
		log.Debugf("[normalizer.list] %q: %v", dir, err)
		return map[string]string{}
	}
	listing := make(map[string]string, len(entries))
	for _, e := range entries {
		listing[foldCase(e.Name())] = e.Name()
	}
	return listing
}
