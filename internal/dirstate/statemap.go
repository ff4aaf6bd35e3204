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
	"fmt"
	"io/fs"
	"iter"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/cases"

	"dirstate/internal/common"
	"dirstate/internal/match"
	"dirstate/internal/storage"
)

// NodeID identifies a revision.
type NodeID = storage.NodeID

// NullID is the null revision.
var NullID = storage.NullID

// StateMap holds the item of every path the working copy knows about,
// the copy map (destination to source) and the caches derived from them.
type StateMap struct {
	opener storage.Opener
	format storage.Format

	parents [2]NodeID
	items   map[string]*Item
	copies  map[string]string

	docket   *storage.Docket
	identity string

	// built on first use, then kept in sync by every mutation
	trackedDirs dirCounts
	allDirs     dirCounts
	fileFold    map[string]string
	dirFold     map[string]string

	sparse match.Matcher

	dirty           bool
	dirtyTrackedSet bool
}

// foldCase returns the case-insensitive key of p.
func foldCase(p string) string {
	return cases.Fold().String(p)
}

// loadStateMap reads the state file through opener. A missing file
// yields an empty map with null parents. Writes use format.
func loadStateMap(opener storage.Opener, format storage.Format) (*StateMap, error) {
	m := &StateMap{
		opener: opener,
		format: format,
		items:  make(map[string]*Item),
		copies: make(map[string]string),
	}
	data, err := opener.Read(storage.StateFileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debugf("[StateMap.load] no state file, starting empty")
			return m, nil
		}
		return nil, err
	}

	switch storage.Detect(data) {
	case storage.FormatV2:
		err = m.loadV2(data)
	default:
		err = m.loadV1(data)
	}
	if err != nil {
		return nil, common.Abort("load dirstate", storage.StateFileName, err)
	}
	log.Debugf("[StateMap.load] loaded %d entries, %d copies", len(m.items), len(m.copies))
	return m, nil
}

func (m *StateMap) loadV1(data []byte) error {
	parents, entries, err := storage.ParseV1(data)
	if err != nil {
		return err
	}
	m.parents = parents
	for _, e := range entries {
		it, err := ItemFromV1(e.State, e.Mode, e.Size, e.Mtime)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", common.ErrCorrupt, e.Path, err)
		}
		m.items[e.Path] = &it
		if e.Copy != "" {
			m.copies[e.Path] = e.Copy
		}
	}
	if fi, err := m.opener.Stat(storage.StateFileName); err == nil {
		m.identity = storage.FileIdentity(fi)
	}
	return nil
}

func (m *StateMap) loadV2(data []byte) error {
	docket, err := storage.ParseDocket(data)
	if err != nil {
		return err
	}
	raw, err := m.opener.Read(docket.DataFileName())
	if err != nil {
		return fmt.Errorf("%w: data file %s: %v", common.ErrCorrupt, docket.DataFileName(), err)
	}
	if uint32(len(raw)) != docket.DataSize {
		return fmt.Errorf("%w: data file %s is %d bytes, docket says %d",
			common.ErrCorrupt, docket.DataFileName(), len(raw), docket.DataSize)
	}
	entries, err := storage.ParseV2Data(raw)
	if err != nil {
		return err
	}
	m.parents = docket.Parents
	for _, e := range entries {
		it := itemFromV2(e)
		m.items[e.Path] = &it
		if e.Copy != "" {
			m.copies[e.Path] = e.Copy
		}
	}
	m.docket = docket
	m.identity = docket.ID
	return nil
}

// Parents returns p1 and p2.
func (m *StateMap) Parents() [2]NodeID {
	return m.parents
}

// Get returns the item for path. A path with no item yields false.
func (m *StateMap) Get(path string) (Item, bool) {
	it, ok := m.items[path]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Len returns the number of items.
func (m *StateMap) Len() int {
	return len(m.items)
}

// Paths returns every recorded path, sorted.
func (m *StateMap) Paths() []string {
	paths := make([]string, 0, len(m.items))
	for p := range m.items {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// All yields every path and item in path order.
func (m *StateMap) All() iter.Seq2[string, Item] {
	return func(yield func(string, Item) bool) {
		for _, p := range m.Paths() {
			if !yield(p, *m.items[p]) {
				return
			}
		}
	}
}

// CopySource returns the copy source recorded for dest.
func (m *StateMap) CopySource(dest string) (string, bool) {
	src, ok := m.copies[dest]
	return src, ok
}

// Copies returns a copy of the copy map.
func (m *StateMap) Copies() map[string]string {
	out := make(map[string]string, len(m.copies))
	for k, v := range m.copies {
		out[k] = v
	}
	return out
}

// SetCopy records dest as copied from source. An empty source removes
// the record.
func (m *StateMap) SetCopy(dest, source string) {
	if source == "" {
		if _, ok := m.copies[dest]; ok {
			delete(m.copies, dest)
			m.dirty = true
		}
		return
	}
	m.copies[dest] = source
	m.dirty = true
}

// HasTrackedDir reports whether d is an ancestor of a tracked file.
func (m *StateMap) HasTrackedDir(d string) bool {
	m.buildDirs()
	return m.trackedDirs.has(d)
}

// HasDir reports whether d is an ancestor of any recorded file.
func (m *StateMap) HasDir(d string) bool {
	m.buildDirs()
	return m.allDirs.has(d)
}

func (m *StateMap) buildDirs() {
	if m.trackedDirs != nil {
		return
	}
	m.trackedDirs, m.allDirs = newDirCounts(), newDirCounts()
	for p, it := range m.items {
		m.allDirs.addPath(p)
		if it.Tracked() {
			m.trackedDirs.addPath(p)
		}
	}
}

// FileFoldMap returns the folded-key to path map of tracked files.
func (m *StateMap) FileFoldMap() map[string]string {
	if m.fileFold == nil {
		m.fileFold = make(map[string]string, len(m.items))
		for p, it := range m.items {
			if it.Tracked() {
				m.fileFold[foldCase(p)] = p
			}
		}
	}
	return m.fileFold
}

// DirFoldMap returns the folded-key to path map of tracked directories.
func (m *StateMap) DirFoldMap() map[string]string {
	if m.dirFold == nil {
		m.buildDirs()
		m.dirFold = make(map[string]string, len(m.trackedDirs))
		for d := range m.trackedDirs {
			m.dirFold[foldCase(d)] = d
		}
	}
	return m.dirFold
}

// state captures what the derived caches need to know about path before
// a mutation.
type state struct {
	present, tracked bool
}

func (m *StateMap) stateOf(path string) state {
	it, ok := m.items[path]
	return state{present: ok, tracked: ok && it.Tracked()}
}

// update brings the derived caches in line after path changed from old.
// Items nothing tracks any more are dropped.
func (m *StateMap) update(path string, old state) {
	if it, ok := m.items[path]; ok && !it.AnyTracked() {
		delete(m.items, path)
	}
	cur := m.stateOf(path)
	m.dirty = true

	if m.trackedDirs != nil {
		switch {
		case !old.present && cur.present:
			m.allDirs.addPath(path)
		case old.present && !cur.present:
			m.allDirs.delPath(path)
		}
		var created, removed []string
		switch {
		case !old.tracked && cur.tracked:
			created = m.trackedDirs.addPath(path)
		case old.tracked && !cur.tracked:
			removed = m.trackedDirs.delPath(path)
		}
		if m.dirFold != nil {
			for _, d := range created {
				m.dirFold[foldCase(d)] = d
			}
			for _, d := range removed {
				if k := foldCase(d); m.dirFold[k] == d {
					delete(m.dirFold, k)
				}
			}
		}
	}
	if m.fileFold != nil && old.tracked != cur.tracked {
		k := foldCase(path)
		if cur.tracked {
			m.fileFold[k] = path
		} else if m.fileFold[k] == path {
			delete(m.fileFold, k)
		}
	}
}

// checkNewTracked rejects a path that cannot start being tracked: bad
// names, names of tracked directories, paths below a tracked file and
// paths outside the sparse profile.
func (m *StateMap) checkNewTracked(path string) error {
	const op = "track"
	if err := common.CheckFilename(path); err != nil {
		return common.Abort(op, path, err)
	}
	if m.HasTrackedDir(path) {
		return common.Abort(op, path, fmt.Errorf("%w: directory already in dirstate", common.ErrNameConflict))
	}
	for _, d := range common.FindDirs(path) {
		if m.HasTrackedDir(d) {
			break
		}
		if it, ok := m.items[d]; ok && !it.Removed() {
			return common.Abort(op, path, fmt.Errorf("%w: file %s in dirstate clashes with %s", common.ErrNameConflict, d, path))
		}
	}
	if m.sparse != nil && !m.sparse.Always() && !m.sparse.Matches(path) {
		return &common.AbortError{
			Op: op, Path: path, Err: common.ErrSparseViolation,
			Hint: "include the file in the sparse profile first",
		}
	}
	return nil
}

// SetTracked starts tracking path in the working copy. It returns true
// if the path was not tracked before. resetCopy drops copy information.
func (m *StateMap) SetTracked(path string, resetCopy bool) (bool, error) {
	old := m.stateOf(path)
	if !old.tracked {
		if err := m.checkNewTracked(path); err != nil {
			return false, err
		}
	}

	it, ok := m.items[path]
	switch {
	case !ok:
		n := NewItem(true, false, false, false, nil)
		m.items[path] = &n
	case !it.Tracked():
		it.setTracked()
	default:
		it.setPossiblyDirty()
	}
	if resetCopy {
		delete(m.copies, path)
	}
	m.update(path, old)
	if !old.tracked {
		m.dirtyTrackedSet = true
	}
	return !old.tracked, nil
}

// SetUntracked stops tracking path in the working copy. It returns false
// if path was not tracked.
func (m *StateMap) SetUntracked(path string) bool {
	it, ok := m.items[path]
	if !ok || !it.Tracked() {
		return false
	}
	old := m.stateOf(path)
	if !it.P2Info() {
		delete(m.copies, path)
	}
	it.setUntracked()
	m.update(path, old)
	m.dirtyTrackedSet = true
	return true
}

// SetClean records path as identical to p1 with the given metadata.
func (m *StateMap) SetClean(path string, mode uint32, size int64, mtime Timestamp) error {
	old := m.stateOf(path)
	if !old.tracked {
		if err := m.checkNewTracked(path); err != nil {
			return err
		}
		m.dirtyTrackedSet = true
	}
	it, ok := m.items[path]
	if !ok {
		it = &Item{}
		m.items[path] = it
	}
	it.setClean(mode, size, mtime)
	delete(m.copies, path)
	m.update(path, old)
	return nil
}

// SetPossiblyDirty forces the next status to look at path.
func (m *StateMap) SetPossiblyDirty(path string) error {
	it, ok := m.items[path]
	if !ok {
		return fmt.Errorf("%s: %w", path, common.ErrNotFound)
	}
	it.setPossiblyDirty()
	m.dirty = true
	return nil
}

// ResetState replaces the item of path outright. Copy information is
// dropped. When no flag is set the item is removed.
func (m *StateMap) ResetState(path string, wcTracked, p1Tracked, p2Info, hasMeaningfulMtime bool, pfd *ParentFileData) {
	old := m.stateOf(path)
	delete(m.copies, path)
	if !(wcTracked || p1Tracked || p2Info) {
		if !old.present {
			return
		}
		delete(m.items, path)
	} else {
		n := NewItem(wcTracked, p1Tracked, p2Info, !hasMeaningfulMtime, pfd)
		m.items[path] = &n
	}
	if old.tracked != wcTracked {
		m.dirtyTrackedSet = true
	}
	m.update(path, old)
}

// SetParents replaces the parents. When fold is set, the second parent
// is going away: merge information is dropped and the copies of the
// affected files are returned so the caller can keep them.
func (m *StateMap) SetParents(p1, p2 NodeID, fold bool) map[string]string {
	m.parents = [2]NodeID{p1, p2}
	m.dirty = true
	copies := make(map[string]string)
	if !fold {
		return copies
	}
	for _, p := range m.Paths() {
		it := m.items[p]
		if !it.P2Info() {
			continue
		}
		old := m.stateOf(p)
		if src, ok := m.copies[p]; ok {
			copies[p] = src
			delete(m.copies, p)
		}
		it.dropMergeData()
		m.update(p, old)
	}
	return copies
}

// clearDirty marks the in-memory map as persisted.
func (m *StateMap) clearDirty() {
	m.dirty = false
	m.dirtyTrackedSet = false
}

// write persists the map in the configured format.
func (m *StateMap) write() error {
	switch m.format {
	case storage.FormatV2:
		return m.writeV2()
	default:
		return m.writeV1()
	}
}

func (m *StateMap) writeV1() error {
	paths := m.Paths()
	entries := make([]storage.V1Entry, 0, len(paths))
	for _, p := range paths {
		it := m.items[p]
		entries = append(entries, storage.V1Entry{
			State: it.V1State(),
			Mode:  it.V1Mode(),
			Size:  it.V1Size(),
			Mtime: it.V1Mtime(),
			Path:  p,
			Copy:  m.copies[p],
		})
	}
	if err := m.opener.AtomicWrite(storage.StateFileName, storage.PackV1(m.parents, entries)); err != nil {
		return err
	}
	if m.docket != nil {
		// switching from v2 leaves the old data file behind
		if err := m.opener.Unlink(m.docket.DataFileName()); err != nil {
			log.Warnf("[StateMap.writeV1] removing %s: %v", m.docket.DataFileName(), err)
		}
		m.docket = nil
	}
	if fi, err := m.opener.Stat(storage.StateFileName); err == nil {
		m.identity = storage.FileIdentity(fi)
	}
	return nil
}

func (m *StateMap) writeV2() error {
	paths := m.Paths()
	entries := make([]storage.V2Entry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, m.items[p].v2Entry(p, m.copies[p]))
	}
	data := storage.PackV2Data(entries)
	docket := &storage.Docket{Parents: m.parents, DataSize: uint32(len(data)), ID: storage.NewDataID()}

	if err := m.opener.AtomicWrite(docket.DataFileName(), data); err != nil {
		return err
	}
	if err := m.opener.AtomicWrite(storage.StateFileName, docket.Pack()); err != nil {
		m.opener.Unlink(docket.DataFileName())
		return err
	}
	if m.docket != nil {
		if err := m.opener.Unlink(m.docket.DataFileName()); err != nil {
			log.Warnf("[StateMap.writeV2] removing %s: %v", m.docket.DataFileName(), err)
		}
	}
	m.docket = docket
	m.identity = docket.ID
	return nil
}
