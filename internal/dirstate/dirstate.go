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

// Package dirstate tracks the state of every file in a working directory
// and compares it against the filesystem.
//
// A Dirstate is not safe for concurrent use. Callers must hold the
// repository write lock around every mutation.
package dirstate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"dirstate/internal/cache"
	"dirstate/internal/common"
	"dirstate/internal/ignore"
	"dirstate/internal/match"
	"dirstate/internal/storage"
)

// DefaultMetaDir is the metadata directory name under the working
// directory root.
const DefaultMetaDir = ".repo"

// Options configures a Dirstate.
type Options struct {
	MetaDir        string         // metadata directory name, default ".repo"
	Format         storage.Format // format used for writes
	UseTrackedHint bool           // maintain dirstate-tracked-hint

	CheckExec     bool  // the filesystem stores exec bits
	CheckLink     bool  // the filesystem stores symlinks
	CaseSensitive *bool // nil probes the filesystem

	Accelerated bool // allow the parallel status scan
	Workers     int  // parallel scan workers, 0 = GOMAXPROCS

	DirCacheSize int // directory listings kept by the normalizer

	// LoadIgnore builds the ignore rules on first use. Nil ignores nothing.
	LoadIgnore func() (ignore.Evaluator, error)
	// Sparse restricts which paths may be tracked. Nil allows every path.
	Sparse match.Matcher
	// Clock supplies the status boundary. Nil uses the metadata
	// directory's filesystem clock.
	Clock Clock
	// Cwd overrides the process working directory for Getcwd.
	Cwd string
}

// DefaultOptions returns the options of a freshly initialised repository.
func DefaultOptions() Options {
	return Options{
		MetaDir:     DefaultMetaDir,
		Format:      storage.FormatV1,
		CheckExec:   true,
		CheckLink:   true,
		Accelerated: true,
	}
}

// Dirstate is the working-directory state of one repository.
type Dirstate struct {
	opener storage.Opener
	root   string
	opts   Options
	clock  Clock

	// populated on first use, reset by Invalidate
	m            *StateMap
	branch       string
	branchLoaded bool
	ignore       ignore.Evaluator

	caseSensitive *bool
	dirCache      *cache.DirListCache

	fsys fileSystem

	// depth of nested ChangingParents calls
	depth int
	// bumped by Invalidate so scopes opened before it do not unwind
	scopeGen uint64

	// parents as loaded, set by the first parent change since then
	origParents     *[2]NodeID
	parentCallbacks map[string]ParentChangeFunc
}

// New returns a Dirstate reading its state through opener. root is the
// OS path of the working directory.
func New(opener storage.Opener, root string, opts Options) *Dirstate {
	if opts.MetaDir == "" {
		opts.MetaDir = DefaultMetaDir
	}
	if opts.Format == 0 {
		opts.Format = storage.FormatV1
	}
	d := &Dirstate{
		opener:        opener,
		root:          root,
		opts:          opts,
		clock:         opts.Clock,
		fsys:          osFS{},
		caseSensitive: opts.CaseSensitive,
		dirCache:      cache.NewDirListCache(opts.DirCacheSize),
	}
	if d.clock == nil {
		d.clock = FSClock(opener)
	}
	return d
}

// Open returns a Dirstate for the working directory at root, storing its
// state in root/<MetaDir>.
func Open(root string, opts Options) (*Dirstate, error) {
	if opts.MetaDir == "" {
		opts.MetaDir = DefaultMetaDir
	}
	meta := filepath.Join(root, opts.MetaDir)
	fi, err := os.Stat(meta)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", meta, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("open %s: not a directory", meta)
	}
	return New(storage.NewOpener(meta), root, opts), nil
}

// Root returns the working directory.
func (d *Dirstate) Root() string {
	return d.root
}

// Options returns the options the Dirstate was created with.
func (d *Dirstate) Options() Options {
	return d.opts
}

// Invalidate drops every cached field, including unsaved changes, and
// closes any parent-change scope left open by a failed callback. The next
// access reloads from disk.
func (d *Dirstate) Invalidate() {
	log.Debugf("[Dirstate.Invalidate] dropping in-memory state (dirty=%v depth=%d)", d.Dirty(), d.depth)
	d.m = nil
	d.branch, d.branchLoaded = "", false
	d.ignore = nil
	d.depth = 0
	d.scopeGen++
	d.origParents = nil
	d.dirCache.Invalidate()
}

// Dirty reports whether there are unsaved changes.
func (d *Dirstate) Dirty() bool {
	return d.m != nil && d.m.dirty
}

// Map returns the loaded state map.
func (d *Dirstate) Map() (*StateMap, error) {
	if d.m == nil {
		m, err := loadStateMap(d.opener, d.opts.Format)
		if err != nil {
			return nil, err
		}
		m.sparse = d.opts.Sparse
		d.m = m
	}
	return d.m, nil
}

func (d *Dirstate) ignoreRules() (ignore.Evaluator, error) {
	if d.ignore != nil {
		return d.ignore, nil
	}
	if d.opts.LoadIgnore == nil {
		d.ignore = ignore.None
		return d.ignore, nil
	}
	ev, err := d.opts.LoadIgnore()
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}
	d.ignore = ev
	return ev, nil
}

// Ignored reports whether path, or a directory above it, is ignored.
func (d *Dirstate) Ignored(path string) (bool, error) {
	ev, err := d.ignoreRules()
	if err != nil {
		return false, err
	}
	return ev.Ignored(path, false), nil
}

// IgnoreRule returns the rule that ignores path, when the loaded rules
// can name one.
func (d *Dirstate) IgnoreRule(path string) (ignore.Match, bool, error) {
	ev, err := d.ignoreRules()
	if err != nil {
		return ignore.Match{}, false, err
	}
	ex, ok := ev.(ignore.Explainer)
	if !ok {
		return ignore.Match{}, false, nil
	}
	m, ok := ex.Explain(path, false)
	return m, ok, nil
}

// requireNoScope guards mutations that must not run while parents change.
func (d *Dirstate) requireNoScope(op string) error {
	if d.depth > 0 {
		return common.Programming(op, "cannot be called while changing parents")
	}
	return nil
}

// requireScope guards mutations of the parents.
func (d *Dirstate) requireScope(op string) error {
	if d.depth <= 0 {
		return common.Programming(op, "must be called inside ChangingParents")
	}
	return nil
}

// Get returns the item recorded for path.
func (d *Dirstate) Get(path string) (Item, bool, error) {
	m, err := d.Map()
	if err != nil {
		return Item{}, false, err
	}
	it, ok := m.Get(path)
	return it, ok, nil
}

// SetTracked starts tracking path. It returns true if the path was not
// tracked before.
func (d *Dirstate) SetTracked(path string, resetCopy bool) (bool, error) {
	if err := d.requireNoScope("SetTracked"); err != nil {
		return false, err
	}
	m, err := d.Map()
	if err != nil {
		return false, err
	}
	return m.SetTracked(path, resetCopy)
}

// SetUntracked stops tracking path. It returns false if path was not tracked.
func (d *Dirstate) SetUntracked(path string) (bool, error) {
	if err := d.requireNoScope("SetUntracked"); err != nil {
		return false, err
	}
	m, err := d.Map()
	if err != nil {
		return false, err
	}
	return m.SetUntracked(path), nil
}

// SetClean records that path on disk matches p1 with the given metadata.
func (d *Dirstate) SetClean(path string, mode uint32, size int64, mtime Timestamp) error {
	if err := d.requireNoScope("SetClean"); err != nil {
		return err
	}
	m, err := d.Map()
	if err != nil {
		return err
	}
	return m.SetClean(path, mode, size, mtime)
}

// SetPossiblyDirty forces the next status to compare path's content.
func (d *Dirstate) SetPossiblyDirty(path string) error {
	if err := d.requireNoScope("SetPossiblyDirty"); err != nil {
		return err
	}
	m, err := d.Map()
	if err != nil {
		return err
	}
	return m.SetPossiblyDirty(path)
}

// MarkClean records path clean after its content was found identical to
// p1. The mtime is only kept when it is reliable against boundary;
// otherwise the file stays possibly dirty.
func (d *Dirstate) MarkClean(path string, st *StatResult, boundary Timestamp) error {
	mtime, ok := ReliableMtime(st, boundary)
	if !ok {
		return d.SetPossiblyDirty(path)
	}
	return d.SetClean(path, st.Mode, st.Size, mtime)
}

// Copy records dest as a copy of source. An empty source forgets the
// copy. dest must be tracked.
func (d *Dirstate) Copy(source, dest string) error {
	m, err := d.Map()
	if err != nil {
		return err
	}
	if source == dest {
		return nil
	}
	if source != "" {
		if it, ok := m.Get(dest); !ok || !it.Tracked() {
			return common.Abort("copy", dest, fmt.Errorf("destination is not tracked: %w", common.ErrNotFound))
		}
	}
	m.SetCopy(dest, source)
	return nil
}

// Copied returns the copy source of dest.
func (d *Dirstate) Copied(dest string) (string, bool, error) {
	m, err := d.Map()
	if err != nil {
		return "", false, err
	}
	src, ok := m.CopySource(dest)
	return src, ok, nil
}

// Copies returns every destination to source copy record.
func (d *Dirstate) Copies() (map[string]string, error) {
	m, err := d.Map()
	if err != nil {
		return nil, err
	}
	return m.Copies(), nil
}

// Matches returns the recorded paths, in any state, that m covers,
// sorted.
func (d *Dirstate) Matches(m match.Matcher) ([]string, error) {
	sm, err := d.Map()
	if err != nil {
		return nil, err
	}
	if m.Always() {
		return sm.Paths(), nil
	}
	known := func(f string, _ int) bool { _, ok := sm.items[f]; return ok }
	files := m.Files()
	switch {
	case m.IsExact():
		return lo.Filter(files, known), nil
	case m.PrefixOnly() && len(files) > 0 && lo.EveryBy(files, func(f string) bool { return known(f, 0) }):
		return append([]string(nil), files...), nil
	}
	return lo.Filter(sm.Paths(), func(f string, _ int) bool { return m.Matches(f) }), nil
}

// HasDir reports whether any recorded path lives under dir.
func (d *Dirstate) HasDir(dir string) (bool, error) {
	m, err := d.Map()
	if err != nil {
		return false, err
	}
	return m.HasDir(dir), nil
}

// HasTrackedDir reports whether any tracked path lives under dir.
func (d *Dirstate) HasTrackedDir(dir string) (bool, error) {
	m, err := d.Map()
	if err != nil {
		return false, err
	}
	return m.HasTrackedDir(dir), nil
}

// Getcwd returns the current directory relative to the root: "" at the
// root, or the absolute directory when it lies outside the working copy.
func (d *Dirstate) Getcwd() (string, error) {
	cwd := d.opts.Cwd
	if cwd == "" {
		var err error
		if cwd, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	cwd = filepath.Clean(cwd)
	root := filepath.Clean(d.root)
	if cwd == root {
		return "", nil
	}
	rootSep := root
	if !strings.HasSuffix(rootSep, string(filepath.Separator)) {
		rootSep += string(filepath.Separator)
	}
	if rel, ok := strings.CutPrefix(cwd, rootSep); ok {
		return filepath.ToSlash(rel), nil
	}
	return cwd, nil
}

// PathTo renders the repository-relative path f for display from cwd, as
// returned by Getcwd.
func (d *Dirstate) PathTo(f, cwd string) string {
	if cwd == "" {
		return filepath.FromSlash(f)
	}
	from := cwd
	if !filepath.IsAbs(from) {
		from = d.join(cwd)
	}
	rel, err := filepath.Rel(from, d.join(f))
	if err != nil {
		return d.join(f)
	}
	return rel
}

// join returns the OS path of a repository-relative path.
func (d *Dirstate) join(rel string) string {
	return common.JoinRoot(d.root, rel)
}
