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
	"sort"
	"strings"
	"sync"
	"syscall"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"dirstate/internal/common"
	"dirstate/internal/ignore"
	"dirstate/internal/match"
)

// walkResults maps a path to its lstat result. A nil value means the
// path is known to the map but missing from disk.
type walkResults map[string]*StatResult

// dirWork is a directory found by the explicit phase: norm is the
// spelling the walk uses, orig the one the matcher gave.
type dirWork struct {
	norm, orig string
}

// walker holds the parameters of one walk.
type walker struct {
	d       *Dirstate
	sm      *StateMap
	m       match.Matcher
	rules   ignore.Evaluator
	metaDir string

	subrepos    []string
	listUnknown bool
	full        bool

	// ignore of files and traversed directories, and of explicit dirs
	ignore    func(path string, isDir bool) bool
	dirIgnore func(path string) bool

	exact     bool
	skipStep3 bool
	// set on case-insensitive filesystems when not exact
	fold *normalizer

	traverseDir func(dir string)

	badMu sync.Mutex
}

var (
	never  = func(string, bool) bool { return false }
	always = func(string, bool) bool { return true }
)

// newWalker prepares a walk. The sparse profile is folded into the
// matcher so that explicitly named files stay visible.
func (d *Dirstate) newWalker(m match.Matcher, subrepos []string, unknown, ignored, full bool) (*walker, error) {
	sm, err := d.Map()
	if err != nil {
		return nil, err
	}
	rules, err := d.ignoreRules()
	if err != nil {
		return nil, err
	}
	w := &walker{
		d:           d,
		sm:          sm,
		rules:       rules,
		metaDir:     d.opts.MetaDir,
		subrepos:    append([]string(nil), subrepos...),
		listUnknown: unknown,
		full:        full,
	}
	sort.Strings(w.subrepos)

	switch {
	case ignored:
		w.ignore = never
	case unknown:
		w.ignore = rules.Ignored
	default:
		// neither unknown nor ignored files are wanted: no traversal
		w.ignore = always
	}
	w.dirIgnore = func(p string) bool { return w.ignore(p, true) }

	if sparse := d.opts.Sparse; sparse != nil && !sparse.Always() {
		m = match.Intersection(m, match.Union(sparse, match.Exact(m.Files()...)))
	}
	w.m = m

	switch {
	case m.IsExact():
		w.exact = true
		w.dirIgnore = func(string) bool { return true }
	case m.PrefixOnly():
		w.skipStep3 = true
	}
	if !w.exact && !d.IsCaseSensitive() {
		w.fold = &normalizer{d: d, m: sm}
		w.skipStep3 = false
	}
	return w, nil
}

// Walk lists the files matched by m together with their lstat results.
// Tracked files missing from disk map to nil. unknown and ignored select
// which untracked files are listed. Without full, removed records are
// not stat'ed. Paths inside subrepos are skipped.
func (d *Dirstate) Walk(m match.Matcher, subrepos []string, unknown, ignored, full bool) (map[string]*StatResult, error) {
	w, err := d.newWalker(m, subrepos, unknown, ignored, full)
	if err != nil {
		return nil, err
	}
	return w.run()
}

func (w *walker) run() (walkResults, error) {
	results, work, dirsNotFound := w.explicit()
	skipStep3 := w.skipStep3 && len(work) == 0 && len(dirsNotFound) == 0
	for _, wk := range work {
		if w.dirIgnore(wk.norm) {
			continue
		}
		alreadyNormed := w.fold == nil || wk.norm == wk.orig
		if err := w.traverse(results, wk.orig, alreadyNormed); err != nil {
			return nil, err
		}
	}
	w.dropSentinels(results)
	if !skipStep3 && !w.exact {
		w.residual(results, w.residualPaths(results))
	}
	return results, nil
}

// bad reports a per-path problem through the matcher.
func (w *walker) bad(path string, err error) {
	log.Debugf("[walker] %s: %v", path, err)
	w.badMu.Lock()
	defer w.badMu.Unlock()
	w.m.Bad(path, err)
}

// badType describes a file that is neither regular, a symlink nor a
// directory.
func badType(mode fs.FileMode) error {
	kind := "unknown"
	switch {
	case mode&fs.ModeNamedPipe != 0:
		kind = "fifo"
	case mode&fs.ModeSocket != 0:
		kind = "socket"
	case mode&fs.ModeCharDevice != 0:
		kind = "character device"
	case mode&fs.ModeDevice != 0:
		kind = "block device"
	}
	return fmt.Errorf("unsupported file type (type is %s)", kind)
}

// explicit stats every file the matcher names. Directories are returned
// for traversal; paths missing from disk under a known directory are
// returned as dirsNotFound.
func (w *walker) explicit() (walkResults, []dirWork, []string) {
	files := append([]string(nil), w.m.Files()...)
	sort.Strings(files)
	files = w.withoutSubrepos(files)

	var normalize func(string) string
	if !w.m.IsExact() && w.fold != nil {
		normalize = func(p string) string { return w.fold.normalize(p, false, true, nil) }
	}
	if len(files) == 0 || lo.Contains(files, "") {
		files = []string{""}
		normalize = nil
	}

	results := make(walkResults, len(files)+len(w.subrepos)+1)
	for _, s := range w.subrepos {
		results[s] = nil
	}
	results[w.metaDir] = nil

	var (
		work         []dirWork
		dirsNotFound []string
	)
	for _, ff := range files {
		nf := ff
		if normalize != nil {
			nf = normalize(ff)
		}
		if _, ok := results[nf]; ok {
			continue
		}
		_, known := w.sm.items[nf]
		fi, err := w.d.fsys.Lstat(w.d.join(nf))
		switch {
		case err != nil:
			switch {
			case known:
				results[nf] = nil
			case w.sm.HasDir(nf):
				dirsNotFound = append(dirsNotFound, nf)
			default:
				w.bad(ff, err)
			}
		case fi.IsDir():
			if known {
				// file replaced by a directory
				results[nf] = nil
			}
			work = append(work, dirWork{norm: nf, orig: ff})
		case fi.Mode().IsRegular() || fi.Mode()&fs.ModeSymlink != 0:
			results[nf] = statOf(fi)
		default:
			w.bad(ff, badType(fi.Mode()))
			if known {
				results[nf] = nil
			}
		}
	}

	// explicitly named paths may still fail a pattern
	if k := w.m.Kind(); k != match.KindAlways && k != match.KindExact && !w.m.PrefixOnly() {
		subs := mapset.NewThreadUnsafeSet(w.subrepos...)
		for p := range results {
			if p == w.metaDir || subs.Contains(p) {
				continue
			}
			if !w.m.Matches(p) {
				delete(results, p)
			}
		}
	}

	if w.m.IsExact() && !w.d.IsCaseSensitive() {
		w.pruneCaseCollisions(results)
	}
	return results, work, dirsNotFound
}

// withoutSubrepos drops the sorted files that live inside a subrepo.
func (w *walker) withoutSubrepos(files []string) []string {
	if len(w.subrepos) == 0 {
		return files
	}
	out := files[:0]
	for _, f := range files {
		inside := false
		for _, s := range w.subrepos {
			if strings.HasPrefix(f, s+"/") {
				inside = true
				break
			}
		}
		if !inside {
			out = append(out, f)
		}
	}
	return out
}

// pruneCaseCollisions keeps the stat result of a case-colliding group
// only for the spelling found on disk.
func (w *walker) pruneCaseCollisions(results walkResults) {
	groups := make(map[string][]string)
	for p, st := range results {
		if st == nil {
			continue
		}
		k := foldCase(p)
		groups[k] = append(groups[k], p)
	}
	n := normalizer{d: w.d, m: w.sm}
	for k, paths := range groups {
		if len(paths) < 2 {
			continue
		}
		for _, p := range paths {
			if n.discover(p, k, true, nil, w.sm.DirFoldMap()) != p {
				results[p] = nil
			}
		}
	}
}

func (w *walker) dropSentinels(results walkResults) {
	for _, s := range w.subrepos {
		delete(results, s)
	}
	delete(results, w.metaDir)
}

// listing is one directory entry as seen by the traversal.
type listing struct {
	name string
	mode fs.FileMode
	st   *StatResult
}

// errNestedRepo marks a directory holding its own metadata directory.
var errNestedRepo = errors.New("nested repository")

// listDir returns the entries of the repository directory dir with their
// lstat results. Below the root, a directory containing the metadata
// directory yields errNestedRepo.
func (w *walker) listDir(dir string) ([]listing, error) {
	entries, err := w.d.fsys.ReadDir(w.d.join(dir))
	if err != nil {
		return nil, err
	}
	out := make([]listing, 0, len(entries))
	for _, e := range entries {
		if dir != "" && e.Name() == w.metaDir {
			return nil, errNestedRepo
		}
		fi, err := e.Info()
		if err != nil {
			// vanished since the listing
			continue
		}
		out = append(out, listing{name: e.Name(), mode: fi.Mode(), st: statOf(fi)})
	}
	return out, nil
}

// recoverable reports listing errors that are reported per path.
func recoverable(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOTDIR)
}

// visitEntries handles the listing of dir, adding matched files to
// results through add and returning the subdirectories to visit.
// Entries already present according to has are left alone.
func (w *walker) visitEntries(dir string, entries []listing, alreadyNormed bool, has func(string) bool, add func(string, *StatResult)) []string {
	var subdirs []string
	for _, e := range entries {
		nf := common.JoinPath(dir, e.name)
		if w.fold != nil {
			// only compared against recorded files
			nf = w.fold.normalizeFile(nf, true, true, nil)
		}
		if has(nf) {
			continue
		}
		_, known := w.sm.items[nf]
		switch {
		case e.mode.IsDir():
			if !w.ignore(nf, true) {
				if w.traverseDir != nil {
					w.traverseDir(nf)
				}
				subdirs = append(subdirs, nf)
			}
			if known && w.m.Matches(nf) {
				add(nf, nil)
			}
		case e.mode.IsRegular() || e.mode&fs.ModeSymlink != 0:
			switch {
			case known:
				if w.m.Matches(nf) {
					add(nf, e.st)
				}
			case w.m.Matches(nf) && !w.ignore(nf, false):
				if !alreadyNormed && w.fold != nil {
					nf = w.fold.normalize(nf, false, true, nil)
				}
				add(nf, e.st)
			}
		case known && w.m.Matches(nf):
			add(nf, nil)
		}
	}
	return subdirs
}

// traverse visits root and its subdirectories depth first. Permission
// and missing-file errors are reported through the matcher; any other
// listing error ends the walk.
func (w *walker) traverse(results walkResults, root string, alreadyNormed bool) error {
	has := func(p string) bool { return hasKey(results, p) }
	add := func(p string, st *StatResult) {
		if _, ok := results[p]; !ok {
			results[p] = st
		}
	}
	work := []string{root}
	for len(work) > 0 {
		dir := work[len(work)-1]
		work = work[:len(work)-1]
		if w.m.VisitDir(dir) == match.VisitNone {
			continue
		}
		entries, err := w.listDir(dir)
		switch {
		case errors.Is(err, errNestedRepo):
			continue
		case err != nil && recoverable(err):
			w.bad(dir, err)
			continue
		case err != nil:
			return fmt.Errorf("listing %q: %w", dir, err)
		}
		work = append(work, w.visitEntries(dir, entries, alreadyNormed, has, add)...)
	}
	return nil
}

// residualPaths returns the recorded paths the earlier phases did not
// cover and the matcher accepts, sorted.
func (w *walker) residualPaths(results walkResults) []string {
	var visit []string
	for p := range w.sm.items {
		if _, ok := results[p]; ok {
			continue
		}
		if w.m.Matches(p) {
			visit = append(visit, p)
		}
	}
	sort.Strings(visit)
	return visit
}

// residual fills in recorded paths the traversal did not reach.
func (w *walker) residual(results walkResults, visit []string) {
	if w.listUnknown {
		// everything reachable was traversed: what is left is ignored,
		// missing or below a symlink
		audit := newPathAuditor(w.d.fsys, w.d.root)
		for _, nf := range visit {
			switch {
			case w.fold != nil && hasKey(results, w.fold.normalizeFile(nf, true, true, nil)):
				results[nf] = nil
			case audit.check(nf):
				st, err := w.d.lstat(nf)
				if err != nil {
					st = nil
				}
				results[nf] = st
			default:
				results[nf] = nil
			}
		}
		return
	}
	for _, nf := range visit {
		results[nf] = w.statRecorded(nf)
	}
}

// statRecorded lstats a recorded path. Removed records are skipped when
// the caller does not need full results.
func (w *walker) statRecorded(p string) *StatResult {
	if !w.full {
		if it, ok := w.sm.items[p]; ok && it.Removed() {
			return nil
		}
	}
	st, err := w.d.lstat(p)
	if err != nil {
		return nil
	}
	return st
}

func hasKey(results walkResults, p string) bool {
	_, ok := results[p]
	return ok
}

// pathAuditor checks that a path is reachable without crossing a
// symlinked directory or a nested repository.
type pathAuditor struct {
	fsys    fileSystem
	root    string
	audited map[string]bool
}

func newPathAuditor(fsys fileSystem, root string) *pathAuditor {
	return &pathAuditor{fsys: fsys, root: root, audited: make(map[string]bool)}
}

func (a *pathAuditor) check(p string) bool {
	dirs := common.FindDirs(p)
	for i := len(dirs) - 1; i >= 0; i-- {
		if !a.checkDir(dirs[i]) {
			return false
		}
	}
	return true
}

func (a *pathAuditor) checkDir(dir string) bool {
	if ok, seen := a.audited[dir]; seen {
		return ok
	}
	ok := true
	fi, err := a.fsys.Lstat(common.JoinRoot(a.root, dir))
	if err == nil && fi.Mode()&fs.ModeSymlink != 0 {
		ok = false
	}
	a.audited[dir] = ok
	return ok
}
