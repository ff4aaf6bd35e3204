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

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"dirstate/internal/common"
	"dirstate/internal/storage"
)

// DefaultBranch is reported when no branch file exists.
const DefaultBranch = "default"

// ChangingParents runs fn inside a parent-change scope. Scopes nest; the
// guard is released when the outermost scope returns. If fn fails the
// scope is not closed and every further write is refused until
// Invalidate. A scope that outlives an Invalidate (RestoreBackup calls it)
// leaves the depth alone on exit.
func (d *Dirstate) ChangingParents(fn func() error) error {
	d.depth++
	gen := d.scopeGen
	log.Tracef("[Dirstate.ChangingParents] enter depth=%d", d.depth)
	if err := fn(); err != nil {
		log.Debugf("[Dirstate.ChangingParents] aborted at depth=%d: %v", d.depth, err)
		return err
	}
	if gen == d.scopeGen && d.depth > 0 {
		d.depth--
	}
	return nil
}

// ChangingParentsActive reports whether a parent-change scope is open.
func (d *Dirstate) ChangingParentsActive() bool {
	return d.depth > 0
}

// Parents returns p1 and p2.
func (d *Dirstate) Parents() ([2]NodeID, error) {
	m, err := d.Map()
	if err != nil {
		return [2]NodeID{}, err
	}
	return m.Parents(), nil
}

// P1 returns the first parent.
func (d *Dirstate) P1() (NodeID, error) {
	p, err := d.Parents()
	return p[0], err
}

// P2 returns the second parent, NullID outside a merge.
func (d *Dirstate) P2() (NodeID, error) {
	p, err := d.Parents()
	return p[1], err
}

// InMerge reports whether the second parent is set.
func (d *Dirstate) InMerge() (bool, error) {
	p2, err := d.P2()
	return !p2.IsNull(), err
}

// SetParents sets the working directory parents. When p2 becomes null
// after a merge, merge information is dropped and the copy records of the
// files that carried it are returned.
func (d *Dirstate) SetParents(p1, p2 NodeID) (map[string]string, error) {
	if err := d.requireScope("SetParents"); err != nil {
		return nil, err
	}
	m, err := d.Map()
	if err != nil {
		return nil, err
	}
	old := m.Parents()
	d.rememberParents(m)
	fold := !old[1].IsNull() && p2.IsNull()
	log.Debugf("[Dirstate.SetParents] %s %s -> %s %s (fold=%v)", old[0].Short(), old[1].Short(), p1.Short(), p2.Short(), fold)
	return m.SetParents(p1, p2, fold), nil
}

// ParentChangeFunc is notified when a write persists new parents.
type ParentChangeFunc func(d *Dirstate, old, new [2]NodeID)

// AddParentChangeCallback registers fn under category, replacing any
// callback registered under the same category. Callbacks run in category
// order from Write when the parents differ from those loaded.
func (d *Dirstate) AddParentChangeCallback(category string, fn ParentChangeFunc) {
	if d.parentCallbacks == nil {
		d.parentCallbacks = make(map[string]ParentChangeFunc)
	}
	d.parentCallbacks[category] = fn
}

func (d *Dirstate) rememberParents(m *StateMap) {
	if d.origParents == nil {
		p := m.Parents()
		d.origParents = &p
	}
}

// notifyParentChange runs the callbacks once per persisted change.
func (d *Dirstate) notifyParentChange(m *StateMap) {
	if d.origParents == nil {
		return
	}
	old, cur := *d.origParents, m.Parents()
	d.origParents = nil
	if old == cur {
		return
	}
	categories := lo.Keys(d.parentCallbacks)
	sort.Strings(categories)
	for _, category := range categories {
		log.Debugf("[Dirstate.Write] parent change callback %s", category)
		d.parentCallbacks[category](d, old, cur)
	}
}

// UpdateFile sets every tracking flag of path at once, as an update or
// merge does.
func (d *Dirstate) UpdateFile(path string, wcTracked, p1Tracked, p2Info, possiblyDirty bool, pfd *ParentFileData) error {
	if err := d.requireScope("UpdateFile"); err != nil {
		return err
	}
	m, err := d.Map()
	if err != nil {
		return err
	}
	m.ResetState(path, wcTracked, p1Tracked, p2Info, !possiblyDirty, pfd)
	return nil
}

// UpdateFileP1 records whether p1 tracks path after the parent moved,
// outside of a merge.
func (d *Dirstate) UpdateFileP1(path string, p1Tracked bool) error {
	if err := d.requireScope("UpdateFileP1"); err != nil {
		return err
	}
	m, err := d.Map()
	if err != nil {
		return err
	}
	if p2 := m.Parents()[1]; !p2.IsNull() {
		return common.Programming("UpdateFileP1", "cannot be called during a merge")
	}
	it, ok := m.Get(path)
	wcTracked := ok && it.Tracked()
	switch {
	case !p1Tracked && !wcTracked:
		m.ResetState(path, false, false, false, false, nil)
		return nil
	case !p1Tracked && wcTracked && it.Added():
		// keep the copy record of an added file
		return nil
	}
	m.ResetState(path, wcTracked, p1Tracked, false, false, nil)
	return nil
}

// Rebuild resets the state to p1 with allFiles tracked and possibly
// dirty. When changedFiles is nil every record is rebuilt; otherwise only
// those paths are.
func (d *Dirstate) Rebuild(p1 NodeID, allFiles, changedFiles []string) error {
	if err := d.requireScope("Rebuild"); err != nil {
		return err
	}
	m, err := d.Map()
	if err != nil {
		return err
	}
	if sparse := d.opts.Sparse; sparse != nil && !sparse.Always() {
		allFiles = lo.Filter(allFiles, func(f string, _ int) bool { return sparse.Matches(f) })
		if changedFiles != nil {
			changedFiles = lo.Filter(changedFiles, func(f string, _ int) bool { return sparse.Matches(f) })
			outside := lo.Filter(m.Paths(), func(f string, _ int) bool { return !sparse.Matches(f) })
			changedFiles = lo.Uniq(append(changedFiles, outside...))
		}
	}

	var toLookup, toDrop []string
	if changedFiles == nil {
		toLookup = allFiles
		for _, p := range m.Paths() {
			m.ResetState(p, false, false, false, false, nil)
		}
		m.dirtyTrackedSet = true
	} else {
		all := lo.SliceToMap(allFiles, func(f string) (string, struct{}) { return f, struct{}{} })
		for _, f := range changedFiles {
			if _, ok := all[f]; ok {
				toLookup = append(toLookup, f)
			} else {
				toDrop = append(toDrop, f)
			}
		}
	}

	d.rememberParents(m)
	m.SetParents(p1, NullID, false)
	for _, f := range toLookup {
		m.ResetState(f, true, true, false, false, nil)
	}
	for _, f := range toDrop {
		m.ResetState(f, false, false, false, false, nil)
	}
	m.dirty = true
	return nil
}

// Branch returns the current branch name.
func (d *Dirstate) Branch() (string, error) {
	if d.branchLoaded {
		return d.branch, nil
	}
	data, err := d.opener.Read(storage.BranchFileName)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		d.branch = DefaultBranch
	case err != nil:
		return "", err
	default:
		d.branch = strings.TrimSpace(string(data))
		if d.branch == "" {
			d.branch = DefaultBranch
		}
	}
	d.branchLoaded = true
	return d.branch, nil
}

// SetBranch changes the branch name. With a transaction the file is
// written when it commits.
func (d *Dirstate) SetBranch(name string, tr storage.Transaction) error {
	if err := d.requireScope("SetBranch"); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "\n\r") {
		return common.Abort("set branch", name, common.ErrInvalidPath)
	}
	d.branch, d.branchLoaded = name, true
	write := func() error {
		if err := d.opener.AtomicWrite(storage.BranchFileName, []byte(name+"\n")); err != nil {
			return fmt.Errorf("writing branch: %w", err)
		}
		return nil
	}
	if tr != nil {
		tr.AddFinalizer("branch", write)
		return nil
	}
	return write()
}
