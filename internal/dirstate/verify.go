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
	"iter"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Manifest is the file list of a revision.
type Manifest interface {
	Contains(path string) bool
	Paths() iter.Seq[string]
}

// ManifestSet is a Manifest backed by a set of paths.
type ManifestSet struct {
	set mapset.Set[string]
}

// NewManifest returns a manifest holding paths.
func NewManifest(paths ...string) *ManifestSet {
	return &ManifestSet{set: mapset.NewThreadUnsafeSet(paths...)}
}

func (m *ManifestSet) Add(path string)           { m.set.Add(path) }
func (m *ManifestSet) Contains(path string) bool { return m.set.Contains(path) }

// Paths yields the paths in sorted order.
func (m *ManifestSet) Paths() iter.Seq[string] {
	return func(yield func(string) bool) {
		paths := m.set.ToSlice()
		sort.Strings(paths)
		for _, p := range paths {
			if !yield(p) {
				return
			}
		}
	}
}

// InconsistencyKind classifies a Verify finding.
type InconsistencyKind int

const (
	// MissingFromP1: the record says p1 has the file, p1 does not.
	MissingFromP1 InconsistencyKind = iota
	// UnexpectedInP1: the record says the file was added, p1 has it.
	UnexpectedInP1
	// MissingFromParents: the record needs a parent version, neither has it.
	MissingFromParents
	// MissingFromDirstate: p1 has the file, no record mentions it.
	MissingFromDirstate
)

func (k InconsistencyKind) String() string {
	switch k {
	case MissingFromP1:
		return "missing from p1"
	case UnexpectedInP1:
		return "unexpectedly in p1"
	case MissingFromParents:
		return "missing from both parents"
	case MissingFromDirstate:
		return "missing from dirstate"
	default:
		return fmt.Sprintf("InconsistencyKind(%d)", int(k))
	}
}

// Inconsistency is one disagreement between the state and the manifests.
type Inconsistency struct {
	Kind  InconsistencyKind
	Path  string
	State byte // v1 state of the record, 0 for MissingFromDirstate
}

func (i Inconsistency) String() string {
	if i.Kind == MissingFromDirstate {
		return fmt.Sprintf("%s in manifest1, but not marked as tracked", i.Path)
	}
	return fmt.Sprintf("%s in state %c, %s", i.Path, i.State, i.Kind)
}

// Verify cross-checks every record against the manifests of p1 (m1) and
// p2 (m2). The sequence is lazy and reads the map without changing it.
func (d *Dirstate) Verify(m1, m2 Manifest) (iter.Seq[Inconsistency], error) {
	m, err := d.Map()
	if err != nil {
		return nil, err
	}
	return func(yield func(Inconsistency) bool) {
		for path, it := range m.All() {
			state := it.V1State()
			bad := Inconsistency{Path: path, State: state}
			switch state {
			case 'n':
				if !m1.Contains(path) {
					bad.Kind = MissingFromP1
				} else {
					continue
				}
			case 'r':
				switch {
				case !m1.Contains(path) && !m2.Contains(path):
					bad.Kind = MissingFromParents
				case !m1.Contains(path) && it.P1Tracked():
					bad.Kind = MissingFromP1
				default:
					continue
				}
			case 'a':
				if m1.Contains(path) {
					bad.Kind = UnexpectedInP1
				} else {
					continue
				}
			case 'm':
				if !m1.Contains(path) && !m2.Contains(path) {
					bad.Kind = MissingFromParents
				} else {
					continue
				}
			default:
				continue
			}
			if !yield(bad) {
				return
			}
		}
		for path := range m1.Paths() {
			it, ok := m.Get(path)
			if ok {
				if s := it.V1State(); s == 'n' || s == 'r' || s == 'm' {
					continue
				}
			}
			if !yield(Inconsistency{Kind: MissingFromDirstate, Path: path}) {
				return
			}
		}
	}, nil
}
