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
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"

	"dirstate/internal/ignore"
	"dirstate/internal/match"
)

// StatusOptions selects what Status lists.
type StatusOptions struct {
	Subrepos    []string
	ListIgnored bool
	ListClean   bool
	ListUnknown bool
	// TraverseDir is called for every directory the walk descends into.
	TraverseDir func(dir string)
}

// Classification is the status of the working copy. Every list is sorted.
type Classification struct {
	Modified []string
	Added    []string
	Removed  []string
	Deleted  []string
	Unknown  []string
	Ignored  []string
	Clean    []string
}

// StatusResult is what Status returns. Lookup holds the files whose
// content must be compared to decide between clean and modified; Boundary
// is the filesystem time the scan started at, to be passed to MarkClean.
type StatusResult struct {
	Lookup   []string
	Status   Classification
	Boundary Timestamp
}

// bucket is where classify puts a path.
type bucket int

const (
	bucketNone bucket = iota
	bucketLookup
	bucketModified
	bucketAdded
	bucketRemoved
	bucketDeleted
	bucketUnknown
	bucketIgnored
	bucketClean
)

func (b bucket) String() string {
	switch b {
	case bucketNone:
		return "none"
	case bucketLookup:
		return "lookup"
	case bucketModified:
		return "modified"
	case bucketAdded:
		return "added"
	case bucketRemoved:
		return "removed"
	case bucketDeleted:
		return "deleted"
	case bucketUnknown:
		return "unknown"
	case bucketIgnored:
		return "ignored"
	case bucketClean:
		return "clean"
	}
	return fmt.Sprintf("bucket(%d)", int(b))
}

// classifier decides the bucket of a walked path. It only reads the
// map, so it may be shared between goroutines.
type classifier struct {
	sm       *StateMap
	rules    ignore.Evaluator
	explicit mapset.Set[string]
	boundary Timestamp

	listIgnored bool
	listClean   bool
	checkExec   bool
	checkLink   bool
}

func (d *Dirstate) newClassifier(sm *StateMap, rules ignore.Evaluator, m match.Matcher, opts StatusOptions, boundary Timestamp) *classifier {
	return &classifier{
		sm:          sm,
		rules:       rules,
		explicit:    mapset.NewThreadUnsafeSet(m.Files()...),
		boundary:    boundary,
		listIgnored: opts.ListIgnored,
		listClean:   opts.ListClean,
		checkExec:   d.opts.CheckExec,
		checkLink:   d.opts.CheckLink,
	}
}

func (c *classifier) classify(path string, st *StatResult) bucket {
	it, ok := c.sm.items[path]
	if !ok {
		if (c.listIgnored || c.explicit.Contains(path)) && c.rules.Ignored(path, false) {
			if c.listIgnored {
				return bucketIgnored
			}
			return bucketNone
		}
		return bucketUnknown
	}

	switch {
	case st == nil && it.Tracked():
		return bucketDeleted
	case it.P2Info():
		// merge information always needs a content check by the caller
		return bucketModified
	case it.Added():
		return bucketAdded
	case it.Removed():
		return bucketRemoved
	case !it.Tracked():
		return bucketNone
	}

	if !c.checkLink && it.HasFallbackSymlink() {
		return bucketLookup
	}
	if !c.checkExec && it.HasFallbackExec() {
		return bucketLookup
	}
	size := it.Size()
	sizeDiffers := size != st.Size && size != st.Size&rangeMask
	execDiffers := c.checkExec && (it.Mode()^st.Mode)&0o100 != 0
	_, copied := c.sm.copies[path]
	if size >= 0 && (sizeDiffers || execDiffers) || copied {
		if st.IsSymlink() && sizeDiffers {
			// some filesystems report padded symlink sizes
			return bucketLookup
		}
		return bucketModified
	}
	if !it.MtimeLikelyEqual(st.Mtime) {
		return bucketLookup
	}
	if _, reliable := ReliableMtime(st, c.boundary); !reliable {
		// written too close to the scan to rule out a racing change
		return bucketLookup
	}
	if c.listClean {
		return bucketClean
	}
	return bucketNone
}

// collector gathers classified paths into a StatusResult.
type collector struct {
	res *StatusResult
}

func newCollector(boundary Timestamp) *collector {
	return &collector{res: &StatusResult{Boundary: boundary}}
}

func (col *collector) add(path string, b bucket) {
	s := &col.res.Status
	switch b {
	case bucketLookup:
		col.res.Lookup = append(col.res.Lookup, path)
	case bucketModified:
		s.Modified = append(s.Modified, path)
	case bucketAdded:
		s.Added = append(s.Added, path)
	case bucketRemoved:
		s.Removed = append(s.Removed, path)
	case bucketDeleted:
		s.Deleted = append(s.Deleted, path)
	case bucketUnknown:
		s.Unknown = append(s.Unknown, path)
	case bucketIgnored:
		s.Ignored = append(s.Ignored, path)
	case bucketClean:
		s.Clean = append(s.Clean, path)
	}
}

// merge appends everything other collected.
func (col *collector) merge(other *collector) {
	o := other.res
	s := &col.res.Status
	col.res.Lookup = append(col.res.Lookup, o.Lookup...)
	s.Modified = append(s.Modified, o.Status.Modified...)
	s.Added = append(s.Added, o.Status.Added...)
	s.Removed = append(s.Removed, o.Status.Removed...)
	s.Deleted = append(s.Deleted, o.Status.Deleted...)
	s.Unknown = append(s.Unknown, o.Status.Unknown...)
	s.Ignored = append(s.Ignored, o.Status.Ignored...)
	s.Clean = append(s.Clean, o.Status.Clean...)
}

func (col *collector) finish() *StatusResult {
	s := &col.res.Status
	for _, l := range [][]string{col.res.Lookup, s.Modified, s.Added, s.Removed, s.Deleted, s.Unknown, s.Ignored, s.Clean} {
		sort.Strings(l)
	}
	return col.res
}

// Status compares the map with the working directory for the paths m
// matches. Files that cannot be decided from metadata alone are
// returned in Lookup.
func (d *Dirstate) Status(m match.Matcher, opts StatusOptions) (*StatusResult, error) {
	boundary, err := d.clock.Now()
	if err != nil {
		return nil, err
	}
	w, err := d.newWalker(m, opts.Subrepos, opts.ListUnknown, opts.ListIgnored, false)
	if err != nil {
		return nil, err
	}
	w.traverseDir = opts.TraverseDir
	c := d.newClassifier(w.sm, w.rules, m, opts, boundary)

	s := d.pickStrategy(w, opts)
	res, err := s.status(w, c)
	if errors.Is(err, errFallback) {
		log.Debugf("[Dirstate.Status] %s strategy fell back to serial", s.name())
		res, err = serialStrategy{}.status(w, c)
	}
	if err != nil {
		return nil, err
	}
	if log.IsLevelEnabled(log.TraceLevel) {
		st := res.Status
		log.Tracef("[Dirstate.Status] boundary=%s lookup=%d modified=%d added=%d removed=%d deleted=%d unknown=%d ignored=%d clean=%d",
			boundary, len(res.Lookup), len(st.Modified), len(st.Added), len(st.Removed),
			len(st.Deleted), len(st.Unknown), len(st.Ignored), len(st.Clean))
	}
	return res, nil
}
