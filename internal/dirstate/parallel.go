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
	"sync"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dirstate/internal/match"
)

// parallelStrategy walks directories and classifies paths on a bounded
// pool of goroutines. Its output equals the serial strategy's.
type parallelStrategy struct {
	workers int
}

func (parallelStrategy) name() string { return "parallel" }

// syncResults is a walkResults shared between goroutines. The first
// result stored for a path wins.
type syncResults struct {
	mu sync.Mutex
	m  walkResults
}

func (r *syncResults) has(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[p]
	return ok
}

func (r *syncResults) add(p string, st *StatResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[p]; !ok {
		r.m[p] = st
	}
}

func (s parallelStrategy) status(w *walker, c *classifier) (*StatusResult, error) {
	results, err := s.walk(w)
	if err != nil {
		return nil, err
	}
	paths := sortedPaths(results)
	chunks := lo.Chunk(paths, chunkSize(len(paths), s.workers))
	cols := make([]*collector, len(chunks))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			col := newCollector(c.boundary)
			for _, p := range chunk {
				col.add(p, c.classify(p, results[p]))
			}
			cols[i] = col
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := newCollector(c.boundary)
	for _, col := range cols {
		out.merge(col)
	}
	return out.finish(), nil
}

func (s parallelStrategy) walk(w *walker) (walkResults, error) {
	explicit, work, dirsNotFound := w.explicit()
	skipStep3 := w.skipStep3 && len(work) == 0 && len(dirsNotFound) == 0
	shared := &syncResults{m: explicit}

	var g errgroup.Group
	g.SetLimit(s.workers)
	var visit func(dir string) error
	visit = func(dir string) error {
		if w.m.VisitDir(dir) == match.VisitNone {
			return nil
		}
		entries, err := w.listDir(dir)
		switch {
		case errors.Is(err, errNestedRepo):
			return nil
		case err != nil && recoverable(err):
			w.bad(dir, err)
			return nil
		case err != nil:
			// e.g. out of file descriptors
			return fmt.Errorf("%w: listing %q: %v", errFallback, dir, err)
		}
		for _, sub := range w.visitEntries(dir, entries, true, shared.has, shared.add) {
			if !g.TryGo(func() error { return visit(sub) }) {
				if err := visit(sub); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, wk := range work {
		if w.dirIgnore(wk.norm) {
			continue
		}
		g.Go(func() error { return visit(wk.orig) })
	}
	if err := g.Wait(); err != nil {
		log.Debugf("[parallelStrategy.walk] %v", err)
		return nil, err
	}

	results := shared.m
	w.dropSentinels(results)
	if skipStep3 || w.exact {
		return results, nil
	}
	visitPaths := w.residualPaths(results)
	if w.listUnknown {
		w.residual(results, visitPaths)
		return results, nil
	}
	stats := make([]*StatResult, len(visitPaths))
	chunk := chunkSize(len(visitPaths), s.workers)
	var sg errgroup.Group
	sg.SetLimit(s.workers)
	for start := 0; start < len(visitPaths); start += chunk {
		end := min(start+chunk, len(visitPaths))
		sg.Go(func() error {
			for i := start; i < end; i++ {
				stats[i] = w.statRecorded(visitPaths[i])
			}
			return nil
		})
	}
	if err := sg.Wait(); err != nil {
		return nil, err
	}
	for i, p := range visitPaths {
		results[p] = stats[i]
	}
	return results, nil
}

// chunkSize splits n items into about four chunks per worker.
func chunkSize(n, workers int) int {
	size := n / (workers * 4)
	if size < 64 {
		size = 64
	}
	return size
}
