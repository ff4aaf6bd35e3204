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
	"runtime"
	"sort"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"dirstate/internal/match"
)

// errFallback is returned by a strategy that cannot complete a scan; the
// caller reruns it serially.
var errFallback = errors.New("accelerated status unavailable")

// strategy runs the walk and classification of one Status call.
type strategy interface {
	name() string
	status(w *walker, c *classifier) (*StatusResult, error)
}

// pickStrategy returns the parallel strategy when the scan allows it.
func (d *Dirstate) pickStrategy(w *walker, opts StatusOptions) strategy {
	if reason := d.serialReason(w, opts); reason != "" {
		log.Tracef("[Dirstate.pickStrategy] serial: %s", reason)
		return serialStrategy{}
	}
	return parallelStrategy{workers: d.workers()}
}

// serialReason explains why the parallel strategy cannot run, or returns
// "" when it can.
func (d *Dirstate) serialReason(w *walker, opts StatusOptions) string {
	switch {
	case !d.opts.Accelerated:
		return "acceleration disabled"
	case !d.IsCaseSensitive():
		return "case-insensitive filesystem"
	case len(opts.Subrepos) > 0:
		return "subrepos present"
	case opts.TraverseDir != nil:
		return "traverse-dir callback set"
	case !match.Composable(w.m):
		return "matcher kind " + w.m.Kind().String()
	}
	return ""
}

func (d *Dirstate) workers() int {
	if d.opts.Workers > 0 {
		return d.opts.Workers
	}
	return runtime.GOMAXPROCS(0)
}

type serialStrategy struct{}

func (serialStrategy) name() string { return "serial" }

func (serialStrategy) status(w *walker, c *classifier) (*StatusResult, error) {
	results, err := w.run()
	if err != nil {
		return nil, err
	}
	col := newCollector(c.boundary)
	for _, p := range sortedPaths(results) {
		col.add(p, c.classify(p, results[p]))
	}
	return col.finish(), nil
}

func sortedPaths(results walkResults) []string {
	paths := lo.Keys(results)
	sort.Strings(paths)
	return paths
}
