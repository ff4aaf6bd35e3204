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

import "dirstate/internal/common"

// dirCounts is a multiset of the ancestor directories of a set of files.
// Each directory counts its direct children that are present.
type dirCounts map[string]int

func newDirCounts() dirCounts {
	return make(dirCounts)
}

// addPath counts p and returns the directories that became present.
func (d dirCounts) addPath(p string) []string {
	var created []string
	for _, dir := range common.FindDirs(p) {
		if d[dir] > 0 {
			d[dir]++
			return created
		}
		d[dir] = 1
		created = append(created, dir)
	}
	return created
}

// delPath uncounts p and returns the directories that disappeared.
func (d dirCounts) delPath(p string) []string {
	var removed []string
	for _, dir := range common.FindDirs(p) {
		if d[dir] > 1 {
			d[dir]--
			return removed
		}
		delete(d, dir)
		removed = append(removed, dir)
	}
	return removed
}

func (d dirCounts) has(dir string) bool {
	return d[dir] > 0
}
