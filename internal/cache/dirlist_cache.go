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

package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDirListSize is the number of directory listings kept when the
// caller passes a non-positive size.
const DefaultDirListSize = 256

// DirListCache caches directory listings keyed by repository-relative
// directory path. A listing maps a folded name to the on-disk spelling.
//
// Thread-safe: the underlying LRU is internally locked.
type DirListCache struct {
	lru *lru.Cache[string, map[string]string]
}

var _ Invalidator = (*DirListCache)(nil)

// NewDirListCache creates a new listing cache holding at most size directories.
func NewDirListCache(size int) *DirListCache {
	if size <= 0 {
		size = DefaultDirListSize
	}
	c, err := lru.New[string, map[string]string](size)
	if err != nil {
		// only returned for size <= 0
		panic(err)
	}
	return &DirListCache{lru: c}
}

// Get returns the cached listing for dir.
func (c *DirListCache) Get(dir string) (map[string]string, bool) {
	if Disabled {
		return nil, false
	}
	return c.lru.Get(dir)
}

// Add stores the listing for dir, evicting the least recently used listing
// when full.
func (c *DirListCache) Add(dir string, listing map[string]string) {
	if Disabled {
		return
	}
	c.lru.Add(dir, listing)
}

// Remove drops the listing for dir.
func (c *DirListCache) Remove(dir string) {
	c.lru.Remove(dir)
}

// Len returns the number of cached listings.
func (c *DirListCache) Len() int {
	return c.lru.Len()
}

// Invalidate clears all entries from the cache.
func (c *DirListCache) Invalidate() {
	c.lru.Purge()
}
