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

// Package cache provides caches used while resolving case-folded paths.
//
// Currently provides:
// - DirListCache: bounded LRU of directory listings (used by the normalizer)
package cache

import "os"

// Disabled controls whether all caching mechanisms are disabled.
// Set via DIRSTATE_CACHE=0 environment variable.
// When true:
// - DirListCache.Get() always misses
// - DirListCache.Add() is a no-op
//
// This is useful for testing and debugging to isolate cache-related bugs.
var Disabled = os.Getenv("DIRSTATE_CACHE") == "0"

// Invalidator is implemented by all caches that support full invalidation.
type Invalidator interface {
	// Invalidate clears all entries from the cache.
	Invalidate()
}
