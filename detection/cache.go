// go-mfrc522
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-mfrc522.
//
// go-mfrc522 is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-mfrc522 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-mfrc522; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package detection

import (
	"slices"
	"time"

	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

type cacheEntry struct {
	stored  time.Time
	devices []DeviceInfo
}

// resultCache holds the last non-empty result per transport. Entries are
// copied on the way in and out so callers cannot alias them.
type resultCache struct {
	entries map[string]cacheEntry
	mu      syncutil.RWMutex
}

var cache = &resultCache{entries: make(map[string]cacheEntry)}

func (c *resultCache) get(transport string, ttl time.Duration) ([]DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[transport]
	if !ok || time.Since(entry.stored) > ttl {
		return nil, false
	}
	return slices.Clone(entry.devices), true
}

func (c *resultCache) set(transport string, devices []DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[transport] = cacheEntry{devices: slices.Clone(devices), stored: time.Now()}
}

func (c *resultCache) clear(transport string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if transport == "" {
		clear(c.entries)
		return
	}
	delete(c.entries, transport)
}

func getCached(transport string, ttl time.Duration) ([]DeviceInfo, bool) {
	return cache.get(transport, ttl)
}

func setCached(transport string, devices []DeviceInfo) {
	cache.set(transport, devices)
}

func clearCache() {
	cache.clear("")
}

func clearCacheForTransport(transport string) {
	cache.clear(transport)
}
