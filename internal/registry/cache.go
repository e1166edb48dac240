// Package registry resolves device access: a lock-guarded cache of authorized
// users per device identity, kept warm by periodic full sync against the
// central authority and by on-demand verification of unseen devices.
package registry

import (
	"sort"
	"strings"
	"sync"
)

// BaseID canonicalizes a device id to its first three underscore-delimited
// segments (esp8266_env_01_bedroom -> esp8266_env_01), grouping device
// variants under one authorization entry. Shorter ids pass through unchanged.
func BaseID(deviceID string) string {
	parts := strings.SplitN(deviceID, "_", 4)
	if len(parts) < 4 {
		return deviceID
	}
	return strings.Join(parts[:3], "_")
}

// Cache maps base device identities to the set of users authorized for them.
// Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]map[string]struct{}
}

// NewCache returns an empty access cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]map[string]struct{})}
}

// Replace swaps the whole cache for the given registry snapshot. Device ids
// are canonicalized; ids mapping to the same base identity are unioned.
// Entries absent from the snapshot are gone afterwards, which is how
// revocation converges.
func (c *Cache) Replace(registry map[string][]string) {
	fresh := make(map[string]map[string]struct{}, len(registry))
	for deviceID, users := range registry {
		base := BaseID(deviceID)
		set, ok := fresh[base]
		if !ok {
			set = make(map[string]struct{}, len(users))
			fresh[base] = set
		}
		for _, u := range users {
			set[u] = struct{}{}
		}
	}

	c.mu.Lock()
	c.entries = fresh
	c.mu.Unlock()
}

// Insert merges userID into the authorized set for deviceID's base identity.
// Write-through after a successful live verification.
func (c *Cache) Insert(deviceID, userID string) {
	base := BaseID(deviceID)

	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.entries[base]
	if !ok {
		set = make(map[string]struct{}, 1)
		c.entries[base] = set
	}
	set[userID] = struct{}{}
}

// Lookup returns the users authorized for deviceID's base identity, ok false
// when the device is unknown. The returned slice is sorted and owned by the
// caller.
func (c *Cache) Lookup(deviceID string) ([]string, bool) {
	base := BaseID(deviceID)

	c.mu.RLock()
	set, ok := c.entries[base]
	if !ok {
		c.mu.RUnlock()
		return nil, false
	}
	users := make([]string, 0, len(set))
	for u := range set {
		users = append(users, u)
	}
	c.mu.RUnlock()

	sort.Strings(users)
	return users, true
}

// Len returns the number of distinct device identities cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
