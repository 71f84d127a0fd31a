// Package cache holds small lookup tables rebuilt from the marker list.
package cache

import (
	"sort"
	"sync"

	"github.com/jangxx/UniversalTrackerMarkers/internal/model"
)

// AddressIndex maps remote toggle addresses to the ids of the markers
// listening on them. It is rebuilt on every marker list change and read
// by the remote listener for every incoming toggle.
type AddressIndex struct {
	mu        sync.RWMutex
	addresses map[string][]int
}

// NewAddressIndex creates an empty AddressIndex
func NewAddressIndex() *AddressIndex {
	return &AddressIndex{
		addresses: make(map[string][]int),
	}
}

// Rebuild replaces the index with the gated markers of markers.
func (c *AddressIndex) Rebuild(markers []model.Marker) {
	next := make(map[string][]int)
	for _, m := range markers {
		if !m.Gate.Enabled || m.Gate.Address == "" {
			continue
		}
		next[m.Gate.Address] = append(next[m.Gate.Address], m.ID)
	}
	for _, ids := range next {
		sort.Ints(ids)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.addresses = next
}

// Get returns the marker ids listening on address
func (c *AddressIndex) Get(address string) ([]int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids, ok := c.addresses[address]
	if !ok {
		return nil, false
	}
	out := make([]int, len(ids))
	copy(out, ids)
	return out, true
}

// Addresses returns every indexed address in sorted order
func (c *AddressIndex) Addresses() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.addresses))
	for a := range c.addresses {
		out = append(out, a)
	}
	c.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Reset clears all addresses from the index
func (c *AddressIndex) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addresses = make(map[string][]int)
}
