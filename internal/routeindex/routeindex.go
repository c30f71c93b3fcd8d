package routeindex

import (
	"strings"
	"sync"
)

// Index maps a normalized origin->destination route to the ids of
// active listings on it. The catalog keeps it in sync on every status
// change; search uses it to avoid scanning the whole table when both
// cities are given.
type Index interface {
	Add(origin, destination, listingID string)
	Remove(origin, destination, listingID string)
	ByRoute(origin, destination string) []string
}

// RouteKey normalizes a city pair into the index key. City matching is
// case-insensitive exact match, so lowercase-and-trim is enough.
func RouteKey(origin, destination string) string {
	return strings.ToLower(strings.TrimSpace(origin)) + "->" + strings.ToLower(strings.TrimSpace(destination))
}

// Memory is the in-process fallback index.
type Memory struct {
	mu     sync.RWMutex
	routes map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{routes: make(map[string]map[string]struct{})}
}

func (m *Memory) Add(origin, destination, listingID string) {
	k := RouteKey(origin, destination)
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.routes[k]
	if !ok {
		set = make(map[string]struct{})
		m.routes[k] = set
	}
	set[listingID] = struct{}{}
}

func (m *Memory) Remove(origin, destination, listingID string) {
	k := RouteKey(origin, destination)
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.routes[k]; ok {
		delete(set, listingID)
		if len(set) == 0 {
			delete(m.routes, k)
		}
	}
}

func (m *Memory) ByRoute(origin, destination string) []string {
	k := RouteKey(origin, destination)
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.routes[k]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
