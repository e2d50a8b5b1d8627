package engine

import "sync"

type markerKey struct {
	productID string
	action    Action
}

// markers tracks actions waiting on the ledger.
type markers struct {
	mu  sync.Mutex
	set map[markerKey]struct{}
}

func newMarkers() *markers {
	return &markers{set: make(map[markerKey]struct{})}
}

// acquire sets the marker, or reports false if it is already set.
func (m *markers) acquire(productID string, a Action) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := markerKey{productID, a}
	if _, busy := m.set[k]; busy {
		return false
	}
	m.set[k] = struct{}{}
	return true
}

func (m *markers) release(productID string, a Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.set, markerKey{productID, a})
}

func (m *markers) held(productID string, a Action) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, busy := m.set[markerKey{productID, a}]
	return busy
}
