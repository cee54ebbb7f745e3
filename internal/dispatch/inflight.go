package dispatch

import "sync"

// inflightSet tracks message identifiers currently being processed, guarding
// against duplicate delivery of the same event. It holds no history: an
// identifier is removed as soon as processing finishes, whatever the outcome.
type inflightSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInflightSet() *inflightSet {
	return &inflightSet{ids: make(map[string]struct{})}
}

// tryAcquire marks id as in flight. It returns false when the id is already
// being processed.
func (s *inflightSet) tryAcquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ids[id]; exists {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// release removes id from the set. Releasing an absent id is a no-op.
func (s *inflightSet) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}
