package dispatcher

import (
	"sync"

	"telemetry/pkg/report"
)

// failureSet tracks cloned records that are in flight or known to have
// failed, in insertion order. A worker inserts a stamped clone before
// attempting a send and removes it only when the outcome is terminal
// (delivered or rejected), so anything still here at shutdown is
// recoverable into the backlog.
type failureSet struct {
	mu    sync.Mutex
	next  uint64
	order []uint64
	items map[uint64]report.Record
}

func newFailureSet() *failureSet {
	return &failureSet{items: make(map[uint64]report.Record)}
}

// add inserts a record and returns a token for later removal.
func (s *failureSet) add(rec report.Record) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	token := s.next
	s.order = append(s.order, token)
	s.items[token] = rec
	return token
}

// remove deletes the record identified by token, if still present.
func (s *failureSet) remove(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, token)
}

// snapshot returns the tracked records in insertion order.
func (s *failureSet) snapshot() []report.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]report.Record, 0, len(s.items))
	for _, token := range s.order {
		if rec, ok := s.items[token]; ok {
			records = append(records, rec)
		}
	}
	return records
}

// len returns the number of tracked records.
func (s *failureSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
