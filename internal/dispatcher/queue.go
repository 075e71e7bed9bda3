package dispatcher

import (
	"sync"
	"time"

	"telemetry/pkg/report"
)

// lifoStack is an unbounded, concurrency-safe LIFO queue. Most recently
// pushed records pop first, so fresh events win over old ones when the
// engine is backlogged.
//
// Like Python's Queue, the stack counts unfinished tasks: push increments
// the count and taskDone decrements it, so records being processed by a
// worker still count as pending.
type lifoStack struct {
	mu         sync.Mutex
	items      []report.Record
	unfinished int

	wake chan struct{} // capacity 1, nudges one blocked pop
	done chan struct{}
	once sync.Once
}

func newLifoStack() *lifoStack {
	return &lifoStack{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// push appends a record. It never blocks.
func (s *lifoStack) push(rec report.Record) {
	s.mu.Lock()
	s.items = append(s.items, rec)
	s.unfinished++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pop removes and returns the most recently pushed record, blocking until
// one is available. It returns false when the idle timeout elapses with
// an empty stack, or when the stack is closed.
func (s *lifoStack) pop(idle time.Duration) (report.Record, bool) {
	var timeout <-chan time.Time
	if idle > 0 {
		timer := time.NewTimer(idle)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		s.mu.Lock()
		if n := len(s.items); n > 0 {
			rec := s.items[n-1]
			s.items[n-1] = nil
			s.items = s.items[:n-1]
			s.mu.Unlock()
			return rec, true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-timeout:
			return nil, false
		case <-s.done:
			return nil, false
		}
	}
}

// taskDone marks one previously pushed record as fully processed.
func (s *lifoStack) taskDone() {
	s.mu.Lock()
	if s.unfinished > 0 {
		s.unfinished--
	}
	s.mu.Unlock()
}

// len returns the number of records waiting in the stack.
func (s *lifoStack) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// pending returns the number of pushed records not yet marked done.
func (s *lifoStack) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unfinished
}

// drain removes and returns all waiting records, oldest first.
func (s *lifoStack) drain() []report.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items
	s.items = nil
	return items
}

// close releases all blocked pops. Records still in the stack stay
// available to drain.
func (s *lifoStack) close() {
	s.once.Do(func() {
		close(s.done)
	})
}
