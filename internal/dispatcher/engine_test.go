package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"telemetry/internal/testutil"
	"telemetry/pkg/report"
)

// fakeStore is an in-memory backlog store recording calls.
type fakeStore struct {
	mu      sync.Mutex
	records []report.Record
	saves   int
	clears  int
}

func (s *fakeStore) Load(context.Context) ([]report.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records, nil
}

func (s *fakeStore) Save(_ context.Context, records []report.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.saves++
	return nil
}

func (s *fakeStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.clears++
	return nil
}

func (s *fakeStore) snapshot() ([]report.Record, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records, s.saves, s.clears
}

func testConfig() Config {
	return Config{
		MaxWorkers: 5,
		BacklogCap: 100,
		DrainWait:  2 * time.Second,
		DrainPoll:  10 * time.Millisecond,
		IdleExit:   100 * time.Millisecond,
	}
}

func shutdownNow(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestDispatcher_AllDelivered(t *testing.T) {
	t.Parallel()
	var sent atomic.Int64
	transport := TransportFunc(func(context.Context, report.Record) error {
		sent.Add(1)
		return nil
	})
	store := &fakeStore{}
	d := New(testConfig(), transport, store, nil)

	for i := 0; i < 20; i++ {
		d.Submit(report.Record{"t": "event", "n": i})
	}

	testutil.MustWaitFor(t, func() bool {
		return d.Pending() == 0
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	if got := sent.Load(); got != 20 {
		t.Errorf("sent %d records, want 20", got)
	}
	if d.Offline() {
		t.Error("gate must stay online when every send succeeds")
	}

	shutdownNow(t, d)

	if _, saves, _ := store.snapshot(); saves != 0 {
		t.Errorf("store written %d times, want 0", saves)
	}
	stats := d.Stats()
	if stats.Delivered != 20 || stats.Backlogged != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDispatcher_UnreachablePersistsEverything(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int64
	transport := TransportFunc(func(context.Context, report.Record) error {
		attempts.Add(1)
		return errors.New("connection refused")
	})
	store := &fakeStore{}
	d := New(testConfig(), transport, store, nil)

	for i := 0; i < 5; i++ {
		d.Submit(report.Record{"t": "event", "n": fmt.Sprint(i)})
	}

	testutil.MustWaitFor(t, func() bool {
		return d.Offline() && d.Pending() == 0
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	shutdownNow(t, d)

	records, saves, _ := store.snapshot()
	if saves != 1 {
		t.Fatalf("store written %d times, want 1", saves)
	}
	if len(records) != 5 {
		t.Fatalf("persisted %d records, want 5", len(records))
	}
	seen := map[string]bool{}
	for _, rec := range records {
		seen[rec["n"].(string)] = true
		if _, ok := rec.QueueTime(); !ok {
			t.Errorf("persisted record missing queue time: %v", rec)
		}
	}
	for i := 0; i < 5; i++ {
		if !seen[fmt.Sprint(i)] {
			t.Errorf("record %d missing from backlog", i)
		}
	}
}

func TestDispatcher_BacklogCapKeepsNewest(t *testing.T) {
	t.Parallel()
	transport := TransportFunc(func(context.Context, report.Record) error {
		return errors.New("connection refused")
	})
	store := &fakeStore{}
	d := New(testConfig(), transport, store, nil)

	// Trip the gate with one record, then feed the rest straight into
	// the failure set so arrival order is deterministic.
	d.Submit(report.Record{"t": "event", "n": -1})
	testutil.MustWaitFor(t, func() bool {
		return d.Offline() && d.Pending() == 0
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	for i := 0; i < 150; i++ {
		d.Submit(report.Record{"t": "event", "n": i})
	}

	shutdownNow(t, d)

	records, _, _ := store.snapshot()
	if len(records) != 100 {
		t.Fatalf("persisted %d records, want exactly the cap of 100", len(records))
	}
	// 151 candidates in arrival order; the newest 100 are 50..149.
	for i, rec := range records {
		want := 50 + i
		if got := rec["n"]; got != want {
			t.Fatalf("records[%d][n] = %v, want %d", i, got, want)
		}
	}
}

func TestDispatcher_OfflineSubmitBypassesTransport(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int64
	transport := TransportFunc(func(context.Context, report.Record) error {
		attempts.Add(1)
		return errors.New("connection refused")
	})
	store := &fakeStore{}
	d := New(testConfig(), transport, store, nil)

	d.Submit(report.Record{"t": "event", "n": "trigger"})
	testutil.MustWaitFor(t, func() bool {
		return d.Offline() && d.Pending() == 0
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	before := attempts.Load()
	d.Submit(report.Record{"t": "event", "n": "late"})

	// Give any stray worker a chance to misbehave before asserting.
	time.Sleep(200 * time.Millisecond)
	if got := attempts.Load(); got != before {
		t.Errorf("transport invoked %d more times after going offline", got-before)
	}

	shutdownNow(t, d)

	records, _, _ := store.snapshot()
	found := false
	for _, rec := range records {
		if rec["n"] == "late" {
			found = true
		}
	}
	if !found {
		t.Error("record submitted while offline missing from backlog")
	}
}

func TestDispatcher_ResendKeepsBacklogIntact(t *testing.T) {
	t.Parallel()
	const n = 7
	preload := make([]report.Record, 0, n)
	for i := 0; i < n; i++ {
		preload = append(preload, report.Record{"t": "event", "n": fmt.Sprint(i), "qt": float64(1700000000 + i)})
	}
	store := &fakeStore{records: preload}

	transport := TransportFunc(func(context.Context, report.Record) error {
		return errors.New("connection refused")
	})
	d := New(testConfig(), transport, store, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, _, clears := store.snapshot(); clears != 1 {
		t.Error("Start must clear the store unconditionally")
	}

	testutil.MustWaitFor(t, func() bool {
		return d.Offline() && d.Pending() == 0
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	shutdownNow(t, d)

	records, _, _ := store.snapshot()
	if len(records) != n {
		t.Fatalf("persisted %d records after failed resend, want %d", len(records), n)
	}
	seen := map[string]int{}
	for _, rec := range records {
		seen[rec["n"].(string)]++
	}
	for i := 0; i < n; i++ {
		if seen[fmt.Sprint(i)] != 1 {
			t.Errorf("record %d appears %d times, want exactly once", i, seen[fmt.Sprint(i)])
		}
	}
}

func TestDispatcher_RejectedDropped(t *testing.T) {
	t.Parallel()
	transport := TransportFunc(func(context.Context, report.Record) error {
		return &report.HTTPError{StatusCode: 400}
	})
	store := &fakeStore{}
	d := New(testConfig(), transport, store, nil)

	for i := 0; i < 3; i++ {
		d.Submit(report.Record{"t": "event", "n": i})
	}

	testutil.MustWaitFor(t, func() bool {
		return d.Pending() == 0
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	if d.Offline() {
		t.Error("rejections must not trip the offline gate")
	}

	shutdownNow(t, d)

	_, saves, _ := store.snapshot()
	if saves != 0 {
		t.Error("rejected records must not be persisted")
	}
	if got := d.Stats().Rejected; got != 3 {
		t.Errorf("rejected = %d, want 3", got)
	}
}

func TestDispatcher_LifoDeliveryOrder(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	first := true

	transport := TransportFunc(func(_ context.Context, rec report.Record) error {
		mu.Lock()
		blockFirst := first
		first = false
		order = append(order, rec["ea"].(string))
		mu.Unlock()
		if blockFirst {
			<-release
		}
		return nil
	})

	cfg := testConfig()
	cfg.MaxWorkers = 1
	d := New(cfg, transport, &fakeStore{}, nil)

	// The single worker picks up A and blocks; B and C queue behind it.
	d.Submit(report.Record{"ea": "A"})
	testutil.MustWaitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 1
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(5*time.Millisecond))

	d.Submit(report.Record{"ea": "B"})
	d.Submit(report.Record{"ea": "C"})
	close(release)

	testutil.MustWaitFor(t, func() bool {
		return d.Pending() == 0
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	mu.Lock()
	defer mu.Unlock()
	want := []string{"A", "C", "B"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v (LIFO)", order, want)
		}
	}

	shutdownNow(t, d)
}

func TestDispatcher_WorkerPoolCapped(t *testing.T) {
	t.Parallel()
	var current, peak atomic.Int64
	transport := TransportFunc(func(context.Context, report.Record) error {
		cur := current.Add(1)
		defer current.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(150 * time.Millisecond)
		return nil
	})
	d := New(testConfig(), transport, &fakeStore{}, nil)

	for i := 0; i < 10; i++ {
		d.Submit(report.Record{"t": "event", "n": i})
	}

	testutil.MustWaitFor(t, func() bool {
		return peak.Load() == 5
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	testutil.MustWaitFor(t, func() bool {
		return d.Pending() == 0
	}, testutil.WithTimeout(10*time.Second), testutil.WithInterval(10*time.Millisecond))

	if got := peak.Load(); got > 5 {
		t.Errorf("concurrent sends peaked at %d, cap is 5", got)
	}

	// Idle workers exit on their own and free their slots.
	testutil.MustWaitFor(t, func() bool {
		return d.Stats().ActiveWorkers == 0
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(20*time.Millisecond))

	shutdownNow(t, d)
}

func TestDispatcher_TransportPanicContained(t *testing.T) {
	t.Parallel()
	transport := TransportFunc(func(context.Context, report.Record) error {
		panic("boom")
	})
	store := &fakeStore{}
	d := New(testConfig(), transport, store, nil)

	d.Submit(report.Record{"t": "event", "n": "panicky"})

	testutil.MustWaitFor(t, func() bool {
		return d.Offline() && d.Pending() == 0
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	shutdownNow(t, d)

	records, _, _ := store.snapshot()
	if len(records) != 1 {
		t.Fatalf("persisted %d records after panic, want 1", len(records))
	}
	if records[0]["n"] != "panicky" {
		t.Errorf("wrong record persisted: %v", records[0])
	}
}

func TestDispatcher_ShutdownIdempotent(t *testing.T) {
	t.Parallel()
	d := New(testConfig(), TransportFunc(func(context.Context, report.Record) error {
		return nil
	}), &fakeStore{}, nil)

	shutdownNow(t, d)
	shutdownNow(t, d)
}

func TestDispatcher_ShutdownPersistsOnCancelledContext(t *testing.T) {
	t.Parallel()
	transport := TransportFunc(func(context.Context, report.Record) error {
		return errors.New("connection refused")
	})
	store := &fakeStore{}
	d := New(testConfig(), transport, store, nil)

	d.Submit(report.Record{"t": "event"})
	testutil.MustWaitFor(t, func() bool {
		return d.Offline() && d.Pending() == 0
	}, testutil.WithTimeout(5*time.Second), testutil.WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown with cancelled context: %v", err)
	}

	if _, saves, _ := store.snapshot(); saves != 1 {
		t.Error("an interrupted shutdown must still persist the backlog")
	}
}
