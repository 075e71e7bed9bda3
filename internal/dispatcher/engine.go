package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"telemetry/internal/backlog"
	"telemetry/pkg/report"
)

// Dispatcher is the telemetry delivery engine. Records are queued in an
// unbounded LIFO and delivered by workers spawned on demand up to
// Config.MaxWorkers. Submit never blocks and no delivery error ever
// reaches the caller: failed records are retained and persisted to the
// backlog store at shutdown, to be resent by the next process.
type Dispatcher struct {
	cfg       Config
	transport Transport
	store     backlog.Store
	logger    *slog.Logger
	metrics   MetricsRecorder

	queue  *lifoStack
	failed *failureSet
	gate   *OfflineGate
	slots  chan struct{} // worker slot semaphore, capacity MaxWorkers

	submitted   atomic.Int64
	delivered   atomic.Int64
	rejected    atomic.Int64
	unreachable atomic.Int64
	backlogged  atomic.Int64
	workers     atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// New creates a dispatch engine. The store may be nil, which disables
// backlog persistence; metrics may be nil.
func New(cfg Config, transport Transport, store backlog.Store, metrics MetricsRecorder) *Dispatcher {
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		cfg:       cfg,
		transport: transport,
		store:     store,
		logger:    slog.With("component", "dispatcher"),
		metrics:   metrics,
		queue:     newLifoStack(),
		failed:    newFailureSet(),
		gate:      &OfflineGate{},
		slots:     make(chan struct{}, cfg.MaxWorkers),
		shutdown:  make(chan struct{}),
	}

	// Start gauge reporter if metrics enabled
	if metrics != nil {
		go d.reportGauges()
	}

	d.logger.Info("Dispatcher started", "max_workers", cfg.MaxWorkers, "backlog_cap", cfg.BacklogCap)
	return d
}

// Start resends the backlog persisted by a previous run. Every loaded
// record goes through Submit with its original fields (including the
// original queue time) and the store is cleared unconditionally; records
// that fail again re-enter the failure path and are persisted at the
// next shutdown. A crash between clear and delivery loses that batch —
// a known at-least-once gap.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.store == nil {
		return nil
	}

	records, err := d.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load backlog: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		d.Submit(rec)
	}
	d.logger.Info("Resubmitted backlog", "count", len(records))

	if err := d.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear backlog: %w", err)
	}
	return nil
}

// Submit queues a record for asynchronous delivery. It never blocks and
// never fails. Once the offline latch has tripped (or the engine is shut
// down) the record skips the live queue and goes straight to the
// failure set for backup.
func (d *Dispatcher) Submit(record report.Record) {
	if record == nil {
		return
	}

	d.submitted.Add(1)
	if d.metrics != nil {
		d.metrics.RecordSubmitted(context.Background())
	}

	if d.gate.Offline() || d.closed.Load() {
		clone := record.Clone()
		clone.StampQueueTime(time.Now())
		d.failed.add(clone)
		return
	}

	d.queue.push(record)
	d.scaleWorkers()
}

// Pending returns the number of records not yet acknowledged as
// processed: queued plus in-flight.
func (d *Dispatcher) Pending() int {
	return d.queue.pending()
}

// Offline reports whether the offline latch has tripped.
func (d *Dispatcher) Offline() bool {
	return d.gate.Offline()
}

// Stats returns current engine statistics.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Submitted:     d.submitted.Load(),
		Delivered:     d.delivered.Load(),
		Rejected:      d.rejected.Load(),
		Unreachable:   d.unreachable.Load(),
		Backlogged:    d.backlogged.Load(),
		QueueDepth:    d.queue.len(),
		Pending:       d.queue.pending(),
		ActiveWorkers: int(d.workers.Load()),
		Offline:       d.gate.Offline(),
	}
}

// Shutdown waits briefly for pending sends to drain, then persists
// everything still outstanding (failure set plus queue remainder) to the
// backlog store, truncated to the cap, and releases the workers. Safe to
// call more than once; later calls return immediately. Cancelling ctx
// cuts the wait short but never skips the persist.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}
	close(d.shutdown)

	d.waitDrain(ctx)

	remainder := d.failed.snapshot()
	remainder = append(remainder, d.queue.drain()...)
	d.queue.close()

	if d.store == nil || len(remainder) == 0 {
		d.logger.Info("Dispatcher shutdown complete",
			"delivered", d.delivered.Load(),
			"rejected", d.rejected.Load(),
			"unreachable", d.unreachable.Load(),
		)
		return nil
	}

	now := time.Now()
	for _, rec := range remainder {
		rec.StripStatic()
		rec.NormalizeQueueTime(now)
	}
	if len(remainder) > d.cfg.BacklogCap {
		remainder = remainder[len(remainder)-d.cfg.BacklogCap:]
	}

	d.backlogged.Add(int64(len(remainder)))
	if d.metrics != nil {
		d.metrics.RecordBacklogged(context.Background(), len(remainder))
	}

	// An interrupted wait must still persist, so the save ignores the
	// caller's cancellation.
	if err := d.store.Save(context.WithoutCancel(ctx), remainder); err != nil {
		d.logger.Error("Backlog save failed", "count", len(remainder), "error", err)
		return err
	}

	d.logger.Info("Backlog persisted", "count", len(remainder))
	return nil
}

// waitDrain polls the pending count until it reaches zero, the drain
// window closes, or ctx is cancelled.
func (d *Dispatcher) waitDrain(ctx context.Context) {
	deadline := time.Now().Add(d.cfg.DrainWait)
	for time.Now().Before(deadline) {
		if d.queue.pending() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.cfg.DrainPoll):
		}
	}
}

// scaleWorkers grows the pool toward min(queue depth, MaxWorkers). The
// slot semaphore caps the pool; workers release their slot when they
// exit after sitting idle, so the pool shrinks on its own.
func (d *Dispatcher) scaleWorkers() {
	needed := min(d.queue.len(), d.cfg.MaxWorkers)
	for len(d.slots) < needed {
		select {
		case d.slots <- struct{}{}:
			d.wg.Add(1)
			go d.worker()
		default:
			return
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	defer func() { <-d.slots }()

	d.workers.Add(1)
	defer d.workers.Add(-1)

	for {
		rec, ok := d.queue.pop(d.cfg.IdleExit)
		if !ok {
			return
		}
		d.process(rec)
		d.queue.taskDone()
	}
}

// process owns one record from pop to terminal outcome. The clone enters
// the failure set before the attempt so a crash mid-send still leaves a
// recoverable entry; only delivery or rejection removes it.
func (d *Dispatcher) process(record report.Record) {
	clone := record.Clone()
	clone.StampQueueTime(time.Now())
	token := d.failed.add(clone)

	switch d.attempt(record) {
	case OutcomeDelivered:
		d.failed.remove(token)
		d.delivered.Add(1)
	case OutcomeRejected:
		// Permanently undeliverable: retry cannot help, so the record
		// is dropped rather than persisted.
		d.failed.remove(token)
		d.rejected.Add(1)
	case OutcomeUnreachable:
		d.unreachable.Add(1)
	}
}

// attempt sends one record and classifies the outcome. Nothing escapes a
// worker: a panic inside the transport counts as unreachable and trips
// the offline latch like any other transient failure.
func (d *Dispatcher) attempt(record report.Record) (outcome Outcome) {
	if d.gate.Offline() {
		return OutcomeUnreachable
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Transport panic", "panic", r)
			d.gate.Trip()
			outcome = OutcomeUnreachable
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	err := d.transport.Send(ctx, record)
	duration := time.Since(start).Seconds()

	switch {
	case err == nil:
		outcome = OutcomeDelivered
	case report.IsClientError(err):
		outcome = OutcomeRejected
		d.logger.Warn("Record rejected by collector, dropping", "error", err)
	default:
		outcome = OutcomeUnreachable
		if d.gate.Trip() {
			d.logger.Warn("Collector unreachable, going offline", "error", err)
		}
	}

	if d.metrics != nil {
		d.metrics.RecordSend(ctx, outcome.String(), duration)
	}
	return outcome
}

// reportGauges periodically reports queue depth and worker count.
func (d *Dispatcher) reportGauges() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.shutdown:
			return
		case <-ticker.C:
			ctx := context.Background()
			d.metrics.RecordQueueDepth(ctx, int64(d.queue.len()))
			d.metrics.RecordActiveWorkers(ctx, d.workers.Load())
		}
	}
}
