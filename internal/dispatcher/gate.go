package dispatcher

import "sync/atomic"

// OfflineGate is a process-wide latch that short-circuits delivery once
// the collector proves unreachable. It trips on the first transient
// transport failure and never resets within the process; only a fresh
// process starts online again.
type OfflineGate struct {
	tripped atomic.Bool
}

// Offline reports whether the gate has tripped.
func (g *OfflineGate) Offline() bool {
	return g.tripped.Load()
}

// Trip latches the gate. It returns true only for the call that actually
// tripped it, so the caller can log the transition exactly once.
func (g *OfflineGate) Trip() bool {
	return !g.tripped.Swap(true)
}
