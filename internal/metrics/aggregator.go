// Package metrics implements an always-on in-memory aggregator:
// monotonic counters, sampled gauges and a pluggable, non-blocking
// publisher, built around atomic *int64 counters keyed by a fixed
// name set rather than an open metric namespace.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter names. Monotonically non-decreasing over the process
// lifetime.
const (
	CounterTotalReceived      = "total_received"
	CounterTotalCompleted     = "total_completed"
	CounterTotalFiltered      = "total_filtered"
	CounterTotalProcessErrors = "total_process_errors"
	CounterTotalOutputErrors  = "total_output_errors"
	CounterStreamsStarted     = "streams_started"
	CounterStreamsCompleted   = "streams_completed"
	CounterDuplicatesRejected = "duplicates_rejected"
	CounterStaleEntriesRemoved = "stale_entries_removed"
	CounterInputBytes         = "input_bytes"
	CounterOutputBytes        = "output_bytes"
)

var counterNames = []string{
	CounterTotalReceived, CounterTotalCompleted, CounterTotalFiltered,
	CounterTotalProcessErrors, CounterTotalOutputErrors, CounterStreamsStarted,
	CounterStreamsCompleted, CounterDuplicatesRejected, CounterStaleEntriesRemoved,
	CounterInputBytes, CounterOutputBytes,
}

// Snapshot is a flat, immutable record of counters and gauges taken at
// one instant.
type Snapshot struct {
	Counters map[string]int64
	Gauges   map[string]float64
	At       time.Time
}

// latencySample feeds the rolling min/max/avg gauges.
type latencySample struct {
	sumNanos   int64
	count      int64
	minNanos   int64
	maxNanos   int64
}

// Aggregator is the process-wide metrics store. Counters use relaxed
// atomic increments; gauges are sampled at snapshot time rather than
// kept instant-to-instant consistent with counters.
type Aggregator struct {
	counters map[string]*int64

	inFlight int64

	mu          sync.Mutex
	windowStart time.Time
	recvAtStart int64
	bytesAtStart int64
	latency     latencySample

	clock func() time.Time
}

// New builds an Aggregator with all fixed counters initialised to
// zero.
func New() *Aggregator {
	a := &Aggregator{
		counters: make(map[string]*int64, len(counterNames)),
		clock:    time.Now,
	}
	for _, name := range counterNames {
		var v int64
		a.counters[name] = &v
	}
	a.windowStart = a.clock()
	return a
}

// Incr adds delta (which may be negative, though no fixed counter
// uses that) to the named counter.
func (a *Aggregator) Incr(name string, delta int64) {
	p, ok := a.counters[name]
	if !ok {
		return
	}
	atomic.AddInt64(p, delta)
}

// Get returns the current value of a named counter.
func (a *Aggregator) Get(name string) int64 {
	p, ok := a.counters[name]
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// InFlightIncr adjusts the in_flight gauge; positive on admit,
// negative on terminal disposition.
func (a *Aggregator) InFlightIncr(delta int64) {
	atomic.AddInt64(&a.inFlight, delta)
}

// ObserveLatency records one message's input-receive-to-final-ack
// wall clock duration, feeding latency_{avg,min,max}_ms.
func (a *Aggregator) ObserveLatency(d time.Duration) {
	nanos := d.Nanoseconds()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latency.sumNanos += nanos
	a.latency.count++
	if a.latency.count == 1 || nanos < a.latency.minNanos {
		a.latency.minNanos = nanos
	}
	if nanos > a.latency.maxNanos {
		a.latency.maxNanos = nanos
	}
}

// Snapshot takes a consistent read of every gauge alongside the
// current counters. Throughput and bytes-per-second are computed as a
// rolling window since the previous snapshot call.
func (a *Aggregator) Snapshot() Snapshot {
	now := a.clock()

	counters := make(map[string]int64, len(a.counters))
	for name, p := range a.counters {
		counters[name] = atomic.LoadInt64(p)
	}

	a.mu.Lock()
	elapsed := now.Sub(a.windowStart).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	recvDelta := counters[CounterTotalReceived] - a.recvAtStart
	bytesDelta := counters[CounterInputBytes] - a.bytesAtStart
	throughput := float64(recvDelta) / elapsed
	bytesPerSec := float64(bytesDelta) / elapsed

	var avgMs, minMs, maxMs float64
	if a.latency.count > 0 {
		avgMs = float64(a.latency.sumNanos) / float64(a.latency.count) / 1e6
		minMs = float64(a.latency.minNanos) / 1e6
		maxMs = float64(a.latency.maxNanos) / 1e6
	}

	a.windowStart = now
	a.recvAtStart = counters[CounterTotalReceived]
	a.bytesAtStart = counters[CounterInputBytes]
	a.latency = latencySample{}
	a.mu.Unlock()

	return Snapshot{
		Counters: counters,
		Gauges: map[string]float64{
			"in_flight":          float64(atomic.LoadInt64(&a.inFlight)),
			"throughput_per_sec": throughput,
			"bytes_per_sec":      bytesPerSec,
			"latency_avg_ms":     avgMs,
			"latency_min_ms":     minMs,
			"latency_max_ms":     maxMs,
		},
		At: now,
	}
}
