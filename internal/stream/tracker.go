// Package stream implements the process-wide stream/ack tracker:
// per-stream_id open-message counts, end-of-stream detection, optional
// deduplication and stale-entry reaping. State is sharded across
// fixed-size lock buckets (one lock per shard rather than one global
// lock) to keep contention low under concurrent workers, and the
// bounded, LRU-evicted fingerprint set uses hashicorp/golang-lru/v2
// for eviction.
package stream

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rc1405/fiddler/internal/log"
	"github.com/rc1405/fiddler/internal/message"
	"github.com/rc1405/fiddler/internal/metrics"
)

const shardCount = 32

// entry is one active stream_id's bookkeeping.
type entry struct {
	mu           sync.Mutex
	openCount    int
	endSignalled bool
	lastActivity time.Time
	fingerprints *lru.Cache[string, struct{}]
	pendingAcks  []*message.AckHandle
}

// Tracker is the process-wide, sharded stream state store.
type Tracker struct {
	shards    [shardCount]map[string]*entry
	locks     [shardCount]sync.Mutex
	dedup     bool
	dedupSize int
	ttl       time.Duration
	tick      time.Duration
	agg       *metrics.Aggregator
	log       log.Modular

	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures dedup and reaping behaviour. Zero values fall
// back to sensible defaults (30s tick, 5m TTL).
type Config struct {
	DedupEnabled bool
	DedupWindow  int // fingerprints retained per stream before LRU eviction
	TTL          time.Duration
	ReapInterval time.Duration
}

// New builds a Tracker bound to agg for the counters it increments
// (streams_completed, duplicates_rejected, stale_entries_removed).
func New(cfg Config, agg *metrics.Aggregator, logger log.Modular) *Tracker {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 4096
	}
	t := &Tracker{
		dedup:     cfg.DedupEnabled,
		dedupSize: cfg.DedupWindow,
		ttl:       cfg.TTL,
		tick:      cfg.ReapInterval,
		agg:       agg,
		log:       logger,
		done:      make(chan struct{}),
	}
	for i := range t.shards {
		t.shards[i] = make(map[string]*entry)
	}
	return t
}

func shardFor(id string) int {
	h := fnv32(id)
	return int(h % shardCount)
}

func fnv32(s string) uint32 {
	const prime32 = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}

func (t *Tracker) getOrCreate(id string) *entry {
	shard := shardFor(id)
	t.locks[shard].Lock()
	defer t.locks[shard].Unlock()
	e, ok := t.shards[shard][id]
	if !ok {
		e = &entry{lastActivity: time.Now()}
		if t.dedup {
			e.fingerprints, _ = lru.New[string, struct{}](t.dedupSize)
		}
		t.shards[shard][id] = e
		t.agg.Incr(metrics.CounterStreamsStarted, 1)
	}
	return e
}

func (t *Tracker) remove(id string) {
	shard := shardFor(id)
	t.locks[shard].Lock()
	delete(t.shards[shard], id)
	t.locks[shard].Unlock()
}

// Enter registers a new inbound message for stream_id, incrementing
// open_count and touching last_activity. If fingerprint is non-empty
// and dedup is enabled, a fingerprint seen previously within the
// stream's live window causes Enter to return duplicate=true and
// increments duplicates_rejected without incrementing open_count.
func (t *Tracker) Enter(streamID, fingerprint string) (duplicate bool) {
	e := t.getOrCreate(streamID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if t.dedup && fingerprint != "" && e.fingerprints != nil {
		if _, seen := e.fingerprints.Get(fingerprint); seen {
			t.agg.Incr(metrics.CounterDuplicatesRejected, 1)
			return true
		}
		e.fingerprints.Add(fingerprint, struct{}{})
	}

	e.openCount++
	e.lastActivity = time.Now()
	return false
}

// TrackAck registers handle against streamID so a stale reap can nack
// it. Callers must pair this with Leave (or let a reap consume it).
func (t *Tracker) TrackAck(streamID string, handle *message.AckHandle) {
	if handle == nil {
		return
	}
	e := t.getOrCreate(streamID)
	e.mu.Lock()
	e.pendingAcks = append(e.pendingAcks, handle)
	e.mu.Unlock()
}

// Leave resolves one terminal disposition (ack, filter, or processing
// failure) for streamID. handle, if non-nil, is removed from the
// entry's pending-ack list so a later reap does not double-terminate
// it. If the tracker has no entry for streamID (can happen after a
// reap), Leave is a no-op with a warning.
func (t *Tracker) Leave(streamID string, handle *message.AckHandle) {
	shard := shardFor(streamID)
	t.locks[shard].Lock()
	e, ok := t.shards[shard][streamID]
	t.locks[shard].Unlock()
	if !ok {
		t.log.Warnf("stream tracker: leave for unknown stream %q (likely reaped)", streamID)
		return
	}

	e.mu.Lock()
	e.openCount--
	complete := e.endSignalled && e.openCount <= 0
	if handle != nil {
		for i, h := range e.pendingAcks {
			if h == handle {
				e.pendingAcks = append(e.pendingAcks[:i], e.pendingAcks[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()

	if complete {
		t.remove(streamID)
		t.agg.Incr(metrics.CounterStreamsCompleted, 1)
	}
}

// SignalEndOfStream marks streamID as having received its
// EndOfStream marker. If no messages remain open, the stream
// completes immediately.
func (t *Tracker) SignalEndOfStream(streamID string) {
	e := t.getOrCreate(streamID)
	e.mu.Lock()
	e.endSignalled = true
	complete := e.openCount <= 0
	e.mu.Unlock()

	if complete {
		t.remove(streamID)
		t.agg.Incr(metrics.CounterStreamsCompleted, 1)
	}
}

// StartReaper launches the background stale-entry sweep and returns
// immediately. Call Stop to halt it during shutdown.
func (t *Tracker) StartReaper(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.reapOnce()
			}
		}
	}()
}

// Stop halts the reaper and waits for it to exit.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
}

// reapOnce walks every shard once, force-completing entries idle for
// longer than the TTL that have not seen an EndOfStream marker.
func (t *Tracker) reapOnce() {
	now := time.Now()
	for shard := range t.shards {
		t.locks[shard].Lock()
		staleAcks := make([][]*message.AckHandle, 0)
		for id, e := range t.shards[shard] {
			e.mu.Lock()
			if !e.endSignalled && now.Sub(e.lastActivity) > t.ttl {
				staleAcks = append(staleAcks, e.pendingAcks)
				delete(t.shards[shard], id)
			}
			e.mu.Unlock()
		}
		t.locks[shard].Unlock()

		for _, acks := range staleAcks {
			for _, h := range acks {
				_ = h.Terminate(context.Background(), false)
			}
			t.agg.Incr(metrics.CounterStaleEntriesRemoved, 1)
		}
	}
}

// OpenCount reports the current open_count for a stream, or 0 if the
// stream is unknown. Exposed for tests and diagnostics.
func (t *Tracker) OpenCount(streamID string) int {
	shard := shardFor(streamID)
	t.locks[shard].Lock()
	e, ok := t.shards[shard][streamID]
	t.locks[shard].Unlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openCount
}
