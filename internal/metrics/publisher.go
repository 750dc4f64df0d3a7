package metrics

import (
	"context"
	"time"

	"github.com/rc1405/fiddler/internal/log"
)

// Publisher receives periodic snapshots. Implementations are boundary
// glue (stdout, Prometheus, CloudWatch, ClickHouse, ...); the runtime
// only depends on this interface.
type Publisher interface {
	Publish(Snapshot)
}

// PublisherLoop decouples the pipeline hot path from publisher I/O
// with a bounded channel: Sample is called from the executor's own
// goroutines and never blocks; a full channel drops the sample and
// logs a warning instead of applying backpressure to the hot path.
type PublisherLoop struct {
	agg       *Aggregator
	pub       Publisher
	interval  time.Duration
	log       log.Modular
	samples   chan Snapshot
	dropped   int64
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPublisherLoop builds (without starting) a loop that samples
// agg every interval and hands the snapshot to pub via a bounded
// channel of the given capacity.
func NewPublisherLoop(agg *Aggregator, pub Publisher, interval time.Duration, capacity int, logger log.Modular) *PublisherLoop {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	if capacity <= 0 {
		capacity = 16
	}
	return &PublisherLoop{
		agg:      agg,
		pub:      pub,
		interval: interval,
		log:      logger,
		samples:  make(chan Snapshot, capacity),
		done:     make(chan struct{}),
	}
}

// Run drives the sampling ticker and the publish-consumer goroutine
// until ctx is cancelled.
func (p *PublisherLoop) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.consume(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := p.agg.Snapshot()
			select {
			case p.samples <- snap:
			default:
				p.dropped++
				p.log.Warnf("metrics publisher channel full, dropped sample (%d total dropped)", p.dropped)
			}
		}
	}
}

func (p *PublisherLoop) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-p.samples:
			p.pub.Publish(snap)
		}
	}
}

// Stop halts sampling and waits for the loop goroutine to exit.
func (p *PublisherLoop) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}
