// Package pipeline implements the executor: a bounded work channel
// between a single input-reader task and a worker pool, processor
// -chain fan-out sharing a refcounted ack token, output batching, and
// cooperative graceful shutdown. The worker pool is a fixed-size set
// of goroutines reading off one upstream channel and writing to one
// downstream channel, adapted from a synchronous transaction-per-batch
// model to Fiddler's per-message ack-token model with in-chain
// fan-out.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/log"
	"github.com/rc1405/fiddler/internal/message"
	"github.com/rc1405/fiddler/internal/metrics"
	"github.com/rc1405/fiddler/internal/stream"
)

// FingerprintFunc computes a stream deduplication fingerprint for a
// message. Left nil to disable dedup regardless of the tracker's own
// configuration.
type FingerprintFunc func(*message.Message) string

// NewFingerprint builds a FingerprintFunc hashing a message's payload
// bytes together with the values of metadataKeys, in the order given.
// Two messages with identical payloads but differing values under a
// configured key are treated as distinct, so metadataKeys lets a
// pipeline dedup on a business key (e.g. an idempotency header)
// instead of, or in addition to, raw content.
func NewFingerprint(metadataKeys []string) FingerprintFunc {
	return func(msg *message.Message) string {
		h := sha256.New()
		h.Write(msg.Bytes())
		for _, key := range metadataKeys {
			h.Write([]byte{0})
			h.Write([]byte(key))
			h.Write([]byte{0})
			h.Write([]byte(msg.Metadata().GetOrNull(key).String()))
		}
		return hex.EncodeToString(h.Sum(nil))
	}
}

// Options configures one running pipeline.
type Options struct {
	NumThreads  int
	MaxInFlight int
	Input       component.Input
	Processors  []component.Processor
	Output      component.Output
	BatchPolicy *component.BatchPolicy
	Tracker     *stream.Tracker
	Metrics     *metrics.Aggregator
	Log         log.Modular
	Fingerprint FingerprintFunc
	NackPolicy  message.NackPolicy
}

func (o *Options) setDefaults() {
	if o.NumThreads <= 0 {
		o.NumThreads = runtime.NumCPU()
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 2 * o.NumThreads
	}
}

// Pipeline wires one input, an ordered processor chain and one output
// together over a bounded work channel.
type Pipeline struct {
	opts Options
}

// New returns a Pipeline ready to Run. Callers must have already
// Open()'d opts.Input.
func New(opts Options) *Pipeline {
	opts.setDefaults()
	return &Pipeline{opts: opts}
}

// Run drives the pipeline until ctx is cancelled or the input is
// exhausted/fatally errors, then drains in-flight work and flushes the
// output before returning. A cancelled ctx triggers graceful shutdown:
// input stops, work channel drains, workers finish in-flight messages,
// output flushes.
func (p *Pipeline) Run(ctx context.Context) error {
	chains := p.buildWorkerChains()

	workCh := make(chan *message.Message, p.opts.MaxInFlight)
	outputCh := make(chan *message.Message, p.opts.MaxInFlight)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.readLoop(runCtx, workCh)
	}()

	var workers sync.WaitGroup
	for w := 0; w < p.opts.NumThreads; w++ {
		workers.Add(1)
		go func(chain []component.Processor) {
			defer workers.Done()
			p.workerLoop(runCtx, workCh, outputCh, chain)
		}(chains[w])
	}

	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		p.outputLoop(runCtx, outputCh)
	}()

	<-readerDone
	close(workCh)
	workers.Wait()
	close(outputCh)
	<-outputDone

	closeCtx := context.Background()
	if err := p.opts.Output.Flush(closeCtx); err != nil {
		p.opts.Log.Warnf("output flush on shutdown: %v", err)
	}
	if err := p.opts.Output.Close(closeCtx); err != nil {
		p.opts.Log.Warnf("output close on shutdown: %v", err)
	}
	if err := p.opts.Input.Close(closeCtx); err != nil {
		p.opts.Log.Warnf("input close on shutdown: %v", err)
	}
	for _, chain := range chains {
		for _, proc := range chain {
			if err := proc.Close(); err != nil {
				p.opts.Log.Warnf("processor close on shutdown: %v", err)
			}
		}
	}
	return ctx.Err()
}

// buildWorkerChains instantiates one Processor per configured stage
// per worker: stages implementing component.PerWorkerFactory (e.g.
// fiddlerscript, whose interpreter is not concurrency-safe) get a
// fresh instance per worker; stateless stages share the configured
// instance across all workers.
func (p *Pipeline) buildWorkerChains() [][]component.Processor {
	chains := make([][]component.Processor, p.opts.NumThreads)
	for w := 0; w < p.opts.NumThreads; w++ {
		chain := make([]component.Processor, len(p.opts.Processors))
		for i, proc := range p.opts.Processors {
			if factory, ok := proc.(component.PerWorkerFactory); ok {
				inst, err := factory.NewPerWorker()
				if err != nil {
					p.opts.Log.Errorf("building per-worker processor instance: %v", err)
					inst = proc
				}
				chain[i] = inst
			} else {
				chain[i] = proc
			}
		}
		chains[w] = chain
	}
	return chains
}

func (p *Pipeline) readLoop(ctx context.Context, workCh chan<- *message.Message) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, ackFn, err := p.opts.Input.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			var transient *component.TransientError
			if errors.As(err, &transient) {
				p.opts.Log.Warnf("transient input error, retrying: %v", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
				}
				continue
			}
			var fatal *component.FatalError
			if errors.As(err, &fatal) {
				p.opts.Log.Errorf("fatal input error, stopping: %v", err)
				return
			}
			p.opts.Log.Errorf("input read error, stopping: %v", err)
			return
		}

		admitted := p.admit(msg, ackFn)
		if admitted == nil {
			continue
		}
		select {
		case workCh <- admitted:
		case <-ctx.Done():
			return
		}
	}
}

// admit assigns the shared ack handle, registers the message with the
// stream tracker, rejects duplicates and resolves EndOfStream markers
// immediately without entering the worker pool. Returns nil when the
// message has already reached a terminal disposition and should not
// be enqueued.
func (p *Pipeline) admit(msg *message.Message, ackFn message.AckFunc) *message.Message {
	p.opts.Metrics.Incr(metrics.CounterTotalReceived, 1)
	p.opts.Metrics.Incr(metrics.CounterInputBytes, int64(len(msg.Bytes())))
	receivedAt := time.Now()
	streamID, hasSID := msg.StreamID()

	var handle *message.AckHandle
	wrapped := func(ctx context.Context, err error) error {
		if hasSID {
			p.opts.Tracker.Leave(streamID, handle)
		}
		p.opts.Metrics.ObserveLatency(time.Since(receivedAt))
		p.opts.Metrics.InFlightIncr(-1)
		return ackFn(ctx, err)
	}
	handle = message.NewAckHandle(wrapped, p.opts.NackPolicy)
	msg.SetAckHandle(handle)
	p.opts.Metrics.InFlightIncr(1)

	if msg.Kind() == message.EndOfStream {
		if hasSID {
			p.opts.Tracker.SignalEndOfStream(streamID)
		}
		_ = handle.Terminate(context.Background(), true)
		return nil
	}

	if hasSID {
		fingerprint := ""
		if p.opts.Fingerprint != nil {
			fingerprint = p.opts.Fingerprint(msg)
		}
		if p.opts.Tracker.Enter(streamID, fingerprint) {
			_ = handle.Terminate(context.Background(), true)
			return nil
		}
		p.opts.Tracker.TrackAck(streamID, handle)
	}
	return msg
}

func (p *Pipeline) workerLoop(ctx context.Context, workCh <-chan *message.Message, outputCh chan<- *message.Message, chain []component.Processor) {
	for msg := range workCh {
		leaves := p.runChain(ctx, msg, chain, 0)
		for _, leaf := range leaves {
			select {
			case outputCh <- leaf:
			case <-ctx.Done():
				_ = leaf.AckHandle().Terminate(context.Background(), false)
			}
		}
	}
}

// runChain pushes msg through chain starting at idx, recursing into
// fan-out children at the next stage; every child inherits the
// parent's shared ack token. It returns the messages that survived
// every stage and are ready for output; filtered and errored messages
// are terminated in place and never appear in the result.
func (p *Pipeline) runChain(ctx context.Context, msg *message.Message, chain []component.Processor, idx int) []*message.Message {
	if idx >= len(chain) {
		return []*message.Message{msg}
	}
	proc := chain[idx]
	out, err := proc.Process(msg)
	if err != nil {
		p.opts.Metrics.Incr(metrics.CounterTotalProcessErrors, 1)
		_ = msg.AckHandle().Terminate(ctx, false)
		return nil
	}
	if len(out) == 0 {
		msg.MarkFiltered()
		p.opts.Metrics.Incr(metrics.CounterTotalFiltered, 1)
		_ = msg.AckHandle().Terminate(ctx, true)
		return nil
	}
	if len(out) > 1 {
		msg.AckHandle().Fork(len(out) - 1)
	}
	var results []*message.Message
	for _, child := range out {
		if child.AckHandle() == nil {
			child.SetAckHandle(msg.AckHandle())
		}
		results = append(results, p.runChain(ctx, child, chain, idx+1)...)
	}
	return results
}

func (p *Pipeline) outputLoop(ctx context.Context, outputCh <-chan *message.Message) {
	if p.opts.BatchPolicy == nil || p.opts.BatchPolicy.Count <= 1 {
		for msg := range outputCh {
			p.writeOne(ctx, msg)
		}
		return
	}

	batch := make([]*message.Message, 0, p.opts.BatchPolicy.Count)
	timer := time.NewTimer(p.opts.BatchPolicy.Period)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.writeBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		select {
		case msg, ok := <-outputCh:
			if !ok {
				flush()
				return
			}
			if len(batch) == 0 {
				// Restart the period so it counts from the oldest
				// buffered message.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(p.opts.BatchPolicy.Period)
			}
			batch = append(batch, msg)
			if len(batch) >= p.opts.BatchPolicy.Count {
				flush()
				timer.Reset(p.opts.BatchPolicy.Period)
			}
		case <-timer.C:
			flush()
			timer.Reset(p.opts.BatchPolicy.Period)
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (p *Pipeline) writeOne(ctx context.Context, msg *message.Message) {
	if err := p.opts.Output.Write(ctx, msg); err != nil {
		p.opts.Metrics.Incr(metrics.CounterTotalOutputErrors, 1)
		_ = msg.AckHandle().Terminate(ctx, false)
		return
	}
	p.opts.Metrics.Incr(metrics.CounterTotalCompleted, 1)
	p.opts.Metrics.Incr(metrics.CounterOutputBytes, int64(len(msg.Bytes())))
	_ = msg.AckHandle().Terminate(ctx, true)
}

func (p *Pipeline) writeBatch(ctx context.Context, batch []*message.Message) {
	bw, ok := p.opts.Output.(component.BatchWriter)
	if !ok {
		for _, msg := range batch {
			p.writeOne(ctx, msg)
		}
		return
	}
	if err := bw.WriteBatch(ctx, batch); err != nil {
		p.opts.Metrics.Incr(metrics.CounterTotalOutputErrors, int64(len(batch)))
		for _, msg := range batch {
			_ = msg.AckHandle().Terminate(ctx, false)
		}
		return
	}
	p.opts.Metrics.Incr(metrics.CounterTotalCompleted, int64(len(batch)))
	for _, msg := range batch {
		p.opts.Metrics.Incr(metrics.CounterOutputBytes, int64(len(msg.Bytes())))
		_ = msg.AckHandle().Terminate(ctx, true)
	}
}
