package pipeline_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/log"
	"github.com/rc1405/fiddler/internal/message"
	"github.com/rc1405/fiddler/internal/metrics"
	"github.com/rc1405/fiddler/internal/pipeline"
	"github.com/rc1405/fiddler/internal/stream"
)

// fakeInput serves a fixed slice of messages, blocking on ctx.Done
// once exhausted so the pipeline's read loop parks instead of busy
// -looping, and records the ack/nack error delivered for each one.
type fakeInput struct {
	mu    sync.Mutex
	msgs  []*message.Message
	idx   int
	acked []error
	seen  int
}

func newFakeInput(msgs ...*message.Message) *fakeInput {
	return &fakeInput{msgs: msgs, acked: make([]error, len(msgs))}
}

func (f *fakeInput) Open(ctx context.Context) error { return nil }

func (f *fakeInput) Read(ctx context.Context) (*message.Message, message.AckFunc, error) {
	f.mu.Lock()
	if f.idx >= len(f.msgs) {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	id := f.idx
	msg := f.msgs[id]
	f.idx++
	f.mu.Unlock()
	return msg, func(_ context.Context, err error) error {
		f.mu.Lock()
		f.acked[id] = err
		f.seen++
		f.mu.Unlock()
		return nil
	}, nil
}

func (f *fakeInput) Close(ctx context.Context) error { return nil }

func (f *fakeInput) ackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen
}

func (f *fakeInput) ackAt(i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acked[i]
}

// fakeOutput records every write it receives.
type fakeOutput struct {
	mu      sync.Mutex
	written [][]byte
	failNth int // if > 0, the write at this 1-based count fails
	count   int
	flushes int
}

func (o *fakeOutput) Write(ctx context.Context, msg *message.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.count++
	if o.failNth > 0 && o.count == o.failNth {
		return errors.New("simulated write failure")
	}
	o.written = append(o.written, append([]byte(nil), msg.Bytes()...))
	return nil
}
func (o *fakeOutput) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushes++
	return nil
}
func (o *fakeOutput) Close(ctx context.Context) error { return nil }
func (o *fakeOutput) writtenCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.written)
}

// fanOutProcessor splits every message into n clones sharing the ack
// handle, exercising the executor's fan-out path.
type fanOutProcessor struct{ n int }

func (p *fanOutProcessor) Process(msg *message.Message) ([]*message.Message, error) {
	out := make([]*message.Message, p.n)
	for i := 0; i < p.n; i++ {
		out[i] = msg.Clone()
	}
	return out, nil
}
func (p *fanOutProcessor) Close() error { return nil }

// filterProcessor drops every message.
type filterProcessor struct{}

func (filterProcessor) Process(msg *message.Message) ([]*message.Message, error) { return nil, nil }
func (filterProcessor) Close() error                                             { return nil }

// erroringProcessor always fails.
type erroringProcessor struct{}

func (erroringProcessor) Process(msg *message.Message) ([]*message.Message, error) {
	return nil, component.NewProcessingError("erroring", errors.New("boom"))
}
func (erroringProcessor) Close() error { return nil }

func newTestDeps() (*metrics.Aggregator, *stream.Tracker, log.Modular) {
	agg := metrics.New()
	lg := log.New(io.Discard, "off")
	tr := stream.New(stream.Config{}, agg, lg)
	return agg, tr, lg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestSingleMessagePassesThroughAndAcks(t *testing.T) {
	agg, tr, lg := newTestDeps()
	in := newFakeInput(message.New([]byte("hello")))
	out := &fakeOutput{}

	p := pipeline.New(pipeline.Options{
		NumThreads: 2, MaxInFlight: 4,
		Input: in, Output: out,
		Tracker: tr, Metrics: agg, Log: lg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return out.writtenCount() == 1 })
	assert.Equal(t, []byte("hello"), out.written[0])

	cancel()
	<-runErr

	assert.Equal(t, 1, in.ackedCount())
	assert.NoError(t, in.ackAt(0))
	assert.Equal(t, int64(1), agg.Get(metrics.CounterTotalReceived))
	assert.Equal(t, int64(1), agg.Get(metrics.CounterTotalCompleted))
}

func TestFanOutSharesAckHandleAndAcksOnceAllChildrenComplete(t *testing.T) {
	agg, tr, lg := newTestDeps()
	in := newFakeInput(message.New([]byte("split-me")))
	out := &fakeOutput{}

	p := pipeline.New(pipeline.Options{
		NumThreads: 1, MaxInFlight: 4,
		Input:      in,
		Processors: []component.Processor{&fanOutProcessor{n: 3}},
		Output:     out,
		Tracker:    tr, Metrics: agg, Log: lg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return out.writtenCount() == 3 })
	waitFor(t, 2*time.Second, func() bool { return in.ackedCount() == 1 })
	assert.NoError(t, in.ackAt(0))

	cancel()
	<-runErr

	assert.Equal(t, int64(3), agg.Get(metrics.CounterTotalCompleted))
}

func TestFilteredMessageAcksWithoutReachingOutput(t *testing.T) {
	agg, tr, lg := newTestDeps()
	in := newFakeInput(message.New([]byte("drop-me")))
	out := &fakeOutput{}

	p := pipeline.New(pipeline.Options{
		NumThreads: 1, MaxInFlight: 4,
		Input:      in,
		Processors: []component.Processor{filterProcessor{}},
		Output:     out,
		Tracker:    tr, Metrics: agg, Log: lg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return in.ackedCount() == 1 })
	assert.NoError(t, in.ackAt(0))

	cancel()
	<-runErr

	assert.Equal(t, 0, out.writtenCount())
	assert.Equal(t, int64(1), agg.Get(metrics.CounterTotalFiltered))
}

func TestProcessorErrorNacksMessage(t *testing.T) {
	agg, tr, lg := newTestDeps()
	in := newFakeInput(message.New([]byte("fail-me")))
	out := &fakeOutput{}

	p := pipeline.New(pipeline.Options{
		NumThreads: 1, MaxInFlight: 4,
		Input:      in,
		Processors: []component.Processor{erroringProcessor{}},
		Output:     out,
		Tracker:    tr, Metrics: agg, Log: lg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return in.ackedCount() == 1 })
	assert.Error(t, in.ackAt(0))

	cancel()
	<-runErr

	assert.Equal(t, int64(1), agg.Get(metrics.CounterTotalProcessErrors))
}

func TestOutputErrorNacksMessage(t *testing.T) {
	agg, tr, lg := newTestDeps()
	in := newFakeInput(message.New([]byte("bad-write")))
	out := &fakeOutput{failNth: 1}

	p := pipeline.New(pipeline.Options{
		NumThreads: 1, MaxInFlight: 4,
		Input: in, Output: out,
		Tracker: tr, Metrics: agg, Log: lg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return in.ackedCount() == 1 })
	assert.Error(t, in.ackAt(0))

	cancel()
	<-runErr

	assert.Equal(t, int64(1), agg.Get(metrics.CounterTotalOutputErrors))
}

func TestStreamMessagesShareTrackerAndEndOfStreamCompletesAfterDrain(t *testing.T) {
	agg, tr, lg := newTestDeps()
	m1 := message.New([]byte("a"))
	m1.SetStreamID("s1")
	m2 := message.New([]byte("b"))
	m2.SetStreamID("s1")
	eos := message.NewEndOfStream("s1")

	in := newFakeInput(m1, m2, eos)
	out := &fakeOutput{}

	p := pipeline.New(pipeline.Options{
		NumThreads: 1, MaxInFlight: 4,
		Input: in, Output: out,
		Tracker: tr, Metrics: agg, Log: lg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return out.writtenCount() == 2 })
	waitFor(t, 2*time.Second, func() bool { return agg.Get(metrics.CounterStreamsCompleted) == 1 })

	cancel()
	<-runErr
}

func TestFingerprintDedupRejectsRepeatedPayloadOnSharedStream(t *testing.T) {
	agg := metrics.New()
	lg := log.New(io.Discard, "off")
	tr := stream.New(stream.Config{DedupEnabled: true, DedupWindow: 16}, agg, lg)

	m1 := message.New([]byte("same"))
	m1.SetStreamID("s1")
	m2 := message.New([]byte("same"))
	m2.SetStreamID("s1")
	out := &fakeOutput{}

	in := newFakeInput(m1, m2)
	p := pipeline.New(pipeline.Options{
		NumThreads: 1, MaxInFlight: 4,
		Input: in, Output: out,
		Tracker: tr, Metrics: agg, Log: lg,
		Fingerprint: pipeline.NewFingerprint(nil),
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return in.ackedCount() == 2 })
	waitFor(t, 2*time.Second, func() bool { return agg.Get(metrics.CounterDuplicatesRejected) == 1 })

	cancel()
	<-runErr

	assert.Equal(t, 1, out.writtenCount())
}

func TestBatchedOutputCoalescesUntilCountReached(t *testing.T) {
	agg, tr, lg := newTestDeps()
	in := newFakeInput(message.New([]byte("1")), message.New([]byte("2")), message.New([]byte("3")))
	out := &fakeOutput{}

	p := pipeline.New(pipeline.Options{
		NumThreads: 1, MaxInFlight: 8,
		Input: in, Output: out,
		BatchPolicy: &component.BatchPolicy{Count: 3, Period: time.Hour},
		Tracker:     tr, Metrics: agg, Log: lg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return out.writtenCount() == 3 })

	cancel()
	<-runErr
}

func TestGracefulShutdownFlushesOutputOnce(t *testing.T) {
	agg, tr, lg := newTestDeps()
	in := newFakeInput(message.New([]byte("only")))
	out := &fakeOutput{}

	p := pipeline.New(pipeline.Options{
		NumThreads: 2, MaxInFlight: 4,
		Input: in, Output: out,
		Tracker: tr, Metrics: agg, Log: lg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := p.Run(ctx)
	require.True(t, errors.Is(err, context.Canceled) || err == nil)
	assert.LessOrEqual(t, out.writtenCount(), 1)
	out.mu.Lock()
	defer out.mu.Unlock()
	assert.Equal(t, 1, out.flushes)
}
