package message_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rc1405/fiddler/internal/message"
	"github.com/rc1405/fiddler/internal/value"
)

func TestCloneSharesAckHandleButCopiesBytesAndMetadata(t *testing.T) {
	parent := message.New([]byte("hello"))
	parent.Metadata().SetString("k", "v")
	handle := message.NewAckHandle(func(ctx context.Context, err error) error { return nil }, message.NackOnAnyFailure)
	parent.SetAckHandle(handle)

	child := parent.Clone()
	child.SetBytes([]byte("changed"))
	child.Metadata().SetString("k", "changed")

	assert.Equal(t, []byte("hello"), parent.Bytes(), "clone must not alias the parent's payload")
	v, _ := parent.Metadata().Get("k")
	assert.Equal(t, "v", v.String(), "clone must not alias the parent's metadata")
	assert.Same(t, handle, child.AckHandle(), "fan-out children must share the same ack handle")
}

func TestAckHandleFiresOnlyAfterAllChildrenTerminate(t *testing.T) {
	var acked, nacked int
	handle := message.NewAckHandle(func(ctx context.Context, err error) error {
		if err != nil {
			nacked++
		} else {
			acked++
		}
		return nil
	}, message.NackOnAnyFailure)

	handle.Fork(2) // 3 total children now

	require.NoError(t, handle.Terminate(context.Background(), true))
	assert.Equal(t, 0, acked+nacked, "must not fire until every child has terminated")

	require.NoError(t, handle.Terminate(context.Background(), true))
	assert.Equal(t, 0, acked+nacked)

	require.NoError(t, handle.Terminate(context.Background(), true))
	assert.Equal(t, 1, acked)
	assert.Equal(t, 0, nacked)
}

func TestAckHandleNackOnAnyFailureByDefault(t *testing.T) {
	var lastErr error
	handle := message.NewAckHandle(func(ctx context.Context, err error) error {
		lastErr = err
		return nil
	}, message.NackOnAnyFailure)
	handle.Fork(1)

	require.NoError(t, handle.Terminate(context.Background(), true))
	require.NoError(t, handle.Terminate(context.Background(), false))
	assert.Error(t, lastErr)
}

func TestAckHandleNackOnAllFailuresRequiresEveryChildToFail(t *testing.T) {
	var lastErr error
	handle := message.NewAckHandle(func(ctx context.Context, err error) error {
		lastErr = err
		return nil
	}, message.NackOnAllFailures)
	handle.Fork(1)

	require.NoError(t, handle.Terminate(context.Background(), false))
	require.NoError(t, handle.Terminate(context.Background(), true))
	assert.NoError(t, lastErr, "one success under nack_on_all_failures must ack")
}

func TestAckHandleFiresExactlyOnceEvenWithZeroChildrenFanOut(t *testing.T) {
	calls := 0
	handle := message.NewAckHandle(func(ctx context.Context, err error) error {
		calls++
		return nil
	}, message.NackOnAnyFailure)

	require.NoError(t, handle.Terminate(context.Background(), true))
	assert.Equal(t, 1, calls)
}

func TestMetadataPreservesInsertionOrder(t *testing.T) {
	md := message.NewMetadata()
	md.Set("z", value.Int(1))
	md.SetString("a", "x")
	assert.Equal(t, []string{"z", "a"}, md.Keys())
}

func TestEndOfStreamMessageCarriesStreamID(t *testing.T) {
	eos := message.NewEndOfStream("stream-1")
	id, ok := eos.StreamID()
	require.True(t, ok)
	assert.Equal(t, "stream-1", id)
	assert.Equal(t, message.EndOfStream, eos.Kind())
}
