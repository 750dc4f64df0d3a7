package outputs_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rc1405/fiddler/internal/message"
	"github.com/rc1405/fiddler/internal/plugins/outputs"
)

func TestStdoutWritesNewlineTerminatedPayload(t *testing.T) {
	var buf bytes.Buffer
	out := outputs.NewStdoutTo(&buf)
	require.NoError(t, out.Write(context.Background(), message.New([]byte("hello"))))
	require.NoError(t, out.Write(context.Background(), message.New([]byte("world"))))
	assert.Equal(t, "hello\nworld\n", buf.String())
}

func TestDropDiscardsSilently(t *testing.T) {
	out := outputs.Drop{}
	assert.NoError(t, out.Write(context.Background(), message.New([]byte("anything"))))
}

func TestSwitchRoutesOnlyToFirstMatchingBranch(t *testing.T) {
	var errBuf, catchAllBuf bytes.Buffer
	sw := outputs.NewSwitch([]outputs.SwitchBranch{
		{Query: "level == 'error'", Output: outputs.NewStdoutTo(&errBuf)},
		{Query: "true", Output: outputs.NewStdoutTo(&catchAllBuf)},
	})

	require.NoError(t, sw.Write(context.Background(), message.New([]byte(`{"level":"error"}`))))
	assert.Equal(t, `{"level":"error"}`+"\n", errBuf.String(), "first matching branch must receive the message")
	assert.Empty(t, catchAllBuf.String(), "later branches must not receive a message already claimed by an earlier match")
}
