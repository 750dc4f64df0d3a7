package inputs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/message"
	"github.com/rc1405/fiddler/internal/plugins/inputs"
)

func TestStdinEmitsOneMessagePerLineThenEndOfStream(t *testing.T) {
	in := inputs.NewStdinFromReader(strings.NewReader("one\ntwo\n"))
	require.NoError(t, in.Open(context.Background()))
	defer in.Close(context.Background())

	msg1, _, err := in.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", string(msg1.Bytes()))

	msg2, _, err := in.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", string(msg2.Bytes()))

	sid1, ok1 := msg1.StreamID()
	sid2, ok2 := msg2.StreamID()
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, sid1, sid2)

	eos, _, err := in.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, message.EndOfStream, eos.Kind())

	_, _, err = in.Read(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilePersistsOffsetAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.log")
	posPath := filepath.Join(dir, "pos.txt")
	require.NoError(t, os.WriteFile(dataPath, []byte("a\nb\nc\n"), 0o644))

	inst, err := inputs.NewFile(map[string]any{"path": dataPath, "position_file": posPath}, depsStub())
	require.NoError(t, err)
	f := inst.(*inputs.File)
	require.NoError(t, f.Open(context.Background()))

	msg, ackFn, err := f.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", string(msg.Bytes()))
	require.NoError(t, ackFn(context.Background(), nil))
	require.NoError(t, f.Close(context.Background()))

	inst2, err := inputs.NewFile(map[string]any{"path": dataPath, "position_file": posPath}, depsStub())
	require.NoError(t, err)
	f2 := inst2.(*inputs.File)
	require.NoError(t, f2.Open(context.Background()))
	defer f2.Close(context.Background())

	msg2, _, err := f2.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", string(msg2.Bytes()))
}

func TestFileDropCodecDiscardsWithoutEmitting(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.log")
	require.NoError(t, os.WriteFile(dataPath, []byte("a\nb\n"), 0o644))

	inst, err := inputs.NewFile(map[string]any{"path": dataPath, "codec": "drop"}, depsStub())
	require.NoError(t, err)
	f := inst.(*inputs.File)
	require.NoError(t, f.Open(context.Background()))
	defer f.Close(context.Background())

	msg, _, err := f.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, message.EndOfStream, msg.Kind())
}

func depsStub() (d component.Dependencies) { return }
