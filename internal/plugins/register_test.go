package plugins_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/config"
	"github.com/rc1405/fiddler/internal/message"
	"github.com/rc1405/fiddler/internal/plugins"
)

func newTestRegistry(t *testing.T) *component.Registry {
	t.Helper()
	reg := component.NewRegistry()
	require.NoError(t, plugins.Register(reg))
	return reg
}

func TestRegisterWiresAllBuiltinPlugins(t *testing.T) {
	reg := newTestRegistry(t)
	for _, tag := range []string{"stdin", "file"} {
		_, err := reg.LookupInput(tag)
		assert.NoError(t, err, tag)
	}
	for _, tag := range []string{"stdout", "drop", "switch"} {
		_, err := reg.LookupOutput(tag)
		assert.NoError(t, err, tag)
	}
	for _, tag := range []string{"noop", "lines", "filter", "transform", "switch", "try", "fiddlerscript", "compress", "decompress", "decode"} {
		_, err := reg.LookupProcessor(tag)
		assert.NoError(t, err, tag)
	}
}

func TestNestedSwitchProcessorBuildsChildProcessorChain(t *testing.T) {
	reg := newTestRegistry(t)
	desc, err := reg.LookupProcessor("switch")
	require.NoError(t, err)

	cfg := map[string]any{
		"cases": []map[string]any{
			{
				"query": "kind == 'a'",
				"processors": []map[string]any{
					{"noop": map[string]any{}},
				},
			},
		},
	}
	inst, err := desc.Constructor(cfg, component.Dependencies{})
	require.NoError(t, err)
	proc := inst.(component.Processor)

	out, err := proc.Process(message.New([]byte(`{"kind":"a"}`)))
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestNestedSwitchOutputBuildsChildOutput(t *testing.T) {
	reg := newTestRegistry(t)
	desc, err := reg.LookupOutput("switch")
	require.NoError(t, err)

	cfg := []map[string]any{
		{"query": "level == 'error'", "output": map[string]any{"drop": map[string]any{}}},
	}
	inst, err := desc.Constructor(cfg, component.Dependencies{})
	require.NoError(t, err)
	out := inst.(component.Output)
	require.NoError(t, out.Write(context.Background(), message.New([]byte(`{"level":"error"}`))))
}

func TestValidateAgainstRealRegistryAcceptsStdinToStdoutPipeline(t *testing.T) {
	reg := newTestRegistry(t)
	cfg := &config.PipelineConfig{
		Input:  config.PluginConfig{Tag: "stdin", Options: map[string]any{}},
		Output: config.PluginConfig{Tag: "stdout", Options: map[string]any{}},
	}
	assert.NoError(t, config.Validate(cfg, reg))
}
