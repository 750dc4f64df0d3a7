package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	ucli "github.com/urfave/cli/v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rc1405/fiddler/internal/cli"
	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/plugins"
)

func newTestApp(t *testing.T) (*bytes.Buffer, func(args ...string) error) {
	t.Helper()
	reg := component.NewRegistry()
	require.NoError(t, plugins.Register(reg))
	reg.Seal()

	var out bytes.Buffer
	app := cli.NewAppWithRegistry(reg)
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*ucli.Context, error) {} // suppress os.Exit in tests

	return &out, func(args ...string) error {
		return app.Run(append([]string{"fiddler"}, args...))
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLintAcceptsValidConfig(t *testing.T) {
	out, run := newTestApp(t)
	path := writeConfig(t, "input:\n  stdin: {}\noutput:\n  stdout: {}\n")
	err := run("lint", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "ok")
}

func TestLintRejectsUnknownPlugin(t *testing.T) {
	_, run := newTestApp(t)
	path := writeConfig(t, "input:\n  nonexistent: {}\noutput:\n  stdout: {}\n")
	err := run("lint", "-c", path)
	require.Error(t, err)
	var exitErr interface{ ExitCode() int }
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitConfigInvalid, exitErr.ExitCode())
}

func TestRunFailsFastOnUnknownMetricsPublisher(t *testing.T) {
	_, run := newTestApp(t)
	path := writeConfig(t, "input:\n  stdin: {}\noutput:\n  stdout: {}\nmetrics:\n  publisher:\n    bogus: {}\n  interval_secs: 1\n")
	err := run("run", "-c", path)
	require.Error(t, err)
	var exitErr interface{ ExitCode() int }
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitRuntimeError, exitErr.ExitCode())
}

func TestTestCommandReportsFailedFixture(t *testing.T) {
	out, run := newTestApp(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("input:\n  stdin: {}\noutput:\n  stdout: {}\n"), 0o644))
	fixturePath := filepath.Join(dir, "pipeline_test.yaml")
	require.NoError(t, os.WriteFile(fixturePath, []byte(`
- name: mismatched
  inputs: ["a"]
  expected_outputs: ["b"]
`), 0o644))

	err := run("test", "-c", cfgPath)
	require.Error(t, err)
	var exitErr interface{ ExitCode() int }
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, cli.ExitTestFailed, exitErr.ExitCode())
	assert.Contains(t, out.String(), "FAIL")
}
