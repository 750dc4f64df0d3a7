// Package testharness implements the `test` CLI command's fixture
// -driven checks: for every `<stem>_test.yaml` beside a pipeline
// config, feed each fixture's declared inputs through the configured
// processor chain and compare the emitted outputs against the
// fixture's expected outputs as an ordered multiset (same multiset,
// any order — matching the executor's own lack of an ordering
// guarantee across a worker pool).
package testharness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/config"
	"github.com/rc1405/fiddler/internal/log"
	"github.com/rc1405/fiddler/internal/metrics"
	"github.com/rc1405/fiddler/internal/pipeline"
	"github.com/rc1405/fiddler/internal/plugins"
	"github.com/rc1405/fiddler/internal/plugins/inputs"
	"github.com/rc1405/fiddler/internal/plugins/outputs"
	"github.com/rc1405/fiddler/internal/stream"
)

// Fixture is one test case: a set of raw input lines fed through the
// pipeline's processor chain, and the multiset of output payloads the
// run must produce.
type Fixture struct {
	Name            string   `yaml:"name"`
	Inputs          []string `yaml:"inputs"`
	ExpectedOutputs []string `yaml:"expected_outputs"`
}

// FixturePath derives the `<stem>_test.yaml` path for a config file.
func FixturePath(configPath string) string {
	ext := filepath.Ext(configPath)
	stem := strings.TrimSuffix(configPath, ext)
	return stem + "_test" + ext
}

// LoadFixtures reads and parses a fixture file.
func LoadFixtures(path string) ([]Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &component.ConfigError{Component: path, Cause: err}
	}
	var fixtures []Fixture
	if err := yaml.Unmarshal(raw, &fixtures); err != nil {
		return nil, &component.ConfigError{Component: path, Cause: err}
	}
	return fixtures, nil
}

// Result is one fixture's outcome.
type Result struct {
	Name     string
	Passed   bool
	Actual   []string
	Expected []string
	Err      error
}

// Run executes every fixture against cfg's processor chain (the
// fixture supplies its own synthetic input and captures its own
// output; cfg's configured input/output plugins are not exercised by
// `test`, only its processors).
func Run(ctx context.Context, cfg *config.PipelineConfig, reg *component.Registry, deps component.Dependencies, fixtures []Fixture) ([]Result, error) {
	results := make([]Result, 0, len(fixtures))
	for _, fx := range fixtures {
		res, err := runOne(ctx, cfg, reg, deps, fx)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func runOne(ctx context.Context, cfg *config.PipelineConfig, reg *component.Registry, deps component.Dependencies, fx Fixture) (Result, error) {
	chain, err := plugins.BuildProcessorChain(reg, deps, cfg.Processors)
	if err != nil {
		return Result{}, err
	}

	source := strings.NewReader(strings.Join(fx.Inputs, "\n") + "\n")
	in := inputs.NewStdinFromReader(source)
	if err := in.Open(ctx); err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	out := outputs.NewStdoutTo(&buf)

	agg := metrics.New()
	lg := log.New(os.Stderr, "off")
	tr := stream.New(stream.Config{}, agg, lg)

	p := pipeline.New(pipeline.Options{
		NumThreads: 1,
		Input:      in,
		Processors: chain,
		Output:     out,
		Tracker:    tr,
		Metrics:    agg,
		Log:        lg,
	})
	if err := p.Run(ctx); err != nil {
		return Result{}, fmt.Errorf("fixture %q: %w", fx.Name, err)
	}

	actual := splitNonEmptyLines(buf.String())
	passed := sameMultiset(actual, fx.ExpectedOutputs)
	return Result{Name: fx.Name, Passed: passed, Actual: actual, Expected: fx.ExpectedOutputs}, nil
}

func splitNonEmptyLines(s string) []string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
