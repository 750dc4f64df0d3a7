// Package config loads and validates pipeline configuration documents:
// YAML, single-key plugin selectors, Handlebars-style {{NAME}}
// environment substitution applied before JSON-Schema validation.
// Loading substitutes environment values into the raw document text,
// parses the result as YAML, then validates each component's options
// against the JSON-Schema its plugin registered.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/rc1405/fiddler/internal/component"
)

// PluginConfig is a single-key YAML object selecting a plugin by tag,
// e.g. `{stdin: {}}` or `{file: {path: /var/log/app.log}}`.
type PluginConfig struct {
	Tag     string
	Options any
}

func (p *PluginConfig) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("%w: got %d keys", component.ErrMultiKeyConfig, len(m))
	}
	for k, v := range m {
		p.Tag = k
		p.Options = v
	}
	return nil
}

// MetricsConfig selects a metrics publisher plugin (stdout/prometheus)
// and its publish interval.
type MetricsConfig struct {
	Publisher    *PluginConfig `yaml:"publisher"`
	IntervalSecs int           `yaml:"interval_secs"`
}

// DedupConfig configures the stream tracker's optional deduplication.
// The metadata keys that participate in the fingerprint are a pipeline
// option, not a fixed default.
type DedupConfig struct {
	Enabled      bool     `yaml:"enabled"`
	MetadataKeys []string `yaml:"metadata_keys"`
	WindowSize   int      `yaml:"window_size"`
}

// PipelineConfig is one fully-parsed, pre-validation pipeline document.
type PipelineConfig struct {
	Label       string          `yaml:"label"`
	NumThreads  int             `yaml:"num_threads"`
	MaxInFlight int             `yaml:"max_in_flight"`
	Input       PluginConfig    `yaml:"input"`
	Processors  []PluginConfig  `yaml:"processors"`
	Output      PluginConfig    `yaml:"output"`
	Metrics     *MetricsConfig  `yaml:"metrics"`
	Dedup       *DedupConfig    `yaml:"dedup"`
	StreamTTL   string          `yaml:"stream_ttl"`
}

var envPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// substituteEnv rewrites every {{NAME}} occurrence in raw against the
// process environment. An unset NAME is substituted as an empty
// string.
func substituteEnv(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads and parses a single pipeline config file: environment
// substitution happens against the raw bytes before YAML parsing.
// The substitution is textual, not per scalar: a substituted value
// that contains YAML syntax (a colon-space, a newline, a `#`) is
// parsed as part of the document, and {{NAME}} tokens inside YAML
// comments are substituted too.
func Load(path string) (*PipelineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &component.ConfigError{Component: path, Cause: err}
	}
	substituted := substituteEnv(raw)

	var cfg PipelineConfig
	if err := yaml.Unmarshal(substituted, &cfg); err != nil {
		return nil, &component.ConfigError{Component: path, Cause: err}
	}
	return &cfg, nil
}

// DecodeInto re-marshals a generic YAML-decoded value (typically a
// PluginConfig.Options map[string]any) into a plugin's strongly typed
// config struct, round-tripping through gopkg.in/yaml.v3 rather than a
// reflection-based mapping library.
func DecodeInto(raw any, out any) error {
	b, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

// Validate schema-checks every plugin selector in cfg against reg,
// returning the first violation. Registration lookups happen before
// schema checks so an unknown plugin tag produces ErrPluginNotFound
// rather than a confusing schema mismatch.
func Validate(cfg *PipelineConfig, reg *component.Registry) error {
	if _, err := validateOne(reg.LookupInput, cfg.Input); err != nil {
		return err
	}
	for _, p := range cfg.Processors {
		if _, err := validateOne(reg.LookupProcessor, p); err != nil {
			return err
		}
	}
	if _, err := validateOne(reg.LookupOutput, cfg.Output); err != nil {
		return err
	}
	return nil
}

func validateOne(lookup func(string) (*component.Descriptor, error), pc PluginConfig) (*component.Descriptor, error) {
	desc, err := lookup(pc.Tag)
	if err != nil {
		return nil, err
	}
	if err := desc.ValidateConfig(pc.Options); err != nil {
		return nil, err
	}
	return desc, nil
}
