// Package plugins wires the built-in input, processor and output
// plugins into a component.Registry, and provides the recursive
// construction the "switch"/"try" control processors and the "switch"
// output need for their nested processor/output chains: one
// package-level Register function per capability family, each calling
// component.CompileSchema once per plugin at startup.
package plugins

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/rc1405/fiddler/internal/component"
	"github.com/rc1405/fiddler/internal/config"
	"github.com/rc1405/fiddler/internal/plugins/inputs"
	"github.com/rc1405/fiddler/internal/plugins/outputs"
	"github.com/rc1405/fiddler/internal/plugins/processors"
)

// Register populates reg with every built-in plugin. Call once at
// startup, before reg.Seal().
func Register(reg *component.Registry) error {
	if err := registerInputs(reg); err != nil {
		return err
	}
	if err := registerOutputs(reg); err != nil {
		return err
	}
	if err := registerProcessors(reg); err != nil {
		return err
	}
	return nil
}

func mustSchema(tag, schemaJSON string) *gojsonschema.Schema {
	s, err := component.CompileSchema(tag, []byte(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("built-in plugin %q carries an invalid schema: %v", tag, err))
	}
	return s
}

func registerInputs(reg *component.Registry) error {
	if err := reg.RegisterInput(component.Descriptor{
		Tag:         "stdin",
		Schema:      mustSchema("stdin", `{"type":"object"}`),
		Constructor: inputs.NewStdin,
	}); err != nil {
		return err
	}
	return reg.RegisterInput(component.Descriptor{
		Tag: "file",
		Schema: mustSchema("file", `{
			"type": "object",
			"required": ["path"],
			"properties": {
				"path": {"type": "string"},
				"codec": {"type": "string", "enum": ["lines", "drop"]},
				"position_file": {"type": "string"}
			}
		}`),
		Constructor: inputs.NewFile,
	})
}

func registerOutputs(reg *component.Registry) error {
	if err := reg.RegisterOutput(component.Descriptor{
		Tag:         "stdout",
		Schema:      mustSchema("stdout", `{"type":"object"}`),
		Constructor: outputs.NewStdout,
	}); err != nil {
		return err
	}
	if err := reg.RegisterOutput(component.Descriptor{
		Tag:         "drop",
		Schema:      mustSchema("drop", `{"type":"object"}`),
		Constructor: outputs.NewDrop,
	}); err != nil {
		return err
	}
	return reg.RegisterOutput(component.Descriptor{
		Tag: "switch",
		Schema: mustSchema("switch", `{
			"type": "array",
			"items": {
				"type": "object",
				"required": ["query", "output"],
				"properties": {
					"query": {"type": "string"},
					"output": {"type": "object"}
				}
			}
		}`),
		Constructor: func(cfg any, deps component.Dependencies) (any, error) {
			var raw []struct {
				Query  string              `yaml:"query"`
				Output config.PluginConfig `yaml:"output"`
			}
			if err := config.DecodeInto(cfg, &raw); err != nil {
				return nil, &component.ConfigError{Component: "switch", Cause: err}
			}
			branches := make([]outputs.SwitchBranch, 0, len(raw))
			for _, r := range raw {
				out, err := buildOutput(reg, deps, r.Output)
				if err != nil {
					return nil, err
				}
				branches = append(branches, outputs.SwitchBranch{Query: r.Query, Output: out})
			}
			return outputs.NewSwitch(branches), nil
		},
	})
}

func registerProcessors(reg *component.Registry) error {
	registrations := []component.Descriptor{
		{Tag: "noop", Schema: mustSchema("noop", `{"type":"object"}`), Constructor: processors.NewNoop},
		{Tag: "lines", Schema: mustSchema("lines", `{
			"type": "object",
			"properties": {"omit_empty": {"type": "boolean"}}
		}`), Constructor: processors.NewLines},
		{Tag: "filter", Schema: mustSchema("filter", `{
			"type": "object",
			"required": ["query"],
			"properties": {"query": {"type": "string"}}
		}`), Constructor: processors.NewFilter},
		{Tag: "transform", Schema: mustSchema("transform", `{
			"type": "object",
			"required": ["mapping"],
			"properties": {
				"mapping": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["field", "query"],
						"properties": {"field": {"type": "string"}, "query": {"type": "string"}}
					}
				}
			}
		}`), Constructor: processors.NewTransform},
		{Tag: "fiddlerscript", Schema: mustSchema("fiddlerscript", `{
			"type": "object",
			"required": ["source"],
			"properties": {"source": {"type": "string"}}
		}`), Constructor: processors.NewFiddlerScript},
		{Tag: "compress", Schema: mustSchema("compress", `{
			"type": "object",
			"required": ["algorithm"],
			"properties": {"algorithm": {"type": "string", "enum": ["gzip", "zlib", "deflate"]}}
		}`), Constructor: processors.NewCompress},
		{Tag: "decompress", Schema: mustSchema("decompress", `{
			"type": "object",
			"required": ["algorithm"],
			"properties": {"algorithm": {"type": "string", "enum": ["gzip", "zlib", "deflate"]}}
		}`), Constructor: processors.NewDecompress},
		{Tag: "decode", Schema: mustSchema("decode", `{
			"type": "object",
			"required": ["action"],
			"properties": {"action": {"type": "string", "enum": ["encode", "decode"]}}
		}`), Constructor: processors.NewDecode},
	}
	for _, d := range registrations {
		if err := reg.RegisterProcessor(d); err != nil {
			return err
		}
	}

	if err := reg.RegisterProcessor(component.Descriptor{
		Tag: "switch",
		Schema: mustSchema("switch", `{
			"type": "object",
			"required": ["cases"],
			"properties": {
				"cases": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["query", "processors"],
						"properties": {
							"query": {"type": "string"},
							"processors": {"type": "array"}
						}
					}
				}
			}
		}`),
		Constructor: func(cfg any, deps component.Dependencies) (any, error) {
			var raw struct {
				Cases []struct {
					Query      string                `yaml:"query"`
					Processors []config.PluginConfig `yaml:"processors"`
				} `yaml:"cases"`
			}
			if err := config.DecodeInto(cfg, &raw); err != nil {
				return nil, &component.ConfigError{Component: "switch", Cause: err}
			}
			branches := make([]processors.SwitchBranch, 0, len(raw.Cases))
			for _, c := range raw.Cases {
				chain, err := buildProcessorChain(reg, deps, c.Processors)
				if err != nil {
					return nil, err
				}
				branches = append(branches, processors.SwitchBranch{Query: c.Query, Chain: chain})
			}
			return processors.NewSwitch(branches), nil
		},
	}); err != nil {
		return err
	}

	return reg.RegisterProcessor(component.Descriptor{
		Tag: "try",
		Schema: mustSchema("try", `{
			"type": "object",
			"required": ["processors"],
			"properties": {
				"processors": {"type": "array"},
				"catch": {"type": "array"}
			}
		}`),
		Constructor: func(cfg any, deps component.Dependencies) (any, error) {
			var raw struct {
				Processors []config.PluginConfig `yaml:"processors"`
				Catch      []config.PluginConfig `yaml:"catch"`
			}
			if err := config.DecodeInto(cfg, &raw); err != nil {
				return nil, &component.ConfigError{Component: "try", Cause: err}
			}
			chain, err := buildProcessorChain(reg, deps, raw.Processors)
			if err != nil {
				return nil, err
			}
			catch, err := buildProcessorChain(reg, deps, raw.Catch)
			if err != nil {
				return nil, err
			}
			return processors.NewTry(chain, catch), nil
		},
	})
}

// buildProcessorChain resolves and constructs each plugin selector in
// order. Called at pipeline-build time (well after Register), so
// looking up "switch"/"try" recursively is safe even though they are
// registered from within this same file.
func buildProcessorChain(reg *component.Registry, deps component.Dependencies, pcs []config.PluginConfig) ([]component.Processor, error) {
	chain := make([]component.Processor, 0, len(pcs))
	for _, pc := range pcs {
		desc, err := reg.LookupProcessor(pc.Tag)
		if err != nil {
			return nil, err
		}
		inst, err := desc.Constructor(pc.Options, deps)
		if err != nil {
			return nil, err
		}
		proc, ok := inst.(component.Processor)
		if !ok {
			return nil, fmt.Errorf("plugin %q did not produce a Processor", pc.Tag)
		}
		chain = append(chain, proc)
	}
	return chain, nil
}

func buildOutput(reg *component.Registry, deps component.Dependencies, pc config.PluginConfig) (component.Output, error) {
	desc, err := reg.LookupOutput(pc.Tag)
	if err != nil {
		return nil, err
	}
	inst, err := desc.Constructor(pc.Options, deps)
	if err != nil {
		return nil, err
	}
	out, ok := inst.(component.Output)
	if !ok {
		return nil, fmt.Errorf("plugin %q did not produce an Output", pc.Tag)
	}
	return out, nil
}

// BuildInput resolves and constructs the configured input plugin.
func BuildInput(reg *component.Registry, deps component.Dependencies, pc config.PluginConfig) (component.Input, error) {
	desc, err := reg.LookupInput(pc.Tag)
	if err != nil {
		return nil, err
	}
	inst, err := desc.Constructor(pc.Options, deps)
	if err != nil {
		return nil, err
	}
	in, ok := inst.(component.Input)
	if !ok {
		return nil, fmt.Errorf("plugin %q did not produce an Input", pc.Tag)
	}
	return in, nil
}

// BuildOutput resolves and constructs the configured output plugin.
func BuildOutput(reg *component.Registry, deps component.Dependencies, pc config.PluginConfig) (component.Output, error) {
	return buildOutput(reg, deps, pc)
}

// BuildProcessorChain resolves and constructs an ordered processor
// chain from top-level pipeline config.
func BuildProcessorChain(reg *component.Registry, deps component.Dependencies, pcs []config.PluginConfig) ([]component.Processor, error) {
	return buildProcessorChain(reg, deps, pcs)
}
