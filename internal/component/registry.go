package component

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/rc1405/fiddler/internal/log"
	"github.com/rc1405/fiddler/internal/metrics"
)

// Dependencies are the ambient services a plugin constructor may use:
// a scoped logger and the process-wide metrics aggregator. Plugin
// authors are not handed the raw stream tracker or executor; those
// stay internal to the runtime.
type Dependencies struct {
	Log     log.Modular
	Metrics *metrics.Aggregator
}

// Descriptor is what a plugin registers process-wide at startup: a
// JSON-Schema for its configuration and a constructor.
type Descriptor struct {
	Tag         string
	Schema      *gojsonschema.Schema
	Constructor Constructor
}

// Registry is a tagged-variant registry keyed by a plugin's YAML tag,
// holding all three capabilities in one process-wide, write-once-at
// -startup structure: the only global mutable state in the runtime is
// this registry, written once during startup and read-only
// thereafter.
type Registry struct {
	mu         sync.RWMutex
	inputs     map[string]*Descriptor
	processors map[string]*Descriptor
	outputs    map[string]*Descriptor
	sealed     bool
}

// NewRegistry returns an empty, writable registry.
func NewRegistry() *Registry {
	return &Registry{
		inputs:     map[string]*Descriptor{},
		processors: map[string]*Descriptor{},
		outputs:    map[string]*Descriptor{},
	}
}

// Seal marks the registry read-only. Called once startup registration
// completes.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) register(kind string, m map[string]*Descriptor, d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("cannot register %s %q: registry is sealed", kind, d.Tag)
	}
	if _, exists := m[d.Tag]; exists {
		return fmt.Errorf("%w: %s %q", ErrDuplicatePlugin, kind, d.Tag)
	}
	m[d.Tag] = &d
	return nil
}

// RegisterInput registers an input plugin descriptor.
func (r *Registry) RegisterInput(d Descriptor) error { return r.register("input", r.inputs, d) }

// RegisterProcessor registers a processor plugin descriptor.
func (r *Registry) RegisterProcessor(d Descriptor) error {
	return r.register("processor", r.processors, d)
}

// RegisterOutput registers an output plugin descriptor.
func (r *Registry) RegisterOutput(d Descriptor) error { return r.register("output", r.outputs, d) }

func lookup(kind string, m map[string]*Descriptor, tag string) (*Descriptor, error) {
	d, ok := m[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrPluginNotFound, kind, tag)
	}
	return d, nil
}

// LookupInput retrieves an input descriptor by tag.
func (r *Registry) LookupInput(tag string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup("input", r.inputs, tag)
}

// LookupProcessor retrieves a processor descriptor by tag.
func (r *Registry) LookupProcessor(tag string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup("processor", r.processors, tag)
}

// LookupOutput retrieves an output descriptor by tag.
func (r *Registry) LookupOutput(tag string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lookup("output", r.outputs, tag)
}

// ValidateConfig runs a descriptor's JSON-Schema against a decoded
// configuration document (a Go value produced by YAML unmarshalling
// into interface{}), returning a *ConfigError describing every
// violation on failure.
func (d *Descriptor) ValidateConfig(doc any) error {
	if d.Schema == nil {
		return nil
	}
	result, err := d.Schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ConfigError{Component: d.Tag, Cause: err}
	}
	if !result.Valid() {
		msg := ""
		for i, e := range result.Errors() {
			if i > 0 {
				msg += "; "
			}
			msg += e.String()
		}
		return &ConfigError{Component: d.Tag, Cause: fmt.Errorf("schema violation: %s", msg)}
	}
	return nil
}

// CompileSchema compiles a JSON-Schema document (as raw JSON bytes)
// for use in a Descriptor.
func CompileSchema(tag string, schemaJSON []byte) (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, &ConfigError{Component: tag, Cause: err}
	}
	return schema, nil
}
