package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// StdoutPublisher writes each snapshot as one line of JSON. It is the
// default publisher used by `fiddler run` when no metrics config is
// given.
type StdoutPublisher struct {
	w io.Writer
}

// NewStdoutPublisher wraps an io.Writer (typically os.Stdout).
func NewStdoutPublisher(w io.Writer) *StdoutPublisher {
	return &StdoutPublisher{w: w}
}

func (p *StdoutPublisher) Publish(s Snapshot) {
	line := map[string]any{
		"time":     s.At.Format("2006-01-02T15:04:05.000Z07:00"),
		"counters": s.Counters,
		"gauges":   s.Gauges,
	}
	b, err := json.Marshal(line)
	if err != nil {
		return
	}
	fmt.Fprintln(p.w, string(b))
}

// PrometheusPublisher exposes every counter and gauge through a
// prometheus.Registry, for scraping via the boundary HTTP server
// glue. It registers one GaugeVec at construction since snapshot values
// (including "counters") are already monotonic aggregates computed
// elsewhere; re-exporting them as gauges keeps the exporter stateless
// between publishes.
type PrometheusPublisher struct {
	namespace string
	registry  *prometheus.Registry
	values    *prometheus.GaugeVec
}

// NewPrometheusPublisher builds a publisher registered under the
// given namespace (e.g. "fiddler") on a fresh registry the caller can
// mount behind an HTTP handler.
func NewPrometheusPublisher(namespace string) *PrometheusPublisher {
	reg := prometheus.NewRegistry()
	values := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "metric",
		Help:      "Fiddler pipeline counters and gauges, sampled at the configured publish interval.",
	}, []string{"name", "kind"})
	reg.MustRegister(values)
	return &PrometheusPublisher{namespace: namespace, registry: reg, values: values}
}

// Registry returns the underlying registry for mounting behind
// promhttp.HandlerFor.
func (p *PrometheusPublisher) Registry() *prometheus.Registry { return p.registry }

func (p *PrometheusPublisher) Publish(s Snapshot) {
	names := make([]string, 0, len(s.Counters))
	for name := range s.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.values.WithLabelValues(name, "counter").Set(float64(s.Counters[name]))
	}

	gaugeNames := make([]string, 0, len(s.Gauges))
	for name := range s.Gauges {
		gaugeNames = append(gaugeNames, name)
	}
	sort.Strings(gaugeNames)
	for _, name := range gaugeNames {
		p.values.WithLabelValues(name, "gauge").Set(s.Gauges[name])
	}
}
