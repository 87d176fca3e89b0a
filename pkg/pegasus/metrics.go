package pegasus

import (
	"time"

	"github.com/armon/go-metrics"
)

// PerfCounters is the injectable counter sink realizing the
// enable_perf_counter / perf_counter_tags configuration keys (spec §6,
// SPEC_FULL component 12). The core only ever increments counters and
// records sample durations through this interface; it never reaches for
// a process-global registry.
type PerfCounters interface {
	Incr(name string, tags ...string)
	SampleLatency(name string, d time.Duration, tags ...string)
}

type nopPerfCounters struct{}

func (nopPerfCounters) Incr(string, ...string)                   {}
func (nopPerfCounters) SampleLatency(string, time.Duration, ...string) {}

// goMetricsPerfCounters adapts github.com/armon/go-metrics to
// PerfCounters. tags become go-metrics labels, merged with the base
// labels parsed out of perf_counter_tags at construction time.
type goMetricsPerfCounters struct {
	m    *metrics.Metrics
	base []metrics.Label
}

// NewGoMetricsPerfCounters builds a PerfCounters backed by an in-memory
// go-metrics sink tagged with perfCounterTags (the opaque string from
// the perf_counter_tags config key, parsed as comma separated
// key=value pairs).
func NewGoMetricsPerfCounters(perfCounterTags string) (PerfCounters, error) {
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	cfg := metrics.DefaultConfig("pegasus")
	cfg.EnableHostname = false
	m, err := metrics.New(cfg, sink)
	if err != nil {
		return nil, err
	}
	return &goMetricsPerfCounters{m: m, base: parseTagString(perfCounterTags)}, nil
}

func (p *goMetricsPerfCounters) Incr(name string, tags ...string) {
	p.m.IncrCounterWithLabels([]string{name}, 1, append(append([]metrics.Label{}, p.base...), toLabels(tags)...))
}

func (p *goMetricsPerfCounters) SampleLatency(name string, d time.Duration, tags ...string) {
	p.m.AddSampleWithLabels([]string{name}, float32(d.Milliseconds()), append(append([]metrics.Label{}, p.base...), toLabels(tags)...))
}

func toLabels(tags []string) []metrics.Label {
	labels := make([]metrics.Label, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		labels = append(labels, metrics.Label{Name: tags[i], Value: tags[i+1]})
	}
	return labels
}

func parseTagString(s string) []metrics.Label {
	// perf_counter_tags (spec §6) is an opaque "k1=v1,k2=v2" string.
	var labels []metrics.Label
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				kv := s[start:i]
				for j := 0; j < len(kv); j++ {
					if kv[j] == '=' {
						labels = append(labels, metrics.Label{Name: kv[:j], Value: kv[j+1:]})
						break
					}
				}
			}
			start = i + 1
		}
	}
	return labels
}
