package pegasus

import (
	"testing"
	"time"
)

func TestParsePropertiesBuildsExpectedOpts(t *testing.T) {
	props := map[string]string{
		"meta_servers":         "meta1:34601,meta2:34601",
		"operation_timeout_ms": "5000",
		"async_workers":        "8",
	}
	opts, err := ParseProperties(props)
	if err != nil {
		t.Fatalf("ParseProperties: %v", err)
	}

	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}

	if len(c.metaServers) != 2 || c.metaServers[0] != "meta1:34601" || c.metaServers[1] != "meta2:34601" {
		t.Errorf("got metaServers=%v, want [meta1:34601 meta2:34601]", c.metaServers)
	}
	if c.operationTimeout != 5*time.Second {
		t.Errorf("got operationTimeout=%v, want 5s", c.operationTimeout)
	}
	if c.asyncWorkers != 8 {
		t.Errorf("got asyncWorkers=%d, want 8", c.asyncWorkers)
	}
}

func TestParsePropertiesRejectsMalformedTimeout(t *testing.T) {
	_, err := ParseProperties(map[string]string{"operation_timeout_ms": "not-a-number"})
	if err != ErrInvalidArgument {
		t.Fatalf("got err=%v, want ErrInvalidArgument", err)
	}
}

func TestParsePropertiesEnablesPerfCounters(t *testing.T) {
	opts, err := ParseProperties(map[string]string{
		"enable_perf_counter": "true",
		"perf_counter_tags":   "cluster=test,app=myapp",
	})
	if err != nil {
		t.Fatalf("ParseProperties: %v", err)
	}

	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if _, ok := c.metrics.(*goMetricsPerfCounters); !ok {
		t.Fatalf("expected enable_perf_counter=true to install a goMetricsPerfCounters, got %T", c.metrics)
	}
}

func TestNewClientRequiresMetaServers(t *testing.T) {
	if _, err := NewClient(); err != ErrNoMetaServers {
		t.Fatalf("got err=%v, want ErrNoMetaServers", err)
	}
}
