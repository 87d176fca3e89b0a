package pegasus

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

// dialFn abstracts net.Dialer.DialContext so tests can substitute an
// in-memory transport, mirroring the teacher's cfg.dialFn field.
type dialFn func(ctx context.Context, network, addr string) (net.Conn, error)

type cfg struct {
	metaServers []string

	operationTimeout time.Duration
	connectTimeout   time.Duration

	asyncWorkers int

	retryBackoffBase time.Duration
	retryBackoffMax  time.Duration
	maxRetries       int

	dialFn dialFn

	logger  Logger
	metrics PerfCounters
	hooks   hookList
}

func defaultCfg() cfg {
	return cfg{
		operationTimeout: 10 * time.Second,
		connectTimeout:   3 * time.Second,
		asyncWorkers:     4,
		retryBackoffBase: 20 * time.Millisecond,
		retryBackoffMax:  2 * time.Second,
		maxRetries:       5,
		dialFn: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
		logger:  nopLogger{},
		metrics: nopPerfCounters{},
	}
}

// Opt configures a Client at construction, in the teacher's functional
// options idiom (cfg *cfg).
type Opt interface {
	apply(*cfg)
}

type opt func(*cfg)

func (o opt) apply(c *cfg) { o(c) }

// WithMetaServers sets the bounded list of meta-server endpoints (spec
// §4.4) the Meta Resolver fails over across.
func WithMetaServers(addrs ...string) Opt {
	return opt(func(c *cfg) { c.metaServers = append([]string{}, addrs...) })
}

// WithOperationTimeout sets the default per-operation deadline used when
// a caller passes a zero deadline (spec §4.6 "caller deadline (0 =
// default operation timeout)").
func WithOperationTimeout(d time.Duration) Opt {
	return opt(func(c *cfg) { c.operationTimeout = d })
}

// WithConnectTimeout bounds how long a Session may spend in the
// Connecting state (spec §4.2 state machine) before failing.
func WithConnectTimeout(d time.Duration) Opt {
	return opt(func(c *cfg) { c.connectTimeout = d })
}

// WithAsyncWorkers sets the shared worker pool size backing the
// synchronous facade wrappers (spec §5).
func WithAsyncWorkers(n int) Opt {
	return opt(func(c *cfg) { c.asyncWorkers = n })
}

// WithRetryBackoff configures the Executor's backoff curve (spec §4.6):
// base is the small constant to start at, max caps it short of the
// remaining deadline.
func WithRetryBackoff(base, max time.Duration) Opt {
	return opt(func(c *cfg) { c.retryBackoffBase, c.retryBackoffMax = base, max })
}

// WithMaxRetries bounds the retry budget for transient transport errors
// (spec §4.6 "decrement retry budget; if exhausted, surface").
func WithMaxRetries(n int) Opt {
	return opt(func(c *cfg) { c.maxRetries = n })
}

// WithLogger injects the logging sink (SPEC_FULL component 11).
func WithLogger(l Logger) Opt {
	return opt(func(c *cfg) { c.logger = l })
}

// WithPerfCounters injects the perf-counter sink (SPEC_FULL component
// 12), realizing the enable_perf_counter config key.
func WithPerfCounters(m PerfCounters) Opt {
	return opt(func(c *cfg) { c.metrics = m })
}

// WithHooks registers observers of session lifecycle events (SPEC_FULL
// "Hooks extension point").
func WithHooks(hs ...Hook) Opt {
	return opt(func(c *cfg) { c.hooks = append(c.hooks, hs...) })
}

func withDialFn(fn dialFn) Opt {
	return opt(func(c *cfg) { c.dialFn = fn })
}

// ParseProperties turns the flat property map produced by the external
// config loader (spec §6 "Configuration keys") into Opts. This is the
// seam between the black-box loader and the core: the loader resolves a
// zk://, file://, or resource:// URI down to a map[string]string, and
// everything downstream of that map is ours.
func ParseProperties(props map[string]string) ([]Opt, error) {
	var opts []Opt

	if v, ok := props["meta_servers"]; ok && v != "" {
		opts = append(opts, WithMetaServers(strings.Split(v, ",")...))
	}
	if v, ok := props["operation_timeout_ms"]; ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, ErrInvalidArgument
		}
		opts = append(opts, WithOperationTimeout(time.Duration(ms)*time.Millisecond))
	}
	if v, ok := props["async_workers"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, ErrInvalidArgument
		}
		opts = append(opts, WithAsyncWorkers(n))
	}
	if v, ok := props["enable_perf_counter"]; ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, ErrInvalidArgument
		}
		if enabled {
			pc, err := NewGoMetricsPerfCounters(props["perf_counter_tags"])
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithPerfCounters(pc))
		}
	}
	return opts, nil
}
