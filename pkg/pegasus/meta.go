package pegasus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pegasus-kv/go-client/pkg/idl"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// partitionEntry is one partition's current routing info (spec §3).
type partitionEntry struct {
	primary string
	ballot  int64
}

// partitionMap is spec §3's "Partition map": (table_id, partition_count,
// version, [partition_index -> primary_endpoint, ballot]).
type partitionMap struct {
	tableName      string
	tableID        int32
	partitionCount int32
	version        uint64
	partitions     []partitionEntry
}

func (m *partitionMap) primary(index int32) string {
	if int(index) >= len(m.partitions) {
		return ""
	}
	return m.partitions[index].primary
}

// metaResolver is spec §4.4's Meta Resolver: fetches and caches a
// table's partition map, invalidating on routing errors, deduping
// concurrent refreshes of the same table, and failing over across a
// bounded list of meta-server endpoints. Modeled on the teacher's
// updateMetadataLoop/fetchTopicMetadata (rodaine-franz-go/metadata.go),
// but Pegasus resolves per-table on demand rather than refreshing every
// topic on a ticker, so the loop collapses into a singleflight-deduped
// on-demand fetch (SPEC_FULL §4.4).
type metaResolver struct {
	cl          *Client
	metaServers []string

	cursor int32 // atomic round-robin index into metaServers

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	group singleflight.Group

	cacheMu sync.Mutex
	cache   map[string]*partitionMap

	versions sync.Map // table name -> *uint64, monotonic version counter
}

func newMetaResolver(cl *Client, metaServers []string) *metaResolver {
	return &metaResolver{
		cl:          cl,
		metaServers: metaServers,
		limiters:    make(map[string]*rate.Limiter),
		cache:       make(map[string]*partitionMap),
	}
}

// resolve returns the cached partition map, fetching it for the first
// time if necessary (spec §4.4 "resolve(table_name) -> partition_map").
func (r *metaResolver) resolve(ctx context.Context, table string) (*partitionMap, error) {
	r.cacheMu.Lock()
	m, ok := r.cache[table]
	r.cacheMu.Unlock()
	if ok {
		return m, nil
	}
	return r.refresh(ctx, table)
}

// refresh forces a new fetch, deduping concurrent callers onto a single
// in-flight request per table (spec §4.4 "rate-limited to at most one
// in-flight refresh per table; subsequent callers join the in-flight
// future" - realized with golang.org/x/sync/singleflight).
func (r *metaResolver) refresh(ctx context.Context, table string) (*partitionMap, error) {
	v, err, _ := r.group.Do(table, func() (interface{}, error) {
		return r.fetch(ctx, table)
	})
	if err != nil {
		return nil, err
	}
	return v.(*partitionMap), nil
}

func (r *metaResolver) nextVersion(table string) uint64 {
	p, _ := r.versions.LoadOrStore(table, new(uint64))
	return atomic.AddUint64(p.(*uint64), 1)
}

func (r *metaResolver) fetch(ctx context.Context, table string) (*partitionMap, error) {
	if len(r.metaServers) == 0 {
		return nil, ErrNoMetaServers
	}

	n := len(r.metaServers)
	start := int(atomic.LoadInt32(&r.cursor)) % n
	var lastErr error

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		addr := r.metaServers[idx]

		if !r.limiterFor(addr).Allow() {
			continue
		}

		resp, err := r.queryOnce(ctx, addr, table)
		if err != nil {
			lastErr = err
			atomic.StoreInt32(&r.cursor, int32((idx+1)%n))
			continue
		}

		if resp.Status != ErrOK {
			lastErr = &ApplicationError{Code: resp.Status, Op: "query_config"}
			if resp.HintedPrimary != "" {
				r.rotateTo(resp.HintedPrimary)
			} else {
				atomic.StoreInt32(&r.cursor, int32((idx+1)%n))
			}
			continue
		}

		m := &partitionMap{
			tableName:      table,
			tableID:        resp.TableID,
			partitionCount: resp.PartitionCount,
			version:        r.nextVersion(table),
			partitions:     make([]partitionEntry, resp.PartitionCount),
		}
		for _, p := range resp.Partitions {
			if p.Index >= 0 && int(p.Index) < len(m.partitions) {
				m.partitions[p.Index] = partitionEntry{primary: p.Primary, ballot: p.Ballot}
			}
		}

		r.cacheMu.Lock()
		r.cache[table] = m
		r.cacheMu.Unlock()
		atomic.StoreInt32(&r.cursor, int32(idx))
		return m, nil
	}

	if lastErr == nil {
		lastErr = ErrConnection
	}
	return nil, lastErr
}

func (r *metaResolver) queryOnce(ctx context.Context, metaAddr, table string) (*idl.QueryConfigResponse, error) {
	sess := r.cl.pool.get(metaAddr)
	deadline := time.Now().Add(r.cl.cfg.operationTimeout)
	req := &idl.QueryConfigRequest{TableName: table}
	resp, err := sess.call(ctx, req, deadline)
	if err != nil {
		return nil, err
	}
	qcr, ok := resp.(*idl.QueryConfigResponse)
	if !ok {
		return nil, ErrConnDead
	}
	return qcr, nil
}

func (r *metaResolver) rotateTo(hintedPrimary string) {
	for i, addr := range r.metaServers {
		if addr == hintedPrimary {
			atomic.StoreInt32(&r.cursor, int32(i))
			return
		}
	}
	// hinted primary is not a known meta endpoint; fall back to rotation.
	atomic.AddInt32(&r.cursor, 1)
}

func (r *metaResolver) limiterFor(addr string) *rate.Limiter {
	r.limMu.Lock()
	defer r.limMu.Unlock()
	l, ok := r.limiters[addr]
	if !ok {
		l = rate.NewLimiter(rate.Every(50*time.Millisecond), 5)
		r.limiters[addr] = l
	}
	return l
}

// invalidate drops the cached partition map for table, forcing the next
// resolve to fetch fresh (spec §4.5 "the handle schedules an async
// refresh via the Meta Resolver").
func (r *metaResolver) invalidate(table string) {
	r.cacheMu.Lock()
	delete(r.cache, table)
	r.cacheMu.Unlock()
}
