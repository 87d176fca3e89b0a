package pegasus

import (
	"context"
	"sync/atomic"
)

// TableHandle is spec §4.5/§3's Table Handle: (table_name, table_id,
// partition_map_snapshot, hasher). The snapshot pointer is swapped
// atomically on refresh; concurrent routers keep seeing the prior
// snapshot until the swap lands (spec §3 "Lifetime" / §4.5).
type TableHandle struct {
	cl   *Client
	name string

	snapshot atomic.Pointer[partitionMap]

	refreshing int32 // atomic: 0/1, best-effort dedup of the async-refresh kick
}

func newTableHandle(cl *Client, name string, m *partitionMap) *TableHandle {
	t := &TableHandle{cl: cl, name: name}
	t.snapshot.Store(m)
	return t
}

// Name returns the table name this handle was opened with.
func (t *TableHandle) Name() string { return t.name }

// route computes (partition_index, primary_endpoint) for hashKey (spec
// §4.5 "route(hashKey) -> (partition_index, endpoint)").
func (t *TableHandle) route(encodedKey []byte) (int32, string, error) {
	hash, err := partitionHash(encodedKey)
	if err != nil {
		return 0, "", err
	}
	m := t.snapshot.Load()
	index := partitionIndex(hash, m.partitionCount)
	return index, m.primary(index), nil
}

// partitionCount returns the table's current partition count, used by
// the Scan Engine's unordered-split policy (spec §4.8).
func (t *TableHandle) partitionCount() int32 {
	return t.snapshot.Load().partitionCount
}

// reportRoutingError marks the current snapshot stale and kicks off an
// async refresh (spec §4.5 "If a caller reports a routing error against
// a (table, index, endpoint) triple, the handle schedules an async
// refresh via the Meta Resolver; concurrent routers continue to see the
// old snapshot until swap").
func (t *TableHandle) reportRoutingError(ctx context.Context) {
	t.cl.meta.invalidate(t.name)
	if !atomic.CompareAndSwapInt32(&t.refreshing, 0, 1) {
		return // a refresh is already in flight for this table
	}
	go func() {
		defer atomic.StoreInt32(&t.refreshing, 0)
		m, err := t.cl.meta.refresh(ctx, t.name)
		if err != nil {
			t.cl.cfg.logger.Log(LogLevelWarn, "table refresh failed", "table", t.name, "err", err)
			return
		}
		t.swapIfNewer(m)
	}()
}

// swapIfNewer installs m as the current snapshot provided its version
// is not older than what is already installed (spec §3 "version is
// monotonically non-decreasing on refresh").
func (t *TableHandle) swapIfNewer(m *partitionMap) {
	for {
		old := t.snapshot.Load()
		if old != nil && old.version >= m.version {
			return
		}
		if t.snapshot.CompareAndSwap(old, m) {
			return
		}
	}
}
