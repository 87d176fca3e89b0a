package pegasus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pegasus-kv/go-client/pkg/idl"
)

// Client is spec §4.9's Client Facade: a thin, stateless-looking API
// (exist/get/set/del/ttl/multi*/batch*/scan) backed by the Session Pool,
// Meta Resolver, and Operation Executor underneath. Modeled on the
// teacher's top-level Client (dcrodman-franz-go/pkg/kgo), which plays
// the same "one handle, many shared subsystems" role for Kafka brokers.
type Client struct {
	cfg cfg

	pool     *sessionPool
	meta     *metaResolver
	executor *executor
	workers  *workerPool

	tablesMu sync.Mutex
	tables   map[string]*TableHandle

	closed int32
}

// NewClient builds a Client from the given Opts, in the teacher's
// functional-options style (spec §4.9 "construction").
func NewClient(opts ...Opt) (*Client, error) {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(&c)
	}
	if len(c.metaServers) == 0 {
		return nil, ErrNoMetaServers
	}

	cl := &Client{
		cfg:    c,
		tables: make(map[string]*TableHandle),
	}
	cl.pool = newSessionPool(cl)
	cl.meta = newMetaResolver(cl, c.metaServers)
	cl.executor = &executor{cl: cl}
	cl.workers = newWorkerPool(c.asyncWorkers)
	return cl, nil
}

// openTable returns the TableHandle for name, resolving and interning
// it on first use (spec §5 "table handles are interned per client,
// double-checked lazy init").
func (cl *Client) openTable(ctx context.Context, name string) (*TableHandle, error) {
	cl.tablesMu.Lock()
	if t, ok := cl.tables[name]; ok {
		cl.tablesMu.Unlock()
		return t, nil
	}
	cl.tablesMu.Unlock()

	m, err := cl.meta.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	cl.tablesMu.Lock()
	defer cl.tablesMu.Unlock()
	if t, ok := cl.tables[name]; ok {
		return t, nil
	}
	t := newTableHandle(cl, name, m)
	cl.tables[name] = t
	return t, nil
}

func (cl *Client) checkOpen() error {
	if atomic.LoadInt32(&cl.closed) == 1 {
		return ErrClientClosed
	}
	return nil
}

// Close drains all sessions and refuses further calls (spec §5 "Closing
// the client cancels all sessions and outstanding waiters").
func (cl *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&cl.closed, 0, 1) {
		return nil
	}
	cl.pool.closeAll()
	cl.workers.close()
	return nil
}

// --- single-key operations (spec §4.9) ---------------------------------

// Exist reports whether (hashKey, sortKey) has a value.
func (cl *Client) Exist(ctx context.Context, tableName string, hashKey, sortKey []byte) (bool, error) {
	if err := cl.checkOpen(); err != nil {
		return false, err
	}
	return submitSync(ctx, cl.workers, func() (bool, error) {
		table, key, err := cl.prepareSingle(ctx, tableName, hashKey, sortKey)
		if err != nil {
			return false, err
		}
		_, err = cl.executor.execute(ctx, table, hashKey, sortKey, &idl.ExistRequest{Key: key}, time.Time{})
		if err != nil {
			if ae, ok := err.(*ApplicationError); ok && ae.Code == ErrRecordNotFound {
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
}

// TTL returns the remaining time-to-live, in seconds, for (hashKey,
// sortKey), or -1 if the record never expires.
func (cl *Client) TTL(ctx context.Context, tableName string, hashKey, sortKey []byte) (int32, error) {
	if err := cl.checkOpen(); err != nil {
		return 0, err
	}
	return submitSync(ctx, cl.workers, func() (int32, error) {
		table, key, err := cl.prepareSingle(ctx, tableName, hashKey, sortKey)
		if err != nil {
			return 0, err
		}
		resp, err := cl.executor.execute(ctx, table, hashKey, sortKey, &idl.TTLRequest{Key: key}, time.Time{})
		if err != nil {
			return 0, err
		}
		return resp.(*idl.TTLResponse).TTLSeconds, nil
	})
}

// Get fetches the value stored at (hashKey, sortKey).
func (cl *Client) Get(ctx context.Context, tableName string, hashKey, sortKey []byte) ([]byte, error) {
	if err := cl.checkOpen(); err != nil {
		return nil, err
	}
	return submitSync(ctx, cl.workers, func() ([]byte, error) {
		table, key, err := cl.prepareSingle(ctx, tableName, hashKey, sortKey)
		if err != nil {
			return nil, err
		}
		resp, err := cl.executor.execute(ctx, table, hashKey, sortKey, &idl.GetRequest{Key: key}, time.Time{})
		if err != nil {
			return nil, err
		}
		return resp.(*idl.GetResponse).Value, nil
	})
}

// Set stores value at (hashKey, sortKey), expiring after ttl (zero means
// never).
func (cl *Client) Set(ctx context.Context, tableName string, hashKey, sortKey, value []byte, ttl time.Duration) error {
	if err := cl.checkOpen(); err != nil {
		return err
	}
	_, err := submitSync(ctx, cl.workers, func() (struct{}, error) {
		table, key, err := cl.prepareSingle(ctx, tableName, hashKey, sortKey)
		if err != nil {
			return struct{}{}, err
		}
		req := &idl.PutRequest{Key: key, Value: value, ExpireTsSeconds: expireTsFromTTL(ttl)}
		_, err = cl.executor.execute(ctx, table, hashKey, sortKey, req, time.Time{})
		return struct{}{}, err
	})
	return err
}

// Del removes the record at (hashKey, sortKey).
func (cl *Client) Del(ctx context.Context, tableName string, hashKey, sortKey []byte) error {
	if err := cl.checkOpen(); err != nil {
		return err
	}
	_, err := submitSync(ctx, cl.workers, func() (struct{}, error) {
		table, key, err := cl.prepareSingle(ctx, tableName, hashKey, sortKey)
		if err != nil {
			return struct{}{}, err
		}
		_, err = cl.executor.execute(ctx, table, hashKey, sortKey, &idl.RemoveRequest{Key: key}, time.Time{})
		return struct{}{}, err
	})
	return err
}

// prepareSingle resolves tableName's handle and encodes the composite
// key shared by every single-key operation (spec §4.1/§4.6).
func (cl *Client) prepareSingle(ctx context.Context, tableName string, hashKey, sortKey []byte) (*TableHandle, []byte, error) {
	if err := cl.checkOpen(); err != nil {
		return nil, nil, err
	}
	table, err := cl.openTable(ctx, tableName)
	if err != nil {
		return nil, nil, err
	}
	key, err := encodeKey(hashKey, sortKey)
	if err != nil {
		return nil, nil, err
	}
	return table, key, nil
}

func expireTsFromTTL(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	return int32(time.Now().Add(ttl).Unix())
}

// --- multi-key operations (spec §4.9) ----------------------------------

// MultiGet fetches every (sortKey in sortKeys) under hashKey, or the
// full sortKey range when sortKeys is empty.
func (cl *Client) MultiGet(ctx context.Context, tableName string, hashKey []byte, sortKeys [][]byte) ([]idl.KeyValue, error) {
	if err := cl.checkOpen(); err != nil {
		return nil, err
	}
	return submitSync(ctx, cl.workers, func() ([]idl.KeyValue, error) {
		table, err := cl.openTable(ctx, tableName)
		if err != nil {
			return nil, err
		}
		req := &idl.MultiGetRequest{HashKey: hashKey, SortKeys: sortKeys, StartInclusive: true}
		resp, err := cl.executor.execute(ctx, table, hashKey, nil, req, time.Time{})
		if err != nil {
			return nil, err
		}
		return resp.(*idl.MultiGetResponse).Kvs, nil
	})
}

// MultiSet stores every (sortKey, value) under hashKey in one request.
func (cl *Client) MultiSet(ctx context.Context, tableName string, hashKey []byte, kvs []idl.KeyValue, ttl time.Duration) error {
	if err := cl.checkOpen(); err != nil {
		return err
	}
	_, err := submitSync(ctx, cl.workers, func() (struct{}, error) {
		table, err := cl.openTable(ctx, tableName)
		if err != nil {
			return struct{}{}, err
		}
		req := &idl.MultiPutRequest{HashKey: hashKey, Kvs: kvs, ExpireTsSeconds: expireTsFromTTL(ttl)}
		_, err = cl.executor.execute(ctx, table, hashKey, nil, req, time.Time{})
		return struct{}{}, err
	})
	return err
}

// MultiDel removes every (hashKey, sortKey in sortKeys) in one request,
// returning the number of records actually removed.
func (cl *Client) MultiDel(ctx context.Context, tableName string, hashKey []byte, sortKeys [][]byte) (int64, error) {
	if err := cl.checkOpen(); err != nil {
		return 0, err
	}
	return submitSync(ctx, cl.workers, func() (int64, error) {
		table, err := cl.openTable(ctx, tableName)
		if err != nil {
			return 0, err
		}
		req := &idl.MultiRemoveRequest{HashKey: hashKey, SortKeys: sortKeys}
		resp, err := cl.executor.execute(ctx, table, hashKey, nil, req, time.Time{})
		if err != nil {
			return 0, err
		}
		return resp.(*idl.MultiRemoveResponse).Count, nil
	})
}

// SortKeyCount returns the number of sortKeys stored under hashKey.
func (cl *Client) SortKeyCount(ctx context.Context, tableName string, hashKey []byte) (int64, error) {
	if err := cl.checkOpen(); err != nil {
		return 0, err
	}
	return submitSync(ctx, cl.workers, func() (int64, error) {
		table, err := cl.openTable(ctx, tableName)
		if err != nil {
			return 0, err
		}
		req := &idl.SortKeyCountRequest{HashKey: hashKey}
		resp, err := cl.executor.execute(ctx, table, hashKey, nil, req, time.Time{})
		if err != nil {
			return 0, err
		}
		return resp.(*idl.SortKeyCountResponse).Count, nil
	})
}

// --- batch operations (spec §4.7/§4.9) ---------------------------------

// SingleKeyOp describes one (hashKey, sortKey, op) entry for the
// single-hashKey-varying batch calls below.
type SingleKeyOp struct {
	HashKey []byte
	SortKey []byte
	Req     idl.Request
}

func (cl *Client) buildBatch(ctx context.Context, tableName string, ops []SingleKeyOp) (*TableHandle, []batchItem, error) {
	table, err := cl.openTable(ctx, tableName)
	if err != nil {
		return nil, nil, err
	}
	items := make([]batchItem, len(ops))
	for i, o := range ops {
		items[i] = batchItem{table: table, hashKey: o.HashKey, sortKey: o.SortKey, req: o.Req}
	}
	return table, items, nil
}

// BatchGet runs a fail-fast batch of gets across potentially different
// hashKeys (spec §4.7 `batch*`).
func (cl *Client) BatchGet(ctx context.Context, tableName string, ops []SingleKeyOp) ([]idl.Response, error) {
	if err := cl.checkOpen(); err != nil {
		return nil, err
	}
	return submitSync(ctx, cl.workers, func() ([]idl.Response, error) {
		_, items, err := cl.buildBatch(ctx, tableName, ops)
		if err != nil {
			return nil, err
		}
		return cl.executor.runBatchFailFast(ctx, time.Time{}, items)
	})
}

// batchTolerantResult bundles the tolerant batch variants' two return
// values (per-item results plus a failure count) so they can travel
// through submitSync's single-value result.
type batchTolerantResult struct {
	results  []batchResult
	failures int
}

// BatchGet2 runs the tolerant variant of BatchGet (spec §4.7 `batch*2`):
// it never fails the whole call for one item's error, instead returning
// per-item results plus a failure count.
func (cl *Client) BatchGet2(ctx context.Context, tableName string, ops []SingleKeyOp) ([]batchResult, int, error) {
	if err := cl.checkOpen(); err != nil {
		return nil, 0, err
	}
	r, err := submitSync(ctx, cl.workers, func() (batchTolerantResult, error) {
		_, items, err := cl.buildBatch(ctx, tableName, ops)
		if err != nil {
			return batchTolerantResult{}, err
		}
		results, failures := cl.executor.runBatchTolerant(ctx, time.Time{}, items)
		return batchTolerantResult{results: results, failures: failures}, nil
	})
	return r.results, r.failures, err
}

// MultiHashKeyOp describes one (hashKey, op) entry for the batch calls
// that vary the hashKey but operate on the whole key's multi-value
// space (multi_get/multi_put/multi_remove across several hashKeys).
type MultiHashKeyOp struct {
	HashKey []byte
	Req     idl.Request
}

func (cl *Client) buildMultiHashKeyBatch(ctx context.Context, tableName string, ops []MultiHashKeyOp) (*TableHandle, []batchItem, error) {
	table, err := cl.openTable(ctx, tableName)
	if err != nil {
		return nil, nil, err
	}
	items := make([]batchItem, len(ops))
	for i, o := range ops {
		items[i] = batchItem{table: table, hashKey: o.HashKey, sortKey: nil, req: o.Req}
	}
	return table, items, nil
}

// BatchMultiGet runs a fail-fast batch of multi_get calls, one per
// hashKey (spec §4.7 multi-hashKey variant).
func (cl *Client) BatchMultiGet(ctx context.Context, tableName string, ops []MultiHashKeyOp) ([]idl.Response, error) {
	if err := cl.checkOpen(); err != nil {
		return nil, err
	}
	return submitSync(ctx, cl.workers, func() ([]idl.Response, error) {
		_, items, err := cl.buildMultiHashKeyBatch(ctx, tableName, ops)
		if err != nil {
			return nil, err
		}
		return cl.executor.runBatchFailFast(ctx, time.Time{}, items)
	})
}

// BatchMultiGet2 is BatchMultiGet's tolerant variant (spec §4.7 `batch*2`).
func (cl *Client) BatchMultiGet2(ctx context.Context, tableName string, ops []MultiHashKeyOp) ([]batchResult, int, error) {
	if err := cl.checkOpen(); err != nil {
		return nil, 0, err
	}
	r, err := submitSync(ctx, cl.workers, func() (batchTolerantResult, error) {
		_, items, err := cl.buildMultiHashKeyBatch(ctx, tableName, ops)
		if err != nil {
			return batchTolerantResult{}, err
		}
		results, failures := cl.executor.runBatchTolerant(ctx, time.Time{}, items)
		return batchTolerantResult{results: results, failures: failures}, nil
	})
	return r.results, r.failures, err
}

// --- scans (spec §4.8/§4.9) --------------------------------------------

// GetScanner opens a bounded, single-partition scan cursor over
// hashKey's sortKey range [startSortKey, stopSortKey).
func (cl *Client) GetScanner(ctx context.Context, tableName string, hashKey, startSortKey, stopSortKey []byte, opts ScanOptions) (Scanner, error) {
	if err := cl.checkOpen(); err != nil {
		return nil, err
	}
	table, err := cl.openTable(ctx, tableName)
	if err != nil {
		return nil, err
	}
	return cl.getScanner(ctx, table, hashKey, startSortKey, stopSortKey, opts)
}

// GetUnorderedScanners splits tableName's partitions round-robin into at
// most maxSplitCount cursors, each scanning its partitions in full.
func (cl *Client) GetUnorderedScanners(ctx context.Context, tableName string, maxSplitCount int, opts ScanOptions) ([]Scanner, error) {
	if err := cl.checkOpen(); err != nil {
		return nil, err
	}
	table, err := cl.openTable(ctx, tableName)
	if err != nil {
		return nil, err
	}
	return cl.getUnorderedScanners(ctx, table, maxSplitCount, opts)
}
