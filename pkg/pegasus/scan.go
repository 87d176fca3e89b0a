package pegasus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pegasus-kv/go-client/pkg/idl"
)

// contextIDNoContext/contextIDEndOfScan are the two sentinel ContextID
// values a ScanResponse can carry: "no server-side cursor yet" for the
// very first request, and "the partition has no more data" once the
// server reports it (spec §4.8 "server_context_id_or_none").
const (
	contextIDNoContext = 0
	contextIDEndOfScan = -1
)

// ScanOptions is spec §4.8's "options" expanded into a concrete struct
// (SPEC_FULL "Supplemented features"): batch size, inclusive/exclusive
// bounds on the sort-key range, a sort-key-only projection, and a
// value-timestamp filter.
type ScanOptions struct {
	BatchSize            int32
	StartInclusive       bool
	StopInclusive        bool
	NoValue              bool
	StartExpireTsSeconds int32
	StopExpireTsSeconds  int32
}

// DefaultScanOptions mirrors the teacher's fetch-size defaults (a
// moderate batch size, start-inclusive/stop-exclusive range, full
// values fetched).
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		BatchSize:      100,
		StartInclusive: true,
		StopInclusive:  false,
	}
}

// ScanItem is one record yielded by a Scanner.
type ScanItem struct {
	HashKey         []byte
	SortKey         []byte
	Value           []byte
	ExpireTsSeconds int32
}

// Scanner is spec §4.8's scan cursor: Next yields records one at a time
// off a locally buffered batch, transparently fetching the next batch
// from the server (or the next partition, for an unordered scanner)
// once the buffer drains. Next returns ErrScanFinished idempotently
// once the cursor is exhausted (spec §8 "idempotent cursor end").
type Scanner interface {
	Next(ctx context.Context) (*ScanItem, error)
	Close(ctx context.Context) error
}

// boundedScanner is spec §4.8's "bounded, single-partition scan": all
// records for one hashKey whose sortKey falls in [start, stop), fed off
// a single server-side cursor addressed by (partition_index, context_id).
type boundedScanner struct {
	cl      *Client
	table   *TableHandle
	index   int32
	opts    ScanOptions

	hashKey  []byte
	startKey []byte
	stopKey  []byte

	contextID int64
	started   bool
	finished  int32 // atomic

	buf    []idl.FullKeyValue
	bufPos int
}

// getScanner opens a bounded scanner over hashKey's sortKey range
// [startSortKey, stopSortKey) (spec §4.8 "get_scanner(hashKey,
// start_sortKey, stop_sortKey, options)").
func (cl *Client) getScanner(ctx context.Context, table *TableHandle, hashKey, startSortKey, stopSortKey []byte, opts ScanOptions) (Scanner, error) {
	startKey, err := encodeKey(hashKey, startSortKey)
	if err != nil {
		return nil, err
	}
	var stopKey []byte
	if stopSortKey == nil {
		stopKey, err = encodeHashKeyUpperBound(hashKey)
	} else {
		stopKey, err = encodeKey(hashKey, stopSortKey)
	}
	if err != nil {
		return nil, err
	}

	hash, err := partitionHash(startKey)
	if err != nil {
		return nil, err
	}
	index := partitionIndex(hash, table.partitionCount())

	return &boundedScanner{
		cl:       cl,
		table:    table,
		index:    index,
		opts:     opts,
		hashKey:  hashKey,
		startKey: startKey,
		stopKey:  stopKey,
	}, nil
}

func (s *boundedScanner) Next(ctx context.Context) (*ScanItem, error) {
	for {
		if s.bufPos < len(s.buf) {
			kv := s.buf[s.bufPos]
			s.bufPos++
			return &ScanItem{HashKey: kv.HashKey, SortKey: kv.SortKey, Value: kv.Value, ExpireTsSeconds: kv.ExpireTsSeconds}, nil
		}
		if atomic.LoadInt32(&s.finished) == 1 {
			return nil, ErrScanFinished
		}
		if err := s.fetch(ctx); err != nil {
			return nil, err
		}
	}
}

func (s *boundedScanner) fetch(ctx context.Context) error {
	req := &idl.ScanRequest{
		PartitionIndex:       s.index,
		BatchSize:            s.opts.BatchSize,
		NoValue:              s.opts.NoValue,
		StartExpireTsSeconds: s.opts.StartExpireTsSeconds,
		StopExpireTsSeconds:  s.opts.StopExpireTsSeconds,
	}
	if s.started {
		req.ContextID = s.contextID
	} else {
		req.ContextID = contextIDNoContext
		req.StartKey = s.startKey
		req.StopKey = s.stopKey
		req.StartInclusive = s.opts.StartInclusive
		req.StopInclusive = s.opts.StopInclusive
	}

	resp, err := s.cl.executor.executeOnPartition(ctx, s.table, s.index, req, time.Time{})
	if err != nil {
		return err
	}
	sr, ok := resp.(*idl.ScanResponse)
	if !ok {
		return ErrConnDead
	}
	s.started = true

	s.buf = sr.Kvs
	s.bufPos = 0
	s.contextID = sr.ContextID
	if sr.ContextID == contextIDEndOfScan {
		atomic.StoreInt32(&s.finished, 1)
	}
	if len(s.buf) == 0 && atomic.LoadInt32(&s.finished) == 1 {
		return ErrScanFinished
	}
	return nil
}

func (s *boundedScanner) Close(ctx context.Context) error {
	if atomic.SwapInt32(&s.finished, 1) == 1 || !s.started {
		return nil
	}
	req := &idl.ScanCancelRequest{PartitionIndex: s.index, ContextID: s.contextID}
	_, err := s.cl.executor.executeOnPartition(ctx, s.table, s.index, req, time.Time{})
	return err
}

// unorderedScanner is spec §4.8's "unordered multi-partition scan": a
// bucket of whole partitions scanned sequentially, each in full (no
// sortKey bound), yielding ScanItem records as they come. Ordering
// across the bucket's partitions, or within one, is not guaranteed.
type unorderedScanner struct {
	cl        *Client
	table     *TableHandle
	opts      ScanOptions
	partitions []int32

	cur       int
	sub       *boundedScanner
}

// getUnorderedScanners splits table's partitions round-robin into at
// most maxSplitCount buckets and returns one Scanner per bucket (spec
// §4.8 "get_unordered_scanners(table, max_split_count, options)").
func (cl *Client) getUnorderedScanners(ctx context.Context, table *TableHandle, maxSplitCount int, opts ScanOptions) ([]Scanner, error) {
	count := int(table.partitionCount())
	if count == 0 {
		return nil, nil
	}
	n := maxSplitCount
	if n <= 0 || n > count {
		n = count
	}

	buckets := make([][]int32, n)
	for i := 0; i < count; i++ {
		b := i % n
		buckets[b] = append(buckets[b], int32(i))
	}

	scanners := make([]Scanner, 0, n)
	for _, parts := range buckets {
		if len(parts) == 0 {
			continue
		}
		scanners = append(scanners, &unorderedScanner{cl: cl, table: table, opts: opts, partitions: parts})
	}
	return scanners, nil
}

func (s *unorderedScanner) Next(ctx context.Context) (*ScanItem, error) {
	for {
		if s.sub == nil {
			if s.cur >= len(s.partitions) {
				return nil, ErrScanFinished
			}
			s.sub = &boundedScanner{
				cl:    s.cl,
				table: s.table,
				index: s.partitions[s.cur],
				opts:  s.opts,
			}
		}

		item, err := s.sub.Next(ctx)
		if err == ErrScanFinished {
			s.sub = nil
			s.cur++
			continue
		}
		if err != nil {
			return nil, err
		}
		return item, nil
	}
}

func (s *unorderedScanner) Close(ctx context.Context) error {
	if s.sub != nil {
		return s.sub.Close(ctx)
	}
	return nil
}
