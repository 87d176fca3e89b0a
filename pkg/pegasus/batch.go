package pegasus

import (
	"context"
	"sync"
	"time"

	"github.com/pegasus-kv/go-client/pkg/idl"
)

// batchItem is one independent operation fanned out by the Batch Engine
// (spec §4.7): a routing key plus the wire request to execute against it.
type batchItem struct {
	table    *TableHandle
	hashKey  []byte
	sortKey  []byte
	req      idl.Request
}

// batchResult is the per-item outcome the tolerant batch variants report
// (spec §4.7 "fills a parallel results vector with success or per-item
// error").
type batchResult struct {
	resp idl.Response
	err  error
}

// runBatch is spec §4.7's Batch Engine core: fans out items concurrently
// via the Executor and gathers per-item outcomes, parallel to the input
// order. Concurrency is unbounded at this layer, matching the spec's
// note that natural backpressure comes from each Session's write queue.
func (e *executor) runBatch(ctx context.Context, deadline time.Time, items []batchItem) []batchResult {
	results := make([]batchResult, len(items))
	var wg sync.WaitGroup
	wg.Add(len(items))
	for i := range items {
		go func(i int) {
			defer wg.Done()
			resp, err := e.execute(ctx, items[i].table, items[i].hashKey, items[i].sortKey, items[i].req, deadline)
			results[i] = batchResult{resp: resp, err: err}
		}(i)
	}
	wg.Wait()
	return results
}

// runBatchFailFast is the `batch*` flavor (spec §4.7): propagates the
// first error encountered across all items, otherwise returns outputs
// parallel to inputs.
func (e *executor) runBatchFailFast(ctx context.Context, deadline time.Time, items []batchItem) ([]idl.Response, error) {
	results := e.runBatch(ctx, deadline, items)
	out := make([]idl.Response, len(results))
	var firstErr error
	for i, r := range results {
		out[i] = r.resp
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// runBatchTolerant is the `batch*2` flavor (spec §4.7): fills a parallel
// results vector with success or per-item error and returns the count of
// failures, never propagating an exception for individual item failure.
func (e *executor) runBatchTolerant(ctx context.Context, deadline time.Time, items []batchItem) ([]batchResult, int) {
	results := e.runBatch(ctx, deadline, items)
	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
		}
	}
	return results, failures
}
