package pegasus

import (
	"context"
	"testing"
	"time"

	"github.com/pegasus-kv/go-client/pkg/idl"
)

// TestBatchTolerantReportsPerItemFailures is spec §8 scenario 6: a
// tolerant batch (`batch*2`) must never fail the whole call for one
// item's error, instead reporting per-item results and a failure count.
func TestBatchTolerantReportsPerItemFailures(t *testing.T) {
	cluster := newFakeCluster()
	cluster.register("meta1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		return idl.MessageReply, encodeQueryConfigOK(1, 1, "p1:1")
	})
	cluster.register("p1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		if call%2 == 0 {
			return idl.MessageReply, encodeGetErr(ErrInvalidParameters)
		}
		return idl.MessageReply, encodeGetOK([]byte("ok"))
	})

	cl := newTestClient(t, cluster, "meta1:1")
	table, err := cl.openTable(context.Background(), "mytable")
	if err != nil {
		t.Fatalf("openTable: %v", err)
	}

	const n = 6
	items := make([]batchItem, n)
	for i := 0; i < n; i++ {
		key, err := encodeKey([]byte("hk"), []byte{byte(i)})
		if err != nil {
			t.Fatal(err)
		}
		items[i] = batchItem{table: table, hashKey: []byte("hk"), sortKey: []byte{byte(i)}, req: &idl.GetRequest{Key: key}}
	}

	results, failures := cl.executor.runBatchTolerant(context.Background(), time.Time{}, items)
	if len(results) != n {
		t.Fatalf("got %d results, want %d", len(results), n)
	}
	if failures == 0 || failures == n {
		t.Fatalf("expected a mix of success and failure across %d items, got %d failures", n, failures)
	}
	for i, r := range results {
		if r.err != nil {
			continue
		}
		if r.resp.(*idl.GetResponse).Value == nil {
			t.Errorf("item %d: successful result has no value", i)
		}
	}
}

// TestBatchFailFastReturnsFirstError is the `batch*` flavor's
// complement: any single item's error fails the whole call.
func TestBatchFailFastReturnsFirstError(t *testing.T) {
	cluster := newFakeCluster()
	cluster.register("meta1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		return idl.MessageReply, encodeQueryConfigOK(1, 1, "p1:1")
	})
	cluster.register("p1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		return idl.MessageReply, encodeGetErr(ErrObjectNotFound)
	})

	cl := newTestClient(t, cluster, "meta1:1")
	table, err := cl.openTable(context.Background(), "mytable")
	if err != nil {
		t.Fatalf("openTable: %v", err)
	}

	key, err := encodeKey([]byte("hk"), []byte("sk"))
	if err != nil {
		t.Fatal(err)
	}
	items := []batchItem{
		{table: table, hashKey: []byte("hk"), sortKey: []byte("sk"), req: &idl.GetRequest{Key: key}},
	}

	if _, err := cl.executor.runBatchFailFast(context.Background(), time.Time{}, items); err == nil {
		t.Fatal("expected runBatchFailFast to propagate the item's error")
	}
}
