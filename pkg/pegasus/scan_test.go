package pegasus

import (
	"context"
	"testing"

	"github.com/pegasus-kv/go-client/pkg/idl"
)

func encodeScanBatch(kvs []idl.FullKeyValue, contextID int64) func(*idl.Writer) {
	return func(w *idl.Writer) {
		w.I32(ErrOK)
		w.I32(int32(len(kvs)))
		for _, kv := range kvs {
			w.Binary(kv.HashKey)
			w.Binary(kv.SortKey)
			w.Binary(kv.Value)
			w.I32(kv.ExpireTsSeconds)
		}
		w.I64(contextID)
	}
}

// TestBoundedScannerDrainsAcrossBatchesThenFinishesIdempotently is spec
// §8's "idempotent cursor end": Next keeps returning ErrScanFinished
// once the server reports no more data, across repeated calls.
func TestBoundedScannerDrainsAcrossBatchesThenFinishesIdempotently(t *testing.T) {
	cluster := newFakeCluster()
	cluster.register("meta1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		return idl.MessageReply, encodeQueryConfigOK(1, 1, "p1:1")
	})

	batch1 := []idl.FullKeyValue{
		{HashKey: []byte("hk"), SortKey: []byte("a"), Value: []byte("va")},
		{HashKey: []byte("hk"), SortKey: []byte("b"), Value: []byte("vb")},
	}
	batch2 := []idl.FullKeyValue{
		{HashKey: []byte("hk"), SortKey: []byte("c"), Value: []byte("vc")},
	}

	cluster.register("p1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		switch call {
		case 1:
			return idl.MessageReply, encodeScanBatch(batch1, 99)
		case 2:
			return idl.MessageReply, encodeScanBatch(batch2, contextIDEndOfScan)
		default:
			return idl.MessageReply, encodeScanBatch(nil, contextIDEndOfScan)
		}
	})

	cl := newTestClient(t, cluster, "meta1:1")

	scanner, err := cl.GetScanner(context.Background(), "mytable", []byte("hk"), nil, nil, DefaultScanOptions())
	if err != nil {
		t.Fatalf("GetScanner: %v", err)
	}

	var got []string
	for {
		item, err := scanner.Next(context.Background())
		if err == ErrScanFinished {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, string(item.SortKey))
	}

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %q, want %q", i, got[i], want[i])
		}
	}

	// End-of-scan must be idempotent: further Next calls keep returning
	// ErrScanFinished without issuing another RPC.
	for i := 0; i < 3; i++ {
		if _, err := scanner.Next(context.Background()); err != ErrScanFinished {
			t.Fatalf("Next after exhaustion = %v, want ErrScanFinished", err)
		}
	}
}

func TestUnorderedScannersSplitPartitionsRoundRobin(t *testing.T) {
	cluster := newFakeCluster()
	cluster.register("meta1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		return idl.MessageReply, encodeQueryConfigOK(1, 4, "p0:1")
	})

	cl := newTestClient(t, cluster, "meta1:1")
	table, err := cl.openTable(context.Background(), "mytable")
	if err != nil {
		t.Fatalf("openTable: %v", err)
	}

	scanners, err := cl.getUnorderedScanners(context.Background(), table, 2, DefaultScanOptions())
	if err != nil {
		t.Fatalf("getUnorderedScanners: %v", err)
	}
	if len(scanners) != 2 {
		t.Fatalf("got %d scanners, want 2 (max_split_count)", len(scanners))
	}

	total := 0
	for _, s := range scanners {
		us := s.(*unorderedScanner)
		total += len(us.partitions)
	}
	if total != 4 {
		t.Fatalf("expected all 4 partitions to be distributed across scanners, got %d", total)
	}
}
