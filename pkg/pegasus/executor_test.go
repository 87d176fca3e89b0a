package pegasus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pegasus-kv/go-client/pkg/idl"
)

// TestExecutorRecoversFromRoutingStale is spec §8 scenario 5: a replica
// reports it is no longer primary; the Executor refreshes metadata via
// the Meta Resolver and retries against the new primary, surfacing OK
// to the caller without the caller ever seeing the transient error.
func TestExecutorRecoversFromRoutingStale(t *testing.T) {
	cluster := newFakeCluster()

	metaCalls := 0
	cluster.register("meta1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		metaCalls++
		if metaCalls == 1 {
			return idl.MessageReply, encodeQueryConfigOK(1, 1, "p1:1")
		}
		return idl.MessageReply, encodeQueryConfigOK(1, 1, "p2:1")
	})
	cluster.register("p1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		return idl.MessageReply, encodeGetErr(ErrNotPrimary)
	})
	cluster.register("p2:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		return idl.MessageReply, encodeGetOK([]byte("the-value"))
	})

	cl := newTestClient(t, cluster, "meta1:1")

	table, err := cl.openTable(context.Background(), "mytable")
	if err != nil {
		t.Fatalf("openTable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key, err := encodeKey([]byte("hk"), []byte("sk"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := cl.executor.execute(ctx, table, []byte("hk"), []byte("sk"), &idl.GetRequest{Key: key}, time.Time{})
	if err != nil {
		t.Fatalf("expected the executor to recover from a routing-stale reply, got error: %v", err)
	}
	got := resp.(*idl.GetResponse)
	if string(got.Value) != "the-value" {
		t.Errorf("got value %q, want %q", got.Value, "the-value")
	}
}

// TestExecutorSurfacesApplicationError checks that a non-routing
// server error code is never retried and escapes as an ApplicationError
// (spec §7 "ApplicationError ... never retried").
func TestExecutorSurfacesApplicationError(t *testing.T) {
	cluster := newFakeCluster()
	cluster.register("meta1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		return idl.MessageReply, encodeQueryConfigOK(1, 1, "p1:1")
	})
	attempts := 0
	cluster.register("p1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		attempts++
		return idl.MessageReply, encodeGetErr(ErrInvalidParameters)
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
	_, err = cl.executor.execute(context.Background(), table, []byte("hk"), []byte("sk"), &idl.GetRequest{Key: key}, time.Time{})

	var ae *ApplicationError
	if err == nil {
		t.Fatal("expected an ApplicationError, got nil")
	}
	if !errors.As(err, &ae) {
		t.Fatalf("expected an ApplicationError, got %v (%T)", err, err)
	}
	if ae.Code != ErrInvalidParameters {
		t.Errorf("got code %d, want %d", ae.Code, ErrInvalidParameters)
	}
	if attempts != 1 {
		t.Errorf("expected exactly one attempt for a terminal application error, got %d", attempts)
	}
}
