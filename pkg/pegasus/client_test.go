package pegasus

import (
	"context"
	"testing"
	"time"

	"github.com/pegasus-kv/go-client/pkg/idl"
)

func TestClientGetSetDelRoundTrip(t *testing.T) {
	cluster := newFakeCluster()
	cluster.register("meta1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		return idl.MessageReply, encodeQueryConfigOK(1, 1, "p1:1")
	})

	// the fake server never decodes argument bodies, so PUT stashes a
	// fixed value directly rather than reading it off the wire.
	store := map[string][]byte{}
	cluster.register("p1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		switch method {
		case "RPC_RRDB_RRDB_PUT":
			store["k"] = []byte("v1")
			return idl.MessageReply, func(w *idl.Writer) { w.I32(ErrOK) }
		case "RPC_RRDB_RRDB_GET":
			v, ok := store["k"]
			if !ok {
				return idl.MessageReply, encodeGetErr(ErrObjectNotFound)
			}
			return idl.MessageReply, encodeGetOK(v)
		case "RPC_RRDB_RRDB_REMOVE":
			delete(store, "k")
			return idl.MessageReply, func(w *idl.Writer) { w.I32(ErrOK) }
		case "RPC_RRDB_RRDB_EXIST":
			if _, ok := store["k"]; !ok {
				return idl.MessageReply, func(w *idl.Writer) { w.I32(ErrRecordNotFound) }
			}
			return idl.MessageReply, func(w *idl.Writer) { w.I32(ErrOK) }
		default:
			return idl.MessageReply, func(w *idl.Writer) { w.I32(ErrOK) }
		}
	})

	cl := newTestClient(t, cluster, "meta1:1")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := cl.Set(ctx, "mytable", []byte("hk"), []byte("k"), []byte("v1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err := cl.Exist(ctx, "mytable", []byte("hk"), []byte("k"))
	if err != nil {
		t.Fatalf("Exist: %v", err)
	}
	if !ok {
		t.Fatal("expected Exist to report true after Set")
	}

	v, err := cl.Get(ctx, "mytable", []byte("hk"), []byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "v1" {
		t.Fatalf("got %q, want %q", v, "v1")
	}

	if err := cl.Del(ctx, "mytable", []byte("hk"), []byte("k")); err != nil {
		t.Fatalf("Del: %v", err)
	}

	ok, err = cl.Exist(ctx, "mytable", []byte("hk"), []byte("k"))
	if err != nil {
		t.Fatalf("Exist after Del: %v", err)
	}
	if ok {
		t.Fatal("expected Exist to report false after Del")
	}
}

func TestClientCloseRejectsFurtherCalls(t *testing.T) {
	cluster := newFakeCluster()
	cluster.register("meta1:1", func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer)) {
		return idl.MessageReply, encodeQueryConfigOK(1, 1, "p1:1")
	})

	cl, err := NewClient(WithMetaServers("meta1:1"), withDialFn(cluster.dial))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := cl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := cl.Get(context.Background(), "mytable", []byte("hk"), []byte("sk")); err != ErrClientClosed {
		t.Fatalf("got err=%v, want ErrClientClosed", err)
	}
}
