package pegasus

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/pegasus-kv/go-client/pkg/idl"
)

// fakeEndpoint is a minimal stand-in for a Pegasus replica or meta
// server: it reads request frames off a net.Pipe and answers each via
// a caller-supplied handler, mirroring how the real broker in the
// teacher's tests would be faked with an in-memory connection.
type fakeEndpoint struct {
	mu      sync.Mutex
	calls   int
	handler func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer))
}

func (f *fakeEndpoint) serve(conn net.Conn) {
	defer conn.Close()
	for {
		sizeBuf := make([]byte, 4)
		if _, err := io.ReadFull(conn, sizeBuf); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(sizeBuf)
		body := make([]byte, size)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		r := idl.NewReader(body)
		hdr, err := idl.DecodeHeader(r)
		if err != nil {
			return
		}

		f.mu.Lock()
		f.calls++
		call := f.calls
		f.mu.Unlock()

		msgType, encode := f.handler(call, hdr.Method, hdr.SeqID)

		w := idl.NewWriter(128)
		idl.EncodeHeader(w, idl.Header{Method: hdr.Method, SeqID: hdr.SeqID, Type: msgType})
		if encode != nil {
			encode(w)
		}
		respBody := w.Bytes()
		frame := make([]byte, 4+len(respBody))
		binary.BigEndian.PutUint32(frame, uint32(len(respBody)))
		copy(frame[4:], respBody)
		if _, err := conn.Write(frame); err != nil {
			return
		}
	}
}

// fakeCluster wires a set of named endpoints to a dialFn that hands out
// one side of a net.Pipe per dial, keyed by address.
type fakeCluster struct {
	mu        sync.Mutex
	endpoints map[string]*fakeEndpoint
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{endpoints: make(map[string]*fakeEndpoint)}
}

func (c *fakeCluster) register(addr string, handler func(call int, method string, seqID int32) (idl.MessageType, func(*idl.Writer))) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[addr] = &fakeEndpoint{handler: handler}
}

func (c *fakeCluster) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	c.mu.Lock()
	ep, ok := c.endpoints[addr]
	c.mu.Unlock()
	if !ok {
		return nil, ErrConnection
	}
	client, server := net.Pipe()
	go ep.serve(server)
	return client, nil
}

func encodeQueryConfigOK(tableID, partitionCount int32, primary string) func(*idl.Writer) {
	return func(w *idl.Writer) {
		w.I32(ErrOK)
		w.I32(tableID)
		w.I32(partitionCount)
		w.I32(1) // one partition entry
		w.I32(0)
		w.String(primary)
		w.I64(1)
		w.String("")
	}
}

func encodeGetOK(value []byte) func(*idl.Writer) {
	return func(w *idl.Writer) {
		w.I32(ErrOK)
		w.Binary(value)
		w.I32(0)
	}
}

func encodeGetErr(code int32) func(*idl.Writer) {
	return func(w *idl.Writer) {
		w.I32(code)
		w.Binary(nil)
		w.I32(0)
	}
}

func newTestClient(t *testing.T, cluster *fakeCluster, metaAddr string) *Client {
	t.Helper()
	cl, err := NewClient(
		WithMetaServers(metaAddr),
		withDialFn(cluster.dial),
		WithMaxRetries(20),
		WithRetryBackoff(1, 50),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { cl.Close() })
	return cl
}
