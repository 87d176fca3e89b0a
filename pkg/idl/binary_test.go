package idl

import (
	"bytes"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(64)
	w.I8(-7)
	w.Bool(true)
	w.I16(-1000)
	w.I32(123456789)
	w.I64(-9000000000000)
	w.Double(3.14159)
	w.Binary([]byte("hello scan"))
	w.String("rpc method name")
	w.BinarySlice([][]byte{[]byte("a"), []byte("bb"), {}})

	r := NewReader(w.Bytes())
	if got := r.I8(); got != -7 {
		t.Errorf("I8 = %d, want -7", got)
	}
	if got := r.Bool(); got != true {
		t.Errorf("Bool = %v, want true", got)
	}
	if got := r.I16(); got != -1000 {
		t.Errorf("I16 = %d, want -1000", got)
	}
	if got := r.I32(); got != 123456789 {
		t.Errorf("I32 = %d, want 123456789", got)
	}
	if got := r.I64(); got != -9000000000000 {
		t.Errorf("I64 = %d, want -9000000000000", got)
	}
	if got := r.Double(); got != 3.14159 {
		t.Errorf("Double = %v, want 3.14159", got)
	}
	if got := r.Binary(); !bytes.Equal(got, []byte("hello scan")) {
		t.Errorf("Binary = %q, want %q", got, "hello scan")
	}
	if got := r.String(); got != "rpc method name" {
		t.Errorf("String = %q, want %q", got, "rpc method name")
	}
	slice := r.BinarySlice()
	want := [][]byte{[]byte("a"), []byte("bb"), {}}
	if len(slice) != len(want) {
		t.Fatalf("BinarySlice len = %d, want %d", len(slice), len(want))
	}
	for i := range want {
		if !bytes.Equal(slice[i], want[i]) {
			t.Errorf("BinarySlice[%d] = %q, want %q", i, slice[i], want[i])
		}
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReaderShortBufferIsSticky(t *testing.T) {
	r := NewReader([]byte{0x00, 0x01})
	first := r.I32()
	if first != 0 {
		t.Errorf("expected zero value on short read, got %d", first)
	}
	if r.Err() != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", r.Err())
	}

	// once the reader has failed, every further read keeps returning the
	// zero value rather than panicking or reading stale data.
	if got := r.I64(); got != 0 {
		t.Errorf("expected zero value after sticky error, got %d", got)
	}
	if got := r.Binary(); got != nil {
		t.Errorf("expected nil after sticky error, got %v", got)
	}
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	w := NewWriter(32)
	EncodeHeader(w, Header{Method: "RPC_RRDB_RRDB_GET", SeqID: 42, Type: MessageCall})

	r := NewReader(w.Bytes())
	hdr, err := DecodeHeader(r)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if hdr.Method != "RPC_RRDB_RRDB_GET" || hdr.SeqID != 42 || hdr.Type != MessageCall {
		t.Errorf("DecodeHeader = %+v, want Method=RPC_RRDB_RRDB_GET SeqID=42 Type=MessageCall", hdr)
	}
}
