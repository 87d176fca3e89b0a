// Package idl holds the wire argument/result structures the Pegasus
// client core treats as a black box (see spec §1/§6): a thrift-compatible
// binary protocol reader/writer, and the concrete request/response shapes
// for the meta and storage protocols. Nothing outside this package touches
// the wire format directly; pkg/pegasus only ever calls Encode/Decode.
package idl

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortBuffer is returned by Reader methods when the source does not
// hold enough bytes to satisfy the read.
var ErrShortBuffer = errors.New("idl: short buffer")

// Writer appends a thrift-compatible binary encoding to an in-memory
// buffer. It never returns an error: callers build up a message and only
// look at Bytes() once done, mirroring the teacher's kbin.Writer append
// style (zero-alloc-friendly, error-free encode path).
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with cap bytes of backing capacity preallocated.
func NewWriter(cap int) *Writer {
	return &Writer{buf: make([]byte, 0, cap)}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Reset()        { w.buf = w.buf[:0] }

func (w *Writer) I8(v int8) { w.buf = append(w.buf, byte(v)) }

func (w *Writer) Bool(v bool) {
	if v {
		w.I8(1)
	} else {
		w.I8(0)
	}
}

func (w *Writer) I16(v int16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) I32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) I64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Double(v float64) { w.I64(int64(math.Float64bits(v))) }

// Binary writes a length-prefixed (i32) byte string, the thrift binary
// protocol's representation for both `binary` and `string` fields.
func (w *Writer) Binary(v []byte) {
	w.I32(int32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *Writer) String(v string) { w.Binary([]byte(v)) }

func (w *Writer) BinarySlice(vs [][]byte) {
	w.I32(int32(len(vs)))
	for _, v := range vs {
		w.Binary(v)
	}
}

// Reader consumes a thrift-compatible binary encoding produced by Writer.
// The first error encountered is sticky: once Err() is non-nil, every
// subsequent read returns the zero value, so callers can chain reads and
// check the error once at the end (mirrors kbin.Reader).
type Reader struct {
	src []byte
	err error
}

func NewReader(src []byte) *Reader { return &Reader{src: src} }

func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.src) < n {
		r.fail(ErrShortBuffer)
		return nil
	}
	b := r.src[:n]
	r.src = r.src[n:]
	return b
}

func (r *Reader) I8() int8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return int8(b[0])
}

func (r *Reader) Bool() bool { return r.I8() != 0 }

func (r *Reader) I16() int16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return int16(binary.BigEndian.Uint16(b))
}

func (r *Reader) I32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) I64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *Reader) Double() float64 { return math.Float64frombits(uint64(r.I64())) }

// Binary reads a length-prefixed byte string. The returned slice is a
// fresh copy and does not alias the reader's source.
func (r *Reader) Binary() []byte {
	n := r.I32()
	if r.err != nil || n < 0 {
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *Reader) String() string { return string(r.Binary()) }

func (r *Reader) BinarySlice() [][]byte {
	n := r.I32()
	if r.err != nil || n < 0 {
		return nil
	}
	out := make([][]byte, 0, n)
	for i := int32(0); i < n; i++ {
		out = append(out, r.Binary())
	}
	return out
}

func (r *Reader) Remaining() []byte { return r.src }
