package idl

import "fmt"

// MessageType mirrors thrift's TMessageType, restricted to the three
// kinds the session layer needs to distinguish (spec §4.2/§6).
type MessageType int8

const (
	MessageCall MessageType = 1
	MessageReply MessageType = 2
	MessageException MessageType = 3
)

func (t MessageType) String() string {
	switch t {
	case MessageCall:
		return "call"
	case MessageReply:
		return "reply"
	case MessageException:
		return "exception"
	default:
		return fmt.Sprintf("unknown(%d)", int8(t))
	}
}

// Request is the contract every storage/meta request argument structure
// satisfies. Name is the thrift method name carried in the frame header;
// Encode appends the argument struct's body (the envelope itself -
// method name, seqid, message type - is written by the session, not by
// the request).
type Request interface {
	Name() string
	Encode(w *Writer)
	// NewResponse returns a fresh, empty response value this request's
	// reply should be decoded into.
	NewResponse() Response
}

// Response is the contract every storage/meta reply result structure
// satisfies.
type Response interface {
	Decode(r *Reader) error
}

// Header is the framing metadata read off the wire ahead of a request or
// response body (spec §6: method_name, seqid, message_type).
type Header struct {
	Method  string
	SeqID   int32
	Type    MessageType
}

// EncodeHeader writes the header h (method name, seqid, message type);
// the caller appends the struct body afterwards. This is the only place
// the module writes the thrift envelope; everything else only ever
// supplies or consumes struct bodies.
func EncodeHeader(w *Writer, h Header) {
	w.String(h.Method)
	w.I32(h.SeqID)
	w.I8(int8(h.Type))
}

// DecodeHeader reads a header off the front of a frame body.
func DecodeHeader(r *Reader) (Header, error) {
	h := Header{}
	h.Method = r.String()
	h.SeqID = r.I32()
	h.Type = MessageType(r.I8())
	return h, r.Err()
}
