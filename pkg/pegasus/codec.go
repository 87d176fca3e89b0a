package pegasus

import (
	"encoding/binary"
	"hash/crc64"
)

// maxHashKeyLen is the reserved sentinel length (spec §3): hashKeys must
// be strictly shorter than this.
const maxHashKeyLen = 0xFFFF

// crc64ECMATable is the CRC-64 table named by spec §6 (ECMA-182 polynomial
// 0xC96C5795D7870F42, reflected). hash/crc64.ECMA is exactly that
// polynomial; this and pkg/idl's binary codec are the two places the
// module reaches for the standard library over a pack dependency (see
// DESIGN.md).
var crc64ECMATable = crc64.MakeTable(crc64.ECMA)

// encodeKey implements spec §4.1 encode_key: a 16-bit big-endian
// hashKeyLen prefix, then hashKey bytes, then sortKey bytes.
func encodeKey(hashKey, sortKey []byte) ([]byte, error) {
	if len(hashKey) >= maxHashKeyLen {
		return nil, ErrInvalidArgument
	}
	buf := make([]byte, 2+len(hashKey)+len(sortKey))
	binary.BigEndian.PutUint16(buf, uint16(len(hashKey)))
	copy(buf[2:], hashKey)
	copy(buf[2+len(hashKey):], sortKey)
	return buf, nil
}

// decodeKey implements spec §4.1 decode_key.
func decodeKey(b []byte) (hashKey, sortKey []byte, err error) {
	if len(b) < 2 {
		return nil, nil, ErrInvalidArgument
	}
	hashLen := binary.BigEndian.Uint16(b)
	if hashLen == 0xFFFF {
		return nil, nil, ErrInvalidArgument
	}
	if 2+int(hashLen) > len(b) {
		return nil, nil, ErrInvalidArgument
	}
	hashKey = b[2 : 2+hashLen]
	sortKey = b[2+hashLen:]
	return hashKey, sortKey, nil
}

// encodeHashKeyUpperBound implements spec §4.1
// encode_hashkey_upper_bound: encode(hashKey, "") interpreted as an
// unsigned big integer, plus one. All-0xFF overflows to the empty
// sequence, meaning "+infinity" (no upper bound).
func encodeHashKeyUpperBound(hashKey []byte) ([]byte, error) {
	b, err := encodeKey(hashKey, nil)
	if err != nil {
		return nil, err
	}
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xFF {
			b[i]++
			return b[:i+1], nil
		}
	}
	// every byte was 0xFF: overflow, "+infinity"
	return []byte{}, nil
}

// partitionHash implements spec §4.1 partition_hash / §6: CRC-64(ECMA)
// of the hashKey bytes, or of the full remainder (the sortKey) when the
// encoded key carries an empty hashKey. This dual meaning is load-bearing
// (spec §9's Open Question) for multi-table schemas that omit the
// hash-key discriminator entirely.
func partitionHash(encoded []byte) (uint64, error) {
	hashKey, sortKey, err := decodeKey(encoded)
	if err != nil {
		return 0, err
	}
	if len(hashKey) == 0 {
		return crc64.Checksum(sortKey, crc64ECMATable), nil
	}
	return crc64.Checksum(hashKey, crc64ECMATable), nil
}

// partitionIndex implements spec §4.1 partition_index: hash mod count.
// count must be a positive power of two (spec §3 invariant); the caller
// (TableHandle) is responsible for upholding that invariant, this
// function only does the arithmetic.
func partitionIndex(hash uint64, count int32) int32 {
	return int32(hash % uint64(count))
}

// byteCompare implements spec §4.1 byte_compare: unsigned lexicographic
// comparison, returning -1, 0 or 1 with the same ordering as
// bytes.Compare; a shorter slice that is a prefix of the other sorts
// first.
func byteCompare(a, b []byte) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}
