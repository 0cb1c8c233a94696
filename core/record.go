package core

import (
	"encoding/binary"
	"math"
)

/*

Row record
──────────────────────────────────────────────
| NCOLS (2) | CELL | CELL | ...              |
──────────────────────────────────────────────

Each cell: TAG (1) then the payload for that type.
INTEGER and REAL are 8 bytes, TEXT and BLOB are LEN (4) + bytes,
NULL has no payload.

Key encoding is a separate, order-preserving format: a class tag byte
(null < numeric < text < blob) followed by the raw bytes for text/blob.
Numeric keys carry a sign-flipped big-endian float64 prefix, a form tag
and, for integer-valued keys, the exact sign-flipped int64. The float
prefix gives numeric order across integers and reals; the int64 suffix
keeps distinct integers distinct where float64 rounds them together.
bytes.Compare on encoded keys agrees with Value.Compare.

*/

const (
	tagNull    = 0x00
	tagInteger = 0x01
	tagReal    = 0x02
	tagText    = 0x03
	tagBlob    = 0x04
)

// EncodeRow serializes a row of values.
func EncodeRow(row []Value) []byte {
	buf := make([]byte, 2, 2+len(row)*9)
	binary.BigEndian.PutUint16(buf, uint16(len(row)))

	for _, v := range row {
		switch v.typ {
		case TypeInteger:
			buf = append(buf, tagInteger)
			buf = binary.BigEndian.AppendUint64(buf, uint64(v.i))
		case TypeReal:
			buf = append(buf, tagReal)
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v.r))
		case TypeText:
			buf = append(buf, tagText)
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.s)))
			buf = append(buf, v.s...)
		case TypeBlob:
			buf = append(buf, tagBlob)
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.b)))
			buf = append(buf, v.b...)
		default:
			buf = append(buf, tagNull)
		}
	}

	return buf
}

// DecodeRow deserializes a row produced by EncodeRow.
func DecodeRow(data []byte) ([]Value, error) {
	if len(data) < 2 {
		return nil, NewError(KindCorrupt, "row record too short")
	}

	n := int(binary.BigEndian.Uint16(data))
	row := make([]Value, 0, n)
	pos := 2

	for i := 0; i < n; i++ {
		if pos >= len(data) {
			return nil, Errorf(KindCorrupt, "row record truncated at column %d", i)
		}
		tag := data[pos]
		pos++

		switch tag {
		case tagNull:
			row = append(row, Null())
		case tagInteger, tagReal:
			if pos+8 > len(data) {
				return nil, Errorf(KindCorrupt, "row record truncated at column %d", i)
			}
			bits := binary.BigEndian.Uint64(data[pos : pos+8])
			pos += 8
			if tag == tagInteger {
				row = append(row, Integer(int64(bits)))
			} else {
				row = append(row, Real(math.Float64frombits(bits)))
			}
		case tagText, tagBlob:
			if pos+4 > len(data) {
				return nil, Errorf(KindCorrupt, "row record truncated at column %d", i)
			}
			size := int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
			if pos+size > len(data) {
				return nil, Errorf(KindCorrupt, "row record truncated at column %d", i)
			}
			if tag == tagText {
				row = append(row, Text(string(data[pos:pos+size])))
			} else {
				blob := make([]byte, size)
				copy(blob, data[pos:pos+size])
				row = append(row, Blob(blob))
			}
			pos += size
		default:
			return nil, Errorf(KindCorrupt, "unknown value tag 0x%02x", tag)
		}
	}

	return row, nil
}

// Key-class tags, ordered the same way Value.Compare orders types.
const (
	keyNull    = 0x01
	keyNumeric = 0x02
	keyText    = 0x03
	keyBlob    = 0x04
)

// Numeric form tags, following the float prefix. Integer form carries
// the exact int64; real form is reserved for reals int64 cannot hold
// and sorts after any integer sharing the same float prefix.
const (
	numInteger = 0x01
	numReal    = 0x02
)

const twoPow63 = float64(1 << 63)

// floatOrder maps a float64 onto a uint64 whose unsigned order matches
// numeric order.
func floatOrder(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | 1<<63
}

func floatUnorder(bits uint64) float64 {
	if bits&(1<<63) != 0 {
		return math.Float64frombits(bits &^ (1 << 63))
	}
	return math.Float64frombits(^bits)
}

// integralKey returns the exact int64 behind an integer value, or a
// real holding a whole number int64 can represent.
func integralKey(v Value) (int64, bool) {
	if v.typ == TypeInteger {
		return v.i, true
	}
	if v.r == math.Trunc(v.r) && v.r >= -twoPow63 && v.r < twoPow63 {
		return int64(v.r), true
	}
	return 0, false
}

// DecodeKey recovers the value from a single-value key produced by
// EncodeKey. Numeric keys come back as Integer when integral, Real
// otherwise.
func DecodeKey(key []byte) (Value, error) {
	if len(key) == 0 {
		return Value{}, NewError(KindCorrupt, "empty key")
	}
	switch key[0] {
	case keyNull:
		return Null(), nil
	case keyNumeric:
		if len(key) < 10 {
			return Value{}, NewError(KindCorrupt, "truncated numeric key")
		}
		switch key[9] {
		case numInteger:
			if len(key) < 18 {
				return Value{}, NewError(KindCorrupt, "truncated integer key")
			}
			return Integer(int64(binary.BigEndian.Uint64(key[10:18]) ^ (1 << 63))), nil
		case numReal:
			return Real(floatUnorder(binary.BigEndian.Uint64(key[1:9]))), nil
		default:
			return Value{}, Errorf(KindCorrupt, "unknown numeric key form 0x%02x", key[9])
		}
	case keyText:
		return Text(string(key[1:])), nil
	case keyBlob:
		blob := make([]byte, len(key)-1)
		copy(blob, key[1:])
		return Blob(blob), nil
	default:
		return Value{}, Errorf(KindCorrupt, "unknown key class 0x%02x", key[0])
	}
}

// EncodeKey produces an order-preserving byte encoding of a key value:
// bytes.Compare on two encoded keys agrees with Value.Compare.
func EncodeKey(v Value) []byte {
	switch v.typ {
	case TypeInteger, TypeReal:
		f, _ := v.Float()
		buf := make([]byte, 10, 18)
		buf[0] = keyNumeric
		binary.BigEndian.PutUint64(buf[1:9], floatOrder(f))
		if i, ok := integralKey(v); ok {
			buf[9] = numInteger
			buf = binary.BigEndian.AppendUint64(buf, uint64(i)^(1<<63))
		} else {
			buf[9] = numReal
		}
		return buf
	case TypeText:
		return append([]byte{keyText}, v.s...)
	case TypeBlob:
		return append([]byte{keyBlob}, v.b...)
	default:
		return []byte{keyNull}
	}
}
