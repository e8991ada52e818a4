// Package types holds the value/column-type model shared by the
// catalog, record heap, B+-tree index, and executors: spec.md §3's
// "Column type", "Value", and the encode/decode + comparison rules
// that fall out of it. Generalized from the teacher's sql.DataType/
// sql.Value (_examples/askorykh-goDB/internal/sql/types.go), which
// only ever needed dynamic int64/float64/string/bool; this module
// needs exactly the three fixed-width SQL types spec.md names
// (INT/FLOAT/CHAR(n)) plus the byte-level comparison and widening
// rules a B+-tree key and a WHERE predicate both depend on.
package types

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/llll-debug/rucbase-go/internal/dberr"
)

// ColType is one of the three column types spec.md §3 allows.
type ColType uint8

const (
	TypeInt ColType = iota
	TypeFloat
	TypeChar
)

func (t ColType) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeChar:
		return "CHAR"
	default:
		return "UNKNOWN"
	}
}

// FixedLength returns the on-disk byte length of a value of this
// type, given the declared CHAR(n) length (ignored for INT/FLOAT,
// which are always 4 bytes per spec.md §3).
func FixedLength(t ColType, declaredLen int) int {
	switch t {
	case TypeInt, TypeFloat:
		return 4
	case TypeChar:
		return declaredLen
	default:
		return 0
	}
}

// Value is a tagged union over the three column types, matching
// spec.md §3's "Value" (the raw-encoded byte form lives alongside it
// as a []byte produced by Encode/EncodeInto).
type Value struct {
	Type ColType
	I    int32
	F    float32
	S    []byte // exactly Length bytes when it came from a CHAR(n) column
}

func IntValue(i int32) Value   { return Value{Type: TypeInt, I: i} }
func FloatValue(f float32) Value { return Value{Type: TypeFloat, F: f} }
func CharValue(s []byte) Value { return Value{Type: TypeChar, S: s} }

// AsFloat64 widens an INT or FLOAT value to float64 for numeric
// comparison; it panics on CHAR, which callers must exclude first.
func (v Value) AsFloat64() float64 {
	switch v.Type {
	case TypeInt:
		return float64(v.I)
	case TypeFloat:
		return float64(v.F)
	default:
		panic("types: AsFloat64 on non-numeric value")
	}
}

// Encode renders v into its fixed-width on-disk/key form, per
// spec.md's "encode(value, type) -> bytes". length is the column's
// declared CHAR(n) length; ignored for INT/FLOAT.
func Encode(v Value, colType ColType, length int) ([]byte, error) {
	buf := make([]byte, FixedLength(colType, length))
	if err := EncodeInto(buf, v, colType, length); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeInto writes v's encoded bytes into buf, which must already be
// FixedLength(colType, length) bytes.
func EncodeInto(buf []byte, v Value, colType ColType, length int) error {
	switch colType {
	case TypeInt:
		var iv int32
		switch v.Type {
		case TypeInt:
			iv = v.I
		case TypeFloat:
			// Coercion rule (spec.md §3) only widens INT->FLOAT, never
			// narrows FLOAT->INT; callers must not reach this path for
			// a genuine FLOAT literal assigned to an INT column.
			return dberr.NewIncompatibleType("FLOAT", "INT")
		default:
			return dberr.NewIncompatibleType(v.Type.String(), colType.String())
		}
		binary.BigEndian.PutUint32(buf, uint32(iv)^0x80000000) // order-preserving for signed ints
	case TypeFloat:
		var fv float32
		switch v.Type {
		case TypeFloat:
			fv = v.F
		case TypeInt:
			fv = float32(v.I) // INT -> FLOAT widening (spec.md §3)
		default:
			return dberr.NewIncompatibleType(v.Type.String(), colType.String())
		}
		buf2 := make([]byte, 4)
		binary.BigEndian.PutUint32(buf2, math.Float32bits(fv))
		bits := binary.BigEndian.Uint32(buf2)
		// Order-preserving float encoding: flip sign bit for
		// positives, flip all bits for negatives, so BigEndian byte
		// comparison matches numeric order.
		if bits&0x80000000 != 0 {
			bits = ^bits
		} else {
			bits |= 0x80000000
		}
		binary.BigEndian.PutUint32(buf, bits)
	case TypeChar:
		if v.Type != TypeChar {
			return dberr.NewIncompatibleType(v.Type.String(), colType.String())
		}
		if len(v.S) > length {
			return dberr.NewInternal("types: CHAR value length %d exceeds column length %d", len(v.S), length)
		}
		copy(buf, v.S) // zero-padded (spec.md §3: "n bytes, zero-padded")
	default:
		return dberr.NewInternal("types: unknown column type %d", colType)
	}
	return nil
}

// Decode reverses Encode.
func Decode(buf []byte, colType ColType) Value {
	switch colType {
	case TypeInt:
		bits := binary.BigEndian.Uint32(buf) ^ 0x80000000
		return IntValue(int32(bits))
	case TypeFloat:
		bits := binary.BigEndian.Uint32(buf)
		if bits&0x80000000 != 0 {
			bits &^= 0x80000000
		} else {
			bits = ^bits
		}
		return FloatValue(math.Float32frombits(bits))
	case TypeChar:
		s := make([]byte, len(buf))
		copy(s, buf)
		return CharValue(s)
	default:
		return Value{}
	}
}

// CompareEncoded compares two same-typed encoded byte strings. Since
// Encode produces an order-preserving big-endian form for INT/FLOAT
// and CHAR is already fixed-length left-to-right bytes, plain
// bytes.Compare gives the correct order for all three types
// (spec.md §4.2: "INT/FLOAT use numeric order; CHAR uses memcmp").
func CompareEncoded(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Compare compares two logical values honoring INT<->FLOAT widening
// (spec.md §3, §8 invariant 6) and rejecting CHAR-vs-numeric
// comparisons as IncompatibleType.
func Compare(a, b Value) (int, error) {
	if a.Type == TypeChar || b.Type == TypeChar {
		if a.Type != b.Type {
			return 0, dberr.NewIncompatibleType(a.Type.String(), b.Type.String())
		}
		return bytes.Compare(a.S, b.S), nil
	}
	af, bf := a.AsFloat64(), b.AsFloat64()
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

// Comparable reports whether two column types may appear on either
// side of a Condition (spec.md §3 invariants): INT/FLOAT are mutually
// comparable, CHAR only with CHAR.
func Comparable(a, b ColType) bool {
	if a == TypeChar || b == TypeChar {
		return a == b
	}
	return true
}

// MinBytes/MaxBytes produce the encoded sentinel extremes for a
// column type+length, used by internal/exec's index-scan bound
// construction (spec.md §4.6: "fill remaining columns with
// type-specific minima/maxima").
func MinBytes(colType ColType, length int) []byte {
	buf := make([]byte, FixedLength(colType, length))
	switch colType {
	case TypeInt, TypeFloat:
		// all-zero big-endian already sorts as the minimum in our
		// order-preserving encoding
	case TypeChar:
		// all-zero bytes sort as the minimum CHAR value
	}
	return buf
}

func MaxBytes(colType ColType, length int) []byte {
	buf := make([]byte, FixedLength(colType, length))
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf
}
