package core

import (
	"bytes"
	"fmt"
	"strconv"
)

type Type int

const (
	TypeNull Type = iota
	TypeInteger
	TypeReal
	TypeText
	TypeBlob
)

// Code returns the numeric column type of the C surface.
func (t Type) Code() int {
	switch t {
	case TypeInteger:
		return 1
	case TypeReal:
		return 2
	case TypeText:
		return 3
	case TypeBlob:
		return 4
	default:
		return 5
	}
}

func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	case TypeText:
		return "TEXT"
	case TypeBlob:
		return "BLOB"
	default:
		return "NULL"
	}
}

// Value is a tagged union holding one SQL value.
type Value struct {
	typ Type
	i   int64
	r   float64
	s   string
	b   []byte
}

func Null() Value                 { return Value{typ: TypeNull} }
func Integer(i int64) Value       { return Value{typ: TypeInteger, i: i} }
func Real(r float64) Value        { return Value{typ: TypeReal, r: r} }
func Text(s string) Value         { return Value{typ: TypeText, s: s} }
func Blob(b []byte) Value         { return Value{typ: TypeBlob, b: b} }

func (v Value) Type() Type   { return v.typ }
func (v Value) IsNull() bool { return v.typ == TypeNull }

// Int returns the value as an integer. Only an Integer converts; there is
// no silent narrowing from Real or parsing from Text.
func (v Value) Int() (int64, error) {
	if v.typ != TypeInteger {
		return 0, Errorf(KindMismatch, "value is %s, not INTEGER", v.typ)
	}
	return v.i, nil
}

// Float returns the value as a real. Integers widen safely; anything else
// is a type mismatch.
func (v Value) Float() (float64, error) {
	switch v.typ {
	case TypeReal:
		return v.r, nil
	case TypeInteger:
		return float64(v.i), nil
	default:
		return 0, Errorf(KindMismatch, "value is %s, not REAL", v.typ)
	}
}

func (v Value) Text() (string, error) {
	if v.typ != TypeText {
		return "", Errorf(KindMismatch, "value is %s, not TEXT", v.typ)
	}
	return v.s, nil
}

func (v Value) Blob() ([]byte, error) {
	if v.typ != TypeBlob {
		return nil, Errorf(KindMismatch, "value is %s, not BLOB", v.typ)
	}
	return v.b, nil
}

func (v Value) isNumeric() bool {
	return v.typ == TypeInteger || v.typ == TypeReal
}

// Compare orders two values: Null < numeric < Text < Blob. Integers and
// reals compare numerically with each other; text and blobs bytewise.
func (v Value) Compare(other Value) int {
	if v.typ == TypeNull || other.typ == TypeNull {
		if v.typ == other.typ {
			return 0
		}
		if v.typ == TypeNull {
			return -1
		}
		return 1
	}

	if v.isNumeric() && other.isNumeric() {
		if v.typ == TypeInteger && other.typ == TypeInteger {
			switch {
			case v.i < other.i:
				return -1
			case v.i > other.i:
				return 1
			default:
				return 0
			}
		}
		a, _ := v.Float()
		b, _ := other.Float()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}

	if rank(v.typ) != rank(other.typ) {
		if rank(v.typ) < rank(other.typ) {
			return -1
		}
		return 1
	}

	switch v.typ {
	case TypeText:
		return bytes.Compare([]byte(v.s), []byte(other.s))
	default:
		return bytes.Compare(v.b, other.b)
	}
}

// rank collapses the numeric types into one ordering class.
func rank(t Type) int {
	switch t {
	case TypeNull:
		return 0
	case TypeInteger, TypeReal:
		return 1
	case TypeText:
		return 2
	default:
		return 3
	}
}

// Equal reports value equality under Compare semantics. Null never equals
// anything, including Null, matching SQL comparison semantics.
func (v Value) Equal(other Value) bool {
	if v.typ == TypeNull || other.typ == TypeNull {
		return false
	}
	return v.Compare(other) == 0
}

// Display renders the value for result output. Reals are formatted with
// the given precision; a negative precision means shortest representation.
func (v Value) Display(precision int) string {
	switch v.typ {
	case TypeInteger:
		return strconv.FormatInt(v.i, 10)
	case TypeReal:
		return strconv.FormatFloat(v.r, 'g', precision, 64)
	case TypeText:
		return v.s
	case TypeBlob:
		return fmt.Sprintf("x'%x'", v.b)
	default:
		return "NULL"
	}
}

func (v Value) String() string {
	return v.Display(-1)
}
