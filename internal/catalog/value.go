package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xdbengine/storage/internal/xerrors"
)

// Value is a typed literal, used by the table layer for INSERT/UPDATE
// arguments and by internal/filter and internal/executor for predicate
// and expression evaluation. Grounded in the original source's
// TupleValue/IntValue/FloatValue/StringValue hierarchy
// (_examples/original_source/src/observer/sql/executor/value.h), collapsed
// into one Go struct instead of a class hierarchy per the design notes'
// "avoid deep inheritance, prefer composition" guidance.
type Value struct {
	Type ColumnType
	Null bool
	I    int32
	F    float32
	S    string // CHARS and DATES (canonical YYYY-MM-DD)
	B    []byte // TEXTS
}

func NewInt(v int32) Value   { return Value{Type: TypeInt, I: v} }
func NewFloat(v float32) Value { return Value{Type: TypeFloat, F: v} }
func NewChars(v string) Value { return Value{Type: TypeChars, S: v} }
func NewDate(v string) Value  { return Value{Type: TypeDates, S: v} }
func NewText(v []byte) Value { return Value{Type: TypeText, B: v} }
func NewNull(t ColumnType) Value { return Value{Type: t, Null: true} }

// dateLayout is the canonical on-disk DATES format, spec.md §3.
const dateLayout = "2006-01-02"

var dateMin = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
var dateMax = time.Date(2038, 3, 1, 0, 0, 0, 0, time.UTC)

// ParseDate validates a "YYYY-MM-DD" string against spec.md §8 S3: leap
// years accepted, out-of-range years rejected, window [1970-01-01,
// 2038-03-01).
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	// time.Parse silently normalizes an invalid day-of-month (e.g.
	// 2021-02-29 -> 2021-03-01); re-render and compare to catch that.
	if t.Format(dateLayout) != s {
		return time.Time{}, false
	}
	if t.Before(dateMin) || !t.Before(dateMax) {
		return time.Time{}, false
	}
	return t, true
}

// CoerceTo applies spec.md §4.4 Insert's two coercions — CHARS to DATES
// when the string parses as a valid date, and INT to FLOAT by numeric
// conversion (float32 of the integer) — returning the coerced value, or the
// original value unchanged if no coercion applies, or an error if target
// and value are fundamentally incompatible.
func CoerceTo(target ColumnType, v Value) (Value, error) {
	if v.Null {
		return Value{Type: target, Null: true}, nil
	}
	if v.Type == target {
		return v, nil
	}
	switch {
	case target == TypeDates && v.Type == TypeChars:
		if _, ok := ParseDate(v.S); !ok {
			return Value{}, xerrors.New("CoerceTo", xerrors.SchemaFieldTypeMismatch)
		}
		return Value{Type: TypeDates, S: v.S}, nil
	case target == TypeFloat && v.Type == TypeInt:
		return Value{Type: TypeFloat, F: float32(v.I)}, nil
	default:
		return Value{}, xerrors.New("CoerceTo", xerrors.SchemaFieldTypeMismatch)
	}
}

// Encode writes v into a fixed-width byte buffer of the given field
// width, matching the teacher's fixed-offset column storage.
func (v Value) Encode(width int) []byte {
	buf := make([]byte, width)
	switch v.Type {
	case TypeInt:
		putI32(buf, v.I)
	case TypeFloat:
		putF32(buf, v.F)
	case TypeChars, TypeDates:
		copy(buf, v.S)
	}
	return buf
}

func putI32(b []byte, v int32) {
	u := uint32(v)
	b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
}

func getI32(b []byte) int32 {
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return int32(u)
}

func putF32(b []byte, f float32) {
	putI32(b, int32(math.Float32bits(f)))
}

func getF32(b []byte) float32 {
	return math.Float32frombits(uint32(getI32(b)))
}

// DecodeFixed reads a fixed-width, non-TEXT column value from buf.
func DecodeFixed(t ColumnType, buf []byte) Value {
	switch t {
	case TypeInt:
		return Value{Type: TypeInt, I: getI32(buf)}
	case TypeFloat:
		return Value{Type: TypeFloat, F: getF32(buf)}
	case TypeChars:
		return Value{Type: TypeChars, S: strings.TrimRight(string(buf), "\x00")}
	case TypeDates:
		return Value{Type: TypeDates, S: strings.TrimRight(string(buf), "\x00")}
	default:
		return Value{Type: t}
	}
}

// String renders v for the output operator's " | "-joined rows.
func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	switch v.Type {
	case TypeInt:
		return strconv.Itoa(int(v.I))
	case TypeFloat:
		return formatFloat(v.F)
	case TypeChars, TypeDates:
		return v.S
	case TypeText:
		return string(v.B)
	default:
		return ""
	}
}

// formatFloat mirrors the original source's trimmed two-decimal
// formatting (value.h's FloatValue::to_string): fixed to 2 decimals, then
// trailing zeros (and a trailing '.') stripped.
func formatFloat(f float32) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		s = "0"
	}
	return s
}

// floatEpsilon is the ε-tolerance spec.md §4.5 defines for FLOAT compare.
const floatEpsilon = 1e-6

// Compare implements spec.md §4.5's per-type comparator: CHARS uses
// C-string compare, INT compares numerically, FLOAT is ε-tolerant, DATES
// compares the canonical string form. Mixed INT/FLOAT compares as FLOAT.
// Per spec.md §9's open question about the original's missing final
// return (treated as 0 there), this implementation always returns a
// deliberate -1/0/1 total order instead of falling through.
func Compare(a, b Value) int {
	if a.Type == TypeFloat || b.Type == TypeFloat {
		af, bf := asFloat(a), asFloat(b)
		d := af - bf
		switch {
		case d > floatEpsilon:
			return 1
		case d < -floatEpsilon:
			return -1
		default:
			return 0
		}
	}
	switch a.Type {
	case TypeInt:
		switch {
		case a.I < b.I:
			return -1
		case a.I > b.I:
			return 1
		default:
			return 0
		}
	case TypeChars, TypeDates:
		return strings.Compare(a.S, b.S)
	case TypeText:
		return strings.Compare(string(a.B), string(b.B))
	default:
		return 0
	}
}

func asFloat(v Value) float32 {
	if v.Type == TypeFloat {
		return v.F
	}
	return float32(v.I)
}
