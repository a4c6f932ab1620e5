package record

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies which variant a Value holds
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindBytes
	KindDecimal
	KindStrings
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindDecimal:
		return "decimal"
	case KindStrings:
		return "strings"
	default:
		return "unknown"
	}
}

// Value is a tagged logical field value. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	raw  []byte
	dec  decimal.Decimal
	strs []string
}

// Null returns the null value
func Null() Value { return Value{} }

// String wraps a text value
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bytes wraps a raw binary value
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// Decimal wraps an exact decimal value
func Decimal(d decimal.Decimal) Value { return Value{kind: KindDecimal, dec: d} }

// Strings wraps a string array value
func Strings(ss []string) Value { return Value{kind: KindStrings, strs: ss} }

// Kind reports the variant held by v
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no value
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the text variant
func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", mismatch(KindString, v.kind)
	}
	return v.str, nil
}

// AsBytes returns the binary variant
func (v Value) AsBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, mismatch(KindBytes, v.kind)
	}
	return v.raw, nil
}

// AsDecimal returns the decimal variant
func (v Value) AsDecimal() (decimal.Decimal, error) {
	if v.kind != KindDecimal {
		return decimal.Zero, mismatch(KindDecimal, v.kind)
	}
	return v.dec, nil
}

// AsStrings returns the string array variant
func (v Value) AsStrings() ([]string, error) {
	if v.kind != KindStrings {
		return nil, mismatch(KindStrings, v.kind)
	}
	return v.strs, nil
}

// Text renders v as text. Decimals keep their scale ("38.50" stays "38.50"),
// bytes render as lower-case hex and arrays are comma joined.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBytes:
		return hex.EncodeToString(v.raw)
	case KindDecimal:
		return FormatDecimal(v.dec)
	case KindStrings:
		return strings.Join(v.strs, ",")
	default:
		return ""
	}
}

// Equal compares two values by variant and content. Decimals compare numerically.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBytes:
		return string(v.raw) == string(o.raw)
	case KindDecimal:
		return v.dec.Equal(o.dec)
	case KindStrings:
		if len(v.strs) != len(o.strs) {
			return false
		}
		for i := range v.strs {
			if v.strs[i] != o.strs[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// GoString implements fmt.GoStringer for test diagnostics
func (v Value) GoString() string {
	return fmt.Sprintf("record.Value{%s:%q}", v.kind, v.Text())
}

// FormatDecimal renders d without losing trailing zeros of its scale
func FormatDecimal(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// ValueOf converts a plain Go value into a Value
func ValueOf(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case decimal.Decimal:
		return Decimal(t), nil
	case *decimal.Decimal:
		if t == nil {
			return Null(), nil
		}
		return Decimal(*t), nil
	case []string:
		return Strings(t), nil
	case int:
		return Decimal(decimal.NewFromInt(int64(t))), nil
	case int32:
		return Decimal(decimal.NewFromInt32(t)), nil
	case int64:
		return Decimal(decimal.NewFromInt(t)), nil
	case uint32:
		return Decimal(decimal.NewFromInt(int64(t))), nil
	case *big.Int:
		return Decimal(decimal.NewFromBigInt(t, 0)), nil
	case fmt.Stringer:
		return String(t.String()), nil
	default:
		return Value{}, fmt.Errorf("%w: unsupported value type %T", ErrTypeMismatch, v)
	}
}

func mismatch(want, got Kind) error {
	return fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, want, got)
}
