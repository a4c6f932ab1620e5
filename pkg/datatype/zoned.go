package datatype

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ssargent/recordkit/pkg/charset"
	"github.com/ssargent/recordkit/pkg/record"
)

// Nibbles holds the zone and sign nibbles used by zoned and packed decimals
type Nibbles struct {
	Zone         byte // high nibble of an unsigned zoned digit
	ZonePos      byte
	ZoneNeg      byte
	PackUnsigned byte // sign nibble of an unsigned packed number
	PackPos      byte
	PackNeg      byte
}

// ResolveNibbles applies the sign overrides in opts to the encoding defaults
func ResolveNibbles(opts Options) Nibbles {
	n := Nibbles{Zone: charset.ZoneNibble(opts.Encoding)}
	if n.Zone == 0xF {
		n.ZonePos, n.ZoneNeg = 0xC, 0xD
		n.PackUnsigned, n.PackPos, n.PackNeg = 0xF, 0xC, 0xD
	} else {
		n.ZonePos, n.ZoneNeg = 0x3, 0x7
		n.PackUnsigned, n.PackPos, n.PackNeg = 0x3, 0x3, 0x7
	}
	if opts.PositiveZoneSign != nil {
		n.ZonePos = *opts.PositiveZoneSign
	}
	if opts.NegativeZoneSign != nil {
		n.ZoneNeg = *opts.NegativeZoneSign
	}
	if opts.PositivePackSign != nil {
		n.PackPos = *opts.PositivePackSign
	}
	if opts.NegativePackSign != nil {
		n.PackNeg = *opts.NegativePackSign
	}
	return n
}

// unscaledDigits returns |d| * 10^scale as a digit string, rejecting values
// that would lose precision at the declared scale.
func unscaledDigits(d decimal.Decimal, scale int) (string, bool, error) {
	shifted := d.Shift(int32(scale))
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", false, fmt.Errorf("%w: %s has more than %d fraction digits", ErrInvalidValue, record.FormatDecimal(d), scale)
	}
	bi := shifted.Truncate(0).BigInt()
	neg := bi.Sign() < 0
	return new(big.Int).Abs(bi).String(), neg, nil
}

// numericValue accepts a decimal or a numeric string
func numericValue(v record.Value) (decimal.Decimal, error) {
	switch v.Kind() {
	case record.KindNull:
		return decimal.Zero, nil
	case record.KindDecimal:
		d, _ := v.AsDecimal()
		return d, nil
	case record.KindString:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		if s == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: not a number: %q", ErrInvalidValue, s)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: numeric field cannot take a %s value", ErrInvalidValue, v.Kind())
	}
}

// EncodeZoned renders d as size zoned digits. Signed values carry the sign in
// the high nibble of the last byte.
func EncodeZoned(d decimal.Decimal, size, scale int, signed bool, n Nibbles) ([]byte, error) {
	digits, neg, err := unscaledDigits(d, scale)
	if err != nil {
		return nil, err
	}
	if neg && !signed {
		return nil, fmt.Errorf("%w: unsigned zoned decimal cannot hold %s", ErrInvalidValue, record.FormatDecimal(d))
	}
	if len(digits) > size {
		return nil, fmt.Errorf("%w: %s does not fit in %d digits", ErrInvalidValue, record.FormatDecimal(d), size)
	}
	digits = strings.Repeat("0", size-len(digits)) + digits

	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[i] = n.Zone<<4 | (digits[i] - '0')
	}
	if signed {
		sign := n.ZonePos
		if neg {
			sign = n.ZoneNeg
		}
		out[size-1] = sign<<4 | out[size-1]&0x0F
	}
	return out, nil
}

// DecodeZoned reads zoned digits back into a decimal with the given scale
func DecodeZoned(b []byte, scale int, signed bool, n Nibbles) (decimal.Decimal, error) {
	if len(b) == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty zoned decimal", ErrInvalidValue)
	}
	digits := make([]byte, len(b))
	neg := false
	for i, c := range b {
		lo, hi := c&0x0F, c>>4
		if lo > 9 {
			return decimal.Zero, fmt.Errorf("%w: invalid zoned digit 0x%02X at byte %d", ErrInvalidValue, c, i+1)
		}
		last := i == len(b)-1
		switch {
		case last && signed:
			switch hi {
			case n.ZoneNeg:
				neg = true
			case n.ZonePos, n.Zone:
			default:
				return decimal.Zero, fmt.Errorf("%w: invalid zoned sign nibble 0x%X", ErrInvalidValue, hi)
			}
		case hi != n.Zone:
			return decimal.Zero, fmt.Errorf("%w: invalid zone nibble 0x%X at byte %d", ErrInvalidValue, hi, i+1)
		}
		digits[i] = '0' + lo
	}
	return fromDigits(string(digits), scale, neg), nil
}

func fromDigits(digits string, scale int, neg bool) decimal.Decimal {
	bi, _ := new(big.Int).SetString(digits, 10)
	if neg {
		bi.Neg(bi)
	}
	return decimal.NewFromBigInt(bi, int32(-scale))
}

func decodeZoned(f *Field, b []byte) (record.Value, error) {
	d, err := DecodeZoned(b, f.scale, f.kind == KindSignedZoned, f.nibbles)
	if err != nil {
		return record.Value{}, err
	}
	return record.Decimal(d), nil
}

func encodeZoned(f *Field, v record.Value) ([]byte, error) {
	d, err := numericValue(v)
	if err != nil {
		return nil, err
	}
	return EncodeZoned(d, f.size, f.scale, f.kind == KindSignedZoned, f.nibbles)
}
