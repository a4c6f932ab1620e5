package datatype

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ssargent/recordkit/pkg/record"
)

// EncodePacked renders d as size bytes of BCD: two digits per byte and the
// sign in the trailing nibble.
func EncodePacked(d decimal.Decimal, size, scale int, signed bool, n Nibbles) ([]byte, error) {
	digits, neg, err := unscaledDigits(d, scale)
	if err != nil {
		return nil, err
	}
	if neg && !signed {
		return nil, fmt.Errorf("%w: unsigned packed decimal cannot hold %s", ErrInvalidValue, record.FormatDecimal(d))
	}
	capacity := size*2 - 1
	if len(digits) > capacity {
		return nil, fmt.Errorf("%w: %s does not fit in %d packed digits", ErrInvalidValue, record.FormatDecimal(d), capacity)
	}
	digits = strings.Repeat("0", capacity-len(digits)) + digits

	sign := n.PackUnsigned
	if signed {
		sign = n.PackPos
		if neg {
			sign = n.PackNeg
		}
	}

	out := make([]byte, size)
	for i := 0; i < size; i++ {
		hi := digits[2*i] - '0'
		var lo byte
		if 2*i+1 < capacity {
			lo = digits[2*i+1] - '0'
		} else {
			lo = sign
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

// DecodePacked reads BCD bytes back into a decimal
func DecodePacked(b []byte, scale int, signed bool, n Nibbles) (decimal.Decimal, error) {
	if len(b) == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty packed decimal", ErrInvalidValue)
	}
	digits := make([]byte, 0, len(b)*2-1)
	for i, c := range b {
		hi, lo := c>>4, c&0x0F
		if hi > 9 {
			return decimal.Zero, fmt.Errorf("%w: invalid packed digit 0x%02X at byte %d", ErrInvalidValue, c, i+1)
		}
		digits = append(digits, '0'+hi)
		if i < len(b)-1 {
			if lo > 9 {
				return decimal.Zero, fmt.Errorf("%w: invalid packed digit 0x%02X at byte %d", ErrInvalidValue, c, i+1)
			}
			digits = append(digits, '0'+lo)
		}
	}

	sign := b[len(b)-1] & 0x0F
	neg := false
	switch {
	case signed && sign == n.PackNeg:
		neg = true
	case sign == n.PackPos, sign == n.PackUnsigned:
	default:
		return decimal.Zero, fmt.Errorf("%w: invalid packed sign nibble 0x%X", ErrInvalidValue, sign)
	}
	return fromDigits(string(digits), scale, neg), nil
}

func decodePacked(f *Field, b []byte) (record.Value, error) {
	d, err := DecodePacked(b, f.scale, f.kind == KindSignedPacked, f.nibbles)
	if err != nil {
		return record.Value{}, err
	}
	return record.Decimal(d), nil
}

func encodePacked(f *Field, v record.Value) ([]byte, error) {
	d, err := numericValue(v)
	if err != nil {
		return nil, err
	}
	return EncodePacked(d, f.size, f.scale, f.kind == KindSignedPacked, f.nibbles)
}
