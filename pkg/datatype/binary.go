package datatype

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ssargent/recordkit/pkg/record"
)

// EncodeBinary renders d as a size byte big-endian two's complement integer
// after shifting it left by scale decimal places.
func EncodeBinary(d decimal.Decimal, size, scale int) ([]byte, error) {
	shifted := d.Shift(int32(scale))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s has more than %d fraction digits", ErrInvalidValue, record.FormatDecimal(d), scale)
	}
	bi := shifted.Truncate(0).BigInt()

	limit := new(big.Int).Lsh(big.NewInt(1), uint(size*8-1))
	minVal := new(big.Int).Neg(limit)
	if bi.Cmp(limit) >= 0 || bi.Cmp(minVal) < 0 {
		return nil, fmt.Errorf("%w: %s does not fit in %d byte(s)", ErrInvalidValue, record.FormatDecimal(d), size)
	}
	if bi.Sign() < 0 {
		bi.Add(bi, new(big.Int).Lsh(big.NewInt(1), uint(size*8)))
	}
	out := make([]byte, size)
	bi.FillBytes(out)
	return out, nil
}

// DecodeBinary reads a big-endian two's complement integer and shifts it
// right by scale decimal places.
func DecodeBinary(b []byte, scale int) decimal.Decimal {
	bi := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		bi.Sub(bi, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return decimal.NewFromBigInt(bi, int32(-scale))
}

func decodeBinary(f *Field, b []byte) (record.Value, error) {
	if f.hasScale {
		return record.Decimal(DecodeBinary(b, f.scale)), nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return record.Bytes(out), nil
}

func encodeBinary(f *Field, v record.Value) ([]byte, error) {
	if f.hasScale {
		d, err := numericValue(v)
		if err != nil {
			return nil, err
		}
		return EncodeBinary(d, f.size, f.scale)
	}
	switch v.Kind() {
	case record.KindNull:
		if len(f.padRaw) == 1 {
			return repeatByte(f.padRaw[0], f.size), nil
		}
		return make([]byte, f.size), nil
	case record.KindBytes:
		b, _ := v.AsBytes()
		if len(b) != f.size {
			return nil, fmt.Errorf("%w: invalid data length. expected %d bytes, got %d", ErrInvalidValue, f.size, len(b))
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: binary field cannot take a %s value", ErrInvalidValue, v.Kind())
	}
}

func repeatByte(c byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = c
	}
	return out
}
