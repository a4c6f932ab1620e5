package datatype

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/ssargent/recordkit/pkg/charset"
	"github.com/ssargent/recordkit/pkg/record"
)

// formatNumber splits d into its sign and digits as a number string field
// renders them.
func formatNumber(f *Field, d decimal.Decimal) (sign, body string, err error) {
	neg := d.Sign() < 0
	if neg && f.kind != KindSignedNumberString {
		return "", "", fmt.Errorf("%w: unsigned number string cannot hold %s", ErrInvalidValue, record.FormatDecimal(d))
	}
	abs := d.Abs()
	if f.hasScale {
		if _, _, err := unscaledDigits(abs, f.scale); err != nil {
			return "", "", err
		}
		body = abs.StringFixed(int32(f.scale))
		if !f.opts.RequiredDecimalPoint {
			body = strings.Replace(body, ".", "", 1)
		}
	} else {
		body = record.FormatDecimal(abs)
	}
	switch {
	case neg:
		sign = "-"
	case f.opts.RequiredPlusSign && f.kind == KindSignedNumberString:
		sign = "+"
	}
	return sign, body, nil
}

// parseNumber reads a number string. Leading pad characters are stripped
// when trimPad is set.
func parseNumber(f *Field, s string, trimPad bool) (decimal.Decimal, bool, error) {
	orig := s
	if trimPad {
		s = strings.TrimLeft(s, f.pad)
	} else {
		s = strings.TrimSpace(s)
	}
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		if f.kind != KindSignedNumberString {
			return decimal.Zero, false, fmt.Errorf("%w: unsigned number string has a sign: %q", ErrInvalidValue, orig)
		}
		neg = s[0] == '-'
		s = s[1:]
		if trimPad {
			s = strings.TrimLeft(s, f.pad)
		}
	}
	if s == "" {
		if !trimPad {
			return decimal.Zero, false, nil
		}
		s = "0"
	}
	if !validDigits(s) {
		return decimal.Zero, false, fmt.Errorf("%w: invalid number string: %q", ErrInvalidValue, orig)
	}
	if s[0] == '.' {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: invalid number string: %q", ErrInvalidValue, orig)
	}
	if f.hasScale && !strings.Contains(s, ".") {
		if !f.opts.RequiredDecimalPoint {
			d = d.Shift(int32(-f.scale))
		} else if d.IsZero() {
			d = decimal.New(0, int32(-f.scale))
		}
	}
	if neg {
		d = d.Neg()
	}
	return d, true, nil
}

func validDigits(s string) bool {
	dot := false
	digits := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}

func decodeFixedNumber(f *Field, b []byte) (record.Value, error) {
	s, err := charset.Decode(f.opts.Encoding, b)
	if err != nil {
		return record.Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	d, _, err := parseNumber(f, s, true)
	if err != nil {
		return record.Value{}, err
	}
	return record.Decimal(d), nil
}

func encodeFixedNumber(f *Field, v record.Value) ([]byte, error) {
	d, err := numericValue(v)
	if err != nil {
		return nil, err
	}
	sign, body, err := formatNumber(f, d)
	if err != nil {
		return nil, err
	}
	fill := f.size - len(sign) - len(body)
	if fill < 0 {
		return nil, fmt.Errorf("%w: too large data. field size=%d, data size=%d", ErrInvalidValue, f.size, len(sign)+len(body))
	}
	pads := strings.Repeat(f.pad, fill)
	var text string
	if f.opts.FixedSignPosition {
		text = sign + pads + body
	} else {
		text = pads + sign + body
	}
	b, err := charset.Encode(f.opts.Encoding, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return b, nil
}

func decodeVarNumber(f *Field, s string) (record.Value, error) {
	d, ok, err := parseNumber(f, s, false)
	if err != nil {
		return record.Value{}, err
	}
	if !ok {
		return record.Null(), nil
	}
	return record.Decimal(d), nil
}

func encodeVarNumber(f *Field, v record.Value) (string, error) {
	if v.IsNull() {
		return "", nil
	}
	d, err := numericValue(v)
	if err != nil {
		return "", err
	}
	sign, body, err := formatNumber(f, d)
	if err != nil {
		return "", err
	}
	text := sign + body
	if f.size > 0 && utf8.RuneCountInString(text) > f.size {
		return "", fmt.Errorf("%w: too large data. field size=%d, data size=%d", ErrInvalidValue, f.size, len(text))
	}
	return text, nil
}
