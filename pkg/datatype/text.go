package datatype

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ssargent/recordkit/pkg/charset"
	"github.com/ssargent/recordkit/pkg/record"
)

func textValue(v record.Value) (string, error) {
	switch v.Kind() {
	case record.KindNull:
		return "", nil
	case record.KindString:
		s, _ := v.AsString()
		return s, nil
	default:
		return "", fmt.Errorf("%w: text field cannot take a %s value", ErrInvalidValue, v.Kind())
	}
}

func decodeFixedText(f *Field, b []byte) (record.Value, error) {
	s, err := charset.Decode(f.opts.Encoding, b)
	if err != nil {
		return record.Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return record.String(strings.TrimRight(s, f.pad)), nil
}

func encodeFixedText(f *Field, v record.Value) ([]byte, error) {
	s, err := textValue(v)
	if err != nil {
		return nil, err
	}
	b, err := charset.Encode(f.opts.Encoding, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if w := f.kind.CharWidth(); w > 0 && len(b) != w*utf8.RuneCountInString(s) {
		return nil, fmt.Errorf("%w: %q contains characters that are not %d byte(s) wide in %s",
			ErrInvalidValue, s, w, f.opts.EncodingName)
	}
	return padRight(b, f)
}

func padRight(b []byte, f *Field) ([]byte, error) {
	if len(b) > f.size {
		return nil, fmt.Errorf("%w: too large data. field size=%d, data size=%d", ErrInvalidValue, f.size, len(b))
	}
	pad, err := charset.Encode(f.opts.Encoding, f.pad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	rest := f.size - len(b)
	if rest%len(pad) != 0 {
		return nil, fmt.Errorf("%w: cannot pad %d byte(s) with %q", ErrInvalidValue, rest, f.pad)
	}
	out := make([]byte, 0, f.size)
	out = append(out, b...)
	out = append(out, bytes.Repeat(pad, rest/len(pad))...)
	return out, nil
}

func decodeVarText(_ *Field, s string) (record.Value, error) {
	return record.String(s), nil
}

func encodeVarText(f *Field, v record.Value) (string, error) {
	s, err := textValue(v)
	if err != nil {
		return "", err
	}
	if f.size > 0 && utf8.RuneCountInString(s) > f.size {
		return "", fmt.Errorf("%w: too large data. field size=%d, data size=%d",
			ErrInvalidValue, f.size, utf8.RuneCountInString(s))
	}
	return s, nil
}
