// Package charset resolves layout text-encoding names to golang.org/x/text encodings.
package charset

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnsupported is returned for names no table knows
var ErrUnsupported = errors.New("unsupported text encoding")

var aliases = map[string]encoding.Encoding{
	"utf-8":        unicode.UTF8,
	"utf8":         unicode.UTF8,
	"ms932":        japanese.ShiftJIS,
	"windows-31j":  japanese.ShiftJIS,
	"cp932":        japanese.ShiftJIS,
	"shift_jis":    japanese.ShiftJIS,
	"shift-jis":    japanese.ShiftJIS,
	"sjis":         japanese.ShiftJIS,
	"euc-jp":       japanese.EUCJP,
	"eucjp":        japanese.EUCJP,
	"iso-2022-jp":  japanese.ISO2022JP,
	"ibm037":       charmap.CodePage037,
	"cp037":        charmap.CodePage037,
	"ebcdic-cp-us": charmap.CodePage037,
	"ibm1047":      charmap.CodePage1047,
	"cp1047":       charmap.CodePage1047,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"us-ascii":     charmap.ISO8859_1,
	"ascii":        charmap.ISO8859_1,
}

// Lookup resolves name (case-insensitive). Well known legacy aliases are
// checked first, then the WHATWG and IANA indexes.
func Lookup(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnsupported)
	}
	if enc, ok := aliases[key]; ok {
		return enc, nil
	}
	if enc, err := htmlindex.Get(key); err == nil && enc != nil {
		return enc, nil
	}
	if enc, err := ianaindex.IANA.Encoding(key); err == nil && enc != nil {
		return enc, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
}

// Encode converts s to bytes, failing on characters the encoding cannot represent
func Encode(enc encoding.Encoding, s string) ([]byte, error) {
	b, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("cannot encode %q: %w", s, err)
	}
	return b, nil
}

// Decode converts b to a string
func Decode(enc encoding.Encoding, b []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("cannot decode % x: %w", b, err)
	}
	return string(out), nil
}

// ZoneNibble returns the high nibble of the encoded digit '0': 0x3 for
// ASCII compatible encodings, 0xF for EBCDIC.
func ZoneNibble(enc encoding.Encoding) byte {
	b, err := Encode(enc, "0")
	if err != nil || len(b) != 1 {
		return 0x3
	}
	return b[0] >> 4
}

// IsEBCDIC reports whether digits encode in the 0xF0 row
func IsEBCDIC(enc encoding.Encoding) bool {
	return ZoneNibble(enc) == 0xF
}
