package datatype

// Mode selects the conversion table. In ModeFixed a declared size counts
// bytes; in ModeVariable it counts characters.
type Mode uint8

const (
	ModeFixed Mode = iota
	ModeVariable
)

// String returns the mode name used by the file-type directive
func (m Mode) String() string {
	switch m {
	case ModeFixed:
		return "Fixed"
	case ModeVariable:
		return "Variable"
	default:
		return "unknown"
	}
}

// Kind is the closed set of field data types
type Kind uint8

const (
	KindInvalid Kind = iota
	KindSingleByte
	KindDoubleByte
	KindByteStream
	KindNumberString
	KindSignedNumberString
	KindZoned
	KindSignedZoned
	KindPacked
	KindSignedPacked
	KindBinary
)

var kindNames = map[Kind]string{
	KindInvalid:            "invalid",
	KindSingleByte:         "single-byte string",
	KindDoubleByte:         "double-byte string",
	KindByteStream:         "multi-byte string",
	KindNumberString:       "number string",
	KindSignedNumberString: "signed number string",
	KindZoned:              "zoned decimal",
	KindSignedZoned:        "signed zoned decimal",
	KindPacked:             "packed decimal",
	KindSignedPacked:       "signed packed decimal",
	KindBinary:             "binary",
}

// String returns a readable kind name
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Numeric reports whether the kind decodes to a decimal
func (k Kind) Numeric() bool {
	switch k {
	case KindNumberString, KindSignedNumberString, KindZoned, KindSignedZoned, KindPacked, KindSignedPacked:
		return true
	}
	return false
}

// Signed reports whether negative values are representable
func (k Kind) Signed() bool {
	switch k {
	case KindSignedNumberString, KindSignedZoned, KindSignedPacked, KindBinary:
		return true
	}
	return false
}

// Text reports whether the kind carries free text
func (k Kind) Text() bool {
	switch k {
	case KindSingleByte, KindDoubleByte, KindByteStream:
		return true
	}
	return false
}

// CharWidth is the number of bytes one character occupies, 0 when it varies
func (k Kind) CharWidth() int {
	switch k {
	case KindSingleByte, KindNumberString, KindSignedNumberString:
		return 1
	case KindDoubleByte:
		return 2
	}
	return 0
}

// DefaultPad returns the pad character used when the layout declares none
func (k Kind) DefaultPad() string {
	switch k {
	case KindSingleByte, KindByteStream:
		return " "
	case KindDoubleByte:
		return "　"
	case KindNumberString, KindSignedNumberString:
		return "0"
	}
	return ""
}
