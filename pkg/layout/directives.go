package layout

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Directive keys
const (
	DirFileType               = "file-type"
	DirTextEncoding           = "text-encoding"
	DirRecordLength           = "record-length"
	DirRecordSeparator        = "record-separator"
	DirFieldSeparator         = "field-separator"
	DirQuotingDelimiter       = "quoting-delimiter"
	DirRequiresTitle          = "requires-title"
	DirTitleRecordTypeName    = "title-record-type-name"
	DirIgnoreBlankLines       = "ignore-blank-lines"
	DirPositiveZoneSignNibble = "positive-zone-sign-nibble"
	DirNegativeZoneSignNibble = "negative-zone-sign-nibble"
	DirPositivePackSignNibble = "positive-pack-sign-nibble"
	DirNegativePackSignNibble = "negative-pack-sign-nibble"
	DirRequiredDecimalPoint   = "required-decimal-point"
	DirFixedSignPosition      = "fixed-sign-position"
	DirRequiredPlusSign       = "required-plus-sign"
)

// File types
const (
	FileTypeFixed    = "Fixed"
	FileTypeVariable = "Variable"
)

// DefaultRecordSeparators is the record-separator allow-list used when the
// configuration does not replace it
var DefaultRecordSeparators = []string{"\r", "\n", "\r\n"}

type directiveRule struct {
	kinds []LiteralKind
	check func(l Literal) string
}

var directiveRules = map[string]directiveRule{
	DirFileType:               {kinds: []LiteralKind{LiteralString}, check: checkFileType},
	DirTextEncoding:           {kinds: []LiteralKind{LiteralString}},
	DirRecordLength:           {kinds: []LiteralKind{LiteralNumber}, check: checkPositive},
	DirRecordSeparator:        {kinds: []LiteralKind{LiteralString}, check: checkNotEmpty},
	DirFieldSeparator:         {kinds: []LiteralKind{LiteralString}, check: checkOneChar},
	DirQuotingDelimiter:       {kinds: []LiteralKind{LiteralString}, check: checkOneChar},
	DirRequiresTitle:          {kinds: []LiteralKind{LiteralBool}},
	DirTitleRecordTypeName:    {kinds: []LiteralKind{LiteralString}, check: checkNotEmpty},
	DirIgnoreBlankLines:       {kinds: []LiteralKind{LiteralBool}},
	DirPositiveZoneSignNibble: {kinds: []LiteralKind{LiteralString, LiteralNumber}, check: checkNibble},
	DirNegativeZoneSignNibble: {kinds: []LiteralKind{LiteralString, LiteralNumber}, check: checkNibble},
	DirPositivePackSignNibble: {kinds: []LiteralKind{LiteralString, LiteralNumber}, check: checkNibble},
	DirNegativePackSignNibble: {kinds: []LiteralKind{LiteralString, LiteralNumber}, check: checkNibble},
	DirRequiredDecimalPoint:   {kinds: []LiteralKind{LiteralBool}},
	DirFixedSignPosition:      {kinds: []LiteralKind{LiteralBool}},
	DirRequiredPlusSign:       {kinds: []LiteralKind{LiteralBool}},
}

var literalKindNames = map[LiteralKind]string{
	LiteralString: "string",
	LiteralNumber: "number",
	LiteralBinary: "binary",
	LiteralBool:   "boolean",
}

func checkFileType(l Literal) string {
	if l.Text != FileTypeFixed && l.Text != FileTypeVariable {
		return "invalid file type was specified. file-type=[" + l.Text + "]. file-type must be Fixed or Variable"
	}
	return ""
}

func checkPositive(l Literal) string {
	if l.Int <= 0 {
		return "value must be a positive number"
	}
	return ""
}

func checkNotEmpty(l Literal) string {
	if l.Text == "" {
		return "value must not be empty"
	}
	return ""
}

func checkOneChar(l Literal) string {
	if utf8.RuneCountInString(l.Text) != 1 {
		return "value must be exactly one character. value=[" + EscapeControl(l.Text) + "]"
	}
	return ""
}

func checkNibble(l Literal) string {
	if _, ok := nibbleValue(l); !ok {
		return "value must be a single hex digit. value=[" + l.String() + "]"
	}
	return ""
}

// nibbleValue reads "C", "c" or 12 as a nibble
func nibbleValue(l Literal) (byte, bool) {
	switch l.Kind {
	case LiteralNumber:
		if l.Int >= 0 && l.Int <= 0xF {
			return byte(l.Int), true
		}
	case LiteralString:
		if len(l.Text) == 1 {
			if n, err := strconv.ParseUint(strings.ToUpper(l.Text), 16, 8); err == nil {
				return byte(n), true
			}
		}
	}
	return 0, false
}

func kindAllowed(kinds []LiteralKind, k LiteralKind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
