package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Misuse errors. They are wrapped with detail and matched with errors.Is.
var (
	ErrIllegalArgument = errors.New("illegal argument")
	ErrIllegalState    = errors.New("illegal state")
)

func illegalArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalArgument, fmt.Sprintf(format, args...))
}

func illegalState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIllegalState, fmt.Sprintf(format, args...))
}

// InvalidDataFormatError reports a record that does not match its layout
type InvalidDataFormatError struct {
	Msg              string
	RecordNumber     int
	FieldName        string
	LayoutPath       string
	SourcePath       string
	ClassifierValues map[string]string
	Err              error
}

func newInvalidData(recordNumber int, format string, args ...any) *InvalidDataFormatError {
	return &InvalidDataFormatError{Msg: fmt.Sprintf(format, args...), RecordNumber: recordNumber}
}

func (e *InvalidDataFormatError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Msg)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	sb.WriteString(".")
	if e.RecordNumber > 0 {
		fmt.Fprintf(&sb, " record number=[%d].", e.RecordNumber)
	}
	if e.FieldName != "" {
		fmt.Fprintf(&sb, " field name=[%s].", e.FieldName)
	}
	if len(e.ClassifierValues) > 0 {
		fmt.Fprintf(&sb, " classifier values=[%s].", formatValues(e.ClassifierValues))
	}
	if e.LayoutPath != "" {
		fmt.Fprintf(&sb, " format file=[%s].", e.LayoutPath)
	}
	if e.SourcePath != "" {
		fmt.Fprintf(&sb, " source=[%s].", e.SourcePath)
	}
	return sb.String()
}

func (e *InvalidDataFormatError) Unwrap() error { return e.Err }

// WithSource records the input or output path
func (e *InvalidDataFormatError) WithSource(path string) *InvalidDataFormatError {
	e.SourcePath = path
	return e
}

// WithLayoutPath records the layout file path
func (e *InvalidDataFormatError) WithLayoutPath(path string) *InvalidDataFormatError {
	e.LayoutPath = path
	return e
}

func formatValues(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, ", ")
}
