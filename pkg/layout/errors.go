package layout

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotInitialized is returned when converters are requested before
// Definition.Initialize has run.
var ErrNotInitialized = errors.New("layout definition is not initialized")

// SyntaxError reports a layout file that cannot be parsed or fails
// validation. The whole layout is rejected.
type SyntaxError struct {
	Path   string
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Msg)
	if e.Path != "" || e.Line > 0 {
		sb.WriteString(" (")
		if e.Path != "" {
			sb.WriteString("file=")
			sb.WriteString(e.Path)
		}
		if e.Line > 0 {
			if e.Path != "" {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "line=%d", e.Line)
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func syntaxErrorf(path string, line int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Path: path, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// EscapeControl renders control characters the way a layout would spell
// them, so separators can be shown in messages.
func EscapeControl(s string) string {
	r := strings.NewReplacer("\r", `\r`, "\n", `\n`, "\t", `\t`, "\b", `\b`, "\f", `\f`)
	return r.Replace(s)
}
