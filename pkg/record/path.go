package record

import (
	"fmt"
	"strconv"
	"strings"
)

// PathElem is one step of a dotted field path such as "order.items[2].sku"
type PathElem struct {
	Name  string
	Index int // -1 when the step is not indexed
}

// SplitPath parses a dotted, optionally indexed path used by tree-shaped
// builders to address nested fields.
func SplitPath(path string) ([]PathElem, error) {
	if path == "" {
		return nil, ErrEmptyKey
	}
	parts := strings.Split(path, ".")
	out := make([]PathElem, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid path %q: empty segment", path)
		}
		elem := PathElem{Name: p, Index: -1}
		if open := strings.IndexByte(p, '['); open >= 0 {
			if !strings.HasSuffix(p, "]") || open == 0 {
				return nil, fmt.Errorf("invalid path %q: malformed index in %q", path, p)
			}
			idx, err := strconv.Atoi(p[open+1 : len(p)-1])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid path %q: bad index in %q", path, p)
			}
			elem.Name = p[:open]
			elem.Index = idx
		}
		out = append(out, elem)
	}
	return out, nil
}

// JoinPath is the inverse of SplitPath
func JoinPath(elems []PathElem) string {
	var sb strings.Builder
	for i, e := range elems {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(e.Name)
		if e.Index >= 0 {
			sb.WriteByte('[')
			sb.WriteString(strconv.Itoa(e.Index))
			sb.WriteByte(']')
		}
	}
	return sb.String()
}
