// Package replace substitutes legacy characters (typically full-width glyphs
// that a target code page cannot carry) according to named replacement types.
//
// Each type maps one character to one character under a given encoding. The
// registry is validated when it is built: names are unique, the encoding
// resolves, every mapping is exactly one character on each side and, unless
// disabled, both characters encode to the same number of bytes.
//
// Replace returns the converted string together with a Result describing
// every substitution in order; callers that need request-scoped reporting
// attach the Result to their own context.
package replace

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"

	"github.com/ssargent/recordkit/pkg/charset"
	"github.com/ssargent/recordkit/pkg/logger"
)

// ErrUnknownType is returned when a replacement type name is not registered
var ErrUnknownType = errors.New("replacement type not found")

// TypeConfig declares one replacement type
type TypeConfig struct {
	Name            string            `yaml:"name"`
	Encoding        string            `yaml:"encoding"`
	File            string            `yaml:"file,omitempty"`
	Mappings        map[string]string `yaml:"mappings,omitempty"`
	CheckByteLength *bool             `yaml:"check_byte_length,omitempty"`
}

// Substitution describes a single replaced character
type Substitution struct {
	Type     string
	Position int // rune index in the input
	From     rune
	To       rune
}

// String renders the substitution with both code points
func (s Substitution) String() string {
	return fmt.Sprintf("%c(%s) -> %c(%s)", s.From, CodePoint(s.From), s.To, CodePoint(s.To))
}

// Result reports the substitutions applied by one Replace call
type Result struct {
	TypeName      string
	Input         string
	Output        string
	Substitutions []Substitution
}

// Replaced reports whether anything changed
func (r Result) Replaced() bool {
	return len(r.Substitutions) > 0
}

type replacementType struct {
	name  string
	enc   encoding.Encoding
	table map[rune]rune
}

// Registry holds validated replacement types
type Registry struct {
	types map[string]*replacementType
	log   logger.Logger
}

// NewRegistry validates cfgs and builds a registry
func NewRegistry(cfgs []TypeConfig, log logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.Nop()
	}
	reg := &Registry{
		types: make(map[string]*replacementType, len(cfgs)),
		log:   log,
	}
	for _, cfg := range cfgs {
		rt, err := buildType(cfg)
		if err != nil {
			return nil, err
		}
		if _, dup := reg.types[rt.name]; dup {
			return nil, fmt.Errorf("duplicate replacement type name: %s", rt.name)
		}
		reg.types[rt.name] = rt
	}
	return reg, nil
}

// Has reports whether typeName is registered
func (r *Registry) Has(typeName string) bool {
	if r == nil {
		return false
	}
	_, ok := r.types[typeName]
	return ok
}

// Names returns the registered type names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Replace applies typeName to s
func (r *Registry) Replace(typeName, s string) (string, Result, error) {
	if r == nil {
		return s, Result{}, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}
	rt, ok := r.types[typeName]
	if !ok {
		return s, Result{}, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
	}

	res := Result{TypeName: typeName, Input: s}
	var sb strings.Builder
	sb.Grow(len(s))
	pos := 0
	for _, ch := range s {
		if to, hit := rt.table[ch]; hit {
			sub := Substitution{Type: typeName, Position: pos, From: ch, To: to}
			res.Substitutions = append(res.Substitutions, sub)
			r.log.Info("character replaced",
				"type", typeName,
				"from", CodePoint(ch),
				"to", CodePoint(to),
				"position", pos)
			ch = to
		}
		sb.WriteRune(ch)
		pos++
	}
	res.Output = sb.String()
	return res.Output, res, nil
}

// CodePoint formats r as U+XXXX
func CodePoint(r rune) string {
	return fmt.Sprintf("U+%04X", r)
}

func buildType(cfg TypeConfig) (*replacementType, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, fmt.Errorf("replacement type name must not be blank")
	}
	enc, err := charset.Lookup(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("replacement type %s: %w", name, err)
	}

	pairs := make(map[string]string, len(cfg.Mappings))
	if cfg.File != "" {
		fromFile, err := LoadMappingFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("replacement type %s: %w", name, err)
		}
		for k, v := range fromFile {
			pairs[k] = v
		}
	}
	for k, v := range cfg.Mappings {
		pairs[k] = v
	}

	check := cfg.CheckByteLength == nil || *cfg.CheckByteLength
	table := make(map[rune]rune, len(pairs))
	for from, to := range pairs {
		if utf8.RuneCountInString(from) != 1 || utf8.RuneCountInString(to) != 1 {
			return nil, fmt.Errorf(
				"replacement type %s: mapping must be one character to one character. source=[%s], destination=[%s]",
				name, from, to)
		}
		src, _ := utf8.DecodeRuneInString(from)
		dst, _ := utf8.DecodeRuneInString(to)
		if check {
			if err := checkByteLength(enc, cfg.Encoding, from, to); err != nil {
				return nil, fmt.Errorf("replacement type %s: %w", name, err)
			}
		}
		table[src] = dst
	}
	return &replacementType{name: name, enc: enc, table: table}, nil
}

func checkByteLength(enc encoding.Encoding, encName, from, to string) error {
	fb, err := charset.Encode(enc, from)
	if err != nil {
		return err
	}
	tb, err := charset.Encode(enc, to)
	if err != nil {
		return err
	}
	if len(fb) != len(tb) {
		return fmt.Errorf(
			"byte length of the replacement must not change. encoding=[%s], source=[%s](%d bytes), destination=[%s](%d bytes)",
			encName, from, len(fb), to, len(tb))
	}
	return nil
}

// LoadMappingFile reads "from=to" lines. Blank lines and lines starting with
// '#' are ignored.
func LoadMappingFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping file: %w", err)
	}
	defer f.Close()

	out := make(map[string]string)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(strings.TrimSpace(text), "#") {
			continue
		}
		from, to, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected from=to", path, line)
		}
		out[from] = to
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
