package layout

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/text/encoding"

	"github.com/ssargent/recordkit/pkg/datatype"
	"github.com/ssargent/recordkit/pkg/record"
)

// ClassifierName is the section holding the fields decoded to pick a record type
const ClassifierName = "Classifier"

// DefaultTitleRecordTypeName is the title record type used when
// title-record-type-name is not declared
const DefaultTitleRecordTypeName = "Title"

// Unbounded marks an array with no upper size, written as '*'
const Unbounded = -1

// LiteralKind tells how a literal was written
type LiteralKind uint8

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBinary
	LiteralBool
)

// Literal is a directive value, condition value, default or pad
type Literal struct {
	Kind LiteralKind
	Text string
	Raw  []byte
	Bool bool
	Int  int64
}

// String returns the literal as written, without quotes
func (l Literal) String() string {
	switch l.Kind {
	case LiteralBool:
		return strconv.FormatBool(l.Bool)
	default:
		return l.Text
	}
}

// Directive is one `key: value` line
type Directive struct {
	Key   string
	Value Literal
	Line  int
}

// Condition is a `field = "literal"` line of a record section
type Condition struct {
	Field string
	Value string
	Line  int
}

// ConvertorSpec is a value convertor as written on a field row
type ConvertorSpec struct {
	Name string
	Args []string
}

// FieldDefinition is one field row
type FieldDefinition struct {
	Name         string
	Position     int
	Token        string
	Args         []int
	Default      *Literal
	Pad          *Literal
	Filler       bool
	Attribute    bool
	Required     bool
	MinArraySize int
	MaxArraySize int
	ArraySyntax  bool
	Convertors   []ConvertorSpec
	Line         int

	field *datatype.Field
	chain []datatype.Convertor
}

// IsArray reports whether the field holds more than one value
func (f *FieldDefinition) IsArray() bool {
	return f.MaxArraySize == Unbounded || f.MaxArraySize > 1
}

// Size returns the first data-type argument, or 0
func (f *FieldDefinition) Size() int {
	if len(f.Args) == 0 {
		return 0
	}
	return f.Args[0]
}

// Spec returns the data-type declaration handed to the registry
func (f *FieldDefinition) Spec() datatype.Spec {
	s := datatype.Spec{Token: f.Token, Args: f.Args}
	if f.Pad != nil {
		if f.Pad.Kind == LiteralBinary {
			s.PadRaw = f.Pad.Raw
		} else {
			s.Pad = f.Pad.Text
		}
	}
	return s
}

// Converter returns the resolved data-type conversion. It is nil until the
// owning Definition is initialized.
func (f *FieldDefinition) Converter() *datatype.Field { return f.field }

// ValueConvertors returns the resolved convertor chain
func (f *FieldDefinition) ValueConvertors() []datatype.Convertor { return f.chain }

// DefaultValue returns the default literal as a value, or Null
func (f *FieldDefinition) DefaultValue() record.Value {
	switch {
	case f.Default == nil:
		return record.Null()
	case f.Default.Kind == LiteralBinary:
		return record.Bytes(f.Default.Raw)
	default:
		return record.String(f.Default.Text)
	}
}

// Read runs a decoded value through the convertor chain
func (f *FieldDefinition) Read(v record.Value) (record.Value, error) {
	var err error
	for _, c := range f.chain {
		if v, err = c.Read(v); err != nil {
			return record.Value{}, err
		}
	}
	return v, nil
}

// Write runs a value through the convertor chain in reverse, ready to encode
func (f *FieldDefinition) Write(v record.Value) (record.Value, error) {
	var err error
	for i := len(f.chain) - 1; i >= 0; i-- {
		if v, err = f.chain[i].Write(v); err != nil {
			return record.Value{}, err
		}
	}
	return v, nil
}

func (f *FieldDefinition) clone() *FieldDefinition {
	c := *f
	c.Args = append([]int(nil), f.Args...)
	c.Convertors = append([]ConvertorSpec(nil), f.Convertors...)
	c.field = nil
	c.chain = nil
	return &c
}

// RecordDefinition is one record type section, with diff inheritance
// already resolved
type RecordDefinition struct {
	Name       string
	BaseName   string
	Fields     []*FieldDefinition
	Conditions []Condition
	Line       int
}

// Field returns the field called name
func (r *RecordDefinition) Field(name string) (*FieldDefinition, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// ByteLength sums the resolved fixed-length byte lengths
func (r *RecordDefinition) ByteLength() int {
	n := 0
	for _, f := range r.Fields {
		if f.field != nil {
			n += f.field.ByteLength()
		}
	}
	return n
}

// Definition is a parsed layout file. It is read-only once initialized and
// may be shared between formatters.
type Definition struct {
	path       string
	directives []Directive
	records    []*RecordDefinition
	classifier *RecordDefinition

	mode         datatype.Mode
	encoding     encoding.Encoding
	encodingName string
	opts         datatype.Options

	once        sync.Once
	initErr     error
	initialized atomic.Bool
}

// Path returns the layout file path, empty for in-memory sources
func (d *Definition) Path() string { return d.path }

// Directives returns the directives in declaration order
func (d *Definition) Directives() []Directive { return d.directives }

// Directive returns the value of key
func (d *Definition) Directive(key string) (Literal, bool) {
	for _, dir := range d.directives {
		if dir.Key == key {
			return dir.Value, true
		}
	}
	return Literal{}, false
}

func (d *Definition) stringDirective(key, def string) string {
	if v, ok := d.Directive(key); ok {
		return v.Text
	}
	return def
}

func (d *Definition) boolDirective(key string, def bool) bool {
	if v, ok := d.Directive(key); ok {
		return v.Bool
	}
	return def
}

// FileType returns the format mode
func (d *Definition) FileType() datatype.Mode { return d.mode }

// Encoding returns the resolved text-encoding
func (d *Definition) Encoding() encoding.Encoding { return d.encoding }

// EncodingName returns text-encoding as declared
func (d *Definition) EncodingName() string { return d.encodingName }

// RecordLength returns record-length, 0 when undeclared
func (d *Definition) RecordLength() int {
	if v, ok := d.Directive(DirRecordLength); ok {
		return int(v.Int)
	}
	return 0
}

// RecordSeparator returns record-separator, empty when undeclared
func (d *Definition) RecordSeparator() string {
	return d.stringDirective(DirRecordSeparator, "")
}

// FieldSeparator returns the field-separator character
func (d *Definition) FieldSeparator() rune {
	return firstRune(d.stringDirective(DirFieldSeparator, ""))
}

// QuotingDelimiter returns the quoting-delimiter character, if declared
func (d *Definition) QuotingDelimiter() (rune, bool) {
	s := d.stringDirective(DirQuotingDelimiter, "")
	if s == "" {
		return 0, false
	}
	return firstRune(s), true
}

// RequiresTitle reports whether the first record is a title record
func (d *Definition) RequiresTitle() bool { return d.boolDirective(DirRequiresTitle, false) }

// TitleRecordTypeName returns the name of the title record type
func (d *Definition) TitleRecordTypeName() string {
	return d.stringDirective(DirTitleRecordTypeName, DefaultTitleRecordTypeName)
}

// IgnoreBlankLines reports whether empty variable-length records are skipped
func (d *Definition) IgnoreBlankLines() bool { return d.boolDirective(DirIgnoreBlankLines, true) }

// Records returns the record types in declaration order
func (d *Definition) Records() []*RecordDefinition { return d.records }

// Record returns the record type called name
func (d *Definition) Record(name string) (*RecordDefinition, bool) {
	for _, r := range d.records {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Classifier returns the classifier section, or nil
func (d *Definition) Classifier() *RecordDefinition { return d.classifier }

// TitleRecord returns the title record type when requires-title is set
func (d *Definition) TitleRecord() *RecordDefinition {
	if !d.RequiresTitle() {
		return nil
	}
	r, _ := d.Record(d.TitleRecordTypeName())
	return r
}

// Options returns the conversion options derived from the directives
func (d *Definition) Options() datatype.Options { return d.opts }

// Initialize resolves every field's conversion and convertor chain. Only
// the first call does work; every caller gets its result.
func (d *Definition) Initialize(reg *datatype.Registry) error {
	d.once.Do(func() {
		d.initErr = d.build(reg)
		if d.initErr == nil {
			d.initialized.Store(true)
		}
	})
	return d.initErr
}

// Initialized reports whether Initialize has completed successfully
func (d *Definition) Initialized() bool { return d.initialized.Load() }

func (d *Definition) build(reg *datatype.Registry) error {
	if reg == nil {
		return fmt.Errorf("initialize %s: nil registry", d.path)
	}
	sections := d.records
	if d.classifier != nil {
		sections = append([]*RecordDefinition{d.classifier}, d.records...)
	}
	for _, rec := range sections {
		for _, f := range rec.Fields {
			field, err := reg.Resolve(d.mode, f.Spec(), d.opts)
			if err != nil {
				return syntaxErrorf(d.path, f.Line, "record type=[%s], field name=[%s]: %v", rec.Name, f.Name, err)
			}
			chain := make([]datatype.Convertor, 0, len(f.Convertors))
			for _, cs := range f.Convertors {
				c, err := reg.Convertor(cs.Name, cs.Args)
				if err != nil {
					return syntaxErrorf(d.path, f.Line, "record type=[%s], field name=[%s]: %v", rec.Name, f.Name, err)
				}
				chain = append(chain, c)
			}
			f.field = field
			f.chain = chain
		}
	}
	return nil
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
