package layout

import (
	"sort"
	"strings"

	"github.com/ssargent/recordkit/pkg/charset"
	"github.com/ssargent/recordkit/pkg/datatype"
)

type validator struct {
	path string
	def  *Definition
	cfg  parseConfig
}

func (v *validator) errorf(line int, format string, args ...any) error {
	return syntaxErrorf(v.path, line, format, args...)
}

func (v *validator) run(sections []*RecordDefinition) error {
	if err := v.directives(); err != nil {
		return err
	}

	byName := make(map[string]*RecordDefinition, len(sections))
	for _, rec := range sections {
		if _, dup := byName[rec.Name]; dup {
			return v.errorf(rec.Line, "record type [%s] was duplicated", rec.Name)
		}
		byName[rec.Name] = rec
	}

	state := make(map[string]int, len(sections))
	for _, rec := range sections {
		if err := v.resolveBase(rec, byName, state); err != nil {
			return err
		}
	}

	for _, rec := range sections {
		if rec.Name == ClassifierName {
			v.def.classifier = rec
		} else {
			v.def.records = append(v.def.records, rec)
		}
		if err := v.record(rec); err != nil {
			return err
		}
	}
	if len(v.def.records) == 0 {
		return v.errorf(0, "layout has no record type other than %s", ClassifierName)
	}
	return v.classification()
}

func (v *validator) directives() error {
	for _, dir := range v.def.directives {
		rule, ok := directiveRules[dir.Key]
		if !ok {
			return v.errorf(dir.Line, "unknown directive was specified. directive=[%s]", dir.Key)
		}
		if !kindAllowed(rule.kinds, dir.Value.Kind) {
			return v.errorf(dir.Line, "directive '%s' must be a %s but was a %s",
				dir.Key, literalKindNames[rule.kinds[0]], literalKindNames[dir.Value.Kind])
		}
		if rule.check != nil {
			if msg := rule.check(dir.Value); msg != "" {
				return v.errorf(dir.Line, "directive '%s': %s", dir.Key, msg)
			}
		}
	}

	d := v.def
	fileType, ok := d.Directive(DirFileType)
	if !ok {
		return v.errorf(0, "directive '%s' was not specified", DirFileType)
	}
	if fileType.Text == FileTypeFixed {
		d.mode = datatype.ModeFixed
	} else {
		d.mode = datatype.ModeVariable
	}

	encName, ok := d.Directive(DirTextEncoding)
	if !ok {
		return v.errorf(0, "directive '%s' was not specified", DirTextEncoding)
	}
	enc, err := charset.Lookup(encName.Text)
	if err != nil {
		return v.errorf(v.line(DirTextEncoding), "invalid text encoding was specified. text-encoding=[%s]", encName.Text)
	}
	d.encoding, d.encodingName = enc, encName.Text

	switch d.mode {
	case datatype.ModeFixed:
		if _, ok := d.Directive(DirRecordLength); !ok {
			return v.errorf(0, "directive '%s' was not specified. it is required for %s files", DirRecordLength, FileTypeFixed)
		}
		for _, key := range []string{DirFieldSeparator, DirQuotingDelimiter} {
			if _, ok := d.Directive(key); ok {
				return v.errorf(v.line(key), "directive '%s' is not allowed in %s files", key, FileTypeFixed)
			}
		}
	case datatype.ModeVariable:
		if _, ok := d.Directive(DirFieldSeparator); !ok {
			return v.errorf(0, "directive '%s' was not specified. it is required for %s files", DirFieldSeparator, FileTypeVariable)
		}
		if _, ok := d.Directive(DirRecordSeparator); !ok {
			return v.errorf(0, "directive '%s' was not specified. it is required when '%s' is specified",
				DirRecordSeparator, DirFieldSeparator)
		}
		if _, ok := d.Directive(DirRecordLength); ok {
			return v.errorf(v.line(DirRecordLength), "directive '%s' is not allowed in %s files", DirRecordLength, FileTypeVariable)
		}
	}

	if sep, ok := d.Directive(DirRecordSeparator); ok && !contains(v.cfg.separators, sep.Text) {
		allowed := make([]string, len(v.cfg.separators))
		for i, s := range v.cfg.separators {
			allowed[i] = EscapeControl(s)
		}
		return v.errorf(v.line(DirRecordSeparator), "not allowed record separator was specified. record-separator=[%s], allowed=[%s]",
			EscapeControl(sep.Text), strings.Join(allowed, ", "))
	}

	d.opts = v.options()
	return nil
}

func (v *validator) options() datatype.Options {
	d := v.def
	opts := datatype.DefaultOptions(d.encoding, d.encodingName)
	nibble := func(key string, dst **byte) {
		if l, ok := d.Directive(key); ok {
			n, _ := nibbleValue(l)
			*dst = &n
		}
	}
	nibble(DirPositiveZoneSignNibble, &opts.PositiveZoneSign)
	nibble(DirNegativeZoneSignNibble, &opts.NegativeZoneSign)
	nibble(DirPositivePackSignNibble, &opts.PositivePackSign)
	nibble(DirNegativePackSignNibble, &opts.NegativePackSign)
	opts.RequiredDecimalPoint = d.boolDirective(DirRequiredDecimalPoint, true)
	opts.FixedSignPosition = d.boolDirective(DirFixedSignPosition, true)
	opts.RequiredPlusSign = d.boolDirective(DirRequiredPlusSign, false)
	return opts
}

func (v *validator) line(key string) int {
	for _, dir := range v.def.directives {
		if dir.Key == key {
			return dir.Line
		}
	}
	return 0
}

// resolveBase materializes diff inheritance: base fields are copied, then
// overridden by name or position, or appended.
func (v *validator) resolveBase(rec *RecordDefinition, byName map[string]*RecordDefinition, state map[string]int) error {
	switch state[rec.Name] {
	case 2:
		return nil
	case 1:
		return v.errorf(rec.Line, "circular base record type reference. record type=[%s]", rec.Name)
	}
	if rec.BaseName == "" {
		state[rec.Name] = 2
		return nil
	}
	state[rec.Name] = 1
	base, ok := byName[rec.BaseName]
	if !ok {
		return v.errorf(rec.Line, "base record type was not found. record type=[%s], base record type=[%s]", rec.Name, rec.BaseName)
	}
	if err := v.resolveBase(base, byName, state); err != nil {
		return err
	}

	fields := make([]*FieldDefinition, 0, len(base.Fields)+len(rec.Fields))
	for _, f := range base.Fields {
		fields = append(fields, f.clone())
	}
	for _, own := range rec.Fields {
		idx := -1
		for i, f := range fields {
			if f.Name == own.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			for i, f := range fields {
				if f.Position == own.Position {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			fields = append(fields, own)
		} else {
			fields[idx] = own
		}
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Position < fields[j].Position })
	rec.Fields = fields

	conds := append([]Condition(nil), base.Conditions...)
	for _, own := range rec.Conditions {
		replaced := false
		for i := range conds {
			if conds[i].Field == own.Field {
				conds[i] = own
				replaced = true
			}
		}
		if !replaced {
			conds = append(conds, own)
		}
	}
	rec.Conditions = conds
	state[rec.Name] = 2
	return nil
}

func (v *validator) record(rec *RecordDefinition) error {
	d := v.def
	if len(rec.Fields) == 0 {
		return v.errorf(rec.Line, "record type [%s] has no field", rec.Name)
	}

	seen := make(map[string]bool, len(rec.Fields))
	expected := 1
	total := 0
	for _, f := range rec.Fields {
		if seen[f.Name] {
			return v.errorf(f.Line, "field name was duplicated. record type=[%s], field name=[%s]", rec.Name, f.Name)
		}
		seen[f.Name] = true

		if err := v.arity(rec, f); err != nil {
			return err
		}

		field, err := v.cfg.registry.Resolve(d.mode, f.Spec(), d.opts)
		if err != nil {
			return v.errorf(f.Line, "invalid data type was specified. record type=[%s], field name=[%s]: %v", rec.Name, f.Name, err)
		}
		for _, c := range f.Convertors {
			if !v.cfg.registry.IsConvertor(c.Name) {
				return v.errorf(f.Line, "unknown value convertor was specified. record type=[%s], field name=[%s], convertor=[%s]",
					rec.Name, f.Name, c.Name)
			}
		}
		if f.Default != nil && f.Default.Kind == LiteralBinary && field.Kind() != datatype.KindBinary {
			return v.errorf(f.Line, "binary default is only allowed for binary fields. record type=[%s], field name=[%s]", rec.Name, f.Name)
		}

		width := 1
		if d.mode == datatype.ModeFixed {
			width = field.ByteLength()
		}
		if rec.Name != ClassifierName {
			if f.Position != expected {
				return v.errorf(f.Line, "invalid field position was specified. field '%s' must at %d. but %d. record type=[%s]",
					f.Name, expected, f.Position, rec.Name)
			}
			expected += width
			total += width
		} else if d.mode == datatype.ModeFixed && f.Position-1+width > d.RecordLength() {
			return v.errorf(f.Line, "classifier field exceeds the record length. field name=[%s], record-length=[%d]", f.Name, d.RecordLength())
		}
	}

	if d.mode == datatype.ModeFixed && rec.Name != ClassifierName && total != d.RecordLength() {
		return v.errorf(rec.Line, "invalid record length was specified. record type=[%s], record-length=[%d], total field length=[%d]",
			rec.Name, d.RecordLength(), total)
	}
	return nil
}

func (v *validator) arity(rec *RecordDefinition, f *FieldDefinition) error {
	switch {
	case f.MaxArraySize != Unbounded && f.MaxArraySize < f.MinArraySize:
		return v.errorf(f.Line, "max array size must be greater than or equal to min array size. record type=[%s], field name=[%s], min=[%d], max=[%d]",
			rec.Name, f.Name, f.MinArraySize, f.MaxArraySize)
	case f.MaxArraySize == 0 && (f.Required || !f.ArraySyntax):
		return v.errorf(f.Line, "max array size must be greater than 0. record type=[%s], field name=[%s]", rec.Name, f.Name)
	case f.Attribute && f.IsArray():
		return v.errorf(f.Line, "attribute field cannot be an array. record type=[%s], field name=[%s]", rec.Name, f.Name)
	case f.IsArray():
		return v.errorf(f.Line, "array field is not supported in %s files. record type=[%s], field name=[%s]",
			v.def.mode, rec.Name, f.Name)
	}
	return nil
}

func (v *validator) classification() error {
	d := v.def
	title := d.TitleRecordTypeName()
	if d.RequiresTitle() {
		if _, ok := d.Record(title); !ok {
			return v.errorf(v.line(DirRequiresTitle), "title record type was not found. title-record-type-name=[%s]", title)
		}
	}

	if d.classifier == nil {
		data := 0
		for _, rec := range d.records {
			if !d.RequiresTitle() || rec.Name != title {
				data++
			}
		}
		if data > 1 {
			return v.errorf(0, "%s section is required when more than one record type is defined", ClassifierName)
		}
		return nil
	}

	for _, rec := range d.records {
		if d.RequiresTitle() && rec.Name == title && len(rec.Conditions) == 0 {
			continue
		}
		if len(rec.Conditions) == 0 {
			return v.errorf(rec.Line, "record type [%s] has no condition. conditions are required when %s is defined",
				rec.Name, ClassifierName)
		}
		for _, c := range rec.Conditions {
			if _, ok := d.classifier.Field(c.Field); !ok {
				return v.errorf(c.Line, "condition field was not found in %s. record type=[%s], field name=[%s]",
					ClassifierName, rec.Name, c.Field)
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
