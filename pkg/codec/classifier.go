package codec

import (
	"strings"

	"github.com/ssargent/recordkit/pkg/layout"
	"github.com/ssargent/recordkit/pkg/record"
)

// classifier picks the record type of each physical record
type classifier struct {
	def *layout.Definition
}

func matches(rec *layout.RecordDefinition, get func(field string) (string, bool)) bool {
	for _, c := range rec.Conditions {
		v, ok := get(c.Field)
		if !ok || v != c.Value {
			return false
		}
	}
	return true
}

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func recordLookup(r *record.DataRecord) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := r.Get(k)
		if !ok {
			return "", false
		}
		return v.Text(), true
	}
}

// candidates returns the record types eligible after the title line
func (c classifier) candidates() []*layout.RecordDefinition {
	if !c.def.RequiresTitle() {
		return c.def.Records()
	}
	title := c.def.TitleRecordTypeName()
	out := make([]*layout.RecordDefinition, 0, len(c.def.Records()))
	for _, r := range c.def.Records() {
		if r.Name != title {
			out = append(out, r)
		}
	}
	return out
}

// duplicateTitle reports whether values satisfy the title record's own
// conditions on a line other than the first
func (c classifier) duplicateTitle(get func(string) (string, bool)) bool {
	title := c.def.TitleRecord()
	return title != nil && len(title.Conditions) > 0 && matches(title, get)
}

// forRead resolves the record type from decoded classifier values. values
// is nil when the layout has no Classifier section.
func (c classifier) forRead(values map[string]string, recordNumber int) (*layout.RecordDefinition, error) {
	if c.def.RequiresTitle() && recordNumber == 1 {
		return c.def.TitleRecord(), nil
	}
	if c.def.Classifier() == nil {
		candidates := c.candidates()
		if len(candidates) == 0 {
			return nil, newInvalidData(recordNumber, "no record type is defined for records after the title record")
		}
		return candidates[0], nil
	}
	if c.def.RequiresTitle() && c.duplicateTitle(mapLookup(values)) {
		e := newInvalidData(recordNumber, "title record was found after the first record. title record type=[%s], conditions=[%s]",
			c.def.TitleRecordTypeName(), conditionText(c.def.TitleRecord()))
		e.ClassifierValues = values
		return nil, e
	}
	for _, r := range c.candidates() {
		if matches(r, mapLookup(values)) {
			return r, nil
		}
	}
	e := newInvalidData(recordNumber, "an applicable layout was not found. no record type matched the classifier values")
	e.ClassifierValues = values
	return nil, e
}

// forWrite resolves the record type named by the caller, or infers it from
// the record's values
func (c classifier) forWrite(data *record.DataRecord, recordNumber int) (*layout.RecordDefinition, error) {
	name := data.RecordType()
	if name != "" && strings.TrimSpace(name) == "" {
		return nil, illegalArgument("record type name must not be blank")
	}

	if c.def.RequiresTitle() {
		title := c.def.TitleRecordTypeName()
		if recordNumber == 1 {
			if name != "" && name != title {
				return nil, newInvalidData(recordNumber, "the first record must be the title record. title record type=[%s], specified record type=[%s]",
					title, name)
			}
			return c.def.TitleRecord(), nil
		}
		if name == title {
			return nil, newInvalidData(recordNumber, "title record can only be written as the first record. record type=[%s]", title)
		}
		if c.duplicateTitle(recordLookup(data)) {
			return nil, newInvalidData(recordNumber, "record values match the title record conditions. title record type=[%s], conditions=[%s]",
				title, conditionText(c.def.TitleRecord()))
		}
	}

	if name != "" {
		for _, r := range c.candidates() {
			if r.Name == name {
				return r, nil
			}
		}
		return nil, illegalArgument("record type was not found. record type=[%s]", name)
	}

	candidates := c.candidates()
	if c.def.Classifier() == nil && len(candidates) == 1 {
		return candidates[0], nil
	}
	for _, r := range candidates {
		if len(r.Conditions) > 0 && matches(r, recordLookup(data)) {
			return r, nil
		}
	}
	return nil, illegalArgument("an applicable layout was not found. values=[%s]", c.conditionValues(data))
}

// conditionValues lists the record's values for every field used in a condition
func (c classifier) conditionValues(data *record.DataRecord) string {
	seen := make(map[string]bool)
	var parts []string
	for _, r := range c.candidates() {
		for _, cond := range r.Conditions {
			if seen[cond.Field] {
				continue
			}
			seen[cond.Field] = true
			if v, ok := data.Get(cond.Field); ok {
				parts = append(parts, cond.Field+"="+v.Text())
			} else {
				parts = append(parts, cond.Field+"=<not set>")
			}
		}
	}
	return strings.Join(parts, ", ")
}

func conditionText(r *layout.RecordDefinition) string {
	parts := make([]string, len(r.Conditions))
	for i, c := range r.Conditions {
		parts[i] = c.Field + "=" + c.Value
	}
	return strings.Join(parts, ", ")
}
