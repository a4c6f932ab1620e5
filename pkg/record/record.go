// Package record holds the logical record model shared by every layout codec.
//
// A DataRecord is an ordered, string-keyed map of tagged Values, labelled with
// the record type that the classifier resolved for it. Typed accessors check
// the variant and fail with ErrTypeMismatch instead of panicking.
package record

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errors
var (
	ErrEmptyKey      = errors.New("record: field name must not be empty")
	ErrTypeMismatch  = errors.New("record: value type mismatch")
	ErrFieldNotFound = errors.New("record: field not found")
)

// DataRecord is an ordered map of field name to Value
type DataRecord struct {
	recordType string
	keys       []string
	values     map[string]Value
}

// New creates an empty record of the given type
func New(recordType string) *DataRecord {
	return &DataRecord{
		recordType: recordType,
		values:     make(map[string]Value),
	}
}

// FromMap builds a record from plain Go values. Keys are inserted in the
// iteration order of keys when given, otherwise in map order.
func FromMap(recordType string, m map[string]any, keys ...string) (*DataRecord, error) {
	r := New(recordType)
	if len(keys) == 0 {
		for k := range m {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		v, err := ValueOf(m[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		if err := r.Set(k, v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RecordType returns the resolved record type name
func (r *DataRecord) RecordType() string {
	return r.recordType
}

// SetRecordType changes the record type name
func (r *DataRecord) SetRecordType(name string) {
	r.recordType = name
}

// Set stores a value, keeping the original insertion position on overwrite
func (r *DataRecord) Set(key string, v Value) error {
	if key == "" {
		return ErrEmptyKey
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
	return nil
}

// SetAny converts v with ValueOf and stores it
func (r *DataRecord) SetAny(key string, v any) error {
	val, err := ValueOf(v)
	if err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return r.Set(key, val)
}

// Get returns the value for key
func (r *DataRecord) Get(key string) (Value, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present (even if its value is null)
func (r *DataRecord) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Delete removes key
func (r *DataRecord) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the field names in insertion order
func (r *DataRecord) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields
func (r *DataRecord) Len() int {
	return len(r.keys)
}

// GetString returns the string value for key
func (r *DataRecord) GetString(key string) (string, error) {
	v, err := r.lookup(key)
	if err != nil {
		return "", err
	}
	s, err := v.AsString()
	if err != nil {
		return "", fmt.Errorf("field %q: %w", key, err)
	}
	return s, nil
}

// GetDecimal returns the decimal value for key
func (r *DataRecord) GetDecimal(key string) (decimal.Decimal, error) {
	v, err := r.lookup(key)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := v.AsDecimal()
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %q: %w", key, err)
	}
	return d, nil
}

// GetBytes returns the binary value for key
func (r *DataRecord) GetBytes(key string) ([]byte, error) {
	v, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	b, err := v.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	return b, nil
}

// GetStrings returns the string array value for key
func (r *DataRecord) GetStrings(key string) ([]string, error) {
	v, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	ss, err := v.AsStrings()
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", key, err)
	}
	return ss, nil
}

// Map returns a copy of the values keyed by field name
func (r *DataRecord) Map() map[string]Value {
	out := make(map[string]Value, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func (r *DataRecord) lookup(key string) (Value, error) {
	if key == "" {
		return Value{}, ErrEmptyKey
	}
	v, ok := r.values[key]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrFieldNotFound, key)
	}
	return v, nil
}
