package record

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// JSON layout of a record:
//
//	{"recordType":"Books","data":{"Title":"Go","Price":38.50,"Raw":{"base64":"AAE="}}}
//
// Decimals are written as JSON numbers using their scale, binary values as a
// {"base64": ...} object so they survive a round trip.

type binaryJSON struct {
	Base64 string `json:"base64"`
}

// MarshalJSON writes the record with its fields in insertion order
func (r *DataRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"recordType":`)
	rt, err := json.Marshal(r.recordType)
	if err != nil {
		return nil, err
	}
	buf.Write(rt)
	buf.WriteString(`,"data":{`)
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := r.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the layout written by MarshalJSON. Fields are
// inserted in the order they appear in the document.
func (r *DataRecord) UnmarshalJSON(data []byte) error {
	var env struct {
		RecordType string          `json:"recordType"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	*r = *New(env.RecordType)
	body := bytes.TrimSpace(env.Data)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record data must be an object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		k, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record data key must be a string, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		if err := r.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON encodes a single value
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindBytes:
		return json.Marshal(binaryJSON{Base64: base64.StdEncoding.EncodeToString(v.raw)})
	case KindDecimal:
		return []byte(FormatDecimal(v.dec)), nil
	case KindStrings:
		return json.Marshal(v.strs)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a single value
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case '[':
		var ss []string
		if err := json.Unmarshal(data, &ss); err != nil {
			return err
		}
		*v = Strings(ss)
	case '{':
		var b binaryJSON
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(b.Base64)
		if err != nil {
			return err
		}
		*v = Bytes(raw)
	default:
		d, err := decimal.NewFromString(string(data))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrTypeMismatch, string(data))
		}
		*v = Decimal(d)
	}
	return nil
}
