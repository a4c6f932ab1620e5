package codec

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/ssargent/recordkit/pkg/charset"
	"github.com/ssargent/recordkit/pkg/layout"
	"github.com/ssargent/recordkit/pkg/record"
)

// fixedEngine reads and writes records of record-length bytes, each
// optionally followed by the record separator
type fixedEngine struct {
	def *layout.Definition
	sep []byte
}

func newFixedEngine(def *layout.Definition) (*fixedEngine, error) {
	e := &fixedEngine{def: def}
	if s := def.RecordSeparator(); s != "" {
		b, err := charset.Encode(def.Encoding(), s)
		if err != nil {
			return nil, illegalState("record separator can not be encoded with %s: %v", def.EncodingName(), err)
		}
		e.sep = b
	}
	return e, nil
}

func (e *fixedEngine) readRaw(in *bufio.Reader, recordNumber int) (rawRecord, error) {
	buf := make([]byte, e.def.RecordLength())
	n, err := io.ReadFull(in, buf)
	switch {
	case err == io.EOF:
		return rawRecord{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return rawRecord{}, newInvalidData(recordNumber, "invalid data length. record length=[%d], read length=[%d]",
			e.def.RecordLength(), n)
	case err != nil:
		return rawRecord{}, err
	}

	if len(e.sep) > 0 {
		sep := make([]byte, len(e.sep))
		m, err := io.ReadFull(in, sep)
		// the last record may omit its separator
		if err == io.EOF {
			return rawRecord{bytes: buf}, nil
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return rawRecord{}, err
		}
		if !bytes.Equal(sep[:m], e.sep) {
			return rawRecord{}, newInvalidData(recordNumber, "invalid record separator. expected=[%s], actual=[%s]",
				layout.EscapeControl(e.def.RecordSeparator()), layout.EscapeControl(string(sep[:m])))
		}
	}
	return rawRecord{bytes: buf}, nil
}

func (e *fixedEngine) classifierValues(raw rawRecord, recordNumber int) (map[string]string, error) {
	cls := e.def.Classifier()
	values := make(map[string]string, len(cls.Fields))
	for _, f := range cls.Fields {
		v, err := e.decodeField(f, raw.bytes, recordNumber)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v.Text()
	}
	return values, nil
}

// decodeField converts the field's slice; positions are 1-based byte offsets
func (e *fixedEngine) decodeField(f *layout.FieldDefinition, b []byte, recordNumber int) (record.Value, error) {
	conv := f.Converter()
	start := f.Position - 1
	end := start + conv.ByteLength()
	if start < 0 || end > len(b) {
		err := newInvalidData(recordNumber, "field is out of the record. position=[%d], length=[%d]", f.Position, conv.ByteLength())
		err.FieldName = f.Name
		return record.Value{}, err
	}
	v, err := conv.Decode(b[start:end])
	if err != nil {
		return record.Value{}, fieldError(recordNumber, f.Name, "invalid field value was read", err)
	}
	return v, nil
}

func (e *fixedEngine) decode(rec *layout.RecordDefinition, raw rawRecord, recordNumber int) (*record.DataRecord, error) {
	out := record.New(rec.Name)
	for _, f := range rec.Fields {
		if f.Filler {
			continue
		}
		v, err := e.decodeField(f, raw.bytes, recordNumber)
		if err != nil {
			return nil, err
		}
		if v, err = f.Read(v); err != nil {
			return nil, fieldError(recordNumber, f.Name, "value convertor failed", err)
		}
		if err := out.Set(f.Name, v); err != nil {
			return nil, fieldError(recordNumber, f.Name, "invalid field name", err)
		}
	}
	return out, nil
}

func (e *fixedEngine) encode(rec *layout.RecordDefinition, data *record.DataRecord, recordNumber int) ([]byte, error) {
	out := make([]byte, 0, e.def.RecordLength()+len(e.sep))
	for _, f := range rec.Fields {
		v, err := writeValue(f, data, recordNumber)
		if err != nil {
			return nil, err
		}
		b, err := f.Converter().Encode(v)
		if err != nil {
			return nil, fieldError(recordNumber, f.Name, "invalid field value was specified", err)
		}
		out = append(out, b...)
	}
	if len(out) != e.def.RecordLength() {
		return nil, newInvalidData(recordNumber, "invalid record length. record-length=[%d], encoded length=[%d]",
			e.def.RecordLength(), len(out))
	}
	return append(out, e.sep...), nil
}

// writeValue picks the value to encode for f: the default when declared,
// Null for fillers, otherwise the caller's value. The result has passed
// through the convertor chain.
func writeValue(f *layout.FieldDefinition, data *record.DataRecord, recordNumber int) (record.Value, error) {
	var v record.Value
	switch {
	case f.Default != nil:
		v = f.DefaultValue()
	case f.Filler:
		v = record.Null()
	default:
		got, ok := data.Get(f.Name)
		if !ok && f.Required {
			return record.Value{}, illegalArgument("field value was not set. field value must be set. field name=[%s].", f.Name)
		}
		v = got
	}
	v, err := f.Write(v)
	if err != nil {
		return record.Value{}, fieldError(recordNumber, f.Name, "value convertor failed", err)
	}
	return v, nil
}

func fieldError(recordNumber int, field, msg string, err error) *InvalidDataFormatError {
	e := newInvalidData(recordNumber, "%s", msg)
	e.FieldName = field
	e.Err = err
	return e
}
