package codec

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/text/transform"

	"github.com/ssargent/recordkit/pkg/charset"
	"github.com/ssargent/recordkit/pkg/layout"
	"github.com/ssargent/recordkit/pkg/record"
)

// variableEngine reads and writes delimited records. The byte stream is
// decoded to text before it is split.
type variableEngine struct {
	def      *layout.Definition
	fieldSep rune
	recSep   []rune
	quote    rune
	quoted   bool

	// an unquoted single-field record with an empty value is written as a
	// blank line, so such layouts keep blank lines as records
	blankIsRecord bool

	src   *bufio.Reader
	runes *bufio.Reader
}

func newVariableEngine(def *layout.Definition) (*variableEngine, error) {
	e := &variableEngine{
		def:      def,
		fieldSep: def.FieldSeparator(),
		recSep:   []rune(def.RecordSeparator()),
	}
	e.quote, e.quoted = def.QuotingDelimiter()
	if len(e.recSep) == 0 {
		return nil, illegalState("record separator was not set")
	}
	if !e.quoted {
		for _, rec := range def.Records() {
			if len(rec.Fields) == 1 {
				e.blankIsRecord = true
				break
			}
		}
	}
	return e, nil
}

func (e *variableEngine) reader(in *bufio.Reader) *bufio.Reader {
	if e.src != in {
		e.src = in
		e.runes = bufio.NewReader(transform.NewReader(in, e.def.Encoding().NewDecoder()))
	}
	return e.runes
}

// readRaw skips blank lines when ignore-blank-lines is set and a blank
// line cannot be a record of its own
func (e *variableEngine) readRaw(in *bufio.Reader, recordNumber int) (rawRecord, error) {
	r := e.reader(in)
	for {
		line, err := e.readLine(r, recordNumber)
		if err != nil {
			return rawRecord{}, err
		}
		if line == "" && e.def.IgnoreBlankLines() && !e.blankIsRecord {
			continue
		}
		tokens, err := e.split(line, recordNumber)
		if err != nil {
			return rawRecord{}, err
		}
		return rawRecord{tokens: tokens}, nil
	}
}

// readLine returns the text up to the next record separator outside
// quotes. A final record without a separator is accepted.
func (e *variableEngine) readLine(r *bufio.Reader, recordNumber int) (string, error) {
	var buf []rune
	inQuote := false
	for {
		c, _, err := r.ReadRune()
		if err == io.EOF {
			if len(buf) == 0 {
				return "", io.EOF
			}
			if inQuote {
				return "", newInvalidData(recordNumber, "unclosed quotation was found. quoting delimiter=[%c]", e.quote)
			}
			return string(buf), nil
		}
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
		if e.quoted && c == e.quote {
			inQuote = !inQuote
			continue
		}
		if !inQuote && hasRuneSuffix(buf, e.recSep) {
			return string(buf[:len(buf)-len(e.recSep)]), nil
		}
	}
}

func hasRuneSuffix(buf, suffix []rune) bool {
	if len(buf) < len(suffix) {
		return false
	}
	off := len(buf) - len(suffix)
	for i, r := range suffix {
		if buf[off+i] != r {
			return false
		}
	}
	return true
}

// split breaks a line on the field separator. Quoted sections may hold
// separators and doubled quotes.
func (e *variableEngine) split(line string, recordNumber int) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case e.quoted && c == e.quote:
			if inQuote && i+1 < len(runes) && runes[i+1] == e.quote {
				cur.WriteRune(c)
				i++
				continue
			}
			inQuote = !inQuote
		case c == e.fieldSep && !inQuote:
			tokens = append(tokens, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(c)
		}
	}
	if inQuote {
		return nil, newInvalidData(recordNumber, "unclosed quotation was found. quoting delimiter=[%c]", e.quote)
	}
	return append(tokens, cur.String()), nil
}

func (e *variableEngine) classifierValues(raw rawRecord, recordNumber int) (map[string]string, error) {
	cls := e.def.Classifier()
	values := make(map[string]string, len(cls.Fields))
	for _, f := range cls.Fields {
		if f.Position > len(raw.tokens) {
			ide := newInvalidData(recordNumber, "classifier field is out of the record. position=[%d], field count=[%d]",
				f.Position, len(raw.tokens))
			ide.FieldName = f.Name
			return nil, ide
		}
		v, err := f.Converter().DecodeText(raw.tokens[f.Position-1])
		if err != nil {
			return nil, fieldError(recordNumber, f.Name, "invalid field value was read", err)
		}
		values[f.Name] = v.Text()
	}
	return values, nil
}

func (e *variableEngine) decode(rec *layout.RecordDefinition, raw rawRecord, recordNumber int) (*record.DataRecord, error) {
	if len(raw.tokens) != len(rec.Fields) {
		return nil, newInvalidData(recordNumber, "field count does not match. record type=[%s], expected=[%d], actual=[%d]",
			rec.Name, len(rec.Fields), len(raw.tokens))
	}
	out := record.New(rec.Name)
	for _, f := range rec.Fields {
		if f.Filler {
			continue
		}
		v, err := f.Converter().DecodeText(raw.tokens[f.Position-1])
		if err != nil {
			return nil, fieldError(recordNumber, f.Name, "invalid field value was read", err)
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

func (e *variableEngine) encode(rec *layout.RecordDefinition, data *record.DataRecord, recordNumber int) ([]byte, error) {
	var sb strings.Builder
	for i, f := range rec.Fields {
		v, err := writeValue(f, data, recordNumber)
		if err != nil {
			return nil, err
		}
		s, err := f.Converter().EncodeText(v)
		if err != nil {
			return nil, fieldError(recordNumber, f.Name, "invalid field value was specified", err)
		}
		if i > 0 {
			sb.WriteRune(e.fieldSep)
		}
		if e.quoted {
			q := string(e.quote)
			sb.WriteString(q)
			sb.WriteString(strings.ReplaceAll(s, q, q+q))
			sb.WriteString(q)
			continue
		}
		if strings.ContainsRune(s, e.fieldSep) || strings.Contains(s, string(e.recSep)) {
			return nil, fieldError(recordNumber, f.Name, "field value contains a separator and no quoting delimiter is declared", nil)
		}
		sb.WriteString(s)
	}
	sb.WriteString(string(e.recSep))

	b, err := charset.Encode(e.def.Encoding(), sb.String())
	if err != nil {
		return nil, newInvalidData(recordNumber, "record can not be encoded with %s: %v", e.def.EncodingName(), err)
	}
	return b, nil
}
