package codec

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/recordkit/pkg/layout"
	"github.com/ssargent/recordkit/pkg/logger"
	"github.com/ssargent/recordkit/pkg/record"
)

const booksLayout = `
file-type:         "Variable"
text-encoding:     "utf-8"
field-separator:   ","
record-separator:  "\r\n"
quoting-delimiter: "\""

[Classifier]
1 dataKbn X

[Header]
dataKbn = "1"
1 dataKbn   X "1"
2 Title     X
3 Publisher X
4 Author    X
5 Price     X9

[Books]
dataKbn = "2"
1 dataKbn X "2"
2 Title   X
3 ISBN    X
`

const bankLayout = `
file-type:      "Fixed"
text-encoding:  "ms932"
record-length:  20

[Classifier]
1  dataKbn  X(1)

[Header]
dataKbn = "1"
1   dataKbn   X(1)  "1"
2   FIcode    X(4)
6   FIname    N(10)
16  ?filler   X(5)

[Data]
dataKbn = "2"
1   dataKbn   X(1)  "2"
2   amount    Z(10, 2)
12  sign      SP(3)
15  note      X(6) [0..1]
`

const titleLayout = `
file-type:        "Variable"
text-encoding:    "utf-8"
field-separator:  ","
record-separator: "\n"
requires-title:   true

[Classifier]
1 kind X

[Title]
kind = "H"
1 kind X
2 name X

[Data]
kind = "D"
1 kind X
2 name X
`

func newTestFormatter(t testing.TB, src string, opts ...Option) *Formatter {
	t.Helper()
	def, err := layout.Parse("test.fmt", []byte(src))
	require.NoError(t, err)
	f := NewFormatter(opts...)
	f.SetDefinition(def)
	require.NoError(t, f.Initialize())
	return f
}

func readAll(t *testing.T, f *Formatter) []*record.DataRecord {
	t.Helper()
	var out []*record.DataRecord
	for {
		rec, err := f.ReadRecord()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func mustRecord(t testing.TB, recordType string, m map[string]any) *record.DataRecord {
	t.Helper()
	rec, err := record.FromMap(recordType, m)
	require.NoError(t, err)
	return rec
}

func asInvalidData(t *testing.T, err error) *InvalidDataFormatError {
	t.Helper()
	require.Error(t, err)
	var ide *InvalidDataFormatError
	require.True(t, errors.As(err, &ide), "expected *InvalidDataFormatError, got %T: %v", err, err)
	return ide
}

func TestVariable_ReadClassifiesHeaderAndBooks(t *testing.T) {
	f := newTestFormatter(t, booksLayout)
	f.SetInputStream(strings.NewReader(
		"1,Learning Go,OReilly,Jon Bodner,38.50\r\n" +
			"2,\"Go, the language\",978-0134190440\r\n"))

	recs := readAll(t, f)
	require.Len(t, recs, 2)

	assert.Equal(t, "Header", recs[0].RecordType())
	title, err := recs[0].GetString("Title")
	require.NoError(t, err)
	assert.Equal(t, "Learning Go", title)
	price, err := recs[0].GetDecimal("Price")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("38.50").Equal(price))
	assert.Equal(t, "38.50", record.FormatDecimal(price))

	assert.Equal(t, "Books", recs[1].RecordType())
	title, err = recs[1].GetString("Title")
	require.NoError(t, err)
	assert.Equal(t, "Go, the language", title)
	assert.Equal(t, 2, f.RecordNumber())
}

func TestVariable_WriteForceQuotesAndRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	w := newTestFormatter(t, booksLayout)
	w.SetOutputStream(&buf)

	header := mustRecord(t, "Header", map[string]any{
		"Title":     `He said "hi", twice`,
		"Publisher": "OReilly",
		"Author":    "Jon",
		"Price":     decimal.RequireFromString("38.50"),
	})
	require.NoError(t, w.WriteRecord(header))
	// record type inferred from the dataKbn condition
	require.NoError(t, w.WriteRecord(mustRecord(t, "", map[string]any{
		"dataKbn": "2", "Title": "Go", "ISBN": "978",
	})))
	require.NoError(t, w.Flush())

	assert.Equal(t,
		"\"1\",\"He said \"\"hi\"\", twice\",\"OReilly\",\"Jon\",\"38.50\"\r\n"+
			"\"2\",\"Go\",\"978\"\r\n",
		buf.String())

	r := newTestFormatter(t, booksLayout)
	r.SetInputStream(bytes.NewReader(buf.Bytes()))
	recs := readAll(t, r)
	require.Len(t, recs, 2)

	got, err := recs[0].GetString("Title")
	require.NoError(t, err)
	assert.Equal(t, `He said "hi", twice`, got)
	price, err := recs[0].GetDecimal("Price")
	require.NoError(t, err)
	assert.Equal(t, "38.50", record.FormatDecimal(price))
	assert.Equal(t, "Books", recs[1].RecordType())
}

func TestVariable_BlankLinesAndFieldCount(t *testing.T) {
	f := newTestFormatter(t, booksLayout)
	f.SetInputStream(strings.NewReader("\r\n2,Go,978\r\n\r\n2,Go\r\n"))

	rec, err := f.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "Books", rec.RecordType())

	_, err = f.ReadRecord()
	ide := asInvalidData(t, err)
	assert.Equal(t, 2, ide.RecordNumber)
	assert.Contains(t, ide.Error(), "field count does not match. record type=[Books], expected=[3], actual=[2]")
	assert.Contains(t, ide.Error(), "format file=[test.fmt]")
}

func TestVariable_LastRecordWithoutSeparator(t *testing.T) {
	f := newTestFormatter(t, booksLayout)
	f.SetInputStream(strings.NewReader("2,Go,978"))

	recs := readAll(t, f)
	require.Len(t, recs, 1)
	isbn, err := recs[0].GetString("ISBN")
	require.NoError(t, err)
	assert.Equal(t, "978", isbn)
}

func TestVariable_EmptySingleFieldRoundTrip(t *testing.T) {
	const src = `
file-type:        "Variable"
text-encoding:    "utf-8"
field-separator:  ","
record-separator: "\n"

[Line]
1 text X
`
	var buf bytes.Buffer
	w := newTestFormatter(t, src)
	w.SetOutputStream(&buf)
	for _, text := range []string{"a", "", "b"} {
		require.NoError(t, w.WriteRecord(mustRecord(t, "Line", map[string]any{"text": text})))
	}
	require.NoError(t, w.Flush())
	assert.Equal(t, "a\n\nb\n", buf.String())

	r := newTestFormatter(t, src)
	r.SetInputStream(bytes.NewReader(buf.Bytes()))
	recs := readAll(t, r)
	require.Len(t, recs, 3)
	got := make([]string, 0, len(recs))
	for _, rec := range recs {
		text, err := rec.GetString("text")
		require.NoError(t, err)
		got = append(got, text)
	}
	assert.Equal(t, []string{"a", "", "b"}, got)
}

func TestVariable_UnclosedQuote(t *testing.T) {
	f := newTestFormatter(t, booksLayout)
	f.SetInputStream(strings.NewReader("2,\"Go,978\r\n"))

	_, err := f.ReadRecord()
	ide := asInvalidData(t, err)
	assert.Contains(t, ide.Msg, "unclosed quotation")
}

func TestClassifier_NoMatchingRecordType(t *testing.T) {
	f := newTestFormatter(t, booksLayout, WithSourcePath("books.csv"))
	f.SetInputStream(strings.NewReader("9,x,y\r\n"))

	_, err := f.ReadRecord()
	ide := asInvalidData(t, err)
	assert.Equal(t, map[string]string{"dataKbn": "9"}, ide.ClassifierValues)
	assert.Contains(t, ide.Error(), "an applicable layout was not found")
	assert.Contains(t, ide.Error(), "classifier values=[dataKbn=9]")
	assert.Contains(t, ide.Error(), "source=[books.csv]")
}

func TestClassifier_FirstDeclaredMatchWins(t *testing.T) {
	src := `
file-type: "Variable"
text-encoding: "utf-8"
field-separator: ","
record-separator: "\n"

[Classifier]
1 kind X

[First]
kind = "A"
1 kind X
2 v    X

[Second]
kind = "A"
1 kind X
2 w    X
`
	for i := 0; i < 5; i++ {
		f := newTestFormatter(t, src)
		f.SetInputStream(strings.NewReader("A,1\n"))
		rec, err := f.ReadRecord()
		require.NoError(t, err)
		assert.Equal(t, "First", rec.RecordType())
	}
}

func TestFixed_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := newTestFormatter(t, bankLayout)
	w.SetOutputStream(&buf)

	require.NoError(t, w.WriteRecord(mustRecord(t, "Header", map[string]any{
		"FIcode": "0001",
		"FIname": "テスト",
	})))
	require.NoError(t, w.WriteRecord(mustRecord(t, "Data", map[string]any{
		"amount": decimal.RequireFromString("123.45"),
		"sign":   decimal.NewFromInt(-12),
		"note":   "memo",
	})))
	require.NoError(t, w.Close())
	require.Len(t, buf.Bytes(), 40)

	r := newTestFormatter(t, bankLayout)
	r.SetInputStream(bytes.NewReader(buf.Bytes()))
	recs := readAll(t, r)
	require.Len(t, recs, 2)

	header := recs[0]
	assert.Equal(t, "Header", header.RecordType())
	assert.False(t, header.Has("filler"))
	code, _ := header.GetString("FIcode")
	assert.Equal(t, "0001", code)
	name, _ := header.GetString("FIname")
	assert.Equal(t, "テスト", name)

	data := recs[1]
	assert.Equal(t, "Data", data.RecordType())
	amount, err := data.GetDecimal("amount")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("123.45").Equal(amount))
	sign, err := data.GetDecimal("sign")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(-12).Equal(sign))
	note, _ := data.GetString("note")
	assert.Equal(t, "memo", note)
}

func TestFixed_MissingRequiredField(t *testing.T) {
	w := newTestFormatter(t, bankLayout)
	w.SetOutputStream(io.Discard)

	err := w.WriteRecord(mustRecord(t, "Header", map[string]any{"FIname": "テスト"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalArgument))
	assert.Contains(t, err.Error(), "field value was not set. field value must be set. field name=[FIcode].")
}

func TestFixed_ShortRecord(t *testing.T) {
	r := newTestFormatter(t, bankLayout)
	r.SetInputStream(strings.NewReader("10001"))

	_, err := r.ReadRecord()
	ide := asInvalidData(t, err)
	assert.Contains(t, ide.Msg, "record length=[20], read length=[5]")
}

func TestFixed_TruncatedTrailingRecord(t *testing.T) {
	var buf bytes.Buffer
	w := newTestFormatter(t, bankLayout)
	w.SetOutputStream(&buf)
	require.NoError(t, w.WriteRecord(mustRecord(t, "Header", map[string]any{
		"FIcode": "0001",
		"FIname": "テスト",
	})))
	require.NoError(t, w.Flush())
	buf.WriteString("2000")

	r := newTestFormatter(t, bankLayout)
	r.SetInputStream(bytes.NewReader(buf.Bytes()))
	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "Header", rec.RecordType())

	// trailing bytes are reported, not dropped as end of data
	_, err = r.ReadRecord()
	ide := asInvalidData(t, err)
	assert.Equal(t, 2, ide.RecordNumber)
	assert.Contains(t, ide.Msg, "record length=[20], read length=[4]")
	assert.NotErrorIs(t, err, io.EOF)
}

func TestFixed_RecordSeparator(t *testing.T) {
	src := `
file-type:        "Fixed"
text-encoding:    "utf-8"
record-length:    4
record-separator: "\n"

[Data]
1 code X(4)
`
	r := newTestFormatter(t, src)
	r.SetInputStream(strings.NewReader("abcd\nefgh"))
	recs := readAll(t, r)
	require.Len(t, recs, 2)
	code, _ := recs[1].GetString("code")
	assert.Equal(t, "efgh", code)

	r = newTestFormatter(t, src)
	r.SetInputStream(strings.NewReader("abcdXefgh\n"))
	_, err := r.ReadRecord()
	ide := asInvalidData(t, err)
	assert.Contains(t, ide.Msg, `invalid record separator. expected=[\n], actual=[X]`)

	var buf bytes.Buffer
	w := newTestFormatter(t, src)
	w.SetOutputStream(&buf)
	require.NoError(t, w.WriteRecord(mustRecord(t, "", map[string]any{"code": "ab"})))
	require.NoError(t, w.Flush())
	assert.Equal(t, "ab  \n", buf.String())
}

func TestRequiresTitle_Write(t *testing.T) {
	w := newTestFormatter(t, titleLayout)
	w.SetOutputStream(io.Discard)
	err := w.WriteRecord(mustRecord(t, "Data", map[string]any{"kind": "D", "name": "x"}))
	ide := asInvalidData(t, err)
	assert.Contains(t, ide.Msg, "the first record must be the title record")

	w = newTestFormatter(t, titleLayout)
	w.SetOutputStream(io.Discard)
	require.NoError(t, w.WriteRecord(mustRecord(t, "", map[string]any{"kind": "H", "name": "head"})))

	err = w.WriteRecord(mustRecord(t, "", map[string]any{"kind": "H", "name": "again"}))
	ide = asInvalidData(t, err)
	assert.Equal(t, 2, ide.RecordNumber)
	assert.Contains(t, ide.Error(), "record number=[2]")

	err = w.WriteRecord(mustRecord(t, "Title", map[string]any{"kind": "X", "name": "again"}))
	asInvalidData(t, err)

	require.NoError(t, w.WriteRecord(mustRecord(t, "", map[string]any{"kind": "D", "name": "row"})))
}

func TestRequiresTitle_Read(t *testing.T) {
	r := newTestFormatter(t, titleLayout)
	r.SetInputStream(strings.NewReader("H,head\nD,row\nH,again\n"))

	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "Title", rec.RecordType())
	rec, err = r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "Data", rec.RecordType())

	_, err = r.ReadRecord()
	ide := asInvalidData(t, err)
	assert.Equal(t, 3, ide.RecordNumber)
	assert.Contains(t, ide.Msg, "title record was found after the first record")
}

func TestFormatter_Misuse(t *testing.T) {
	f := NewFormatter()
	assert.True(t, errors.Is(f.Initialize(), ErrIllegalState))

	_, err := f.ReadRecord()
	assert.True(t, errors.Is(err, ErrIllegalState))

	f = newTestFormatter(t, booksLayout)
	_, err = f.ReadRecord()
	assert.True(t, errors.Is(err, ErrIllegalState), "no input stream")

	f.SetOutputStream(io.Discard)
	assert.True(t, errors.Is(f.WriteRecord(nil), ErrIllegalArgument))
	assert.True(t, errors.Is(f.WriteRecord(record.New("Nope")), ErrIllegalArgument))
	assert.True(t, errors.Is(f.WriteRecord(record.New("  ")), ErrIllegalArgument))

	err = f.WriteRecord(mustRecord(t, "", map[string]any{"Title": "no kind"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalArgument))
	assert.Contains(t, err.Error(), "values=[dataKbn=<not set>]")
}

type countingObserver struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (o *countingObserver) RecordProcessed(_ Operation, _, _ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed++
		return
	}
	o.ok++
}

func TestFormatter_Observer(t *testing.T) {
	obs := &countingObserver{}
	f := newTestFormatter(t, booksLayout, WithObserver(obs))
	f.SetInputStream(strings.NewReader("2,a,b\r\n9,x\r\n"))

	_, err := f.ReadRecord()
	require.NoError(t, err)
	_, err = f.ReadRecord()
	require.Error(t, err)

	assert.Equal(t, 1, obs.ok)
	assert.Equal(t, 1, obs.failed)
	assert.NotEmpty(t, f.SessionID())
}

func TestFormatter_ReinitializeKeepsSession(t *testing.T) {
	var logs bytes.Buffer
	f := newTestFormatter(t, booksLayout, WithLogger(logger.JSON(&logs, slog.LevelInfo)))
	session := f.SessionID()
	require.NotEmpty(t, session)

	def, err := layout.Parse("title.fmt", []byte(titleLayout))
	require.NoError(t, err)
	f.SetDefinition(def)
	require.NoError(t, f.Initialize())
	assert.Equal(t, session, f.SessionID())

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, session, entry["session"])
		assert.Equal(t, 1, strings.Count(line, `"session"`), "session attribute is added once")
	}
}

func TestFactory_ReaderAndWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "books.fmt")
	require.NoError(t, os.WriteFile(path, []byte(booksLayout), 0o644))

	fac := NewFactory(nil, nil, nil, nil)

	var buf bytes.Buffer
	w, err := fac.NewWriter(path, "out.csv", &buf)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord(mustRecord(t, "Books", map[string]any{"Title": "Go", "ISBN": "1"})))
	require.NoError(t, w.Close())

	r, err := fac.NewReader(path, "out.csv", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	recs := readAll(t, r)
	require.Len(t, recs, 1)
	assert.Equal(t, "Books", recs[0].RecordType())
	assert.Equal(t, 1, fac.Cache().Size())

	_, err = fac.NewReader(filepath.Join(dir, "missing.fmt"), "", strings.NewReader(""))
	assert.Error(t, err)
}
