package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/recordkit/pkg/archive"
	"github.com/ssargent/recordkit/pkg/codec"
	"github.com/ssargent/recordkit/pkg/record"
	"github.com/ssargent/recordkit/pkg/replace"
)

const testAPIKey = "test-key"

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

[Books]
dataKbn = "2"
1 dataKbn X "2"
2 Title   X
3 ISBN    X
`

type testEnv struct {
	handler http.Handler
	dir     string
	archive *archive.Archive
	metrics *Metrics
}

func setupTestEnv(t *testing.T, withArchive bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "books.fmt"), []byte(booksLayout), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.fmt"), []byte("file-type: \"Nope\"\n"), 0o644))

	rep, err := replace.NewRegistry([]replace.TypeConfig{{
		Name:     "type_zenkaku",
		Encoding: "ms932",
		Mappings: map[string]string{"髙": "高"},
	}}, nil)
	require.NoError(t, err)

	env := &testEnv{dir: dir, metrics: NewMetrics()}
	deps := Dependencies{
		Replacer: rep,
		Metrics:  env.metrics,
	}
	deps.Formatters = codec.NewFactory(nil, nil, nil, env.metrics)
	if withArchive {
		a, err := archive.Open(filepath.Join(t.TempDir(), "archive"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.Close() })
		env.archive = a
		deps.Archive = a
	}

	env.handler = NewRouter(ServerConfig{APIKey: testAPIKey, LayoutDir: dir, MaxBodySize: 1 << 16}, deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(apiKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp.Error
}

func TestHandleHealth(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]interface{}
	decodeData(t, w, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, false, health["archive"])
	assert.Equal(t, []interface{}{"type_zenkaku"}, health["replacements"])
}

func TestHandleListLayouts(t *testing.T) {
	env := setupTestEnv(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "notes.txt"), []byte("ignored"), 0o644))

	w := env.do(t, http.MethodGet, "/api/v1/layouts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var layouts []LayoutSummary
	decodeData(t, w, &layouts)
	require.Len(t, layouts, 2)

	byName := map[string]LayoutSummary{}
	for _, l := range layouts {
		byName[l.Name] = l
	}
	assert.Equal(t, "Variable", byName["books"].FileType)
	assert.Equal(t, []string{"Header", "Books"}, byName["books"].RecordTypes)
	assert.Empty(t, byName["books"].Error)
	assert.NotEmpty(t, byName["broken"].Error)
}

func TestHandleGetLayout(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/v1/layouts/books", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var detail LayoutDetail
	decodeData(t, w, &detail)
	assert.Equal(t, ",", detail.Directives["field-separator"])
	require.Len(t, detail.Classifier, 1)
	assert.Equal(t, "dataKbn", detail.Classifier[0].Name)
	require.Len(t, detail.Records, 2)
	assert.Equal(t, map[string]string{"dataKbn": "2"}, detail.Records[1].Conditions)
	assert.Equal(t, "1", detail.Records[0].Fields[0].Default)

	t.Run("missing layout", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/layouts/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid layout", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/layouts/broken", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, errorMessage(t, w), "broken.fmt")
	})

	t.Run("name escaping the directory", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/layouts/..", nil)
		assert.NotEqual(t, http.StatusOK, w.Code)
	})
}

func TestHandleDecode(t *testing.T) {
	env := setupTestEnv(t, false)
	payload := "\"1\",\"Go Programming\",\"Addison\"\r\n\"2\",\"Go\",\"978\"\r\n"

	w := env.do(t, http.MethodPost, "/api/v1/layouts/books/decode", strings.NewReader(payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp DecodeResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "books", resp.Layout)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "Header", resp.Records[0].RecordType())
	assert.Equal(t, "Books", resp.Records[1].RecordType())

	isbn, err := resp.Records[1].GetString("ISBN")
	require.NoError(t, err)
	assert.Equal(t, "978", isbn)
	assert.Empty(t, resp.Archived)
}

func TestHandleDecode_InvalidData(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(t, http.MethodPost, "/api/v1/layouts/books/decode", strings.NewReader("\"9\",\"x\",\"y\"\r\n"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	msg := errorMessage(t, w)
	assert.Contains(t, msg, "request:books")
	assert.Contains(t, msg, "dataKbn")
}

func TestHandleDecode_BodyTooLarge(t *testing.T) {
	env := setupTestEnv(t, false)
	line := "\"2\",\"" + strings.Repeat("x", 1024) + "\",\"978\"\r\n"

	w := env.do(t, http.MethodPost, "/api/v1/layouts/books/decode", strings.NewReader(strings.Repeat(line, 128)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandleDecode_Archive(t *testing.T) {
	t.Run("archive not configured", func(t *testing.T) {
		env := setupTestEnv(t, false)
		w := env.do(t, http.MethodPost, "/api/v1/layouts/books/decode?archive=true", strings.NewReader("\"2\",\"Go\",\"978\"\r\n"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	env := setupTestEnv(t, true)
	w := env.do(t, http.MethodPost, "/api/v1/layouts/books/decode?archive=true",
		strings.NewReader("\"2\",\"Go\",\"978\"\r\n\"2\",\"Rust\",\"979\"\r\n"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp DecodeResponse
	decodeData(t, w, &resp)
	require.Len(t, resp.Archived, 2)

	n, err := env.archive.Count("Books")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	w = env.do(t, http.MethodGet, "/api/v1/archive/Books", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []ArchiveEntry
	decodeData(t, w, &entries)
	assert.Len(t, entries, 2)

	w = env.do(t, http.MethodGet, "/api/v1/archive/Books?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &entries)
	assert.Len(t, entries, 1)

	w = env.do(t, http.MethodGet, "/api/v1/archive/Books/"+resp.Archived[0], nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry ArchiveEntry
	decodeData(t, w, &entry)
	assert.Equal(t, "Books", entry.RecordType)
	assert.Equal(t, filepath.Join(env.dir, "books.fmt"), entry.Layout)
	title, err := entry.Record.GetString("Title")
	require.NoError(t, err)
	assert.Equal(t, "Go", title)

	w = env.do(t, http.MethodDelete, "/api/v1/archive/Books/"+resp.Archived[0], nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/v1/archive/Books/"+resp.Archived[0], nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/archive/Books/not-a-ksuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodGet, "/api/v1/archive/Books?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEncode(t *testing.T) {
	env := setupTestEnv(t, false)
	body := `{"records":[
		{"recordType":"Header","data":{"Title":"Go Programming","Publisher":"Addison"}},
		{"recordType":"","data":{"dataKbn":"2","Title":"Go","ISBN":"978"}}
	]}`

	w := env.do(t, http.MethodPost, "/api/v1/layouts/books/encode", strings.NewReader(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "2", w.Header().Get("X-Record-Count"))
	assert.Equal(t,
		"\"1\",\"Go Programming\",\"Addison\"\r\n\"2\",\"Go\",\"978\"\r\n",
		w.Body.String())
}

func TestHandleEncode_Errors(t *testing.T) {
	env := setupTestEnv(t, false)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid json", `{"records":`, http.StatusBadRequest},
		{"no records", `{"records":[]}`, http.StatusBadRequest},
		{"null record", `{"records":[null]}`, http.StatusBadRequest},
		{"unknown record type", `{"records":[{"recordType":"Magazines","data":{}}]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/layouts/books/encode", strings.NewReader(tt.body))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestHandleEncodeThenDecode(t *testing.T) {
	env := setupTestEnv(t, false)
	in := []*record.DataRecord{record.New("Books")}
	require.NoError(t, in[0].SetAny("Title", `Say "hi", again`))
	require.NoError(t, in[0].SetAny("ISBN", "111"))

	body, err := json.Marshal(EncodeRequest{Records: in})
	require.NoError(t, err)
	w := env.do(t, http.MethodPost, "/api/v1/layouts/books/encode", bytes.NewReader(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/layouts/books/decode", bytes.NewReader(w.Body.Bytes()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp DecodeResponse
	decodeData(t, w, &resp)
	require.Len(t, resp.Records, 1)
	title, err := resp.Records[0].GetString("Title")
	require.NoError(t, err)
	assert.Equal(t, `Say "hi", again`, title)
}

func TestHandleReplace(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(t, http.MethodPost, "/api/v1/replace/type_zenkaku", strings.NewReader("髙橋"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ReplaceResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "高橋", resp.Output)
	require.Len(t, resp.Substitutions, 1)
	assert.Equal(t, SubstitutionSummary{Position: 0, From: "髙", To: "高", FromCode: "U+9AD9", ToCode: "U+9AD8"}, resp.Substitutions[0])

	w = env.do(t, http.MethodPost, "/api/v1/replace/unknown", strings.NewReader("x"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestEnv(t, false)
	env.do(t, http.MethodPost, "/api/v1/layouts/books/decode", strings.NewReader("\"2\",\"Go\",\"978\"\r\n"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `recordkit_codec_records_total{file_type="Variable",operation="read",record_type="Books",status="success"} 1`)
	assert.Contains(t, body, "recordkit_http_requests_total")
	assert.Contains(t, body, `recordkit_auth_requests_total{status="success"} 1`)
}
