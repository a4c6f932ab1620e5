package api

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/recordkit/pkg/archive"
	"github.com/ssargent/recordkit/pkg/codec"
	"github.com/ssargent/recordkit/pkg/config"
	"github.com/ssargent/recordkit/pkg/layout"
	"github.com/ssargent/recordkit/pkg/logger"
	"github.com/ssargent/recordkit/pkg/record"
	"github.com/ssargent/recordkit/pkg/replace"
)

const (
	defaultMaxBodySize  = 32 << 20
	defaultArchiveLimit = 100
)

var errStopScan = errors.New("stop scan")

// Server holds the API server state
type Server struct {
	config ServerConfig
	deps   Dependencies
	log    logger.Logger
}

// NewServer creates a new API server
func NewServer(config ServerConfig, deps Dependencies) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = defaultMaxBodySize
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Formatters == nil {
		deps.Formatters = codec.NewFactory(nil, nil, deps.Logger, deps.Metrics)
	}
	return &Server{config: config, deps: deps, log: deps.Logger}
}

// handleHealth reports service status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.deps.Metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]interface{}{
		"status":       "healthy",
		"cached":       s.deps.Formatters.Cache().Size(),
		"archive":      s.deps.Archive != nil,
		"replacements": s.replacementNames(),
		"layout_dir":   s.config.LayoutDir,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) replacementNames() []string {
	if s.deps.Replacer == nil {
		return nil
	}
	return s.deps.Replacer.Names()
}

// handleListLayouts lists the layout files in the layout directory. Files
// that fail to parse are listed with their error.
func (s *Server) handleListLayouts(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.config.LayoutDir)
	if err != nil {
		sendError(w, "Failed to read layout directory", http.StatusInternalServerError)
		return
	}

	summaries := make([]LayoutSummary, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != config.LayoutExt {
			continue
		}
		name := strings.TrimSuffix(e.Name(), config.LayoutExt)
		path := filepath.Join(s.config.LayoutDir, e.Name())
		def, err := s.loadLayout(path)
		if err != nil {
			summaries = append(summaries, LayoutSummary{Name: name, Path: path, Error: err.Error()})
			continue
		}
		summaries = append(summaries, summarize(name, def))
	}
	sendSuccess(w, summaries)
}

// handleGetLayout describes one layout
func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := config.ResolveLayout(s.config.LayoutDir, name)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	def, err := s.loadLayout(path)
	if err != nil {
		s.sendLayoutError(w, err)
		return
	}
	sendSuccess(w, describe(name, def))
}

// handleDecode converts the raw request body into records. With
// ?archive=true the records are also written to the archive.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := config.ResolveLayout(s.config.LayoutDir, name)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	toArchive := r.URL.Query().Get("archive") == "true"
	if toArchive && s.deps.Archive == nil {
		sendError(w, "Archive is not configured", http.StatusNotFound)
		return
	}
	if _, err := s.loadLayout(path); err != nil {
		s.sendLayoutError(w, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
	fm, err := s.deps.Formatters.NewReader(path, "request:"+name, body)
	if err != nil {
		s.sendLayoutError(w, err)
		return
	}
	defer fm.Close()

	resp := DecodeResponse{Layout: name, Records: []*record.DataRecord{}}
	for {
		rec, err := fm.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.sendCodecError(w, err)
			return
		}
		resp.Records = append(resp.Records, rec)
	}
	resp.Count = len(resp.Records)

	if toArchive {
		for _, rec := range resp.Records {
			entry, err := s.deps.Archive.Put(path, rec)
			s.deps.Metrics.RecordArchive(rec.RecordType(), err == nil)
			if err != nil {
				s.log.Error("archive failed", "layout", name, "error", err)
				sendError(w, "Failed to archive records: "+err.Error(), http.StatusInternalServerError)
				return
			}
			resp.Archived = append(resp.Archived, entry.ID.String())
		}
	}
	sendSuccess(w, resp)
}

// handleEncode converts JSON records into the layout's wire format
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := config.ResolveLayout(s.config.LayoutDir, name)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req EncodeRequest
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		sendError(w, "Invalid JSON in request body", http.StatusBadRequest)
		return
	}
	if len(req.Records) == 0 {
		sendError(w, "At least one record is required", http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	fm, err := s.deps.Formatters.NewWriter(path, "response:"+name, &buf)
	if err != nil {
		s.sendLayoutError(w, err)
		return
	}
	for _, rec := range req.Records {
		if rec == nil {
			sendError(w, "Records must not be null", http.StatusBadRequest)
			return
		}
		if err := fm.WriteRecord(rec); err != nil {
			s.sendCodecError(w, err)
			return
		}
	}
	if err := fm.Close(); err != nil {
		sendError(w, "Failed to flush output", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Record-Count", strconv.Itoa(len(req.Records)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleReplace applies a replacement type to the request body text
func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "type")
	if !s.deps.Replacer.Has(typeName) {
		sendError(w, "Replacement type not found: "+typeName, http.StatusNotFound)
		return
	}
	text, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodySize))
	if err != nil {
		sendError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	out, res, err := s.deps.Replacer.Replace(typeName, string(text))
	if err != nil {
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.deps.Metrics.RecordReplacements(typeName, len(res.Substitutions))

	resp := ReplaceResponse{Type: typeName, Output: out, Substitutions: []SubstitutionSummary{}}
	for _, sub := range res.Substitutions {
		resp.Substitutions = append(resp.Substitutions, SubstitutionSummary{
			Position: sub.Position,
			From:     string(sub.From),
			To:       string(sub.To),
			FromCode: replace.CodePoint(sub.From),
			ToCode:   replace.CodePoint(sub.To),
		})
	}
	sendSuccess(w, resp)
}

// handleListArchive lists archived records of one record type
func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		sendError(w, "Archive is not configured", http.StatusNotFound)
		return
	}
	recordType := chi.URLParam(r, "recordType")
	limit := defaultArchiveLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			sendError(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries := []ArchiveEntry{}
	err := s.deps.Archive.Scan(recordType, func(e *archive.Entry) error {
		entries = append(entries, toArchiveEntry(e))
		if len(entries) >= limit {
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		sendError(w, "Failed to scan archive: "+err.Error(), http.StatusInternalServerError)
		return
	}
	sendSuccess(w, entries)
}

// handleGetArchive returns one archived record
func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		sendError(w, "Archive is not configured", http.StatusNotFound)
		return
	}
	id, err := ksuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, "Invalid archive id", http.StatusBadRequest)
		return
	}
	entry, err := s.deps.Archive.Get(chi.URLParam(r, "recordType"), id)
	if errors.Is(err, archive.ErrNotFound) {
		sendError(w, "Archive entry not found", http.StatusNotFound)
		return
	}
	if err != nil {
		sendError(w, "Failed to read archive: "+err.Error(), http.StatusInternalServerError)
		return
	}
	sendSuccess(w, toArchiveEntry(entry))
}

// handleDeleteArchive removes one archived record
func (s *Server) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	if s.deps.Archive == nil {
		sendError(w, "Archive is not configured", http.StatusNotFound)
		return
	}
	id, err := ksuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, "Invalid archive id", http.StatusBadRequest)
		return
	}
	if err := s.deps.Archive.Delete(chi.URLParam(r, "recordType"), id); err != nil {
		sendError(w, "Failed to delete archive entry: "+err.Error(), http.StatusInternalServerError)
		return
	}
	sendSuccess(w, map[string]string{"status": "deleted", "id": id.String()})
}

func (s *Server) loadLayout(path string) (*layout.Definition, error) {
	def, err := s.deps.Formatters.Cache().Load(path)
	if err == nil {
		err = def.Initialize(s.deps.Formatters.Registry())
	}
	s.deps.Metrics.RecordLayoutLoad(err == nil)
	if err != nil {
		return nil, err
	}
	return def, nil
}

func (s *Server) sendLayoutError(w http.ResponseWriter, err error) {
	var se *layout.SyntaxError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		sendError(w, "Layout not found", http.StatusNotFound)
	case errors.As(err, &se):
		sendError(w, "Invalid layout: "+se.Error(), http.StatusUnprocessableEntity)
	default:
		s.log.Error("layout load failed", "error", err)
		sendError(w, "Failed to load layout: "+err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) sendCodecError(w http.ResponseWriter, err error) {
	var ide *codec.InvalidDataFormatError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
	case errors.As(err, &ide):
		sendError(w, ide.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, codec.ErrIllegalArgument):
		sendError(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("codec failed", "error", err)
		sendError(w, "Conversion failed: "+err.Error(), http.StatusInternalServerError)
	}
}

func toArchiveEntry(e *archive.Entry) ArchiveEntry {
	return ArchiveEntry{
		ID:         e.ID.String(),
		RecordType: e.RecordType,
		Layout:     e.Layout,
		ArchivedAt: e.ArchivedAt.UTC().Format(time.RFC3339Nano),
		Record:     e.Record,
	}
}

func summarize(name string, def *layout.Definition) LayoutSummary {
	types := make([]string, 0, len(def.Records()))
	for _, r := range def.Records() {
		types = append(types, r.Name)
	}
	return LayoutSummary{
		Name:        name,
		Path:        def.Path(),
		FileType:    def.FileType().String(),
		Encoding:    def.EncodingName(),
		RecordTypes: types,
	}
}

func describe(name string, def *layout.Definition) LayoutDetail {
	d := LayoutDetail{
		LayoutSummary: summarize(name, def),
		Directives:    make(map[string]string, len(def.Directives())),
	}
	for _, dir := range def.Directives() {
		d.Directives[dir.Key] = dir.Value.String()
	}
	if cls := def.Classifier(); cls != nil {
		d.Classifier = fieldSummaries(cls)
	}
	for _, r := range def.Records() {
		rs := RecordSummary{Name: r.Name, Base: r.BaseName, Fields: fieldSummaries(r)}
		if len(r.Conditions) > 0 {
			rs.Conditions = make(map[string]string, len(r.Conditions))
			for _, c := range r.Conditions {
				rs.Conditions[c.Field] = c.Value
			}
		}
		d.Records = append(d.Records, rs)
	}
	return d
}

func fieldSummaries(r *layout.RecordDefinition) []FieldSummary {
	out := make([]FieldSummary, 0, len(r.Fields))
	for _, f := range r.Fields {
		sum := FieldSummary{
			Name:     f.Name,
			Position: f.Position,
			Token:    f.Token,
			Args:     f.Args,
			Filler:   f.Filler,
			Required: f.Required,
		}
		if f.Default != nil {
			sum.Default = f.Default.String()
		}
		out = append(out, sum)
	}
	return out
}
