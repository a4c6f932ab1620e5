package api

import (
	"github.com/ssargent/recordkit/pkg/archive"
	"github.com/ssargent/recordkit/pkg/codec"
	"github.com/ssargent/recordkit/pkg/logger"
	"github.com/ssargent/recordkit/pkg/record"
	"github.com/ssargent/recordkit/pkg/replace"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port        int
	Bind        string
	APIKey      string
	CORSOrigins []string
	LayoutDir   string
	MaxBodySize int64
}

// Dependencies are the services the handlers use. Archive and Replacer
// may be nil; their endpoints then answer 404.
type Dependencies struct {
	Formatters *codec.Factory
	Replacer   *replace.Registry
	Archive    *archive.Archive
	Metrics    *Metrics
	Logger     logger.Logger
}

// LayoutSummary describes one layout file
type LayoutSummary struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`
	FileType    string   `json:"file_type,omitempty"`
	Encoding    string   `json:"encoding,omitempty"`
	RecordTypes []string `json:"record_types,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// LayoutDetail is a layout with its directives and fields
type LayoutDetail struct {
	LayoutSummary
	Directives map[string]string `json:"directives"`
	Classifier []FieldSummary    `json:"classifier,omitempty"`
	Records    []RecordSummary   `json:"records"`
}

// RecordSummary describes one record type
type RecordSummary struct {
	Name       string            `json:"name"`
	Base       string            `json:"base,omitempty"`
	Conditions map[string]string `json:"conditions,omitempty"`
	Fields     []FieldSummary    `json:"fields"`
}

// FieldSummary describes one field row
type FieldSummary struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
	Token    string `json:"token"`
	Args     []int  `json:"args,omitempty"`
	Default  string `json:"default,omitempty"`
	Filler   bool   `json:"filler,omitempty"`
	Required bool   `json:"required"`
}

// DecodeResponse is the result of decoding a payload
type DecodeResponse struct {
	Layout   string               `json:"layout"`
	Count    int                  `json:"count"`
	Records  []*record.DataRecord `json:"records"`
	Archived []string             `json:"archived,omitempty"`
}

// EncodeRequest carries the records to encode. An empty recordType is
// inferred from the layout's conditions.
type EncodeRequest struct {
	Records []*record.DataRecord `json:"records"`
}

// ReplaceResponse reports a character replacement
type ReplaceResponse struct {
	Type          string                `json:"type"`
	Output        string                `json:"output"`
	Substitutions []SubstitutionSummary `json:"substitutions"`
}

// SubstitutionSummary is one replaced character
type SubstitutionSummary struct {
	Position int    `json:"position"`
	From     string `json:"from"`
	To       string `json:"to"`
	FromCode string `json:"from_code"`
	ToCode   string `json:"to_code"`
}

// ArchiveEntry is an archived record as returned by the API
type ArchiveEntry struct {
	ID         string             `json:"id"`
	RecordType string             `json:"record_type"`
	Layout     string             `json:"layout"`
	ArchivedAt string             `json:"archived_at"`
	Record     *record.DataRecord `json:"record"`
}
