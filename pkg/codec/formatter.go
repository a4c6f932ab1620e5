package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/recordkit/pkg/datatype"
	"github.com/ssargent/recordkit/pkg/layout"
	"github.com/ssargent/recordkit/pkg/logger"
	"github.com/ssargent/recordkit/pkg/record"
)

// Operation names a formatter call for observers
type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

// Observer is told about every record a formatter reads or writes. recordType
// is empty when classification failed.
type Observer interface {
	RecordProcessed(op Operation, fileType, recordType string, err error)
}

// engine is the wire format half of a formatter
type engine interface {
	// readRaw returns io.EOF when the stream has no more records
	readRaw(in *bufio.Reader, recordNumber int) (rawRecord, error)
	classifierValues(raw rawRecord, recordNumber int) (map[string]string, error)
	decode(rec *layout.RecordDefinition, raw rawRecord, recordNumber int) (*record.DataRecord, error)
	encode(rec *layout.RecordDefinition, data *record.DataRecord, recordNumber int) ([]byte, error)
}

// rawRecord is one physical record: bytes for fixed files, tokens for
// variable files
type rawRecord struct {
	bytes  []byte
	tokens []string
}

// Option configures a Formatter
type Option func(*Formatter)

// WithLogger sets the formatter logger
func WithLogger(l logger.Logger) Option {
	return func(f *Formatter) { f.log = l }
}

// WithRegistry sets the registry used to initialize the layout
func WithRegistry(reg *datatype.Registry) Option {
	return func(f *Formatter) { f.reg = reg }
}

// WithObserver reports every record to o
func WithObserver(o Observer) Option {
	return func(f *Formatter) { f.observer = o }
}

// WithSourcePath names the input or output in errors and logs
func WithSourcePath(path string) Option {
	return func(f *Formatter) { f.sourcePath = path }
}

// Formatter reads or writes records of one stream according to a layout.
// It is not safe for concurrent use.
type Formatter struct {
	def        *layout.Definition
	reg        *datatype.Registry
	log        logger.Logger
	observer   Observer
	sourcePath string
	sessionID  ksuid.KSUID

	engine      engine
	classifier  classifier
	initialized bool

	in     *bufio.Reader
	out    *bufio.Writer
	closer []io.Closer

	readCount  int
	writeCount int
}

// NewFormatter creates a formatter. SetDefinition and Initialize must be
// called before any stream is read or written.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{log: logger.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	if f.reg == nil {
		f.reg = datatype.NewRegistry(nil)
	}
	return f
}

// SetDefinition binds the layout
func (f *Formatter) SetDefinition(def *layout.Definition) *Formatter {
	f.def = def
	f.initialized = false
	return f
}

// Definition returns the bound layout
func (f *Formatter) Definition() *layout.Definition { return f.def }

// Initialize resolves the layout's converters and selects the wire format
func (f *Formatter) Initialize() error {
	if f.def == nil {
		return illegalState("layout definition was not set. call SetDefinition before Initialize")
	}
	if err := f.def.Initialize(f.reg); err != nil {
		return err
	}
	var err error
	switch f.def.FileType() {
	case datatype.ModeFixed:
		f.engine, err = newFixedEngine(f.def)
	case datatype.ModeVariable:
		f.engine, err = newVariableEngine(f.def)
	default:
		err = illegalState("unsupported file type %s", f.def.FileType())
	}
	if err != nil {
		return err
	}
	f.classifier = classifier{def: f.def}
	// the session outlives re-initialization with another layout
	if f.sessionID.IsNil() {
		f.sessionID = ksuid.New()
		f.log = f.log.With("session", f.sessionID.String())
	}
	f.initialized = true
	f.log.Info("formatter initialized",
		"layout", f.def.Path(),
		"file_type", f.def.FileType().String(),
		"source", f.sourcePath)
	return nil
}

// SessionID identifies this formatter in logs
func (f *Formatter) SessionID() string {
	if f.sessionID.IsNil() {
		return ""
	}
	return f.sessionID.String()
}

// SetInputStream binds the stream ReadRecord consumes
func (f *Formatter) SetInputStream(r io.Reader) *Formatter {
	f.in = bufio.NewReader(r)
	if c, ok := r.(io.Closer); ok {
		f.closer = append(f.closer, c)
	}
	return f
}

// SetOutputStream binds the stream WriteRecord appends to
func (f *Formatter) SetOutputStream(w io.Writer) *Formatter {
	f.out = bufio.NewWriter(w)
	if c, ok := w.(io.Closer); ok {
		f.closer = append(f.closer, c)
	}
	return f
}

// RecordNumber returns the number of records read or written so far
func (f *Formatter) RecordNumber() int {
	return f.readCount + f.writeCount
}

// ReadRecord reads the next record. It returns io.EOF at the end of the stream.
func (f *Formatter) ReadRecord() (*record.DataRecord, error) {
	if !f.initialized {
		return nil, illegalState("formatter was not initialized")
	}
	if f.in == nil {
		return nil, illegalState("input stream was not set")
	}

	n := f.readCount + 1
	raw, err := f.engine.readRaw(f.in, n)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, f.fail(OpRead, "", err)
	}
	f.readCount = n

	var values map[string]string
	if f.def.Classifier() != nil && !(f.def.RequiresTitle() && n == 1) {
		if values, err = f.engine.classifierValues(raw, n); err != nil {
			return nil, f.fail(OpRead, "", err)
		}
	}
	recDef, err := f.classifier.forRead(values, n)
	if err != nil {
		return nil, f.fail(OpRead, "", err)
	}

	data, err := f.engine.decode(recDef, raw, n)
	if err != nil {
		return nil, f.fail(OpRead, recDef.Name, err)
	}
	if n > 1 && f.def.RequiresTitle() && f.def.Classifier() == nil && f.classifier.duplicateTitle(recordLookup(data)) {
		return nil, f.fail(OpRead, recDef.Name, newInvalidData(n, "title record was found after the first record. title record type=[%s]",
			f.def.TitleRecordTypeName()))
	}

	f.observe(OpRead, recDef.Name, nil)
	f.log.Debug("record read", "record_number", n, "record_type", recDef.Name)
	return data, nil
}

// WriteRecord writes data. The record type is data.RecordType(), or inferred
// from the layout's conditions when empty.
func (f *Formatter) WriteRecord(data *record.DataRecord) error {
	if !f.initialized {
		return illegalState("formatter was not initialized")
	}
	if f.out == nil {
		return illegalState("output stream was not set")
	}
	if data == nil {
		return illegalArgument("record must not be nil")
	}

	n := f.writeCount + 1
	recDef, err := f.classifier.forWrite(data, n)
	if err != nil {
		return f.fail(OpWrite, "", err)
	}
	b, err := f.engine.encode(recDef, data, n)
	if err != nil {
		return f.fail(OpWrite, recDef.Name, err)
	}
	if _, err := f.out.Write(b); err != nil {
		return f.fail(OpWrite, recDef.Name, fmt.Errorf("write record %d: %w", n, err))
	}
	f.writeCount = n

	f.observe(OpWrite, recDef.Name, nil)
	f.log.Debug("record written", "record_number", n, "record_type", recDef.Name)
	return nil
}

// Flush writes buffered output to the underlying stream
func (f *Formatter) Flush() error {
	if f.out == nil {
		return nil
	}
	return f.out.Flush()
}

// Close flushes output and closes the bound streams
func (f *Formatter) Close() error {
	var errs []error
	if err := f.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	for _, c := range f.closer {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closer = nil
	if f.initialized {
		f.log.Info("formatter closed", "records_read", f.readCount, "records_written", f.writeCount)
	}
	return errors.Join(errs...)
}

func (f *Formatter) observe(op Operation, recordType string, err error) {
	if f.observer != nil {
		f.observer.RecordProcessed(op, f.def.FileType().String(), recordType, err)
	}
}

// fail enriches invalid data errors with the layout and source paths
func (f *Formatter) fail(op Operation, recordType string, err error) error {
	var ide *InvalidDataFormatError
	if errors.As(err, &ide) {
		if ide.LayoutPath == "" {
			ide.WithLayoutPath(f.def.Path())
		}
		if ide.SourcePath == "" {
			ide.WithSource(f.sourcePath)
		}
	}
	f.observe(op, recordType, err)
	f.log.Warn("record rejected", "operation", string(op), "record_type", recordType, "error", err)
	return err
}
