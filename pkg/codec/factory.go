package codec

import (
	"io"

	"github.com/ssargent/recordkit/pkg/datatype"
	"github.com/ssargent/recordkit/pkg/layout"
	"github.com/ssargent/recordkit/pkg/logger"
)

// Factory creates formatters for layout files, sharing parsed layouts
// through a cache
type Factory struct {
	cache    *layout.Cache
	reg      *datatype.Registry
	log      logger.Logger
	observer Observer
}

// NewFactory creates a factory. A nil registry gets the default tokens.
func NewFactory(cache *layout.Cache, reg *datatype.Registry, log logger.Logger, observer Observer) *Factory {
	if reg == nil {
		reg = datatype.NewRegistry(nil)
	}
	if cache == nil {
		cache = layout.NewCache(true, layout.WithRegistry(reg))
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Factory{cache: cache, reg: reg, log: log, observer: observer}
}

// Cache returns the layout cache
func (f *Factory) Cache() *layout.Cache { return f.cache }

// Registry returns the data-type registry
func (f *Factory) Registry() *datatype.Registry { return f.reg }

// Formatter returns an initialized formatter for the layout at path
func (f *Factory) Formatter(layoutPath, sourcePath string) (*Formatter, error) {
	def, err := f.cache.Load(layoutPath)
	if err != nil {
		return nil, err
	}
	fm := NewFormatter(
		WithRegistry(f.reg),
		WithLogger(f.log.With("layout", def.Path())),
		WithObserver(f.observer),
		WithSourcePath(sourcePath),
	)
	fm.SetDefinition(def)
	if err := fm.Initialize(); err != nil {
		return nil, err
	}
	return fm, nil
}

// NewReader returns a formatter reading r with the layout at layoutPath
func (f *Factory) NewReader(layoutPath, sourcePath string, r io.Reader) (*Formatter, error) {
	fm, err := f.Formatter(layoutPath, sourcePath)
	if err != nil {
		return nil, err
	}
	return fm.SetInputStream(r), nil
}

// NewWriter returns a formatter writing w with the layout at layoutPath
func (f *Factory) NewWriter(layoutPath, sourcePath string, w io.Writer) (*Formatter, error) {
	fm, err := f.Formatter(layoutPath, sourcePath)
	if err != nil {
		return nil, err
	}
	return fm.SetOutputStream(w), nil
}
