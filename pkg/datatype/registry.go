package datatype

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ssargent/recordkit/pkg/replace"
)

var defaultTokens = map[Mode]map[string]Kind{
	ModeFixed: {
		"X":   KindSingleByte,
		"N":   KindDoubleByte,
		"XN":  KindByteStream,
		"X9":  KindNumberString,
		"SX9": KindSignedNumberString,
		"Z":   KindZoned,
		"SZ":  KindSignedZoned,
		"P":   KindPacked,
		"SP":  KindSignedPacked,
		"B":   KindBinary,
	},
	ModeVariable: {
		"X":   KindSingleByte,
		"N":   KindDoubleByte,
		"XN":  KindByteStream,
		"X9":  KindNumberString,
		"SX9": KindSignedNumberString,
	},
}

// Registry maps data-type tokens to kinds per mode, and convertor tokens to
// their factories. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	tokens     map[Mode]map[string]Kind
	convertors map[string]ConvertorFactory
}

// NewRegistry returns a registry loaded with the default token tables.
// replacements backs the replacement convertor and may be nil.
func NewRegistry(replacements *replace.Registry) *Registry {
	r := &Registry{
		tokens:     make(map[Mode]map[string]Kind, len(defaultTokens)),
		convertors: make(map[string]ConvertorFactory),
	}
	for mode, table := range defaultTokens {
		r.tokens[mode] = make(map[string]Kind, len(table))
		for token, kind := range table {
			r.tokens[mode][token] = kind
		}
	}
	r.convertors["number"] = numberFactory(false)
	r.convertors["signed_number"] = numberFactory(true)
	r.convertors["replacement"] = replacementFactory(replacements)
	return r
}

// Register binds token to kind in mode, replacing any previous binding
func (r *Registry) Register(mode Mode, token string, kind Kind) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidSpec)
	}
	if _, ok := ops[kind]; !ok {
		return fmt.Errorf("%w: no conversion for %s", ErrInvalidSpec, kind)
	}
	if mode == ModeVariable && ops[kind].decodeText == nil {
		return fmt.Errorf("%w: %s has no text form", ErrInvalidSpec, kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens[mode] == nil {
		r.tokens[mode] = make(map[string]Kind)
	}
	r.tokens[mode][token] = kind
	return nil
}

// RegisterConvertor adds or replaces a value convertor
func (r *Registry) RegisterConvertor(name string, factory ConvertorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convertors[name] = factory
}

// Lookup returns the kind bound to token in mode
func (r *Registry) Lookup(mode Mode, token string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.tokens[mode][token]
	return k, ok
}

// Tokens lists the data-type tokens known in mode, sorted
func (r *Registry) Tokens(mode Mode) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tokens[mode]))
	for t := range r.tokens[mode] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Resolve builds the field conversion for spec
func (r *Registry) Resolve(mode Mode, spec Spec, opts Options) (*Field, error) {
	kind, ok := r.Lookup(mode, spec.Token)
	if !ok {
		return nil, fmt.Errorf("%w: unknown data type %q for %s format", ErrInvalidSpec, spec.Token, mode)
	}
	return newField(kind, mode, spec, opts)
}

// IsConvertor reports whether token names a value convertor
func (r *Registry) IsConvertor(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.convertors[token]
	return ok
}

// Convertor builds the convertor named token
func (r *Registry) Convertor(token string, args []string) (Convertor, error) {
	r.mu.RLock()
	factory, ok := r.convertors[token]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown value convertor %q", ErrInvalidSpec, token)
	}
	return factory(args)
}
