package datatype

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding"

	"github.com/ssargent/recordkit/pkg/charset"
	"github.com/ssargent/recordkit/pkg/record"
)

// Errors
var (
	// ErrInvalidValue marks data that cannot be converted by a field
	ErrInvalidValue = errors.New("invalid value")
	// ErrInvalidSpec marks a data-type declaration that cannot be resolved
	ErrInvalidSpec = errors.New("invalid data type")
)

// Options carries the layout wide settings a field conversion depends on
type Options struct {
	Encoding     encoding.Encoding
	EncodingName string

	// Sign nibbles; zero selects the encoding's default
	// Sign nibble overrides; nil keeps the encoding default
	PositiveZoneSign *byte
	NegativeZoneSign *byte
	PositivePackSign *byte
	NegativePackSign *byte

	RequiredDecimalPoint bool
	FixedSignPosition    bool
	RequiredPlusSign     bool
}

// DefaultOptions returns the options used when a layout declares nothing
func DefaultOptions(enc encoding.Encoding, name string) Options {
	return Options{
		Encoding:             enc,
		EncodingName:         name,
		RequiredDecimalPoint: true,
		FixedSignPosition:    true,
	}
}

// Spec is a field's data-type declaration as written in a layout
type Spec struct {
	Token  string
	Args   []int
	Pad    string // empty selects Kind.DefaultPad
	PadRaw []byte // binary pad for B fields
}

// Field is a resolved, immutable conversion for one field
type Field struct {
	kind     Kind
	mode     Mode
	token    string
	size     int
	scale    int
	hasScale bool
	pad      string
	padRaw   []byte
	opts     Options
	nibbles  Nibbles
}

type kindOps struct {
	checkArgs  func(mode Mode, args []int) error
	byteLength func(f *Field) int
	decode     func(f *Field, b []byte) (record.Value, error)
	encode     func(f *Field, v record.Value) ([]byte, error)
	decodeText func(f *Field, s string) (record.Value, error)
	encodeText func(f *Field, v record.Value) (string, error)
}

var ops map[Kind]kindOps

func init() {
	sized := func(f *Field) int { return f.size }
	ops = map[Kind]kindOps{
		KindSingleByte:         {checkArgs: textArgs, byteLength: sized, decode: decodeFixedText, encode: encodeFixedText, decodeText: decodeVarText, encodeText: encodeVarText},
		KindDoubleByte:         {checkArgs: doubleByteArgs, byteLength: sized, decode: decodeFixedText, encode: encodeFixedText, decodeText: decodeVarText, encodeText: encodeVarText},
		KindByteStream:         {checkArgs: textArgs, byteLength: sized, decode: decodeFixedText, encode: encodeFixedText, decodeText: decodeVarText, encodeText: encodeVarText},
		KindNumberString:       {checkArgs: numberStringArgs, byteLength: sized, decode: decodeFixedNumber, encode: encodeFixedNumber, decodeText: decodeVarNumber, encodeText: encodeVarNumber},
		KindSignedNumberString: {checkArgs: numberStringArgs, byteLength: sized, decode: decodeFixedNumber, encode: encodeFixedNumber, decodeText: decodeVarNumber, encodeText: encodeVarNumber},
		KindZoned:              {checkArgs: zonedArgs, byteLength: sized, decode: decodeZoned, encode: encodeZoned},
		KindSignedZoned:        {checkArgs: zonedArgs, byteLength: sized, decode: decodeZoned, encode: encodeZoned},
		KindPacked:             {checkArgs: packedArgs, byteLength: sized, decode: decodePacked, encode: encodePacked},
		KindSignedPacked:       {checkArgs: packedArgs, byteLength: sized, decode: decodePacked, encode: encodePacked},
		KindBinary:             {checkArgs: binaryArgs, byteLength: sized, decode: decodeBinary, encode: encodeBinary},
	}
}

func newField(kind Kind, mode Mode, spec Spec, opts Options) (*Field, error) {
	op, ok := ops[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no conversion for %s", ErrInvalidSpec, kind)
	}
	if mode == ModeVariable && op.decodeText == nil {
		return nil, fmt.Errorf("%w: %s is not supported in %s format", ErrInvalidSpec, spec.Token, mode)
	}
	if err := op.checkArgs(mode, spec.Args); err != nil {
		return nil, fmt.Errorf("%w: %s%v: %v", ErrInvalidSpec, spec.Token, spec.Args, err)
	}
	if opts.Encoding == nil {
		return nil, fmt.Errorf("%w: text encoding is not set", ErrInvalidSpec)
	}

	f := &Field{
		kind:   kind,
		mode:   mode,
		token:  spec.Token,
		pad:    spec.Pad,
		padRaw: spec.PadRaw,
		opts:   opts,
	}
	if len(spec.Args) > 0 {
		f.size = spec.Args[0]
	}
	if len(spec.Args) > 1 {
		f.scale = spec.Args[1]
		f.hasScale = true
	}
	if f.pad == "" {
		f.pad = kind.DefaultPad()
	}
	f.nibbles = ResolveNibbles(opts)

	if (mode == ModeFixed && kind.Text()) || kind == KindNumberString || kind == KindSignedNumberString {
		if err := f.checkPad(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Kind returns the data-type kind
func (f *Field) Kind() Kind { return f.kind }

// Mode returns the table the field was resolved from
func (f *Field) Mode() Mode { return f.mode }

// Token returns the declared data-type token
func (f *Field) Token() string { return f.token }

// Size returns the declared size: bytes in fixed mode, characters in variable mode
func (f *Field) Size() int { return f.size }

// Scale returns the declared number of fraction digits
func (f *Field) Scale() int { return f.scale }

// Pad returns the pad character
func (f *Field) Pad() string { return f.pad }

// ByteLength returns the encoded length in fixed mode
func (f *Field) ByteLength() int {
	if f.mode != ModeFixed {
		return 0
	}
	return ops[f.kind].byteLength(f)
}

// Decode converts the field's byte slice of a fixed-length record
func (f *Field) Decode(b []byte) (record.Value, error) {
	if len(b) != f.ByteLength() {
		return record.Value{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidValue, f.ByteLength(), len(b))
	}
	return ops[f.kind].decode(f, b)
}

// Encode renders v to exactly ByteLength bytes
func (f *Field) Encode(v record.Value) ([]byte, error) {
	b, err := ops[f.kind].encode(f, v)
	if err != nil {
		return nil, err
	}
	if len(b) != f.ByteLength() {
		return nil, fmt.Errorf("%w: invalid data length. expected %d bytes, got %d", ErrInvalidValue, f.ByteLength(), len(b))
	}
	return b, nil
}

// DecodeText converts one delimited token
func (f *Field) DecodeText(s string) (record.Value, error) {
	dt := ops[f.kind].decodeText
	if dt == nil {
		return record.Value{}, fmt.Errorf("%w: %s has no text form", ErrInvalidSpec, f.token)
	}
	return dt(f, s)
}

// EncodeText renders one delimited token
func (f *Field) EncodeText(v record.Value) (string, error) {
	et := ops[f.kind].encodeText
	if et == nil {
		return "", fmt.Errorf("%w: %s has no text form", ErrInvalidSpec, f.token)
	}
	return et(f, v)
}

func (f *Field) checkPad() error {
	pb, err := charset.Encode(f.opts.Encoding, f.pad)
	if err != nil {
		return fmt.Errorf("%w: pad character %q: %v", ErrInvalidSpec, f.pad, err)
	}
	if len(pb) == 0 {
		return fmt.Errorf("%w: pad character must not be empty", ErrInvalidSpec)
	}
	if w := f.kind.CharWidth(); f.mode == ModeFixed && w > 0 && len(pb) != w {
		return fmt.Errorf("%w: pad character %q must be %d byte(s) for %s, got %d",
			ErrInvalidSpec, f.pad, w, f.token, len(pb))
	}
	return nil
}

func arg(args []int, i int) (int, bool) {
	if i < len(args) {
		return args[i], true
	}
	return 0, false
}

func textArgs(mode Mode, args []int) error {
	size, ok := arg(args, 0)
	if mode == ModeFixed && !ok {
		return errors.New("size is required")
	}
	if ok && size <= 0 {
		return errors.New("size must be positive")
	}
	if len(args) > 1 {
		return errors.New("too many arguments")
	}
	return nil
}

func doubleByteArgs(mode Mode, args []int) error {
	if err := textArgs(mode, args); err != nil {
		return err
	}
	if size, ok := arg(args, 0); mode == ModeFixed && ok && size%2 != 0 {
		return errors.New("size must be an even number of bytes")
	}
	return nil
}

func numberStringArgs(mode Mode, args []int) error {
	size, ok := arg(args, 0)
	if mode == ModeFixed && !ok {
		return errors.New("size is required")
	}
	if ok && size <= 0 {
		return errors.New("size must be positive")
	}
	if scale, ok := arg(args, 1); ok && scale < 0 {
		return errors.New("scale must not be negative")
	}
	if len(args) > 2 {
		return errors.New("too many arguments")
	}
	return nil
}

func zonedArgs(_ Mode, args []int) error {
	size, ok := arg(args, 0)
	if !ok || size <= 0 {
		return errors.New("size must be positive")
	}
	if scale, ok := arg(args, 1); ok && (scale < 0 || scale > size) {
		return fmt.Errorf("scale must be between 0 and %d", size)
	}
	if len(args) > 2 {
		return errors.New("too many arguments")
	}
	return nil
}

func packedArgs(_ Mode, args []int) error {
	size, ok := arg(args, 0)
	if !ok || size <= 0 {
		return errors.New("size must be positive")
	}
	if scale, ok := arg(args, 1); ok && (scale < 0 || scale > size*2-1) {
		return fmt.Errorf("scale must be between 0 and %d", size*2-1)
	}
	if len(args) > 2 {
		return errors.New("too many arguments")
	}
	return nil
}

func binaryArgs(_ Mode, args []int) error {
	size, ok := arg(args, 0)
	if !ok || size <= 0 {
		return errors.New("size must be positive")
	}
	if scale, ok := arg(args, 1); ok && scale < 0 {
		return errors.New("scale must not be negative")
	}
	if len(args) > 2 {
		return errors.New("too many arguments")
	}
	return nil
}
