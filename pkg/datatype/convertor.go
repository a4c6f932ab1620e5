package datatype

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ssargent/recordkit/pkg/record"
	"github.com/ssargent/recordkit/pkg/replace"
)

// Convertor post-processes a decoded value and pre-processes a value before
// it is encoded. Convertors stack on top of a field's data type.
type Convertor interface {
	Name() string
	Read(v record.Value) (record.Value, error)
	Write(v record.Value) (record.Value, error)
}

// ConvertorFactory builds a convertor from the literal arguments written in a
// layout, e.g. replacement("type_zenkaku").
type ConvertorFactory func(args []string) (Convertor, error)

// numberConvertor turns text into an exact decimal on read and back on write
type numberConvertor struct {
	signed bool
}

func (c numberConvertor) Name() string {
	if c.signed {
		return "signed_number"
	}
	return "number"
}

func (c numberConvertor) Read(v record.Value) (record.Value, error) {
	switch v.Kind() {
	case record.KindNull, record.KindDecimal:
		return c.check(v)
	case record.KindString:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		if s == "" {
			return record.Null(), nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return record.Value{}, fmt.Errorf("%w: %s: not a number: %q", ErrInvalidValue, c.Name(), s)
		}
		return c.check(record.Decimal(d))
	default:
		return record.Value{}, fmt.Errorf("%w: %s cannot read a %s value", ErrInvalidValue, c.Name(), v.Kind())
	}
}

func (c numberConvertor) Write(v record.Value) (record.Value, error) {
	if v.IsNull() {
		return v, nil
	}
	d, err := numericValue(v)
	if err != nil {
		return record.Value{}, err
	}
	if _, err := c.check(record.Decimal(d)); err != nil {
		return record.Value{}, err
	}
	return record.String(record.FormatDecimal(d)), nil
}

func (c numberConvertor) check(v record.Value) (record.Value, error) {
	if v.IsNull() || c.signed {
		return v, nil
	}
	if d, _ := v.AsDecimal(); d.Sign() < 0 {
		return record.Value{}, fmt.Errorf("%w: number cannot hold a negative value %s", ErrInvalidValue, record.FormatDecimal(d))
	}
	return v, nil
}

type replacementConvertor struct {
	typeName string
	reg      *replace.Registry
}

func (c *replacementConvertor) Name() string { return "replacement" }

func (c *replacementConvertor) Read(v record.Value) (record.Value, error) { return c.apply(v) }

func (c *replacementConvertor) Write(v record.Value) (record.Value, error) { return c.apply(v) }

func (c *replacementConvertor) apply(v record.Value) (record.Value, error) {
	if v.Kind() != record.KindString {
		return v, nil
	}
	s, _ := v.AsString()
	out, _, err := c.reg.Replace(c.typeName, s)
	if err != nil {
		return record.Value{}, err
	}
	return record.String(out), nil
}

func numberFactory(signed bool) ConvertorFactory {
	return func(args []string) (Convertor, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: number convertor takes no arguments", ErrInvalidSpec)
		}
		return numberConvertor{signed: signed}, nil
	}
}

func replacementFactory(reg *replace.Registry) ConvertorFactory {
	return func(args []string) (Convertor, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: replacement requires exactly one type name", ErrInvalidSpec)
		}
		if reg == nil || !reg.Has(args[0]) {
			return nil, fmt.Errorf("%w: replacement type %q is not configured", ErrInvalidSpec, args[0])
		}
		return &replacementConvertor{typeName: args[0], reg: reg}, nil
	}
}
