package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ssargent/recordkit/pkg/datatype"
)

// Option configures parsing
type Option func(*parseConfig)

type parseConfig struct {
	registry   *datatype.Registry
	separators []string
}

// WithRegistry validates data-type and convertor tokens against reg instead
// of the default tables
func WithRegistry(reg *datatype.Registry) Option {
	return func(c *parseConfig) { c.registry = reg }
}

// WithAllowedRecordSeparators replaces the record-separator allow-list
func WithAllowedRecordSeparators(seps []string) Option {
	return func(c *parseConfig) {
		if len(seps) > 0 {
			c.separators = seps
		}
	}
}

// ParseFile reads and parses the layout at path
func ParseFile(path string, opts ...Option) (*Definition, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve layout path %s: %w", path, err)
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", abs, err)
	}
	return Parse(abs, src, opts...)
}

// Parse parses and validates layout text. path is only used in messages.
func Parse(path string, src []byte, opts ...Option) (*Definition, error) {
	cfg := parseConfig{separators: DefaultRecordSeparators}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = datatype.NewRegistry(nil)
	}

	tokens, err := NewLexer(string(src)).Tokenize()
	if err != nil {
		if se, ok := err.(*SyntaxError); ok {
			se.Path = path
		}
		return nil, err
	}

	p := &parser{path: path, ts: NewTokenStream(tokens), def: &Definition{path: path}}
	sections, err := p.parse()
	if err != nil {
		return nil, err
	}
	v := &validator{path: path, def: p.def, cfg: cfg}
	if err := v.run(sections); err != nil {
		return nil, err
	}
	return p.def, nil
}

type parser struct {
	path string
	ts   *TokenStream
	def  *Definition
}

func (p *parser) errorf(tok Token, format string, args ...any) error {
	return &SyntaxError{Path: p.path, Line: tok.Pos.Line, Column: tok.Pos.Column, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(typ TokenType, what string) (Token, error) {
	tok := p.ts.Peek()
	if tok.Type != typ {
		return tok, p.errorf(tok, "expected %s but was %s", what, tok)
	}
	return p.ts.Advance(), nil
}

func (p *parser) parse() ([]*RecordDefinition, error) {
	for p.ts.Peek().Type == TokenIdent && p.ts.PeekN(1).Type == TokenColon {
		if err := p.parseDirective(); err != nil {
			return nil, err
		}
	}

	var sections []*RecordDefinition
	for p.ts.Peek().Type == TokenLBracket {
		rec, err := p.parseSection()
		if err != nil {
			return nil, err
		}
		sections = append(sections, rec)
	}
	if tok := p.ts.Peek(); !p.ts.AtEnd() {
		return nil, p.errorf(tok, "unexpected token %s", tok)
	}
	if len(sections) == 0 {
		return nil, &SyntaxError{Path: p.path, Msg: "layout has no record section"}
	}
	return sections, nil
}

func (p *parser) parseDirective() error {
	key := p.ts.Advance()
	p.ts.Advance() // ':'
	if _, dup := p.def.Directive(key.Value); dup {
		return p.errorf(key, "directive '%s' was duplicated", key.Value)
	}
	lit, err := p.parseLiteral(true)
	if err != nil {
		return err
	}
	p.def.directives = append(p.def.directives, Directive{Key: key.Value, Value: lit, Line: key.Pos.Line})
	return nil
}

// parseLiteral reads a string, number or binary literal, and true/false
// when allowBool is set
func (p *parser) parseLiteral(allowBool bool) (Literal, error) {
	tok := p.ts.Peek()
	switch tok.Type {
	case TokenString:
		p.ts.Advance()
		return Literal{Kind: LiteralString, Text: tok.Value}, nil
	case TokenBinary:
		p.ts.Advance()
		return Literal{Kind: LiteralBinary, Text: tok.Value, Raw: tok.Raw}, nil
	case TokenNumber:
		p.ts.Advance()
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return Literal{}, p.errorf(tok, "number is out of range: %s", tok.Value)
		}
		return Literal{Kind: LiteralNumber, Text: tok.Value, Int: n}, nil
	case TokenIdent:
		if allowBool && (tok.Value == "true" || tok.Value == "false") {
			p.ts.Advance()
			return Literal{Kind: LiteralBool, Text: tok.Value, Bool: tok.Value == "true"}, nil
		}
	}
	return Literal{}, p.errorf(tok, "expected a literal but was %s", tok)
}

func (p *parser) parseSection() (*RecordDefinition, error) {
	open := p.ts.Advance() // '['
	name, err := p.expect(TokenIdent, "record type name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRBracket, "']'"); err != nil {
		return nil, err
	}
	rec := &RecordDefinition{Name: name.Value, Line: open.Pos.Line}

	if p.ts.Match(TokenLT) {
		if _, err := p.expect(TokenLBracket, "'['"); err != nil {
			return nil, err
		}
		base, err := p.expect(TokenIdent, "base record type name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRBracket, "']'"); err != nil {
			return nil, err
		}
		rec.BaseName = base.Value
	}

	for p.ts.Peek().Type == TokenIdent && p.ts.PeekN(1).Type == TokenEq {
		field := p.ts.Advance()
		p.ts.Advance() // '='
		lit, err := p.parseLiteral(false)
		if err != nil {
			return nil, err
		}
		if lit.Kind == LiteralBinary {
			return nil, p.errorf(field, "condition value must be a string or number. field name=[%s]", field.Value)
		}
		rec.Conditions = append(rec.Conditions, Condition{Field: field.Value, Value: lit.Text, Line: field.Pos.Line})
	}

	for p.ts.Peek().Type == TokenNumber {
		f, err := p.parseField(rec)
		if err != nil {
			return nil, err
		}
		rec.Fields = append(rec.Fields, f)
	}
	return rec, nil
}

func (p *parser) parseField(rec *RecordDefinition) (*FieldDefinition, error) {
	posTok := p.ts.Advance()
	pos, err := strconv.Atoi(posTok.Value)
	if err != nil || pos <= 0 {
		return nil, p.errorf(posTok, "field position must be a positive number: %s", posTok.Value)
	}
	f := &FieldDefinition{Position: pos, Line: posTok.Pos.Line, MinArraySize: 1, MaxArraySize: 1}

	switch {
	case p.ts.Match(TokenQuestion):
		f.Filler = true
	case p.ts.Match(TokenAt):
		f.Attribute = true
	}

	name, err := p.expect(TokenIdent, "field name")
	if err != nil {
		return nil, err
	}
	f.Name = name.Value

	if p.atArity() {
		if err := p.parseArity(f); err != nil {
			return nil, err
		}
	}

	tok := p.ts.Peek()
	if tok.Type != TokenIdent {
		return nil, p.errorf(tok, "data type was not specified. record type=[%s], field name=[%s]", rec.Name, f.Name)
	}
	p.ts.Advance()
	f.Token = tok.Value
	if p.ts.Peek().Type == TokenLParen {
		if f.Args, err = p.parseIntArgs(); err != nil {
			return nil, err
		}
	}

	if err := p.parseItems(f); err != nil {
		return nil, err
	}
	f.Required = !f.Filler && f.Default == nil && f.MinArraySize > 0
	return f, nil
}

func (p *parser) parseItems(f *FieldDefinition) error {
	for {
		tok := p.ts.Peek()
		switch {
		case tok.Type == TokenString || tok.Type == TokenBinary:
			if f.Default != nil {
				return p.errorf(tok, "default value was duplicated. field name=[%s]", f.Name)
			}
			lit, err := p.parseLiteral(false)
			if err != nil {
				return err
			}
			f.Default = &lit
		case tok.Type == TokenIdent && tok.Value == "pad" && p.ts.PeekN(1).Type == TokenLParen:
			p.ts.Advance()
			p.ts.Advance()
			lit, err := p.parseLiteral(false)
			if err != nil {
				return err
			}
			if _, err := p.expect(TokenRParen, "')'"); err != nil {
				return err
			}
			f.Pad = &lit
		case tok.Type == TokenIdent:
			p.ts.Advance()
			cs := ConvertorSpec{Name: tok.Value}
			if p.ts.Match(TokenLParen) {
				for {
					lit, err := p.parseLiteral(false)
					if err != nil {
						return err
					}
					cs.Args = append(cs.Args, lit.String())
					if !p.ts.Match(TokenComma) {
						break
					}
				}
				if _, err := p.expect(TokenRParen, "')'"); err != nil {
					return err
				}
			}
			f.Convertors = append(f.Convertors, cs)
		case p.atArity():
			if f.ArraySyntax {
				return p.errorf(tok, "array size was duplicated. field name=[%s]", f.Name)
			}
			if err := p.parseArity(f); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *parser) parseIntArgs() ([]int, error) {
	p.ts.Advance() // '('
	var args []int
	for {
		tok, err := p.expect(TokenNumber, "number")
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(tok.Value)
		if err != nil {
			return nil, p.errorf(tok, "number is out of range: %s", tok.Value)
		}
		args = append(args, n)
		if !p.ts.Match(TokenComma) {
			break
		}
	}
	if _, err := p.expect(TokenRParen, "')'"); err != nil {
		return nil, err
	}
	return args, nil
}

// atArity tells an array suffix from the next section header
func (p *parser) atArity() bool {
	if p.ts.Peek().Type != TokenLBracket {
		return false
	}
	next := p.ts.PeekN(1).Type
	return next == TokenNumber || next == TokenStar
}

func (p *parser) parseArity(f *FieldDefinition) error {
	p.ts.Advance() // '['
	f.ArraySyntax = true
	if p.ts.Match(TokenStar) {
		f.MinArraySize, f.MaxArraySize = 0, Unbounded
	} else {
		lo, err := p.arraySize()
		if err != nil {
			return err
		}
		f.MinArraySize, f.MaxArraySize = lo, lo
		if p.ts.Match(TokenRange) {
			if p.ts.Match(TokenStar) {
				f.MaxArraySize = Unbounded
			} else if f.MaxArraySize, err = p.arraySize(); err != nil {
				return err
			}
		}
	}
	_, err := p.expect(TokenRBracket, "']'")
	return err
}

func (p *parser) arraySize() (int, error) {
	tok, err := p.expect(TokenNumber, "array size")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(tok.Value, 10, 32)
	if err != nil {
		return 0, p.errorf(tok, "array size must be within the 32-bit signed integer range. value=[%s]", tok.Value)
	}
	return int(n), nil
}
