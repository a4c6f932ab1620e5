package layout

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a lexer token.
type TokenType uint8

const (
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber // 123
	TokenString // "quoted"
	TokenBinary // 0x00FF

	TokenIdent // file-type, X9, dataKbn

	// Punctuation
	TokenLBracket // [
	TokenRBracket // ]
	TokenLParen   // (
	TokenRParen   // )
	TokenLT       // <
	TokenEq       // =
	TokenColon    // :
	TokenQuestion // ?
	TokenAt       // @
	TokenRange    // ..
	TokenStar     // *
	TokenComma    // ,
)

var tokenNames = [...]string{
	TokenEOF:      "EOF",
	TokenError:    "ERROR",
	TokenNumber:   "NUMBER",
	TokenString:   "STRING",
	TokenBinary:   "BINARY",
	TokenIdent:    "IDENT",
	TokenLBracket: "[",
	TokenRBracket: "]",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenLT:       "<",
	TokenEq:       "=",
	TokenColon:    ":",
	TokenQuestion: "?",
	TokenAt:       "@",
	TokenRange:    "..",
	TokenStar:     "*",
	TokenComma:    ",",
}

// String returns the token type name.
func (t TokenType) String() string {
	if int(t) < len(tokenNames) && tokenNames[t] != "" {
		return tokenNames[t]
	}
	return "UNKNOWN"
}

var punctuation = map[byte]TokenType{
	'[': TokenLBracket, ']': TokenRBracket, '(': TokenLParen, ')': TokenRParen,
	'<': TokenLT, '=': TokenEq, ':': TokenColon, '?': TokenQuestion,
	'@': TokenAt, '*': TokenStar, ',': TokenComma,
}

// Position is a 1-based location in a layout file.
type Position struct {
	Line   int
	Column int
}

// String returns position as "line:column".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexer token.
type Token struct {
	Type  TokenType
	Value string
	Raw   []byte // decoded bytes of a BINARY token
	Pos   Position
}

// String returns a debug representation of the token.
func (t Token) String() string {
	if t.Value == "" {
		return t.Type.String()
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Value)
}

// Lexer tokenizes layout text.
type Lexer struct {
	input string
	pos   int
	line  int
	col   int
	err   *SyntaxError
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

// Tokenize returns all tokens from the input. The error, when not nil, is a
// *SyntaxError without a file path.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok := l.nextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	if l.err != nil {
		return tokens, l.err
	}
	return tokens, nil
}

func (l *Lexer) fail(pos Position, format string, args ...any) Token {
	l.err = &SyntaxError{Line: pos.Line, Column: pos.Column, Msg: fmt.Sprintf(format, args...)}
	return Token{Type: TokenError, Pos: pos}
}

func (l *Lexer) nextToken() Token {
	l.skipWhitespaceAndComments()

	startPos := l.currentPos()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: startPos}
	}

	ch := l.peek()
	if typ, ok := punctuation[ch]; ok {
		l.advance()
		return Token{Type: typ, Value: string(ch), Pos: startPos}
	}

	switch {
	case ch == '.':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '.' {
			l.advance()
			l.advance()
			return Token{Type: TokenRange, Value: "..", Pos: startPos}
		}
		l.advance()
		return l.fail(startPos, "unexpected character '.'")
	case ch == '"':
		return l.scanString()
	case ch == '0' && l.pos+1 < len(l.input) && (l.input[l.pos+1] == 'x' || l.input[l.pos+1] == 'X'):
		return l.scanBinary()
	case isDigit(ch):
		return l.scanNumber()
	}

	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	if isIdentStart(r) {
		return l.scanIdent()
	}
	l.advance()
	return l.fail(startPos, "unexpected character %q", r)
}

// scanString scans a quoted string.
func (l *Lexer) scanString() Token {
	startPos := l.currentPos()
	l.advance() // consume opening "

	var sb strings.Builder
	for {
		if l.pos >= len(l.input) || l.peek() == '\n' {
			return l.fail(startPos, "unterminated string literal")
		}
		ch := l.peek()
		if ch == '"' {
			l.advance()
			break
		}
		if ch != '\\' {
			_, size := utf8.DecodeRuneInString(l.input[l.pos:])
			sb.WriteString(l.input[l.pos : l.pos+size])
			l.advance()
			continue
		}

		l.advance()
		if l.pos >= len(l.input) {
			return l.fail(startPos, "unterminated escape sequence")
		}
		escaped := l.peek()
		l.advance()
		switch escaped {
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '"', '\'':
			sb.WriteByte(escaped)
		default:
			return l.fail(startPos, "invalid escape sequence '\\%c'", escaped)
		}
	}
	return Token{Type: TokenString, Value: sb.String(), Pos: startPos}
}

// scanBinary scans a 0x hex literal.
func (l *Lexer) scanBinary() Token {
	startPos := l.currentPos()
	l.advance()
	l.advance()
	start := l.pos
	for l.pos < len(l.input) && isHexDigit(l.peek()) {
		l.advance()
	}
	digits := l.input[start:l.pos]
	if digits == "" || len(digits)%2 != 0 {
		return l.fail(startPos, "binary literal must have an even number of hex digits: 0x%s", digits)
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return l.fail(startPos, "invalid binary literal 0x%s", digits)
	}
	return Token{Type: TokenBinary, Value: "0x" + strings.ToUpper(digits), Raw: raw, Pos: startPos}
}

func (l *Lexer) scanNumber() Token {
	startPos := l.currentPos()
	start := l.pos
	for l.pos < len(l.input) && isDigit(l.peek()) {
		l.advance()
	}
	return Token{Type: TokenNumber, Value: l.input[start:l.pos], Pos: startPos}
}

func (l *Lexer) scanIdent() Token {
	startPos := l.currentPos()
	start := l.pos
	for l.pos < len(l.input) {
		r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isIdentContinue(r) {
			break
		}
		l.advance()
	}
	return Token{Type: TokenIdent, Value: l.input[start:l.pos], Pos: startPos}
}

// skipWhitespaceAndComments skips whitespace and # comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
		switch {
		case r == '#':
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.advance()
			}
		case unicode.IsSpace(r):
			l.advance()
		default:
			return
		}
	}
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

// advance consumes one rune.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

func (l *Lexer) currentPos() Position {
	return Position{Line: l.line, Column: l.col}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentContinue(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '-'
}

// TokenStream provides a stream interface over tokens.
type TokenStream struct {
	tokens []Token
	pos    int
}

// NewTokenStream creates a token stream from tokens.
func NewTokenStream(tokens []Token) *TokenStream {
	return &TokenStream{tokens: tokens}
}

// Peek returns the current token without advancing.
func (ts *TokenStream) Peek() Token {
	if ts.pos >= len(ts.tokens) {
		return Token{Type: TokenEOF}
	}
	return ts.tokens[ts.pos]
}

// PeekN returns the token N positions ahead.
func (ts *TokenStream) PeekN(n int) Token {
	idx := ts.pos + n
	if idx >= len(ts.tokens) {
		return Token{Type: TokenEOF}
	}
	return ts.tokens[idx]
}

// Advance moves to the next token and returns the current one.
func (ts *TokenStream) Advance() Token {
	tok := ts.Peek()
	if ts.pos < len(ts.tokens) {
		ts.pos++
	}
	return tok
}

// Match returns true and advances if the current token matches.
func (ts *TokenStream) Match(typ TokenType) bool {
	if ts.Peek().Type == typ {
		ts.Advance()
		return true
	}
	return false
}

// AtEnd returns true if at end of stream.
func (ts *TokenStream) AtEnd() bool {
	return ts.Peek().Type == TokenEOF
}
