package extract

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenOpenBracket
	tokenCloseBracket
	tokenOpenBrace
	tokenCloseBrace
	tokenColon
	tokenComma
	tokenIdent
	tokenString
	tokenOther
)

type token struct {
	kind  tokenKind
	start int
	end   int
	// value holds the identifier text, or the raw contents of a string
	// literal without its quotes.
	value string
	// unterminated marks a string literal that ran to the end of the text.
	unterminated bool
}

type lexState int

const (
	stateCode lexState = iota
	stateString
	stateLineComment
	stateBlockComment
)

// lexer splits configuration text into the tokens the extractor cares
// about. Whitespace and comments are dropped; quote state is tracked so that
// delimiters inside string literals never surface as structural tokens.
type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: src}
}

func (l *lexer) next() token {
	var (
		state = stateCode
		start int
		quote byte
	)

	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch state {
		case stateCode:
			switch {
			case isSpace(c):
				l.pos++
			case c == '/' && l.peek(1) == '/':
				state = stateLineComment
				l.pos += 2
			case c == '/' && l.peek(1) == '*':
				state = stateBlockComment
				l.pos += 2
			case c == '\'' || c == '"' || c == '`':
				state = stateString
				quote = c
				start = l.pos
				l.pos++
			case isIdentByte(c):
				start = l.pos
				for l.pos < len(l.src) && isIdentByte(l.src[l.pos]) {
					l.pos++
				}
				return token{kind: tokenIdent, start: start, end: l.pos, value: l.src[start:l.pos]}
			default:
				l.pos++
				return token{kind: punctuation(c), start: l.pos - 1, end: l.pos}
			}

		case stateString:
			switch c {
			case '\\':
				l.pos += 2
			case quote:
				l.pos++
				return token{kind: tokenString, start: start, end: l.pos, value: l.src[start+1 : l.pos-1]}
			default:
				l.pos++
			}

		case stateLineComment:
			if c == '\n' {
				state = stateCode
			}
			l.pos++

		case stateBlockComment:
			if c == '*' && l.peek(1) == '/' {
				state = stateCode
				l.pos += 2
				continue
			}
			l.pos++
		}
	}

	if l.pos > len(l.src) {
		l.pos = len(l.src)
	}
	if state == stateString {
		return token{kind: tokenString, start: start, end: l.pos, value: l.src[start+1:], unterminated: true}
	}
	return token{kind: tokenEOF, start: len(l.src), end: len(l.src)}
}

func (l *lexer) peek(n int) byte {
	if l.pos+n < len(l.src) {
		return l.src[l.pos+n]
	}
	return 0
}

func punctuation(c byte) tokenKind {
	switch c {
	case '[':
		return tokenOpenBracket
	case ']':
		return tokenCloseBracket
	case '{':
		return tokenOpenBrace
	case '}':
		return tokenCloseBrace
	case ':':
		return tokenColon
	case ',':
		return tokenComma
	default:
		return tokenOther
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

// isIdentByte accepts ASCII identifier characters and every non-ASCII byte,
// which keeps multi-byte identifiers in one token.
func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9') ||
		c >= 0x80
}
