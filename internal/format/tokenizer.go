package format

import (
	"strconv"
	"strings"
)

// TokenType distinguishes literal text from substitution directives
type TokenType int

const (
	TokenLiteral TokenType = iota
	TokenSpecifier
)

// Token is one piece of a tokenized format string
type Token struct {
	Type TokenType

	// Value holds the text of a literal token.
	Value string

	// Specifier fields.
	Specifier byte
	Precision int // -1 when absent
	Index     int // zero-based substitution index
	Raw       string
}

// Tokenize splits format into literal and specifier tokens using the default
// directive letters. It does not know how many substitutions exist, so every
// recognised directive becomes a specifier token.
func Tokenize(format string) []Token {
	return tokenize(format, defaultKnown, -1, nil)
}

func defaultKnown(letter byte) bool {
	_, ok := defaultFormatters[letter]
	return ok
}

// tokenize walks format once. When available is non-negative, directives that
// point past the available substitutions are emitted as literal text and the
// implicit counter is rewound to where it was before the directive.
func tokenize(format string, known func(byte) bool, available int, onMissing func(Token)) []Token {
	var tokens []Token

	addString := func(s string) {
		if s == "" {
			return
		}
		if n := len(tokens); n > 0 && tokens[n-1].Type == TokenLiteral {
			tokens[n-1].Value += s
			return
		}
		tokens = append(tokens, Token{Type: TokenLiteral, Value: s})
	}

	index := 0
	substitution := 0

	for {
		rel := strings.IndexByte(format[index:], '%')
		if rel < 0 {
			break
		}
		percent := index + rel
		addString(format[index:percent])
		index = percent + 1

		// %% escape
		if index < len(format) && format[index] == '%' {
			addString("%")
			index++
			continue
		}

		previous := substitution

		if isDigitAt(format, index) {
			start := index
			for isDigitAt(format, index) {
				index++
			}
			n, err := strconv.Atoi(format[start:index])
			if err == nil && n > 0 && index < len(format) && format[index] == '$' {
				substitution = n - 1
				index++
			}
		}

		precision := -1
		if index < len(format) && format[index] == '.' {
			index++
			start := index
			for isDigitAt(format, index) {
				index++
			}
			precision = 0
			if index > start {
				if p, err := strconv.Atoi(format[start:index]); err == nil {
					precision = p
				}
			}
		}

		if index >= len(format) || !known(format[index]) {
			end := min(index+1, len(format))
			addString(format[percent:end])
			index = end
			substitution = previous
			continue
		}

		tok := Token{
			Type:      TokenSpecifier,
			Specifier: format[index],
			Precision: precision,
			Index:     substitution,
			Raw:       format[percent : index+1],
		}
		index++

		if available >= 0 && tok.Index >= available {
			if onMissing != nil {
				onMissing(tok)
			}
			addString(tok.Raw)
			substitution = previous
			continue
		}

		tokens = append(tokens, tok)
		substitution++
	}

	addString(format[index:])
	return tokens
}

func isDigitAt(s string, i int) bool {
	return i < len(s) && s[i] >= '0' && s[i] <= '9'
}
