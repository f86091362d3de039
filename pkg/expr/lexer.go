package expr

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokInt
	tokFloat
	tokString
	tokIdent
	tokTrue
	tokFalse
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string // operator spelling, identifier, raw number or unquoted string
	pos  int
}

var keywords = map[string]token{
	"true":  {kind: tokTrue},
	"false": {kind: tokFalse},
	"and":   {kind: tokOp, text: "&&"},
	"or":    {kind: tokOp, text: "||"},
	"not":   {kind: tokOp, text: "!"},
}

// lex splits src into tokens, always ending with tokEOF.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c >= '0' && c <= '9':
			tok, next := lexNumber(src, i)
			toks = append(toks, tok)
			i = next
		case c == '"' || c == '\'':
			s, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i = next
		case c == '$' || c == '_' || isLetter(src[i:]):
			start := i
			if c == '$' {
				i++
			}
			j := i
			for j < len(src) {
				r, size := utf8.DecodeRuneInString(src[j:])
				if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == ':') {
					break
				}
				j += size
			}
			word := src[i:j]
			if word == "" {
				return nil, &SyntaxError{Input: src, Pos: start, Msg: "expected fact name after '$'"}
			}
			if kw, ok := keywords[word]; ok && c != '$' {
				kw.pos = start
				if kw.text == "" {
					kw.text = word
				}
				toks = append(toks, kw)
			} else {
				toks = append(toks, token{kind: tokIdent, text: word, pos: start})
			}
			i = j
		default:
			op := lexOperator(src[i:])
			if op == "" {
				r, _ := utf8.DecodeRuneInString(src[i:])
				return nil, &SyntaxError{Input: src, Pos: i, Msg: "unexpected character " + quoteRune(r)}
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func isLetter(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r)
}

func quoteRune(r rune) string {
	return "'" + string(r) + "'"
}

func lexNumber(src string, i int) (token, int) {
	start := i
	kind := tokInt
	for i < len(src) && src[i] >= '0' && src[i] <= '9' {
		i++
	}
	if i+1 < len(src) && src[i] == '.' && src[i+1] >= '0' && src[i+1] <= '9' {
		kind = tokFloat
		i++
		for i < len(src) && src[i] >= '0' && src[i] <= '9' {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && src[j] >= '0' && src[j] <= '9' {
			kind = tokFloat
			for j < len(src) && src[j] >= '0' && src[j] <= '9' {
				j++
			}
			i = j
		}
	}
	return token{kind: kind, text: src[start:i], pos: start}, i
}

func lexString(src string, i int) (string, int, error) {
	quote := src[i]
	start := i
	i++
	var b strings.Builder
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case c == '\\' && i+1 < len(src):
			switch src[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(src[i+1])
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, &SyntaxError{Input: src, Pos: start, Msg: "unterminated string literal"}
}

var operators = []string{"<=", ">=", "==", "!=", "&&", "||", "<", ">", "+", "-", "*", "/", "%", "!"}

func lexOperator(s string) string {
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}
