package formula

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent   // bare identifier or keyword
	tokQuoted  // backtick-quoted column name
	tokLParen
	tokRParen
	tokComma
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLT
	tokLE
	tokGT
	tokGE
	tokEQ
	tokNE
	tokAnd // "and" or "&"
	tokOr  // "or" or "|"
	tokNot // "not" or "~"
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// tokenize splits a formula into tokens. Keywords and/or/not are recognized
// case-insensitively; column names with spaces or symbols must be wrapped in
// backticks.
func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	n := len(src)

	emit := func(kind tokenKind, text string, pos int) {
		toks = append(toks, token{kind: kind, text: text, pos: pos})
	}

	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			emit(tokLParen, "(", i)
			i++
		case c == ')':
			emit(tokRParen, ")", i)
			i++
		case c == ',':
			emit(tokComma, ",", i)
			i++
		case c == '+':
			emit(tokPlus, "+", i)
			i++
		case c == '-':
			emit(tokMinus, "-", i)
			i++
		case c == '*':
			emit(tokStar, "*", i)
			i++
		case c == '/':
			emit(tokSlash, "/", i)
			i++
		case c == '&':
			emit(tokAnd, "&", i)
			i++
		case c == '|':
			emit(tokOr, "|", i)
			i++
		case c == '~':
			emit(tokNot, "~", i)
			i++
		case c == '<':
			if i+1 < n && src[i+1] == '=' {
				emit(tokLE, "<=", i)
				i += 2
			} else {
				emit(tokLT, "<", i)
				i++
			}
		case c == '>':
			if i+1 < n && src[i+1] == '=' {
				emit(tokGE, ">=", i)
				i += 2
			} else {
				emit(tokGT, ">", i)
				i++
			}
		case c == '=':
			if i+1 < n && src[i+1] == '=' {
				emit(tokEQ, "==", i)
				i += 2
			} else {
				return nil, &SyntaxError{Msg: "single '=' is not a comparison, use '=='", Pos: i}
			}
		case c == '!':
			if i+1 < n && src[i+1] == '=' {
				emit(tokNE, "!=", i)
				i += 2
			} else {
				return nil, &SyntaxError{Msg: "unexpected '!'", Pos: i}
			}
		case c == '`':
			end := strings.IndexByte(src[i+1:], '`')
			if end < 0 {
				return nil, &SyntaxError{Msg: "unterminated backtick-quoted name", Pos: i}
			}
			emit(tokQuoted, src[i+1:i+1+end], i)
			i += end + 2
		case c >= '0' && c <= '9' || c == '.':
			start := i
			seenDot := false
			for i < n && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				if src[i] == '.' {
					if seenDot {
						return nil, &SyntaxError{Msg: "malformed number", Pos: start}
					}
					seenDot = true
				}
				i++
			}
			if src[start:i] == "." {
				return nil, &SyntaxError{Msg: "malformed number", Pos: start}
			}
			emit(tokNumber, src[start:i], start)
		case isIdentStart(rune(c)):
			start := i
			for i < n && isIdentPart(rune(src[i])) {
				i++
			}
			word := src[start:i]
			switch strings.ToLower(word) {
			case "and":
				emit(tokAnd, word, start)
			case "or":
				emit(tokOr, word, start)
			case "not":
				emit(tokNot, word, start)
			default:
				emit(tokIdent, word, start)
			}
		default:
			return nil, &SyntaxError{Msg: fmt.Sprintf("unexpected character %q", c), Pos: i}
		}
	}

	emit(tokEOF, "", n)
	return toks, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
