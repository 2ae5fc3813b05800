package imap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const nl = "\r\n"

// fetchLineRE matches the start of an untagged FETCH response line.
var fetchLineRE = regexp.MustCompile(`^\* (\d+) FETCH `)

// Token represents a parsed IMAP token
type Token struct {
	Type   TType
	Str    string
	Num    int
	Tokens []*Token
}

// TType represents the type of an IMAP token
type TType uint8

const (
	TUnset TType = iota
	TAtom
	TNumber
	TLiteral
	TQuoted
	TNil
	TContainer
)

// calculateTokenEnd returns the index of the last byte of a sizeVal-byte
// literal starting at tokenStart, clamped to the buffer.
func calculateTokenEnd(tokenStart, sizeVal, bufferLen int) (int, error) {
	switch {
	case tokenStart >= bufferLen:
		if sizeVal == 0 {
			return tokenStart - 1, nil // empty r[tokenStart:tokenEnd+1]
		}
		return 0, fmt.Errorf("literal size %d but tokenStart %d is at/past end of buffer %d", sizeVal, tokenStart, bufferLen)
	case tokenStart+sizeVal > bufferLen:
		return bufferLen - 1, nil // take what is there
	default:
		return tokenStart + sizeVal - 1, nil
	}
}

// tokenizer scans the parenthesized body of a FETCH response.
type tokenizer struct {
	r string
	i int
}

// parseFetchTokens splits r into tokens. Literal data ({n} followed by n
// bytes) becomes a TAtom, bare words become TLiteral, TNumber or TNil.
func parseFetchTokens(r string) ([]*Token, error) {
	t := &tokenizer{r: r}
	tokens, err := t.list(0)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 1 && tokens[0].Type == TContainer {
		tokens = tokens[0].Tokens
	}
	return tokens, nil
}

// list reads tokens up to the ')' that closes depth, or to the end of input
// at depth 0.
func (t *tokenizer) list(depth int) ([]*Token, error) {
	tokens := make([]*Token, 0)
	for t.i < len(t.r) {
		b := t.r[t.i]
		switch {
		case b == '(':
			t.i++
			children, err := t.list(depth + 1)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, &Token{Type: TContainer, Tokens: children})
		case b == ')':
			if depth == 0 {
				return nil, fmt.Errorf("unmatched ')' at char %d in %s", t.i, t.r)
			}
			t.i++
			return tokens, nil
		case b == '"':
			tokens = append(tokens, t.quoted())
		case b == '{':
			tok, err := t.literal()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case IsLiteral(rune(b)):
			tokens = append(tokens, t.word())
		default:
			t.i++
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("mismatched parentheses, depth %d at end of parsing %s", depth, t.r)
	}
	return tokens, nil
}

func (t *tokenizer) quoted() *Token {
	start := t.i + 1
	j := start
	for j < len(t.r) && t.r[j] != '"' {
		if t.r[j] == '\\' {
			j++
		}
		j++
	}
	end := min(j, len(t.r))
	t.i = end + 1
	return &Token{Type: TQuoted, Str: RemoveSlashes.Replace(t.r[start:end])}
}

func (t *tokenizer) word() *Token {
	start := t.i
	for t.i < len(t.r) && IsLiteral(rune(t.r[t.i])) {
		t.i++
	}
	s := t.r[start:t.i]
	if num, err := strconv.Atoi(s); err == nil {
		return &Token{Type: TNumber, Num: num}
	}
	if s == "NIL" {
		return &Token{Type: TNil}
	}
	return &Token{Type: TLiteral, Str: s}
}

func (t *tokenizer) literal() (*Token, error) {
	j := t.i + 1
	for j < len(t.r) && unicode.IsDigit(rune(t.r[j])) {
		j++
	}
	if j >= len(t.r) || t.r[j] != '}' {
		return nil, fmt.Errorf("unterminated literal size at char %d in %s", t.i, t.r)
	}
	size, err := strconv.Atoi(t.r[t.i+1 : j])
	if err != nil {
		return nil, fmt.Errorf("literal size %q: %w", t.r[t.i+1:j], err)
	}

	j++
	if j < len(t.r) && t.r[j] == '\r' {
		j++
	}
	if j < len(t.r) && t.r[j] == '\n' {
		j++
	}

	end, err := calculateTokenEnd(j, size, len(t.r))
	if err != nil {
		return nil, err
	}
	t.i = end + 1
	return &Token{Type: TAtom, Str: t.r[j : end+1]}, nil
}

// parseFetchLine tokenizes one untagged "* n FETCH (...)" line. ok is false
// for any other untagged response.
func parseFetchLine(line string) (seq int, tokens []*Token, ok bool, err error) {
	m := fetchLineRE.FindStringSubmatchIndex(line)
	if m == nil {
		return 0, nil, false, nil
	}
	seq, err = strconv.Atoi(line[m[2]:m[3]])
	if err != nil {
		return 0, nil, false, fmt.Errorf("unable to parse FETCH sequence number in %q: %w", line, err)
	}
	content := strings.TrimRight(line[m[1]:], nl)
	tokens, err = parseFetchTokens(content)
	if err != nil {
		return 0, nil, false, fmt.Errorf("token parsing failed for FETCH %d: %w", seq, err)
	}
	// Some servers wrap the FETCH content with extra parentheses.
	for len(tokens) == 1 && tokens[0].Type == TContainer {
		tokens = tokens[0].Tokens
	}
	return seq, tokens, true, nil
}

// parseUIDSearchResponse collects the UIDs of every "* SEARCH" line in r.
// A server with no matches answers with a bare "* SEARCH".
func parseUIDSearchResponse(r string) ([]string, error) {
	var (
		uids  = make([]string, 0)
		found bool
	)
	for _, line := range strings.Split(r, nl) {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "*" || !strings.EqualFold(fields[1], "SEARCH") {
			continue
		}
		found = true
		for _, f := range fields[2:] {
			if _, err := strconv.ParseUint(f, 10, 32); err != nil {
				return nil, fmt.Errorf("invalid UID %q in search response: %w", f, err)
			}
			uids = append(uids, f)
		}
	}
	if !found {
		return nil, fmt.Errorf("invalid search response: %q", r)
	}
	return uids, nil
}

// IsLiteral checks if a rune is valid for a literal token
func IsLiteral(b rune) bool {
	switch {
	case unicode.IsDigit(b),
		unicode.IsLetter(b),
		b == '\\',
		b == '.',
		b == '[',
		b == ']':
		return true
	}
	return false
}

// GetTokenName returns the string name of a token type
func GetTokenName(tokenType TType) string {
	switch tokenType {
	case TUnset:
		return "TUnset"
	case TAtom:
		return "TAtom"
	case TNumber:
		return "TNumber"
	case TLiteral:
		return "TLiteral"
	case TQuoted:
		return "TQuoted"
	case TNil:
		return "TNil"
	case TContainer:
		return "TContainer"
	}
	return ""
}

// String returns a string representation of a Token
func (t Token) String() string {
	tokenType := GetTokenName(t.Type)
	switch t.Type {
	case TUnset, TNil:
		return tokenType
	case TAtom, TQuoted:
		return fmt.Sprintf("(%s, len %d, chars %d %#v)", tokenType, len(t.Str), len([]rune(t.Str)), t.Str)
	case TNumber:
		return fmt.Sprintf("(%s %d)", tokenType, t.Num)
	case TLiteral:
		return fmt.Sprintf("(%s %s)", tokenType, t.Str)
	case TContainer:
		return fmt.Sprintf("(%s children: %s)", tokenType, t.Tokens)
	}
	return ""
}

// checkType validates that a token is one of the acceptable types
func checkType(token *Token, acceptableTypes []TType, loc string) error {
	for _, a := range acceptableTypes {
		if token.Type == a {
			return nil
		}
	}
	types := make([]string, len(acceptableTypes))
	for i, a := range acceptableTypes {
		types[i] = GetTokenName(a)
	}
	return fmt.Errorf("expected %s token %s, got %s", strings.Join(types, "|"), loc, token)
}
