package cmd

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// quotedSpan matches a double-quoted span with at least one character inside.
var quotedSpan = regexp.MustCompile(`".+?"`)

// Tokenize splits message content on whitespace, keeping quoted spans whole.
func Tokenize(content string) []string {
	return Split(content, " ")
}

// Split breaks content into tokens separated by delim. Text inside a matching
// pair of double quotes is a single token: the quotes are dropped and the
// delimiters inside are kept. An unbalanced quote protects nothing and stays in
// the token text. The default " " delimiter splits on any run of Unicode whitespace.
func Split(content, delim string) []string {
	if content == "" {
		return nil
	}
	if delim == "" {
		delim = " "
	}

	spans := quotedSpan.FindAllStringIndex(content, -1)

	var (
		tokens []string
		cur    strings.Builder
		inTok  bool
	)
	flush := func() {
		if inTok {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inTok = false
		}
	}

	for i := 0; i < len(content); {
		if len(spans) > 0 && spans[0][0] == i {
			cur.WriteString(content[i+1 : spans[0][1]-1])
			inTok = true
			i = spans[0][1]
			spans = spans[1:]
			continue
		}
		if n := delimAt(content, i, delim); n > 0 {
			flush()
			i += n
			continue
		}
		cur.WriteByte(content[i])
		inTok = true
		i++
	}
	flush()

	return tokens
}

// delimAt reports the byte width of the delimiter starting at content[i], or 0.
func delimAt(content string, i int, delim string) int {
	if delim == " " {
		r, size := utf8.DecodeRuneInString(content[i:])
		if unicode.IsSpace(r) {
			return size
		}
		return 0
	}
	if strings.HasPrefix(content[i:], delim) {
		return len(delim)
	}
	return 0
}
