package glsl

import "strings"

type tokKind int

const (
	tEOF tokKind = iota
	tIdent
	tokInt
	tokFloat
	tPunct
)

type token struct {
	kind tokKind
	text string
	line int
	// space is set when whitespace precedes the token on its line.
	space bool
}

func (t token) is(text string) bool { return t.kind == tPunct && t.text == text }

var puncts3 = []string{"<<=", ">>="}

var puncts2 = []string{
	"++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||", "^^",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "##",
}

const puncts1 = "+-*/%<>=!~&|^()[]{}.,;?:#"

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// lexLine splits one comment-free source line into tokens.
func lexLine(s string, line int, diag *diagnostics) []token {
	var out []token
	space := false
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			space = true
			i++
			continue
		case isIdentStart(c):
			j := i + 1
			for j < len(s) && (isIdentStart(s[j]) || isDigit(s[j])) {
				j++
			}
			out = append(out, token{kind: tIdent, text: s[i:j], line: line, space: space})
			i = j
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			kind, j := lexNumber(s, i)
			out = append(out, token{kind: kind, text: s[i:j], line: line, space: space})
			i = j
		default:
			n := 0
			for _, p := range puncts3 {
				if strings.HasPrefix(s[i:], p) {
					n = 3
					break
				}
			}
			if n == 0 {
				for _, p := range puncts2 {
					if strings.HasPrefix(s[i:], p) {
						n = 2
						break
					}
				}
			}
			if n == 0 && strings.IndexByte(puncts1, c) >= 0 {
				n = 1
			}
			if n == 0 {
				diag.errorf(line, string(c), "invalid character")
				i++
				continue
			}
			out = append(out, token{kind: tPunct, text: s[i : i+n], line: line, space: space})
			i += n
		}
		space = false
	}
	return out
}

// lexNumber scans a literal starting at i. Malformed suffixes are kept in
// the token text and rejected by the parser.
func lexNumber(s string, i int) (tokKind, int) {
	j := i
	if s[j] == '0' && j+1 < len(s) && (s[j+1] == 'x' || s[j+1] == 'X') {
		j += 2
		for j < len(s) && isHex(s[j]) {
			j++
		}
		return tokInt, suffix(s, j)
	}
	kind := tokInt
	for j < len(s) && isDigit(s[j]) {
		j++
	}
	if j < len(s) && s[j] == '.' {
		kind = tokFloat
		j++
		for j < len(s) && isDigit(s[j]) {
			j++
		}
	}
	if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		k := j + 1
		if k < len(s) && (s[k] == '+' || s[k] == '-') {
			k++
		}
		if k < len(s) && isDigit(s[k]) {
			kind = tokFloat
			for k < len(s) && isDigit(s[k]) {
				k++
			}
			j = k
		}
	}
	return kind, suffix(s, j)
}

func suffix(s string, j int) int {
	for j < len(s) && (isIdentStart(s[j]) || isDigit(s[j])) {
		j++
	}
	return j
}

// stripComments replaces comments with spaces, keeping newlines so line
// numbers stay accurate. It reports false for an unterminated block comment.
func stripComments(src string) (string, bool) {
	var b strings.Builder
	b.Grow(len(src))

	const (
		normal = iota
		line
		block
	)
	state := normal
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch state {
		case normal:
			if c == '/' && i+1 < len(src) && src[i+1] == '/' {
				state = line
				b.WriteString("  ")
				i++
				continue
			}
			if c == '/' && i+1 < len(src) && src[i+1] == '*' {
				state = block
				b.WriteString("  ")
				i++
				continue
			}
			b.WriteByte(c)
		case line:
			if c == '\n' {
				state = normal
				b.WriteByte(c)
			} else {
				b.WriteByte(' ')
			}
		case block:
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				state = normal
				b.WriteString("  ")
				i++
				continue
			}
			if c == '\n' {
				b.WriteByte(c)
			} else {
				b.WriteByte(' ')
			}
		}
	}
	return b.String(), state != block
}
