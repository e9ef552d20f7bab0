package structured

import (
	"strings"
)

// cleanMarkup strips a byte-order mark, markdown code-fence markers and
// bold markers.
func cleanMarkup(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = fenceMarker.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "**", "")
}

// repairSyntax rewrites JSON-ish text into strict JSON where it can.
// It walks the input once, tracking whether it is inside a string literal, and
// outside of strings it drops // and /* */ comments, quotes bare identifier
// keys that precede a colon, rewrites single-quoted keys and values as
// double-quoted strings, and removes commas that directly precede a
// closing brace or bracket. Literal "\n", "\r" and "\t" escape sequences
// between tokens collapse to a space; inside strings they are valid JSON
// escapes and are copied through with the rest of the string untouched.
func repairSyntax(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)

		case c == '\\' && i+1 < len(s) && (s[i+1] == 'n' || s[i+1] == 'r' || s[i+1] == 't'):
			b.WriteByte(' ')
			i++

		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}

		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 3
			}

		case c == '\'' && valuePosition(b.String()):
			i = copySingleQuoted(&b, s, i)

		case c == ',':
			if next := nextSignificant(s, i+1); next == '}' || next == ']' {
				continue
			}
			b.WriteByte(c)

		case isIdentStart(c) && keyPosition(b.String()):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			if nextSignificant(s, j) == ':' && !isLiteral(word) {
				b.WriteByte('"')
				b.WriteString(word)
				b.WriteByte('"')
			} else {
				b.WriteString(word)
			}
			i = j - 1

		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// keyPosition reports whether the text written so far ends where an object
// key may start: after '{' or ',' ignoring whitespace.
func keyPosition(written string) bool {
	for i := len(written) - 1; i >= 0; i-- {
		switch written[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', ',':
			return true
		default:
			return false
		}
	}
	return false
}

// valuePosition reports whether the text written so far ends where a key or
// value may start: after '{', '[', ',' or ':' ignoring whitespace.
func valuePosition(written string) bool {
	for i := len(written) - 1; i >= 0; i-- {
		switch written[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[', ',', ':':
			return true
		default:
			return false
		}
	}
	return false
}

// copySingleQuoted rewrites the single-quoted string starting at s[start] as
// a double-quoted one and returns the index of its closing quote. Embedded
// double quotes are escaped and \' becomes a plain apostrophe. An
// unterminated string is left open for matchObject to close.
func copySingleQuoted(b *strings.Builder, s string, start int) int {
	b.WriteByte('"')
	j := start + 1
	for j < len(s) {
		switch c := s[j]; {
		case c == '\\' && j+1 < len(s):
			if s[j+1] == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte(c)
				b.WriteByte(s[j+1])
			}
			j += 2
			continue
		case c == '\'':
			b.WriteByte('"')
			return j
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
		j++
	}
	return j
}

// nextSignificant returns the first byte at or after i that is neither
// whitespace nor part of a comment, or 0.
func nextSignificant(s string, i int) byte {
	for i < len(s) {
		switch {
		case s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r':
			i++
		case s[i] == '\\' && i+1 < len(s) && (s[i+1] == 'n' || s[i+1] == 'r' || s[i+1] == 't'):
			i += 2
		case strings.HasPrefix(s[i:], "//"):
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return 0
			}
			i += nl
		case strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return 0
			}
			i += end + 4
		default:
			return s[i]
		}
	}
	return 0
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isLiteral(word string) bool {
	return word == "true" || word == "false" || word == "null"
}

// matchObject returns the first top-level object in s, from its first '{'
// to the matching '}'. Brace and bracket depth is tracked outside string
// literals so nested objects and arrays do not end the match early.
//
// When the text ends before the object closes, the open strings, arrays and
// objects are closed in stack order and complete is false. found is false
// only when s contains no '{'.
func matchObject(s string) (obj string, found, complete bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false, false
	}

	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				// Mismatched closer; stop at what we have and let the repair close it.
				return closeTruncated(s[start:i], stack, false), true, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true, true
			}
		}
	}
	return closeTruncated(s[start:], stack, inString), true, false
}

// closeTruncated appends the closers needed to balance a truncated object.
func closeTruncated(partial string, stack []byte, inString bool) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(partial, " \t\r\n"))
	if inString {
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n")
	// A dangling comma or colon cannot be followed directly by a closer.
	out = strings.TrimRight(out, ",")
	if strings.HasSuffix(out, ":") {
		out += "null"
	}
	var closed strings.Builder
	closed.WriteString(out)
	for i := len(stack) - 1; i >= 0; i-- {
		closed.WriteByte(stack[i])
	}
	return closed.String()
}
