package dump

import "strings"

const defaultDelimiter = ";"

// Split breaks a MySQL script into individual statements.
//
// Delimiters inside quoted strings, quoted identifiers and comments are not
// treated as statement boundaries. Plain comments are dropped, while
// executable comments ("/*! ... */") are kept because the server runs them.
// DELIMITER directives, as emitted by mysqldump around routines and triggers,
// change the delimiter for the statements that follow and are not returned.
// Returned statements are trimmed and carry no trailing delimiter.
func Split(script string) []string {
	var (
		stmts       []string
		buf         strings.Builder
		delim       = defaultDelimiter
		atLineStart = true
		n           = len(script)
	)

	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			stmts = append(stmts, s)
		}
		buf.Reset()
	}

	for i := 0; i < n; {
		if atLineStart && strings.TrimSpace(buf.String()) == "" {
			if next, end, ok := parseDelimiter(script, i); ok {
				delim = next
				buf.Reset()
				i = end
				continue
			}
		}

		c := script[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := skipQuoted(script, i)
			buf.WriteString(script[i:end])
			i = end
			atLineStart = false
			continue
		case c == '#' || (c == '-' && isLineComment(script, i)):
			i = skipLine(script, i)
			continue
		case c == '/' && i+1 < n && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				end = n
			} else {
				end += i + 4
			}
			if i+2 < n && script[i+2] == '!' {
				buf.WriteString(script[i:end])
			} else {
				buf.WriteByte(' ')
			}
			i = end
			atLineStart = false
			continue
		case strings.HasPrefix(script[i:], delim):
			flush()
			i += len(delim)
			atLineStart = false
			continue
		}

		buf.WriteByte(c)
		atLineStart = c == '\n'
		i++
	}
	flush()

	return stmts
}

// parseDelimiter recognises a "DELIMITER x" line starting at i (leading
// blanks allowed). It returns the new delimiter and the index of the line's
// terminating newline.
func parseDelimiter(s string, i int) (string, int, bool) {
	const keyword = "DELIMITER"

	j := i
	for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
		j++
	}
	if len(s)-j <= len(keyword) || !strings.EqualFold(s[j:j+len(keyword)], keyword) {
		return "", 0, false
	}
	if c := s[j+len(keyword)]; c != ' ' && c != '\t' {
		return "", 0, false
	}

	end := skipLine(s, j)
	next := strings.TrimSpace(s[j+len(keyword) : end])
	if next == "" {
		return "", 0, false
	}
	return next, end, true
}

// isLineComment reports whether "--" at i starts a comment. MySQL requires
// whitespace (or end of input) after the second dash.
func isLineComment(s string, i int) bool {
	if i+1 >= len(s) || s[i+1] != '-' {
		return false
	}
	if i+2 == len(s) {
		return true
	}
	switch s[i+2] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// skipLine returns the index of the newline ending the line at i, or len(s).
func skipLine(s string, i int) int {
	if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
		return i + nl
	}
	return len(s)
}

// skipQuoted returns the index just past the quoted token starting at i.
// Backslash escapes apply to string literals but not to identifiers.
func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch {
		case s[j] == '\\' && q != '`':
			j++
		case s[j] == q:
			return j + 1
		}
	}
	return len(s)
}
