package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Dialect selects the lexical rules used to find comments and quoted text.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// Statements a read-only query may start with.
var readOnlyCommands = map[string]bool{
	"SELECT": true,
	"WITH":   true,
	"VALUES": true,
	"TABLE":  true,
}

// Keywords that modify data, schema or privileges, rejected anywhere
// outside string literals and quoted identifiers.
var forbiddenKeywords = map[string]bool{
	"DELETE":   true,
	"DROP":     true,
	"TRUNCATE": true,
	"INSERT":   true,
	"UPDATE":   true,
	"ALTER":    true,
	"CREATE":   true,
	"GRANT":    true,
	"REVOKE":   true,
	"EXECUTE":  true,
	"EXEC":     true,
	"CALL":     true,
	"MERGE":    true,
	"COPY":     true,
	"INTO":     true,
	"LOCK":     true,
	"SET":      true,
	"DO":       true,
}

// ValidateReadOnly accepts a single SELECT-like statement and rejects
// anything that could write. Comments, string literals and quoted
// identifiers are skipped following dialect. Syntax whose extent the
// database could read differently, such as backslash escapes, is refused.
func ValidateReadOnly(query string, dialect Dialect) error {
	if err := ValidateQuery(query); err != nil {
		return err
	}

	words, statements, err := scanSQL(query, dialect)
	if err != nil {
		return NewValidationError("query", fmt.Sprintf("%v (read-only)", err))
	}
	if statements > 1 {
		return NewValidationError("query", "only a single SQL statement is allowed")
	}
	if len(words) == 0 {
		return NewValidationError("query", "unable to identify SQL command")
	}
	if !readOnlyCommands[words[0]] {
		return NewValidationError("query", fmt.Sprintf("unsupported SQL command: %s (read-only)", words[0]))
	}
	for _, w := range words[1:] {
		if forbiddenKeywords[w] {
			return NewValidationError("query", fmt.Sprintf("forbidden SQL keyword: %s (read-only)", w))
		}
	}
	return nil
}

// scanSQL returns the upper-cased bare words of query and the number of
// non-empty statements it contains.
func scanSQL(query string, dialect Dialect) ([]string, int, error) {
	// '\' escapes quotes in MySQL and in PostgreSQL E'' strings only.
	if strings.ContainsRune(query, '\\') {
		return nil, 0, errors.New("backslashes are not allowed")
	}
	mysql := dialect == DialectMySQL

	var (
		words      []string
		word       []rune
		statements int
		pending    bool // current statement has content
	)
	flush := func() {
		if len(word) > 0 {
			words = append(words, strings.ToUpper(string(word)))
			word = word[:0]
		}
	}

	rs := []rune(query)
	at := func(i int) rune {
		if i < len(rs) {
			return rs[i]
		}
		return 0
	}

	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '-' && at(i+1) == '-':
			// MySQL reads "--x" as two minus signs.
			if mysql && i+2 < len(rs) && rs[i+2] > ' ' {
				return nil, 0, errors.New("'--' must be followed by a space")
			}
			flush()
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case r == '#' && mysql:
			flush()
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case r == '/' && at(i+1) == '*':
			if mysql && (at(i+2) == '!' || (at(i+2) == 'M' && at(i+3) == '!')) {
				return nil, 0, errors.New("executable comments are not allowed")
			}
			flush()
			end, ok := skipBlockComment(rs, i, !mysql)
			if !ok {
				return nil, 0, errors.New("unterminated comment")
			}
			i = end
		case r == '\'' || r == '"' || (r == '`' && mysql):
			flush()
			pending = true
			end, ok := skipQuoted(rs, i)
			if !ok {
				return nil, 0, errors.New("unterminated quoted text")
			}
			i = end
		case r == '$' && !mysql:
			tag, isTag := dollarTag(rs, i)
			switch {
			case len(word) > 0 && isIdentStart(word[0]):
				// identifiers may contain '$' after the first character
				word = append(word, r)
			case isTag && len(word) > 0:
				return nil, 0, errors.New("dollar quote after a number")
			case isTag:
				pending = true
				end, ok := skipDollarQuoted(rs, i, tag)
				if !ok {
					return nil, 0, errors.New("unterminated dollar-quoted text")
				}
				i = end
			default:
				flush()
				pending = true
			}
		case r == ';':
			flush()
			if pending {
				statements++
				pending = false
			}
		case isWordRune(r) || (r == '$' && mysql):
			word = append(word, r)
			pending = true
		default:
			flush()
			if r > ' ' {
				pending = true
			}
		}
	}
	flush()
	if pending {
		statements++
	}
	return words, statements, nil
}

// skipQuoted returns the index of the quote closing the text opened at
// start. A doubled quote stays inside the text.
func skipQuoted(rs []rune, start int) (int, bool) {
	q := rs[start]
	for i := start + 1; i < len(rs); i++ {
		if rs[i] != q {
			continue
		}
		if i+1 < len(rs) && rs[i+1] == q {
			i++
			continue
		}
		return i, true
	}
	return 0, false
}

// skipBlockComment returns the index of the '/' closing the comment
// opened at start. PostgreSQL comments nest, MySQL comments do not.
func skipBlockComment(rs []rune, start int, nested bool) (int, bool) {
	depth := 1
	for i := start + 2; i+1 < len(rs); i++ {
		switch {
		case nested && rs[i] == '/' && rs[i+1] == '*':
			depth++
			i++
		case rs[i] == '*' && rs[i+1] == '/':
			depth--
			i++
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// dollarTag reports whether a PostgreSQL dollar quote ($$ or $tag$)
// opens at start and returns its delimiter.
func dollarTag(rs []rune, start int) (string, bool) {
	i := start + 1
	if i < len(rs) && rs[i] == '$' {
		return "$$", true
	}
	if i >= len(rs) || !isIdentStart(rs[i]) {
		return "", false
	}
	for i < len(rs) && isWordRune(rs[i]) {
		i++
	}
	if i < len(rs) && rs[i] == '$' {
		return string(rs[start : i+1]), true
	}
	return "", false
}

// skipDollarQuoted returns the index of the last rune of the delimiter
// closing the dollar quote opened at start.
func skipDollarQuoted(rs []rune, start int, tag string) (int, bool) {
	delim := []rune(tag)
	for i := start + len(delim); i+len(delim) <= len(rs); i++ {
		if string(rs[i:i+len(delim)]) == tag {
			return i + len(delim) - 1, true
		}
	}
	return 0, false
}

// Both dialects accept any non-ASCII character in unquoted identifiers.
func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127
}

func isWordRune(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
