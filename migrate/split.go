package migrate

import "strings"

// SplitStatements breaks a script into individual statements on
// semicolons. Semicolons inside quoted literals, quoted identifiers,
// line comments and block comments do not split. Statements that are
// blank after trimming are dropped.
func SplitStatements(script string) []string {
	const (
		plain = iota
		singleQuote
		doubleQuote
		backtickQuote
		lineComment
		blockComment
	)

	var statements []string
	var current strings.Builder

	state := plain
	runes := []rune(script)

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case plain:
			switch {
			case c == ';':
				statements = appendStatement(statements, &current)
				continue
			case c == '\'':
				state = singleQuote
			case c == '"':
				state = doubleQuote
			case c == '`':
				state = backtickQuote
			case c == '-' && next == '-':
				state = lineComment
			case c == '/' && next == '*':
				state = blockComment
			}

		case singleQuote:
			if c == '\\' && next != 0 {
				current.WriteRune(c)
				current.WriteRune(next)
				i++
				continue
			}
			if c == '\'' {
				state = plain
			}

		case doubleQuote:
			if c == '\\' && next != 0 {
				current.WriteRune(c)
				current.WriteRune(next)
				i++
				continue
			}
			if c == '"' {
				state = plain
			}

		case backtickQuote:
			if c == '`' {
				state = plain
			}

		case lineComment:
			if c == '\n' {
				state = plain
			}

		case blockComment:
			if c == '*' && next == '/' {
				current.WriteRune(c)
				current.WriteRune(next)
				i++
				state = plain
				continue
			}
		}

		current.WriteRune(c)
	}

	return appendStatement(statements, &current)
}

func appendStatement(statements []string, current *strings.Builder) []string {
	stmt := strings.TrimSpace(current.String())
	current.Reset()
	if stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
