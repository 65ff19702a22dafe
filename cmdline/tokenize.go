package cmdline

import "strings"

// Tokenize splits commandLine into arguments.
//
// Unterminated quotes are accepted: the quote simply never closes and the
// remaining input becomes part of the last token. A trailing lone backslash
// is dropped. Tokens that end up empty (for example a bare '') are not
// emitted. An empty or all-whitespace command line yields an empty slice.
func Tokenize(commandLine string) []string {
	var (
		parts         []string
		current       strings.Builder
		inSingleQuote bool
		inDoubleQuote bool
		escape        bool
	)

	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	for i := 0; i < len(commandLine); i++ {
		c := commandLine[i]

		if escape {
			current.WriteByte(c)
			escape = false
			continue
		}

		switch {
		case c == '\\' && !inSingleQuote:
			escape = true
		case c == '\'' && !inDoubleQuote:
			inSingleQuote = !inSingleQuote
		case c == '"' && !inSingleQuote:
			inDoubleQuote = !inDoubleQuote
		case (c == ' ' || c == '\t') && !inSingleQuote && !inDoubleQuote:
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()

	return parts
}
