// Package cmdline splits a shell-like command line into an argument vector.
//
// The rules are deliberately small: whitespace separates tokens, single
// quotes are literal, double quotes group words but still honor backslash
// escapes, and a backslash outside single quotes escapes the next character.
// No variable expansion, globbing or operators are interpreted.
//
// Usage:
//
//	argv := cmdline.Tokenize(`python -c 'print("hi")'`)
//	// argv == []string{"python", "-c", `print("hi")`}
package cmdline
