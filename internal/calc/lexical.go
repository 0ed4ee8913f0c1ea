package calc

import (
	"regexp"
	"unicode"
)

// CheckCharacters verifies every character of expr is in the permitted
// set: digits, '.', whitespace, the operators + - * / ^, parentheses,
// commas, ASCII letters and '_'.
func CheckCharacters(expr string) error {
	var bad []rune
	seen := make(map[rune]bool)
	for _, c := range expr {
		if allowedChar(c) || seen[c] {
			continue
		}
		seen[c] = true
		bad = append(bad, c)
	}
	if len(bad) > 0 {
		return invalidCharacterError(bad)
	}
	return nil
}

func allowedChar(c rune) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c == '_', c == '.', c == ',':
		return true
	case c == '+', c == '-', c == '*', c == '/', c == '^', c == '(', c == ')':
		return true
	case c < unicode.MaxASCII && unicode.IsSpace(c):
		return true
	}
	return false
}

// caretRun matches any operator run that contains at least one caret.
var caretRun = regexp.MustCompile(`[*^]*\^[*^]*`)

// Normalize rewrites the caret exponent operator into "**". A run of
// operators containing a caret collapses into a single "**".
func Normalize(expr string) string {
	return caretRun.ReplaceAllLiteralString(expr, "**")
}
