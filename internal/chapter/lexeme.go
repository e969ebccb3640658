package chapter

import "strings"

// foldLower lowercases a title for lexeme matching. CJK lexemes carry no
// case, so this is a no-op for them and only affects the ASCII lexemes.
func foldLower(s string) string {
	return strings.ToLower(s)
}

func containsLexeme(haystack, lexeme string) bool {
	return strings.Contains(haystack, strings.ToLower(lexeme))
}
