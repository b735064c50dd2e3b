// Package stringutil provides small rune-aware string helpers used by the
// target dispatcher for argument and diagnostic parsing. The split variants
// differ from the standard library in deliberate ways: see each function.
package stringutil

import (
	"strings"
	"unicode"
)

// Reverse returns s with its runes in reverse order.
func Reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// IsPalindrome reports whether s reads the same forwards and backwards,
// ignoring ASCII case and any non-alphanumeric runes. Case folding is
// ASCII-only: 'A' matches 'a' but 'É' does not match 'é'. Number runes of
// every kind count, including forms like '½'. The empty string is a
// palindrome.
func IsPalindrome(s string) bool {
	var cleaned []rune
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			cleaned = append(cleaned, foldASCII(r))
		}
	}
	forward := string(cleaned)
	return forward == Reverse(forward)
}

// foldASCII lowercases ASCII letters only.
func foldASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// CountRune returns the number of occurrences of r in s. Matching is
// case-sensitive.
func CountRune(r rune, s string) int {
	count := 0
	for _, c := range s {
		if c == r {
			count++
		}
	}
	return count
}

// SplitAny splits s on every occurrence of any rune in delims and drops
// empty segments, so runs of adjacent delimiters collapse.
func SplitAny(s string, delims []rune) []string {
	var out []string
	start := 0
	for i, c := range s {
		for _, d := range delims {
			if c == d {
				if i > start {
					out = append(out, s[start:i])
				}
				start = i + len(string(c))
				break
			}
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// SplitKeep splits s on delim, keeping the delimiter at the end of each
// segment. Text after the last delimiter is not returned; an input with no
// delimiter yields no segments.
func SplitKeep(s string, delim rune) []string {
	var out []string
	start := 0
	for i, c := range s {
		if c == delim {
			end := i + len(string(c))
			out = append(out, s[start:end])
			start = end
		}
	}
	return out
}

// SplitExact splits s on delim into exactly n segments. When s contains
// fewer than n-1 delimiters the result is padded with empty strings; when
// it contains more, the final segment holds the unsplit remainder.
func SplitExact(s string, delim rune, n int) []string {
	if n <= 0 {
		return nil
	}
	segments := CountRune(delim, s) + 1
	if segments >= n {
		return strings.SplitN(s, string(delim), n)
	}
	out := strings.Split(s, string(delim))
	for len(out) < n {
		out = append(out, "")
	}
	return out
}
