package stringutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReverse(t *testing.T) {
	assert.Equal(t, "olleh", Reverse("hello"))
	assert.Equal(t, "", Reverse(""))
	assert.Equal(t, "madam", Reverse("madam"))
	assert.Equal(t, ")(*&^%$#@!", Reverse("!@#$%^&*()"))
}

func TestReverse_Unicode(t *testing.T) {
	assert.Equal(t, "はちにんこ", Reverse("こんにちは"))
	assert.Equal(t, "!界世 ,olleH", Reverse("Hello, 世界!"))
}

func TestReverse_Long(t *testing.T) {
	long := strings.Repeat("a", 10000) + "b" + strings.Repeat("c", 100000)
	want := strings.Repeat("c", 100000) + "b" + strings.Repeat("a", 10000)
	assert.Equal(t, want, Reverse(long))
}

func TestIsPalindrome(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"A man, a plan, a canal: Panama", true},
		{"race a car", false},
		{"", true},
		{"a", true},
		{"A", true},
		{"Madam", true},
		{"No 'x' in Nixon", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPalindrome(tt.input), "input: %q", tt.input)
	}
}

func TestIsPalindrome_Unicode(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		// Case folding is ASCII-only, so accented pairs do not match.
		{"Éé", false},
		{"éé", true},
		{"ÉzÉ", true},
		{"たけやぶやけた", true},
		{"こんにちは", false},
		// Number runes of every kind participate, not just 0-9.
		{"½a", false},
		{"½a½", true},
		{"Ⅻ oxo Ⅻ", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPalindrome(tt.input), "input: %q", tt.input)
	}
}

func TestCountRune(t *testing.T) {
	assert.Equal(t, 3, CountRune('a', "banana"))
	assert.Equal(t, 0, CountRune('z', "hello"))
	assert.Equal(t, 0, CountRune('a', ""))
	assert.Equal(t, 2, CountRune('!', "Hello! How are you!"))
	assert.Equal(t, 2, CountRune('1', "123321"))
	assert.Equal(t, 5, CountRune(' ', "a b c d e f"))
}

func TestCountRune_CaseSensitive(t *testing.T) {
	assert.Equal(t, 0, CountRune('A', "banana"))
	assert.Equal(t, 3, CountRune('a', "banana"))
}

func TestCountRune_Unicode(t *testing.T) {
	assert.Equal(t, 3, CountRune('😊', "😊😊😊"))
}

func TestSplitAny(t *testing.T) {
	got := SplitAny("big,!a brown,cow!", []rune{',', '!', 'a', ' '})
	assert.Equal(t, []string{"big", "brown", "cow"}, got)

	got = SplitAny("<html><body><h1>Heading</h1></body></html>", []rune{'<', '>', '/'})
	assert.Equal(t, []string{"html", "body", "h1", "Heading", "h1", "body", "html"}, got)
}

func TestSplitAny_NoDelimiters(t *testing.T) {
	got := SplitAny("plain", []rune{','})
	assert.Equal(t, []string{"plain"}, got)
}

func TestSplitAny_Empty(t *testing.T) {
	assert.Empty(t, SplitAny("", []rune{','}))
	assert.Empty(t, SplitAny(",,,", []rune{','}))
}

func TestSplitKeep(t *testing.T) {
	assert.Equal(t, []string{"hello,", "world,"}, SplitKeep("hello,world,here", ','))
	assert.Equal(t, []string{"hello,", "world,", "here,"}, SplitKeep("hello,world,here,", ','))
}

func TestSplitKeep_NoDelimiter(t *testing.T) {
	assert.Empty(t, SplitKeep("no_delimiters_here", ','))
}

func TestSplitExact(t *testing.T) {
	assert.Equal(t, []string{"This", "is", "a string."}, SplitExact("This is a string.", ' ', 3))
	assert.Equal(t, []string{"This", "is", "a", "string."}, SplitExact("This is a string.", ' ', 4))
	assert.Equal(t, []string{"This", "is", "a", "string.", ""}, SplitExact("This is a string.", ' ', 5))
}

func TestSplitExact_Diagnostics(t *testing.T) {
	// The compiler diagnostic shape the task runner parses.
	parts := SplitExact("main.go:10:5: undefined: foo", ':', 4)
	assert.Equal(t, []string{"main.go", "10", "5", " undefined: foo"}, parts)
}

func TestSplitExact_Degenerate(t *testing.T) {
	assert.Nil(t, SplitExact("a b", ' ', 0))
	assert.Equal(t, []string{"a b"}, SplitExact("a b", ',', 1))
	assert.Equal(t, []string{"", "", ""}, SplitExact("", ',', 3))
}
