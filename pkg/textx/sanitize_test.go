// Package textx contains tests for the text utilities.
package textx

import "testing"

func TestSanitizeText(t *testing.T) {
	in := "he\x00llo\nwo\x7frld\t!"
	got := SanitizeText(in)
	if got != "hello\nworld\t!" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestUnifiedMarkdown(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb\rc", "a\nb\nc"},
		{"nul", "a\x00b", "a b"},
		{"space runs", "a \t  b", "a b"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"trailing spaces", "a  \nb", "a\nb"},
		{"trim", "  \n a \n ", "a"},
		{"mixed", "Title\r\n\r\n\r\n\r\nBody\twith \x00 gaps  ", "Title\n\nBody with gaps"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UnifiedMarkdown(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
