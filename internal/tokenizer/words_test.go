package tokenizer

import "testing"

func TestSplitWords(t *testing.T) {
	words := SplitWords("  a  b\n\nc\t ")
	if len(words) != 3 || words[0] != "a" || words[2] != "c" {
		t.Errorf("expected [a b c], got %q", words)
	}
	if SplitWords("") != nil {
		t.Error("empty string should return nil")
	}
}

func TestWordTokenizer_Count(t *testing.T) {
	var tok WordTokenizer
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"A.\n\nB.\n\nC.", 3},
		{"  spaced   out  ", 2},
	}
	for _, tt := range tests {
		if got := tok.Count(tt.text); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestWordTokenizer_Truncate(t *testing.T) {
	var tok WordTokenizer
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"fits", "a b c", 5, "a b c"},
		{"exact", "a b c", 3, "a b c"},
		{"cut", "a b c d", 2, "a b"},
		{"keeps inner spacing", "a\n\nb  c", 2, "a\n\nb"},
		{"zero", "a b", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Truncate(tt.text, tt.max)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
			if n := tok.Count(got); n > tt.max {
				t.Errorf("truncated text has %d tokens, max %d", n, tt.max)
			}
		})
	}
}
