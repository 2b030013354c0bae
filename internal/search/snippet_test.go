package search

import (
	"testing"
)

func TestSnippet(t *testing.T) {
	if Snippet("short", 10) != "short" {
		t.Error("short string should be unchanged")
	}
	if Snippet("long text here", 4) != "long..." {
		t.Errorf("got %s", Snippet("long text here", 4))
	}
	if Snippet("x", 0) != "x" {
		t.Error("maxRunes 0 should return as-is")
	}
	if got := Snippet("café au lait", 4); got != "café..." {
		t.Errorf("multi-byte runes must not be split: %q", got)
	}
	if Snippet("abcd", 4) != "abcd" {
		t.Error("exact length should be unchanged")
	}
}
