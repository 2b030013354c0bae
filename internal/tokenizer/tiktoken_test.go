package tokenizer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiktoken(t *testing.T) {
	tok, err := NewTiktoken("gpt-3.5-turbo")
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", tok.Model())
	assert.Equal(t, 0, tok.Count(""))
	assert.Positive(t, tok.Count("hello world"))

	long := strings.Repeat("benefits are paid monthly. ", 100)
	n := tok.Count(long)
	require.Greater(t, n, 50)

	cut := tok.Truncate(long, 50)
	assert.LessOrEqual(t, tok.Count(cut), 50)
	assert.True(t, strings.HasPrefix(long, cut))
	assert.Equal(t, long, tok.Truncate(long, n))
}

func TestTiktoken_TruncateValidUTF8(t *testing.T) {
	tok, err := NewTiktoken("gpt-3.5-turbo")
	require.NoError(t, err)
	text := strings.Repeat("日本語のテキスト。", 20)
	for max := 1; max < 20; max++ {
		assert.True(t, utf8.ValidString(tok.Truncate(text, max)))
	}
}

func TestTiktoken_unknownModel(t *testing.T) {
	_, err := NewTiktoken("not-a-model")
	assert.Error(t, err)
}
