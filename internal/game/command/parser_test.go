package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestParse_NotACommand(t *testing.T) {
	for _, line := range []string{"", "hello there", "!", "! roll", "roll !now"} {
		_, ok := Parse("!", line)
		assert.False(t, ok, "line %q", line)
	}
	_, ok := Parse("", "!roll")
	assert.False(t, ok)
}

func TestParse_SingleWord(t *testing.T) {
	result, ok := Parse("!", "!help")
	assert.True(t, ok)
	assert.Equal(t, "help", result.Command)
	assert.Nil(t, result.Args)
	assert.Equal(t, "", result.RawArgs)
}

func TestParse_Lowercase(t *testing.T) {
	result, _ := Parse("!", "!ROLL")
	assert.Equal(t, "roll", result.Command)
}

func TestParse_ExtraWhitespace(t *testing.T) {
	result, ok := Parse("!", "  !roll   20   extra  ")
	assert.True(t, ok)
	assert.Equal(t, "roll", result.Command)
	assert.Equal(t, []string{"20", "extra"}, result.Args)
	assert.Equal(t, "20   extra", result.RawArgs)
}

func TestParse_LongPrefix(t *testing.T) {
	result, ok := Parse("bot:", "bot:online now")
	assert.True(t, ok)
	assert.Equal(t, "online", result.Command)
	assert.Equal(t, []string{"now"}, result.Args)
}

func TestPropertyParseAlwaysLowercasesCommand(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		word := rapid.StringMatching(`[A-Za-z]{1,20}`).Draw(t, "word")
		result, ok := Parse("!", "!"+word)
		if !ok {
			t.Fatalf("%q not parsed", word)
		}
		for _, c := range result.Command {
			if c >= 'A' && c <= 'Z' {
				t.Fatalf("command %q contains uppercase char in Parse result %q", word, result.Command)
			}
		}
	})
}
