package util

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorFromCode(t *testing.T) {
	hsl := regexp.MustCompile(`^hsl\((\d+), (\d+)%, (\d+)%\)$`)

	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, ColorFromCode("ABC123"), ColorFromCode("ABC123"))
	})

	t.Run("stays in range", func(t *testing.T) {
		for _, code := range []string{"ABC123", "ZZZZZZ", "000000", "Q7X2LM"} {
			m := hsl.FindStringSubmatch(ColorFromCode(code))
			if assert.Len(t, m, 4, code) {
				assert.Regexp(t, `^([0-9]|[1-9][0-9]|[12][0-9][0-9]|3[0-5][0-9])$`, m[1])
				assert.Regexp(t, `^(7[0-9]|8[0-9])$`, m[2])
				assert.Regexp(t, `^5[0-9]$`, m[3])
			}
		}
	})

	t.Run("distinct codes tend to distinct colors", func(t *testing.T) {
		seen := map[string]bool{}
		codes := []string{"ABC123", "ABC124", "XYZ789", "K3J9PQ", "MEET01", "RIDE42"}
		for _, code := range codes {
			seen[ColorFromCode(code)] = true
		}
		assert.GreaterOrEqual(t, len(seen), len(codes)-1)
	})
}

func TestPatternFromCode(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, PatternFromCode("ABC123"), PatternFromCode("ABC123"))
	})

	t.Run("returns one of the known patterns", func(t *testing.T) {
		p := PatternFromCode("XYZ789")
		assert.Contains(t, patterns, p)
	})

	t.Run("returns a copy", func(t *testing.T) {
		p := PatternFromCode("ABC123")
		p[0] = -1
		assert.NotEqual(t, -1, PatternFromCode("ABC123")[0])
	})
}
