package util

import "fmt"

// vibration patterns in ms, alternating on/off
var patterns = [][]int{
	{200, 100, 200},
	{400, 100, 200},
	{200, 100, 400},
	{200, 100, 200, 100, 200},
	{400, 100, 400},
	{200, 100, 400, 100, 200},
}

func codeHash(code string) int32 {
	var hash int32
	for i := 0; i < len(code); i++ {
		hash = int32(code[i]) + ((hash << 5) - hash)
	}
	return hash
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// ColorFromCode derives an HSL display color from a session code. Hue spans
// the full wheel; saturation stays in 70-89% and lightness in 50-59% so every
// color reads well on a phone held up in a crowd.
func ColorFromCode(code string) string {
	hash := codeHash(code)

	hue := abs(hash % 360)
	saturation := 70 + abs((hash>>8)%20)
	lightness := 50 + abs((hash>>16)%10)

	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", hue, saturation, lightness)
}

// PatternFromCode picks one of the fixed vibration patterns for a code. The
// returned slice is a copy.
func PatternFromCode(code string) []int {
	p := patterns[abs(codeHash(code)%int32(len(patterns)))]
	out := make([]int, len(p))
	copy(out, p)
	return out
}
