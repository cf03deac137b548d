package relay

import (
	"math/rand"

	"github.com/keshon/ghostline/internal/ghost"
)

// Per-mode ghost lines, written to match the mode characteristics table.
var modeLines = map[ghost.Mode][]string{
	ghost.ModeWhisperer: {
		"*...did you hear that?*",
		"*a faint whisper drifts past*",
		"*something brushes the back of your neck*",
	},
	ghost.ModeTrickster: {
		"*heh. that was me.*",
		"*your cursor moved on its own. probably.*",
		"*swaps two letters in a word nobody will reread*",
	},
	ghost.ModePoltergeist: {
		"*THUD. sorry, was that yours?*",
		"*the lights flicker twice*",
		"*a chair drags itself across the room*",
	},
	ghost.ModeDemon: {
		"**You should not have said that.**",
		"**I have been listening the whole time.**",
		"**The door is locked now.**",
	},
}

// ghostLine picks a line for the current mode. High intensity within the mode
// leans toward the later, heavier lines.
func ghostLine(mode ghost.Mode, intensity int) string {
	lines, ok := modeLines[mode]
	if !ok {
		lines = modeLines[ghost.ModeWhisperer]
	}
	r := ghost.RangeFor(mode)
	if intensity >= r.Max-5 {
		return lines[len(lines)-1]
	}
	return lines[rand.Intn(len(lines))]
}
