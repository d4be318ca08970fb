package strings

import (
	"strings"
)

// DefaultDescriptionMaxLen is the maximum length used for agent
// descriptions in selection pages and formatted listings.
const DefaultDescriptionMaxLen = 120

// MinTruncateLen is the smallest accepted maxLen. Anything shorter leaves
// no room for content plus "...".
const MinTruncateLen = 4

// TruncateDescription flattens a string to a single line, collapsing
// whitespace runs, and truncates it to maxLen characters with a "..."
// suffix. Operates on runes so multi-byte characters are never split.
func TruncateDescription(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
