package strings

import "testing"

func TestTruncateDescription(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string untouched", "a helpful agent", 60, "a helpful agent"},
		{"truncated with ellipsis", "abcdefghij", 8, "abcde..."},
		{"newlines flattened", "line one\nline two", 60, "line one line two"},
		{"whitespace collapsed", "too   many \t spaces", 60, "too many spaces"},
		{"maxLen clamped", "abcdefgh", 1, "a..."},
		{"unicode not split", "日本語のテキストです", 7, "日本語の..."},
		{"empty", "", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateDescription(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("TruncateDescription(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
