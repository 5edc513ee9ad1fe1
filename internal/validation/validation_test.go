package validation

import (
	"strings"
	"testing"
)

func TestIsValidSessionID(t *testing.T) {
	valid := []string{
		"sess-1",
		"3f2b9a4c-91d2-4c55-a8e1-0d9c2f6b7e11",
		"session:abc_123",
	}
	for _, id := range valid {
		if !IsValidSessionID(id) {
			t.Errorf("IsValidSessionID(%q) = false, want true", id)
		}
	}

	invalid := []string{
		"",
		"has space",
		"semi;colon",
		strings.Repeat("a", MaxSessionIDLength+1),
		"null\x00byte",
	}
	for _, id := range invalid {
		if IsValidSessionID(id) {
			t.Errorf("IsValidSessionID(%q) = true, want false", id)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello  ", 100); got != "hello" {
		t.Errorf("expected trimmed string, got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Errorf("expected truncated string, got %q", got)
	}
	if got := SanitizeString("a\x00b", 100); got != "ab" {
		t.Errorf("expected null bytes removed, got %q", got)
	}
}
