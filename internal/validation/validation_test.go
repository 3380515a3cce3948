package validation_test

import (
	"testing"

	"github.com/paul-berdier/greg-voice/internal/validation"
)

func TestValidateURL(t *testing.T) {
	if err := validation.ValidateURL("https://example.com/track"); err != nil {
		t.Errorf("Valid URL rejected: %v", err)
	}
	if err := validation.ValidateURL(""); err == nil {
		t.Error("Empty URL should be rejected")
	}
	if err := validation.ValidateURL("not a url"); err == nil {
		t.Error("Free text should be rejected")
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := validation.SanitizeInput("  hello\x00world  "); got != "helloworld" {
		t.Errorf("SanitizeInput = %q", got)
	}
}

func TestValidateQueueIndex(t *testing.T) {
	if err := validation.ValidateQueueIndex(0, 3); err != nil {
		t.Errorf("Index 0 of 3 should be valid: %v", err)
	}
	if err := validation.ValidateQueueIndex(3, 3); err == nil {
		t.Error("Index == size should be rejected")
	}
	if err := validation.ValidateQueueIndex(-1, 3); err == nil {
		t.Error("Negative index should be rejected")
	}
}

func TestTruncateString(t *testing.T) {
	if got := validation.TruncateString("short", 10); got != "short" {
		t.Errorf("Short string should pass through, got %q", got)
	}
	got := validation.TruncateString("a very long sentence that keeps going", 20)
	if len(got) > 20 {
		t.Errorf("Truncated string too long: %q", got)
	}
}
