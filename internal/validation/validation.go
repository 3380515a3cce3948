package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/paul-berdier/greg-voice/internal/errors"
)

// ValidateURL validates if a string is a valid URL
func ValidateURL(input string) error {
	if input == "" {
		return fmt.Errorf("%w: URL cannot be empty", errors.ErrBadArgument)
	}
	if _, err := url.ParseRequestURI(input); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrBadArgument, err)
	}
	return nil
}

// SanitizeInput strips null bytes and surrounding whitespace from user input
func SanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// ValidateQueueIndex validates a queue position against the queue size
func ValidateQueueIndex(index, size int) error {
	if index < 0 || index >= size {
		return fmt.Errorf("%w: index must be between 0 and %d", errors.ErrBadArgument, size-1)
	}
	return nil
}

// TruncateString safely truncates a string to max length
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen > 3 {
		s = s[:maxLen-3]
		if idx := strings.LastIndexAny(s, " \t\n"); idx > 0 {
			s = s[:idx]
		}
		return s + "..."
	}
	return s[:maxLen]
}
