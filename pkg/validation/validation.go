package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxRoomLength bounds room names in bytes.
const MaxRoomLength = 128

// ValidateRoomID checks that a room name is non-blank printable UTF-8 of
// bounded length.
func ValidateRoomID(room string) error {
	if strings.TrimSpace(room) == "" {
		return fmt.Errorf("room is required")
	}
	if len(room) > MaxRoomLength {
		return fmt.Errorf("room is too long (max %d bytes)", MaxRoomLength)
	}
	if !utf8.ValidString(room) {
		return fmt.Errorf("room must be valid UTF-8")
	}
	for _, r := range room {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("room contains a non-printable character %U", r)
		}
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s must be at most %d characters", fieldName, max)
	}
	return nil
}
