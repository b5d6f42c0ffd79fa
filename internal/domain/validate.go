package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxMessageLength matches the content limit enforced by the chat service.
const DefaultMaxMessageLength = 1000

// ValidateMessage checks username and text before a message is appended.
// A maxLength of zero or less falls back to DefaultMaxMessageLength.
func ValidateMessage(username, text string, maxLength int) error {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	if username == "" {
		return &ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if err := checkEncoding("username", username); err != nil {
		return err
	}
	if text == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if err := checkEncoding("text", text); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(text); n > maxLength {
		return &ValidationError{Field: "text", Reason: fmt.Sprintf("length %d exceeds maximum of %d", n, maxLength)}
	}
	return nil
}

// checkEncoding rejects values every store could not keep byte for byte:
// JSON replaces invalid UTF-8 and PostgreSQL TEXT refuses NUL.
func checkEncoding(field, value string) error {
	if !utf8.ValidString(value) {
		return &ValidationError{Field: field, Reason: "must be valid UTF-8"}
	}
	if strings.ContainsRune(value, 0) {
		return &ValidationError{Field: field, Reason: "must not contain NUL characters"}
	}
	return nil
}
