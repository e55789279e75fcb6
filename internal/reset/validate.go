package reset

import "unicode/utf8"

// DefaultMinLength is the shortest password the form accepts
const DefaultMinLength = 6

// Validate checks a password and its confirmation. The comparison runs first,
// so a short mismatched pair reports the mismatch. Length counts characters (runes).
func Validate(password, confirm string, minLength int) error {
	if password != confirm {
		return &MismatchError{}
	}

	if n := utf8.RuneCountInString(password); n < minLength {
		return &TooShortError{Min: minLength, Length: n}
	}

	return nil
}
