package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates phone number length is not 10 digits
	ErrInvalidLength = errors.New("phone number must be exactly 10 digits")

	// ErrInvalidPrefix indicates phone number doesn't start with a valid Indian mobile digit
	ErrInvalidPrefix = errors.New("mobile number must start with 6, 7, 8, or 9")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

// CountryCode is the dialing code prepended by ToE164
const CountryCode = "91"

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator handles phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates an Indian mobile number.
// Accepts 9876543210, 98765 43210, +91 98765 43210, 091-98765-43210.
// Returns the 10 digit national number.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	if !phoneRegex.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}

	if len(sanitized) != 10 {
		return "", ErrInvalidLength
	}

	if !v.IsValidPrefix(sanitized) {
		return "", ErrInvalidPrefix
	}

	return sanitized, nil
}

// Sanitize removes separators and a leading country code or trunk zero
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "").Replace(phone)

	switch {
	case strings.HasPrefix(phone, "0"+CountryCode) && len(phone) == 13:
		phone = phone[3:]
	case strings.HasPrefix(phone, CountryCode) && len(phone) == 12:
		phone = phone[2:]
	case strings.HasPrefix(phone, "0") && len(phone) == 11:
		phone = phone[1:]
	}

	return phone
}

// IsValidPrefix checks the first digit of a national mobile number
func (v *PhoneValidator) IsValidPrefix(phone string) bool {
	if phone == "" {
		return false
	}
	switch phone[0] {
	case '6', '7', '8', '9':
		return true
	}
	return false
}

// Format formats a phone number for display: +91 98765 43210
func (v *PhoneValidator) Format(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("+%s %s %s", CountryCode, sanitized[0:5], sanitized[5:10]), nil
}

// ToE164 returns the number as +91XXXXXXXXXX
func (v *PhoneValidator) ToE164(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return "+" + CountryCode + sanitized, nil
}

// Mask hides all but the last four digits, for logs
func (v *PhoneValidator) Mask(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// ValidateMultiple validates multiple phone numbers at once
// Returns a map of phone number to error (nil if valid)
func (v *PhoneValidator) ValidateMultiple(phones []string) map[string]error {
	results := make(map[string]error, len(phones))
	for _, phone := range phones {
		_, err := v.Validate(phone)
		results[phone] = err
	}
	return results
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

// MustValidate validates and panics if invalid (use for testing only)
func (v *PhoneValidator) MustValidate(phone string) string {
	sanitized, err := v.Validate(phone)
	if err != nil {
		panic(fmt.Sprintf("invalid phone number %s: %v", phone, err))
	}
	return sanitized
}
