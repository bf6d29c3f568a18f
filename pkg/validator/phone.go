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

	// ErrInvalidPrefix indicates the number is not an Ethiopian mobile number
	ErrInvalidPrefix = errors.New("phone number must start with 09 or 07")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

const countryCode = "251"

// operators maps mobile prefixes to their network
var operators = map[string]string{
	"09": "Ethio Telecom",
	"07": "Safaricom",
}

var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator handles passenger phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate validates an Ethiopian mobile number.
// Accepts 0911234567, 091 123 4567, +251911234567 or 251-911-234-567.
// Returns the local 10-digit form.
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if phone == "" {
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

// Sanitize strips separators and rewrites the 251 country code to a leading 0
func (v *PhoneValidator) Sanitize(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "").Replace(phone)

	if strings.HasPrefix(phone, countryCode) && len(phone) == 12 {
		phone = "0" + phone[3:]
	}

	return phone
}

// IsValidPrefix reports whether the number starts with a mobile prefix
func (v *PhoneValidator) IsValidPrefix(phone string) bool {
	if len(phone) < 2 {
		return false
	}
	_, ok := operators[phone[:2]]
	return ok
}

// Format formats a phone number for display: 09X XXX XXXX
func (v *PhoneValidator) Format(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", sanitized[0:3], sanitized[3:6], sanitized[6:10]), nil
}

// E164 returns the number in international form (+2519XXXXXXXX)
func (v *PhoneValidator) E164(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return "+" + countryCode + sanitized[1:], nil
}

// GetOperator returns the mobile network name based on prefix
func (v *PhoneValidator) GetOperator(phone string) (string, error) {
	sanitized, err := v.Validate(phone)
	if err != nil {
		return "", err
	}
	return operators[sanitized[:2]], nil
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
