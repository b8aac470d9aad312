// Package otp implements two-step phone sign-in: the caller submits a phone
// number to receive a one-time code, then submits the code to verify it.
package otp

import (
	"errors"
	"strings"
	"unicode"
)

const (
	CodeLength     = 6
	MinPhoneDigits = 10
)

var (
	ErrInvalidPhone  = errors.New("phone number must contain at least 10 digits")
	ErrInvalidCode   = errors.New("code must be exactly 6 digits")
	ErrResendTooSoon = errors.New("a code was sent recently")
	ErrWrongState    = errors.New("operation not allowed in the current sign-in step")

	// Canonical upstream failures. Providers report them with these exact messages.
	ErrInvalidOTP      = errors.New("Invalid OTP")
	ErrOTPNotFound     = errors.New("OTP not found")
	ErrTooManyAttempts = errors.New("Too many attempts")
)

// NormalizePhone strips everything but digits and a leading plus sign and
// rejects numbers with fewer than MinPhoneDigits digits.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
			// separator
		default:
			return "", ErrInvalidPhone
		}
	}
	normalized := b.String()
	if len(strings.TrimPrefix(normalized, "+")) < MinPhoneDigits {
		return "", ErrInvalidPhone
	}
	return normalized, nil
}

// ValidCode reports whether code is exactly CodeLength ASCII digits.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// classify maps an upstream error onto the canonical errors by its message.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrInvalidOTP, ErrOTPNotFound, ErrTooManyAttempts, ErrResendTooSoon} {
		if errors.Is(err, known) {
			return err
		}
	}
	msg := err.Error()
	for _, known := range []error{ErrInvalidOTP, ErrOTPNotFound, ErrTooManyAttempts} {
		if strings.Contains(msg, known.Error()) {
			return known
		}
	}
	return err
}

// MessageKey returns the i18n key shown to the user for err.
func MessageKey(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPhone):
		return "otp.invalid_phone"
	case errors.Is(err, ErrInvalidCode):
		return "otp.invalid_code"
	case errors.Is(err, ErrResendTooSoon):
		return "otp.resend_too_soon"
	case errors.Is(err, ErrWrongState):
		return "otp.wrong_step"
	case errors.Is(err, ErrInvalidOTP):
		return "otp.invalid"
	case errors.Is(err, ErrOTPNotFound):
		return "otp.expired"
	case errors.Is(err, ErrTooManyAttempts):
		return "otp.too_many_attempts"
	default:
		return "otp.failed"
	}
}
