package dto

import (
	"net/mail"
	"unicode"
	"unicode/utf8"

	"authority/internal/domain"
)

const (
	nameMin        = 2
	nameMax        = 30
	passwordMin    = 8
	otpLength      = 6
	emailMaxLength = 254
)

func invalid(field, reason string) error {
	return &domain.ValidationError{Field: field, Reason: reason}
}

func required(field, v string) error {
	if v == "" {
		return invalid(field, "is required")
	}
	return nil
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < nameMin || n > nameMax {
		return invalid("name", "must be between 2 and 30 characters")
	}
	return nil
}

func validateEmail(field, email string) error {
	if email == "" {
		return invalid(field, "is required")
	}
	if len(email) > emailMaxLength {
		return invalid(field, "is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid(field, "must be a valid email address")
	}
	return nil
}

func validatePassword(field, pw string) error {
	if utf8.RuneCountInString(pw) < passwordMin {
		return invalid(field, "must be at least 8 characters")
	}
	var lower, upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return invalid(field, "must contain lowercase, uppercase, digit and special characters")
	}
	return nil
}

func validateOTP(field, code string) error {
	if len(code) != otpLength {
		return invalid(field, "must be 6 digits")
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return invalid(field, "must be 6 digits")
		}
	}
	return nil
}
