package utils

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

func HashPassword(s string) ([]byte, error) {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	return bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
}

func ComparePassword(hashed string, normal string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(normal))
}
