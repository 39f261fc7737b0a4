package utils

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePhoneNumber parses phoneNumber for countryCode (ISO 3166 alpha-2).
func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err
	}
	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}
	return nil
}

// FormatPhoneNumber returns the E.164 form of a valid number.
func FormatPhoneNumber(phoneNumber, countryCode string) (string, error) {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("phone number is not valid")
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

// ProcessValidationErrors flattens validator errors to field -> tag.
func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["error"] = err.Error()
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if !inResult[elm] {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

func NilIfEmpty[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

/* money */

var currencyMarks = []string{"INR", "Rs.", "Rs", "rs.", "rs", "₹"}

// ParseAmount accepts user formatted money such as "1,234.50", "Rs 500",
// "INR -20,000" or "₹ 99". Anything else left over is an error.
func ParseAmount(value string) (decimal.Decimal, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	for _, mark := range currencyMarks {
		if strings.HasPrefix(s, mark) {
			s = strings.TrimSpace(strings.TrimPrefix(s, mark))
			break
		}
	}
	if !neg && strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", value)
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, fmt.Errorf("invalid amount %q", value)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", value)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

/* dates */

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2-Jan-2006",
	"2006/01/02",
	time.RFC3339,
}

// ParseFlexibleDate reads the date formats people type into spreadsheets.
// Day-first is assumed for slash and dash forms.
func ParseFlexibleDate(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

// DateOnly drops the clock part of t, keeping the calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b, negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// ConvertToDate returns the calendar date of t in timezone as a UTC date.
func ConvertToDate(t time.Time, timezone string) (time.Time, error) {
	if timezone == "" {
		timezone = "Asia/Kolkata"
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return DateOnly(t), err
	}
	return DateOnly(t.In(location)), nil
}

// MonthStart is the first day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

/* locks */

// BusinessLock takes the redis lock lockType:businessId for up to ttl and
// returns its release function. Without redis it returns a no-op release.
func BusinessLock(ctx context.Context, businessId string, lockType string, moduleName string, functionName string, ttl time.Duration) (func(), error) {
	logger := config.GetLogger()
	lockKey := fmt.Sprintf("%s:%s", lockType, businessId)
	lock, err := config.ObtainLock(ctx, lockKey, ttl)
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "could not obtain lock", lockKey, err)
		return nil, fmt.Errorf("%s is busy, try again", lockType)
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "error obtaining lock", lockKey, err)
		return nil, err
	}
	if lock == nil {
		return func() {}, nil
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
