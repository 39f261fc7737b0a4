package models

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

var (
	ErrBusinessRequired = errors.New("business id is required")
	ErrUserRequired     = errors.New("user id is required")

	ErrAdminExists       = errors.New("an admin account already exists")
	ErrSignupDisabled    = errors.New("self sign-up is disabled")
	ErrInvalidLogin      = errors.New("invalid username or password")
	ErrUserPending       = errors.New("user is awaiting approval")
	ErrUserRejected      = errors.New("user registration was rejected")
	ErrUserDisabled      = errors.New("user is disabled")
	ErrUserNotApproved   = errors.New("user is not approved")
	ErrForbidden         = errors.New("permission denied")
	ErrRoleInUse         = errors.New("role is assigned to users")
	ErrLastAdmin         = errors.New("cannot remove the last admin")
	ErrTokenRevoked      = errors.New("service token revoked")
	ErrDuplicate         = errors.New("duplicate record")
	ErrClientInUse       = errors.New("client is referenced by challans or payments")
	ErrClientInactive    = errors.New("client is inactive")
	ErrItemInUse         = errors.New("item is referenced by challans")
	ErrItemInactive      = errors.New("item is inactive")
	ErrStockBelowRented  = errors.New("total quantity cannot drop below rented quantity")
	ErrNegativeStock     = errors.New("stock cannot become negative")
	ErrChallanNotOpen    = errors.New("challan is not open")
	ErrChallanHasReturns = errors.New("challan already has returns")
	ErrNothingToReturn   = errors.New("return quantity exceeds outstanding quantity")
	ErrNegativeClosing   = errors.New("closing balance cannot be negative")
)

// InsufficientStockError reports the item that cannot cover a rental.
type InsufficientStockError struct {
	ItemCode  string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ItemCode, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

var ErrInsufficientStock = errors.New("insufficient stock")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// translateWriteErr maps unique-key violations to ErrDuplicate.
func translateWriteErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if isDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, what)
	}
	return err
}
