package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/shopspring/decimal"
)

// RowError is one problem found in one cell or row of an import file.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d, %s: %s", e.Row, e.Column, e.Message)
}

// rowContext reads typed cells from one row and collects their errors.
type rowContext struct {
	row    Row
	header HeaderMap
	errs   []RowError
}

func (rc *rowContext) get(column string) string {
	i, ok := rc.header[column]
	if !ok || i >= len(rc.row.Cells) {
		return ""
	}
	return strings.TrimSpace(rc.row.Cells[i])
}

func (rc *rowContext) fail(column, value, message string) {
	rc.errs = append(rc.errs, RowError{Row: rc.row.Number, Column: column, Value: value, Message: message})
}

func (rc *rowContext) text(column string, required bool) string {
	v := strings.Join(strings.Fields(rc.get(column)), " ")
	if v == "" && required {
		rc.fail(column, "", "is required")
	}
	return v
}

func (rc *rowContext) amount(column string, required bool) decimal.Decimal {
	v := rc.get(column)
	if v == "" {
		if required {
			rc.fail(column, "", "is required")
		}
		return decimal.Zero
	}
	d, err := utils.ParseAmount(v)
	if err != nil {
		rc.fail(column, v, "is not a valid amount")
		return decimal.Zero
	}
	return d
}

func (rc *rowContext) date(column string) time.Time {
	v := rc.get(column)
	if v == "" {
		rc.fail(column, "", "is required")
		return time.Time{}
	}
	t, err := utils.ParseFlexibleDate(v)
	if err != nil {
		rc.fail(column, v, "is not a valid date")
		return time.Time{}
	}
	return t
}

// integer accepts whole numbers written with separators or a trailing ".0"
// as spreadsheets export them.
func (rc *rowContext) integer(column string, required bool) (int, bool) {
	v := rc.get(column)
	if v == "" {
		if required {
			rc.fail(column, "", "is required")
		}
		return 0, false
	}
	s := strings.TrimSuffix(strings.ReplaceAll(v, ",", ""), ".0")
	n, err := strconv.Atoi(s)
	if err != nil {
		rc.fail(column, v, "is not a whole number")
		return 0, false
	}
	return n, true
}

// check runs struct validation and reports failures under their col tag.
func (rc *rowContext) check(v *validator.Validate, s interface{}) {
	err := v.Struct(s)
	if err == nil {
		return
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		rc.fail("", "", err.Error())
		return
	}
	failed := map[string]bool{}
	for _, e := range rc.errs {
		failed[e.Column] = true
	}
	for _, fe := range errs {
		if failed[fe.Field()] {
			continue
		}
		rc.fail(fe.Field(), fmt.Sprint(fe.Value()), validationMessage(fe))
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "is longer than " + fe.Param() + " characters"
	case "email":
		return "is not a valid email"
	case "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gstin":
		return "is not a valid GSTIN"
	}
	return "is invalid (" + fe.Tag() + ")"
}
