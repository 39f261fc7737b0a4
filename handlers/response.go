package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/importer"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
)

var (
	unauthorizedErrors = []error{models.ErrInvalidLogin, models.ErrBusinessRequired, models.ErrUserRequired, models.ErrTokenRevoked}
	forbiddenErrors    = []error{models.ErrUserPending, models.ErrUserRejected, models.ErrUserDisabled, models.ErrUserNotApproved, models.ErrForbidden, models.ErrSignupDisabled}
	conflictErrors     = []error{models.ErrDuplicate, models.ErrClientInUse, models.ErrItemInUse, models.ErrRoleInUse, models.ErrLastAdmin, models.ErrAdminExists, models.ErrChallanNotOpen, models.ErrChallanHasReturns}
	unprocessableErrs  = []error{models.ErrInsufficientStock, models.ErrStockBelowRented, models.ErrNegativeStock, models.ErrNothingToReturn, models.ErrNegativeClosing, models.ErrClientInactive, models.ErrItemInactive}
	badRequestErrors   = []error{importer.ErrMissingColumns, importer.ErrDuplicateColumn, importer.ErrUnsupportedFormat, importer.ErrEmptyFile, importer.ErrFileTooLarge}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case utils.IsValidationError(err), isAny(err, badRequestErrors):
		return http.StatusBadRequest
	case isAny(err, unauthorizedErrors):
		return http.StatusUnauthorized
	case isAny(err, forbiddenErrors):
		return http.StatusForbidden
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case isAny(err, conflictErrors):
		return http.StatusConflict
	case isAny(err, unprocessableErrs):
		return http.StatusUnprocessableEntity
	case errors.Is(err, utils.ErrorServiceNotReady):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": ...}; unexpected errors are logged and hidden.
func respondError(c *gin.Context, module, function string, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		config.LogError(config.GetLogger(), module, function, c.Request.Method+" "+c.FullPath(), nil, err)
		message = "internal server error"
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "5")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func respondData(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}

// bindJSON binds the body and answers 400 when it does not decode.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":  "invalid request",
				"fields": utils.ProcessValidationErrors(err),
			})
			return false
		}
		badRequest(c, "invalid request: "+err.Error())
		return false
	}
	return true
}

// pathID reads a positive integer path parameter.
func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return def
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(c.Query(name)))
	return v
}

func queryBoolPtr(c *gin.Context, name string) *bool {
	raw, ok := c.GetQuery(name)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &v
}

// queryDate parses an optional date query; def is used when it is absent.
func queryDate(c *gin.Context, name string, def time.Time) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	t, err := utils.ParseFlexibleDate(raw)
	if err != nil {
		badRequest(c, "invalid "+name+": "+err.Error())
		return time.Time{}, false
	}
	return t, true
}

// queryPeriod reads from/to, defaulting to the month to date.
func queryPeriod(c *gin.Context) (from, to time.Time, ok bool) {
	today := models.BusinessToday(c.Request.Context())
	if from, ok = queryDate(c, "from", utils.MonthStart(today)); !ok {
		return
	}
	if to, ok = queryDate(c, "to", today); !ok {
		return
	}
	if to.Before(from) {
		badRequest(c, "to must not be before from")
		return from, to, false
	}
	return from, to, true
}

// queryRange is like queryPeriod but leaves missing bounds open.
func queryRange(c *gin.Context) (models.DateRange, bool) {
	var r models.DateRange
	var ok bool
	if r.From, ok = queryDate(c, "from", time.Time{}); !ok {
		return r, false
	}
	if r.To, ok = queryDate(c, "to", time.Time{}); !ok {
		return r, false
	}
	return r, true
}

func pathDate(c *gin.Context, name string) (time.Time, bool) {
	t, err := utils.ParseFlexibleDate(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return time.Time{}, false
	}
	return t, true
}
