package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fintrack/internal/access"
	"github.com/smallbiznis/fintrack/internal/apperror"
	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	ledgerdomain "github.com/smallbiznis/fintrack/internal/ledger/domain"
	licensedomain "github.com/smallbiznis/fintrack/internal/license/domain"
	recurringdomain "github.com/smallbiznis/fintrack/internal/recurring/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrLicenseRequired    = errors.New("license_required")
)

// fieldErrors maps domain validation sentinels onto the request field they
// concern.
var fieldErrors = []struct {
	err   error
	field string
	code  string
}{
	{authdomain.ErrInvalidUsername, "username", "invalid_username"},
	{authdomain.ErrInvalidPassword, "password", "weak_password"},
	{authdomain.ErrInvalidRole, "role", "invalid_role"},
	{ledgerdomain.ErrInvalidCategory, "category_id", "invalid_category"},
	{ledgerdomain.ErrInvalidCategoryType, "type", "invalid_type"},
	{ledgerdomain.ErrInvalidName, "name", "invalid_name"},
	{ledgerdomain.ErrInvalidAmount, "amount", "invalid_amount"},
	{ledgerdomain.ErrInvalidDate, "date", "invalid_date"},
	{ledgerdomain.ErrInvalidRange, "to", "invalid_range"},
	{ledgerdomain.ErrInvalidPageToken, "page_token", "invalid_page_token"},
	{recurringdomain.ErrInvalidFrequency, "frequency", "invalid_frequency"},
	{recurringdomain.ErrInvalidAmount, "amount", "invalid_amount"},
	{recurringdomain.ErrInvalidCategory, "category_id", "invalid_category"},
	{recurringdomain.ErrInvalidStartDate, "start_date", "invalid_start_date"},
	{recurringdomain.ErrInvalidEndDate, "end_date", "invalid_end_date"},
	{recurringdomain.ErrInvalidDueDate, "next_due_date", "invalid_next_due_date"},
	{recurringdomain.ErrInvalidHorizon, "days", "invalid_days"},
	{access.ErrEmptyLicenseKey, "license_key", "required"},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusTooManyRequests {
			if retry, ok := c.Get(contextRetryAfterKey); ok {
				c.Header("Retry-After", retry.(string))
			}
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	for _, fe := range fieldErrors {
		if errors.Is(err, fe.err) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors: []ValidationError{
					{Field: fe.field, Code: fe.code, Message: fe.err.Error()},
				},
			}
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked),
		errors.Is(err, access.ErrSessionIdle),
		errors.Is(err, access.ErrLicenseRejected):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: unauthorizedMessage(err),
		}
	case errors.Is(err, ErrLicenseRequired),
		errors.Is(err, access.ErrPendingLicense):
		return http.StatusForbidden, errorPayload{
			Type:    "license_required",
			Message: "a valid license is required",
		}
	case errors.Is(err, ErrForbidden),
		apperror.Is(err, apperror.KindPermissionDenied):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, access.ErrNotPending),
		errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, ledgerdomain.ErrCategoryExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, licensedomain.ErrLicenseInvalid),
		errors.Is(err, licensedomain.ErrLicenseExpired),
		errors.Is(err, licensedomain.ErrNoLicenseKey):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "license_invalid",
			Message: err.Error(),
		}
	case errors.Is(err, ErrServiceUnavailable),
		apperror.Is(err, apperror.KindNetworkUnavailable),
		apperror.Is(err, apperror.KindTransient):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, ErrInvalidRequest),
		apperror.Is(err, apperror.KindInvalidInput):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []ValidationError{{Field: "request", Code: "invalid_request", Message: "invalid request"}},
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, access.ErrSessionIdle):
		return "session expired after inactivity"
	case errors.Is(err, access.ErrLicenseRejected):
		return "license is no longer valid"
	default:
		return "unauthorized"
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, ledgerdomain.ErrTransactionNotFound),
		errors.Is(err, ledgerdomain.ErrCategoryNotFound),
		errors.Is(err, recurringdomain.ErrTemplateNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		apperror.Is(err, apperror.KindNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger a bounded type and code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, string(apperror.KindOf(err))
}
