package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/creditledger/internal/account/domain"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	orderdomain "github.com/smallbiznis/creditledger/internal/order/domain"
	referraldomain "github.com/smallbiznis/creditledger/internal/referral/domain"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not_found")

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

// errorRule maps a set of sentinel errors to one response shape. An empty
// message echoes the sentinel text.
type errorRule struct {
	status  int
	kind    string
	message string
	targets []error
}

var errorRules = []errorRule{
	{http.StatusBadRequest, "validation_error", "", []error{
		accountdomain.ErrInvalidUserID,
		usagedomain.ErrInvalidUserID,
		catalogdomain.ErrInvalidPackage,
		catalogdomain.ErrDuplicatePackage,
		ledgerdomain.ErrInvalidCredits,
		orderdomain.ErrInvalidReference,
		orderdomain.ErrInvalidAmount,
		referraldomain.ErrInvalidCode,
		referraldomain.ErrInvalidReward,
		pagination.ErrInvalidPageToken,
	}},
	{http.StatusNotFound, "not_found", "not found", []error{
		ErrNotFound,
		accountdomain.ErrNotFound,
		catalogdomain.ErrNotFound,
		orderdomain.ErrNotFound,
		gorm.ErrRecordNotFound,
	}},
	{http.StatusConflict, "in_progress", "settlement in progress, retry later", []error{
		orderdomain.ErrSettlementInProgress,
	}},
	{http.StatusConflict, "conflict", "", []error{
		orderdomain.ErrDuplicateReference,
		orderdomain.ErrInvalidTransition,
		referraldomain.ErrDuplicateReward,
		catalogdomain.ErrInactive,
	}},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", []error{
		usagedomain.ErrRateLimited,
	}},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{
		referraldomain.ErrCodeExhausted,
	}},
}

// ErrorHandlingMiddleware renders the last handler error unless the handler
// already wrote a response.
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
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if err == nil {
		return payload.Type, ""
	}
	return payload.Type, err.Error()
}

func mapError(err error) (int, errorPayload) {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	for _, rule := range errorRules {
		target := matchTarget(err, rule.targets)
		if target == nil {
			continue
		}
		if rule.status == http.StatusBadRequest {
			code := target.Error()
			return rule.status, errorPayload{
				Type:    rule.kind,
				Message: "validation error",
				Errors: []ValidationError{{
					Field:   strings.TrimPrefix(code, "invalid_"),
					Code:    code,
					Message: "invalid value",
				}},
			}
		}
		message := rule.message
		if message == "" {
			message = target.Error()
		}
		return rule.status, errorPayload{Type: rule.kind, Message: message}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func matchTarget(err error, targets []error) error {
	if err == nil {
		return nil
	}
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}
