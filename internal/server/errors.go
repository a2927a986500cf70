package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/revenue/internal/audit/domain"
	"github.com/smallbiznis/revenue/internal/authorization"
	catalogdomain "github.com/smallbiznis/revenue/internal/catalog/domain"
	dashboarddomain "github.com/smallbiznis/revenue/internal/dashboard/domain"
	historydomain "github.com/smallbiznis/revenue/internal/history/domain"
	"github.com/smallbiznis/revenue/internal/identity"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/smallbiznis/revenue/internal/resilience"
	settlementdomain "github.com/smallbiznis/revenue/internal/settlement/domain"
	"github.com/smallbiznis/revenue/internal/tariff"
	userdomain "github.com/smallbiznis/revenue/internal/user/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	if v.Message != "" {
		return v.Message
	}
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Error   errorPayload `json:"error"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

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
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{
			Success: false,
			Message: payload.Message,
			Error:   payload,
		})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, successResponse{Success: true, Message: message, Data: data})
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
			Message: vErr.Error(),
			Errors:  vErr.Errors,
		}
	}

	var settleErr *settlementdomain.ValidationError
	if errors.As(err, &settleErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: settleErr.Message,
			Errors:  fromFieldErrors(settleErr.Fields),
		}
	}

	var missing *tariff.MissingFieldsError
	if errors.As(err, &missing) {
		out := make([]ValidationError, 0, len(missing.Fields))
		for _, field := range missing.Fields {
			out = append(out, ValidationError{Field: field, Code: "required", Message: field + " is required"})
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: settlementdomain.MsgMissingServiceFields,
			Errors:  out,
		}
	}

	var attrErr *tariff.AttributeError
	if errors.As(err, &attrErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: settlementdomain.MsgInvalidPayment,
			Errors: []ValidationError{
				{Field: attrErr.Field, Code: "invalid", Message: attrErr.Reason},
			},
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var (
		gwErr      *paymentdomain.GatewayError
		persistErr *settlementdomain.PersistenceError
	)
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identity.ErrMissingToken),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, settlementdomain.ErrSettlementInFlight):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a payment for this service is already in progress",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, catalogdomain.ErrCodeTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, tariff.ErrUnknownServiceCode):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "unknown service code",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrGatewayUnavailable),
		resilience.IsOpen(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.As(err, &gwErr):
		return http.StatusBadGateway, errorPayload{
			Type:    "payment_failed",
			Message: gatewayMessage(gwErr),
		}
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError, errorPayload{
			Type:    "persistence_error",
			Message: persistErr.Message(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds error_type and error_code into request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

// gatewayMessage is the provider's own reason, which the payer needs to act on.
func gatewayMessage(err *paymentdomain.GatewayError) string {
	if msg := strings.TrimSpace(err.Message); msg != "" {
		return msg
	}
	if err.Err != nil {
		if msg := strings.TrimSpace(err.Err.Error()); msg != "" {
			return msg
		}
	}
	return "payment could not be processed"
}

func fromFieldErrors(fields []settlementdomain.FieldError) []ValidationError {
	out := make([]ValidationError, 0, len(fields))
	for _, f := range fields {
		out = append(out, ValidationError{Field: f.Field, Code: f.Code, Message: f.Message})
	}
	return out
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationSentinels = []error{
	ErrInvalidRequest,
	catalogdomain.ErrInvalidID,
	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidRules,
	catalogdomain.ErrNoFieldsToUpdate,
	catalogdomain.ErrZeroAmount,
	tariff.ErrRateNotFound,
	tariff.ErrInvalidSchedule,
	historydomain.ErrInvalidPageToken,
	dashboarddomain.ErrInvalidPageToken,
	dashboarddomain.ErrInvalidStatus,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrInvalidEvent,
}

func validationSentinel(err error) error {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

func isValidationError(err error) bool {
	return validationSentinel(err) != nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, catalogdomain.ErrInactive),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	sentinel := validationSentinel(err)
	switch {
	case sentinel == nil:
		return "invalid_request"
	case errors.Is(sentinel, catalogdomain.ErrZeroAmount),
		errors.Is(sentinel, tariff.ErrRateNotFound):
		return "no_rate"
	default:
		return sentinel.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "no_rate":
		return "attributes"
	case "invalid_billing_rules":
		return "billing_rules"
	case "no_fields_to_update":
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "no_rate":
		return "no rate is configured for the supplied attributes"
	case "no_fields_to_update":
		return "no fields to update"
	default:
		return "invalid value"
	}
}
