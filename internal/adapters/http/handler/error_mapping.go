package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/employee"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/identity"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/provisioning"
	"github.com/sirupsen/logrus"
)

// errorResponse は API 共通のエラー本文です。Details は本番環境以外でのみ設定します。
type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details string            `json:"details,omitempty"`
}

type apiError struct {
	status int
	body   errorResponse
	cause  error
}

func newAPIError(status int, code, message string, cause error) apiError {
	return apiError{status: status, body: errorResponse{Error: code, Message: message}, cause: cause}
}

func bindingError(err error) apiError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		apiErr := newAPIError(http.StatusBadRequest, "missing_required_fields", "required fields are missing", err)
		apiErr.body.Fields = fields
		return apiErr
	}
	return newAPIError(http.StatusBadRequest, "invalid_request", "request body is malformed", err)
}

func isValidationError(err error) bool {
	return errors.Is(err, employee.ErrInvalidID) ||
		errors.Is(err, employee.ErrInvalidEmail) ||
		errors.Is(err, employee.ErrInvalidName) ||
		errors.Is(err, employee.ErrInvalidRole) ||
		errors.Is(err, employee.ErrInvalidReference) ||
		errors.Is(err, employee.ErrInvalidPageSize) ||
		errors.Is(err, employee.ErrInvalidPageToken) ||
		errors.Is(err, employee.ErrCompanyNotFound) ||
		errors.Is(err, employee.ErrTeamNotFound) ||
		errors.Is(err, employee.ErrManagerNotFound) ||
		errors.Is(err, provisioning.ErrMissingName) ||
		errors.Is(err, provisioning.ErrMissingEmail) ||
		errors.Is(err, provisioning.ErrMissingPassword)
}

// identityFailureError は認証基盤の失敗分類を HTTP ステータスに変換します。
func identityFailureError(err error) apiError {
	var failure *identity.Failure
	message := ""
	if errors.As(err, &failure) {
		message = failure.Message
	}

	switch identity.KindOf(err) {
	case identity.FailureBadRequest:
		return newAPIError(http.StatusBadRequest, "identity_bad_request", fallback(message, "identity service rejected the request"), err)
	case identity.FailureUnprocessable:
		return newAPIError(http.StatusBadRequest, "identity_validation_failed", fallback(message, "identity service could not process the request"), err)
	case identity.FailureUnauthorized:
		return newAPIError(http.StatusInternalServerError, "identity_misconfigured", "identity service credentials were rejected", err)
	case identity.FailureUnavailable:
		return newAPIError(http.StatusServiceUnavailable, "identity_unavailable", "identity service unavailable, retry later", err)
	case identity.FailureTimeout:
		return newAPIError(http.StatusGatewayTimeout, "identity_timeout", "identity service timed out", err)
	case identity.FailureNetwork:
		return newAPIError(http.StatusInternalServerError, "identity_unreachable", "could not connect to identity service", err)
	default:
		return newAPIError(http.StatusInternalServerError, "identity_failure", "identity service call failed", err)
	}
}

func provisioningError(res *provisioning.Result) apiError {
	err := res.Error()

	switch res.Outcome {
	case provisioning.OutcomeInvalidInput:
		return newAPIError(http.StatusBadRequest, "invalid_request", res.Err.Error(), err)
	case provisioning.OutcomeDuplicate:
		apiErr := newAPIError(http.StatusConflict, "email_already_exists", "an account with this email already exists", err)
		apiErr.body.Code = res.Conflict.Code()
		return apiErr
	case provisioning.OutcomeIdentityFailure:
		return identityFailureError(res.Err)
	case provisioning.OutcomeVerificationFailure:
		return newAPIError(http.StatusInternalServerError, "identity_verification_failed", "created account could not be verified", err)
	default:
		return newAPIError(http.StatusInternalServerError, "employee_creation_failed", "failed to create employee", err)
	}
}

func employeeError(err error) apiError {
	var failure *identity.Failure
	switch {
	case isValidationError(err):
		return newAPIError(http.StatusBadRequest, "invalid_request", err.Error(), err)
	case errors.Is(err, employee.ErrEmployeeNotFound):
		return newAPIError(http.StatusNotFound, "employee_not_found", "employee not found", err)
	case errors.Is(err, employee.ErrEmailAlreadyExists):
		apiErr := newAPIError(http.StatusConflict, "email_already_exists", "an employee with this email already exists", err)
		apiErr.body.Code = provisioning.ConflictDirectory.Code()
		return apiErr
	case errors.Is(err, identity.ErrEmailAlreadyExists):
		apiErr := newAPIError(http.StatusConflict, "email_already_exists", "an account with this email already exists", err)
		apiErr.body.Code = provisioning.ConflictIdentity.Code()
		return apiErr
	case errors.As(err, &failure), errors.Is(err, identity.ErrNotFound):
		return newAPIError(http.StatusBadRequest, "identity_update_failed", fallback(messageOf(failure), "failed to update identity"), err)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal server error", err)
	}
}

func messageOf(f *identity.Failure) string {
	if f == nil {
		return ""
	}
	return f.Message
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (h *EmployeeHTTPHandler) abort(c *gin.Context, apiErr apiError) {
	body := apiErr.body
	if !h.production && apiErr.cause != nil {
		body.Details = apiErr.cause.Error()
	}

	entry := h.log.WithFields(logrus.Fields{
		"request_id": requestIDFrom(c),
		"status":     apiErr.status,
		"error_code": body.Error,
	})
	if apiErr.cause != nil {
		entry = entry.WithError(apiErr.cause)
	}
	if apiErr.status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}

	c.AbortWithStatusJSON(apiErr.status, body)
}
