package dto

import "net/http"

// Error codes. Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeValidation = "ERR_VALIDATION"
	ErrCodeBadRequest = "ERR_BAD_REQUEST"

	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"

	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"

	// ErrCodeInvalidTenant is used when a tenant identifier is malformed or reserved
	ErrCodeInvalidTenant = "ERR_INVALID_TENANT"
	// ErrCodeTenantRequired is used when a tenant-scoped route has no bound tenant
	ErrCodeTenantRequired = "ERR_TENANT_REQUIRED"
	// ErrCodeNamespaceUnavailable is used when a namespace cannot be provisioned
	ErrCodeNamespaceUnavailable = "ERR_NAMESPACE_UNAVAILABLE"
	// ErrCodeTransactionScope is used when transaction boundaries are misused
	ErrCodeTransactionScope = "ERR_TRANSACTION_SCOPE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeValidation: http.StatusBadRequest,
	ErrCodeBadRequest: http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,

	ErrCodeInvalidTenant:        http.StatusBadRequest,
	ErrCodeTenantRequired:       http.StatusBadRequest,
	ErrCodeNamespaceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTransactionScope:     http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status for code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
