// Package handler holds the gin handlers of the HTTP surface.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apptenancy "github.com/erp/tenancy/internal/application/tenancy"
	"github.com/erp/tenancy/internal/domain/catalog"
	"github.com/erp/tenancy/internal/domain/shared"
	"github.com/erp/tenancy/internal/domain/tenancy"
	"github.com/erp/tenancy/internal/infrastructure/logger"
	"github.com/erp/tenancy/internal/infrastructure/persistence/tenant"
	"github.com/erp/tenancy/internal/infrastructure/persistence/txn"
	"github.com/erp/tenancy/internal/interfaces/http/dto"
	"github.com/erp/tenancy/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

func getRequestID(c *gin.Context) string {
	return logger.GetRequestID(c.Request.Context())
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize, totalPages int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, dto.Meta{
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response, deriving the status from code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// Forbidden sends a 403 forbidden response
func (h *BaseHandler) Forbidden(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeForbidden, message)
}

// BindingError sends a 400 validation response for a failed ShouldBind
func (h *BaseHandler) BindingError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// HandleError classifies err and writes the matching error response.
// Unclassified errors are logged and answered with a generic 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	code := errorCode(err)
	if code == dto.ErrCodeInternal || code == dto.ErrCodeTransactionScope || code == dto.ErrCodeNamespaceUnavailable {
		logger.L(c.Request.Context()).Error("Request failed", zap.String("code", code), zap.Error(err))
	}

	message := "An unexpected error occurred"
	var domainErr *shared.DomainError
	if code != dto.ErrCodeInternal && errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	h.Error(c, code, message)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, tenancy.ErrInvalidIdentifier),
		errors.Is(err, tenancy.ErrBlankIdentifier),
		errors.Is(err, apptenancy.ErrReservedNamespace):
		return dto.ErrCodeInvalidTenant
	case errors.Is(err, tenancy.ErrNoUnitOfWork):
		return dto.ErrCodeTenantRequired
	case errors.Is(err, tenant.ErrProvisioningFailed):
		return dto.ErrCodeNamespaceUnavailable
	case errors.Is(err, txn.ErrScopeConflict),
		errors.Is(err, txn.ErrUnexpectedRollback),
		errors.Is(err, txn.ErrManagerKindMismatch),
		errors.Is(err, txn.ErrNoTransaction):
		return dto.ErrCodeTransactionScope
	case errors.Is(err, shared.ErrNotFound):
		return dto.ErrCodeNotFound
	case errors.Is(err, catalog.ErrProductCodeExists), errors.Is(err, shared.ErrAlreadyExists):
		return dto.ErrCodeAlreadyExists
	case errors.Is(err, catalog.ErrInvalidProductCode),
		errors.Is(err, catalog.ErrInvalidProductName),
		errors.Is(err, catalog.ErrInvalidProductUnit),
		errors.Is(err, catalog.ErrInvalidProductPrice),
		errors.Is(err, shared.ErrInvalidInput):
		return dto.ErrCodeValidation
	}
	return dto.ErrCodeInternal
}
