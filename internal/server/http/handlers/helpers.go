package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
	"github.com/polkiloo/orderpay/internal/server/http/dto"
	"github.com/polkiloo/orderpay/internal/server/http/middleware"
)

// CurrentPrincipal extracts the authenticated principal from context.
func CurrentPrincipal(c *gin.Context) model.Principal {
	val, ok := c.Get(middleware.PrincipalContextKey)
	if !ok {
		return model.Principal{}
	}
	p, _ := val.(model.Principal)
	return p
}

var kindStatus = map[domainErrors.Kind]int{
	domainErrors.KindValidation:            http.StatusBadRequest,
	domainErrors.KindAuth:                  http.StatusUnauthorized,
	domainErrors.KindForbidden:             http.StatusForbidden,
	domainErrors.KindNotFound:              http.StatusNotFound,
	domainErrors.KindInvalidTransition:     http.StatusConflict,
	domainErrors.KindConflict:              http.StatusConflict,
	domainErrors.KindInvalidSignature:      http.StatusBadRequest,
	domainErrors.KindPaymentNotCaptured:    http.StatusPaymentRequired,
	domainErrors.KindRefundExceedsCaptured: http.StatusUnprocessableEntity,
	domainErrors.KindUnknownOutcome:        http.StatusGatewayTimeout,
	domainErrors.KindPartialFailure:        http.StatusInternalServerError,
	domainErrors.KindStorage:               http.StatusInternalServerError,
	domainErrors.KindNotInitialized:        http.StatusServiceUnavailable,
	domainErrors.KindConfiguration:         http.StatusInternalServerError,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var typed *domainErrors.Error
	if !errors.As(err, &typed) {
		return http.StatusInternalServerError
	}
	if typed.Kind == domainErrors.KindGateway {
		if typed.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	}
	if status, ok := kindStatus[typed.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError renders err as {"error":{"kind","message"}}. Wrapped causes are never serialised.
func WriteError(c *gin.Context, err error) {
	kind := domainErrors.KindOf(err)
	if kind == "" {
		kind = "internal_error"
	}
	var typed *domainErrors.Error
	if errors.As(err, &typed) && typed.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int((typed.RetryAfter+time.Second-1)/time.Second)))
	}
	c.AbortWithStatusJSON(StatusFor(err), dto.ErrorResponse{Error: dto.ErrorBody{
		Kind:    string(kind),
		Message: domainErrors.PublicMessage(err),
	}})
}

func badRequest(c *gin.Context, message string) {
	WriteError(c, domainErrors.Validation("%s", message))
}
