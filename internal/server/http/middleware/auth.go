package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
	pkgAuth "github.com/polkiloo/orderpay/internal/pkg/auth"
	"github.com/polkiloo/orderpay/internal/server/http/dto"
)

// PrincipalContextKey is a gin context key for the authenticated principal.
const PrincipalContextKey = "principal"

// TokenParser resolves a bearer token to a principal.
type TokenParser interface {
	ParseToken(token string) (model.Principal, error)
}

// AuthRequired ensures the caller is authenticated before accessing handler.
func AuthRequired(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abortUnauthorized(c, "bearer token required")
			return
		}

		principal, err := parser.ParseToken(token)
		if err != nil {
			if errors.Is(err, pkgAuth.ErrInvalidToken) {
				abortUnauthorized(c, "invalid or expired token")
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{Error: dto.ErrorBody{
				Kind:    string(domainErrors.KindConfiguration),
				Message: "token cannot be verified",
			}})
			return
		}
		if principal.ID == "" {
			abortUnauthorized(c, "token has no subject")
			return
		}

		c.Set(PrincipalContextKey, principal)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: dto.ErrorBody{
		Kind:    string(domainErrors.KindAuth),
		Message: message,
	}})
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
