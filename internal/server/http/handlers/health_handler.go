package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/server/http/dto"
)

// HealthHandler reports readiness of the service.
type HealthHandler struct {
	facade HealthFacade
}

// NewHealthHandler constructs HealthHandler.
func NewHealthHandler(facade HealthFacade) *HealthHandler {
	return &HealthHandler{facade: facade}
}

// Check handles GET /healthz.
func (h *HealthHandler) Check(c *gin.Context) {
	if err := h.facade.HealthCheck(c.Request.Context()); err != nil {
		if domainErrors.KindOf(err) == "" {
			err = domainErrors.Wrap(domainErrors.KindNotInitialized, err, "storage is unreachable")
		}
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}
