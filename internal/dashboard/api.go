package dashboard

import (
	"net/http"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPHandler serves the dashboard endpoint.
type HTTPHandler struct {
	svc    Service
	logger *zap.Logger
}

// NewHTTPHandler creates a new dashboard HTTP handler.
func NewHTTPHandler(svc Service, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers dashboard routes.
func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/dashboard", h.getSummary)
}

func (h *HTTPHandler) getSummary(c *gin.Context) {
	actor, err := identity.FromGinContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	summary, err := h.svc.Summary(c.Request.Context(), actor)
	if err != nil {
		status, body := apperr.Response(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Failed to compute dashboard", zap.Error(err))
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, summary)
}
