package department

import (
	"net/http"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPHandler serves the department endpoints.
type HTTPHandler struct {
	svc    Service
	logger *zap.Logger
}

// NewHTTPHandler creates a new department HTTP handler.
func NewHTTPHandler(svc Service, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers department routes.
func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	departments := rg.Group("/departments")
	{
		departments.GET("", h.listDepartments)
		departments.POST("", h.createDepartment)
		departments.GET("/:id", h.getDepartment)
		departments.GET("/:id/stats", h.getStats)
		departments.POST("/:id/activate", h.activate)
		departments.POST("/:id/deactivate", h.deactivate)
	}
}

func (h *HTTPHandler) actor(c *gin.Context) (identity.Identity, bool) {
	actor, err := identity.FromGinContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return identity.Identity{}, false
	}
	return actor, true
}

func (h *HTTPHandler) listDepartments(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	includeInactive := c.Query("include_inactive") == "true"
	departments, err := h.svc.List(c.Request.Context(), includeInactive)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if departments == nil {
		departments = []Department{}
	}
	c.JSON(http.StatusOK, gin.H{"departments": departments})
}

func (h *HTTPHandler) getDepartment(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *HTTPHandler) createDepartment(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind create department request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.Create(c.Request.Context(), actor, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *HTTPHandler) getStats(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	stats, err := h.svc.Stats(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *HTTPHandler) activate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	d, err := h.svc.Activate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *HTTPHandler) deactivate(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	d, err := h.svc.Deactivate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *HTTPHandler) handleServiceError(c *gin.Context, err error) {
	status, body := apperr.Response(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Department request failed", zap.Error(err))
	}
	c.JSON(status, body)
}
