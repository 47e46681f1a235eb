package register

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/dhawalhost/riskregister/internal/policy"
	"github.com/dhawalhost/riskregister/internal/risk"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPHandler serves the risk endpoints.
type HTTPHandler struct {
	svc    Service
	logger *zap.Logger
}

// NewHTTPHandler creates a new risk HTTP handler.
func NewHTTPHandler(svc Service, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers risk routes. Lock and unlock are POST only.
func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	risks := rg.Group("/risks")
	{
		risks.GET("", h.listRisks)
		risks.POST("", h.createRisk)
		risks.GET("/:id", h.getRisk)
		risks.PATCH("/:id", h.editRisk)
		risks.DELETE("/:id", h.deleteRisk)
		risks.GET("/:id/decision", h.decide)
		risks.POST("/:id/transition", h.transition)
		risks.POST("/:id/lock", h.lock)
		risks.POST("/:id/unlock", h.unlock)
	}
}

// RiskResponse is the JSON form of a risk with the lock state flattened.
type RiskResponse struct {
	risk.Risk
	ResolutionHours int        `json:"resolution_hours"`
	Locked          bool       `json:"locked"`
	LockedBy        string     `json:"locked_by,omitempty"`
	LockedAt        *time.Time `json:"locked_at,omitempty"`
}

// NewRiskResponse converts a risk to its JSON form.
func NewRiskResponse(r risk.Risk) RiskResponse {
	resp := RiskResponse{Risk: r, ResolutionHours: r.ResolutionHours()}
	if l, ok := r.Lock.(risk.Locked); ok {
		at := l.At
		resp.Locked = true
		resp.LockedBy = l.By
		resp.LockedAt = &at
	}
	return resp
}

type editRequest struct {
	Version int64 `json:"version" binding:"required,min=1"`
	EditInput
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

type decisionResponse struct {
	RiskID  string `json:"risk_id"`
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func (h *HTTPHandler) actor(c *gin.Context) (identity.Identity, bool) {
	actor, err := identity.FromGinContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return identity.Identity{}, false
	}
	return actor, true
}

func (h *HTTPHandler) listRisks(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	filter := ListFilter{
		DepartmentID: c.Query("department_id"),
		Severity:     c.Query("severity"),
		Status:       c.Query("status"),
		Search:       c.Query("search"),
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	risks, total, err := h.svc.List(c.Request.Context(), actor, filter)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	out := make([]RiskResponse, 0, len(risks))
	for _, r := range risks {
		out = append(out, NewRiskResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"risks": out, "total": total})
}

func (h *HTTPHandler) createRisk(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind create risk request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.svc.CreateRisk(c.Request.Context(), actor, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewRiskResponse(r))
}

func (h *HTTPHandler) getRisk(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	r, err := h.svc.View(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRiskResponse(r))
}

func (h *HTTPHandler) editRisk(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind edit risk request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.svc.Edit(c.Request.Context(), actor, c.Param("id"), req.Version, req.EditInput)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRiskResponse(r))
}

func (h *HTTPHandler) deleteRisk(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) decide(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	action, err := policy.ParseAction(c.Query("action"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	riskID := c.Param("id")
	d, err := h.svc.Decide(c.Request.Context(), actor, riskID, action)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, decisionResponse{
		RiskID:  riskID,
		Action:  string(action),
		Allowed: d.Allowed,
		Reason:  string(d.Reason),
	})
}

func (h *HTTPHandler) transition(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind transition request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := h.svc.Transition(c.Request.Context(), actor, c.Param("id"), risk.Status(req.Status))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRiskResponse(r))
}

func (h *HTTPHandler) lock(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	r, err := h.svc.Lock(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRiskResponse(r))
}

func (h *HTTPHandler) unlock(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	r, err := h.svc.Unlock(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewRiskResponse(r))
}

func (h *HTTPHandler) handleServiceError(c *gin.Context, err error) {
	status, body := apperr.Response(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Risk request failed", zap.Error(err))
	}
	c.JSON(status, body)
}
