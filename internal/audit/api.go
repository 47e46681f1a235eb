package audit

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPHandler handles audit HTTP requests.
type HTTPHandler struct {
	svc    Service
	logger *zap.Logger
}

// NewHTTPHandler creates a new audit HTTP handler.
func NewHTTPHandler(svc Service, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers audit routes.
func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	audit := rg.Group("/audit")
	{
		audit.GET("", h.queryEntries)
		audit.GET("/export", h.exportEntries)
		audit.GET("/:id", h.getEntry)
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

func parseParams(c *gin.Context) QueryParams {
	var params QueryParams
	if v := c.Query("actor_id"); v != "" {
		params.ActorID = &v
	}
	if v := c.Query("risk_id"); v != "" {
		params.RiskID = &v
	}
	if v := c.Query("action"); v != "" {
		params.Action = &v
	}
	if v := c.Query("outcome"); v != "" {
		params.Outcome = &v
	}
	if v := c.Query("type"); v != "" {
		params.Type = &v
	}
	if v := c.Query("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := c.Query("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Offset = n
		}
	}
	return params
}

func (h *HTTPHandler) queryEntries(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	params := parseParams(c)
	entries, total, err := h.svc.Query(c.Request.Context(), actor, params)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"limit":   params.Limit,
		"offset":  params.Offset,
	})
}

func (h *HTTPHandler) getEntry(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	entry, err := h.svc.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *HTTPHandler) exportEntries(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	entries, err := h.svc.Export(c.Request.Context(), actor, parseParams(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=risk_audit.csv")
	c.Status(http.StatusOK)

	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"Time", "Type", "Actor ID", "Risk ID", "Action", "Outcome", "Reason", "Detail"})
	for _, e := range entries {
		_ = writer.Write([]string{
			e.Timestamp.Format(time.RFC3339),
			string(e.Type),
			e.ActorID,
			strVal(e.RiskID),
			e.Action,
			string(e.Outcome),
			e.Reason,
			e.Detail,
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logger.Error("Failed to write audit export", zap.Error(err))
	}
}

func (h *HTTPHandler) handleServiceError(c *gin.Context, err error) {
	status, body := apperr.Response(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Audit request failed", zap.Error(err))
	}
	c.JSON(status, body)
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
