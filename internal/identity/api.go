package identity

import (
	"net/http"
	"time"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPHandler serves the identity endpoints.
type HTTPHandler struct {
	svc    Service
	logger *zap.Logger
}

// NewHTTPHandler creates a new identity HTTP handler.
func NewHTTPHandler(svc Service, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers identity routes on a group that already resolves the caller.
func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	users := rg.Group("/users")
	{
		users.GET("", h.listUsers)
		users.POST("", h.createUser)
		users.GET("/me", h.me)
		users.PUT("/:id/role", h.assignRole)
	}
}

// Response is the JSON form of an Identity.
type Response struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	Role         RoleKind  `json:"role"`
	DepartmentID string    `json:"department_id,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewResponse converts an identity to its JSON form.
func NewResponse(ident Identity) Response {
	dept, _ := ident.Department()
	return Response{
		ID:           ident.ID,
		Username:     ident.Username,
		Email:        ident.Email,
		Role:         ident.RoleKind(),
		DepartmentID: dept,
		Active:       ident.Active,
		CreatedAt:    ident.CreatedAt,
		UpdatedAt:    ident.UpdatedAt,
	}
}

func (h *HTTPHandler) actor(c *gin.Context) (Identity, bool) {
	actor, err := FromGinContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return Identity{}, false
	}
	return actor, true
}

func (h *HTTPHandler) me(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, NewResponse(actor))
}

func (h *HTTPHandler) listUsers(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	idents, err := h.svc.List(c.Request.Context(), actor)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	users := make([]Response, 0, len(idents))
	for _, ident := range idents {
		users = append(users, NewResponse(ident))
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *HTTPHandler) createUser(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind create user request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ident, err := h.svc.Create(c.Request.Context(), actor, req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewResponse(ident))
}

func (h *HTTPHandler) assignRole(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req AssignRoleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind assign role request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ident, err := h.svc.AssignRole(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewResponse(ident))
}

func (h *HTTPHandler) handleServiceError(c *gin.Context, err error) {
	status, body := apperr.Response(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Identity request failed", zap.Error(err))
	}
	c.JSON(status, body)
}
