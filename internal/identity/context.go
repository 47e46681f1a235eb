package identity

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
)

type contextKey string

const identityContextKey contextKey = "identity"

// ErrNoIdentity is returned when a request carries no resolved identity.
var ErrNoIdentity = errors.New("identity not found in context")

// NewContext returns a copy of ctx carrying ident.
func NewContext(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, ident)
}

// FromContext extracts the identity stored by NewContext.
func FromContext(ctx context.Context) (Identity, error) {
	if ident, ok := ctx.Value(identityContextKey).(Identity); ok && ident.ID != "" {
		return ident, nil
	}
	return Identity{}, ErrNoIdentity
}

// SetGinContext stores ident on both the gin context and its request context.
func SetGinContext(c *gin.Context, ident Identity) {
	c.Set(string(identityContextKey), ident)
	c.Request = c.Request.WithContext(NewContext(c.Request.Context(), ident))
}

// FromGinContext extracts the identity previously stored by SetGinContext.
func FromGinContext(c *gin.Context) (Identity, error) {
	if value, ok := c.Get(string(identityContextKey)); ok {
		if ident, ok := value.(Identity); ok && ident.ID != "" {
			return ident, nil
		}
	}
	return FromContext(c.Request.Context())
}
