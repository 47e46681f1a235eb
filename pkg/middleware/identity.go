package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dhawalhost/riskregister/internal/apperr"
	"github.com/dhawalhost/riskregister/internal/identity"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultIdentityHeader carries the caller id when a trusted proxy fronts the service.
const DefaultIdentityHeader = "X-User-ID"

// IdentityResolver loads the identity a request claims to be.
type IdentityResolver interface {
	Get(ctx context.Context, id string) (identity.Identity, error)
}

// IdentityConfig captures the knobs for identity extraction.
type IdentityConfig struct {
	Resolver IdentityResolver
	// SigningKey verifies HS256 bearer tokens whose subject is the identity id.
	SigningKey []byte
	// TrustHeader accepts HeaderName without a token.
	TrustHeader bool
	// HeaderName defaults to DefaultIdentityHeader.
	HeaderName string
	Logger     *zap.Logger
}

var errUnauthenticated = errors.New("unauthenticated")

// IdentityExtractor returns a Gin middleware that resolves the caller and
// stores it with identity.SetGinContext. Unknown or inactive callers get 401.
func IdentityExtractor(cfg IdentityConfig) gin.HandlerFunc {
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = DefaultIdentityHeader
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		id, err := subject(c, cfg, headerName)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		ident, err := cfg.Resolver.Get(c.Request.Context(), id)
		switch {
		case errors.Is(err, identity.ErrNotFound) || apperr.IsKind(err, apperr.KindNotFound):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown identity"})
			return
		case err != nil:
			logger.Error("Failed to resolve identity", zap.String("identity", id), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if !ident.Active {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity is inactive"})
			return
		}

		identity.SetGinContext(c, ident)
		c.Next()
	}
}

// subject returns the identity id claimed by the request. A bearer token
// takes precedence over the trusted header.
func subject(c *gin.Context, cfg IdentityConfig, headerName string) (string, error) {
	if auth := c.GetHeader("Authorization"); auth != "" {
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || len(cfg.SigningKey) == 0 {
			return "", fmt.Errorf("%w: unsupported authorization", errUnauthenticated)
		}
		return tokenSubject(raw, cfg.SigningKey)
	}
	if cfg.TrustHeader {
		if id := strings.TrimSpace(c.GetHeader(headerName)); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: missing credentials", errUnauthenticated)
}

func tokenSubject(raw string, key []byte) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: invalid token", errUnauthenticated)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no subject", errUnauthenticated)
	}
	return sub, nil
}
