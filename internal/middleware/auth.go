package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/config"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/handler"
)

// Context keys populated by the auth middleware.
const (
	CtxUserID      = "user_id"
	CtxTenantID    = "tenant_id"
	CtxPermissions = "permissions"
	CtxRoles       = "roles"
)

var privilegedRoles = map[string]struct{}{
	"admin":     {},
	"principal": {},
}

type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(cfg config.JWTConfig) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(cfg.Secret)}
}

// Authenticate parses the bearer token and surfaces the caller's identity and
// permission claims. It only identifies; authorization decisions stay with
// the services.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing bearer token"))
			return
		}

		token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid claims"))
			return
		}

		userID, err := uuidClaim(claims, "user_id")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid user claim"))
			return
		}
		tenantID, err := uuidClaim(claims, "tenant_id")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid tenant claim"))
			return
		}

		c.Set(CtxUserID, userID)
		c.Set(CtxTenantID, tenantID)
		c.Set(CtxPermissions, stringsClaim(claims, "permissions"))
		c.Set(CtxRoles, stringsClaim(claims, "roles"))
		c.Next()
	}
}

// IsPrivileged reports whether the authenticated caller holds a global admin
// role.
func IsPrivileged(c *gin.Context) bool {
	roles, ok := c.Get(CtxRoles)
	if !ok {
		return false
	}
	for _, role := range roles.([]string) {
		if _, ok := privilegedRoles[strings.ToLower(role)]; ok {
			return true
		}
	}
	return false
}

// UserID returns the authenticated user's id.
func UserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(CtxUserID); ok {
		return v.(uuid.UUID)
	}
	return uuid.Nil
}

// TenantID returns the authenticated user's tenant id.
func TenantID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(CtxTenantID); ok {
		return v.(uuid.UUID)
	}
	return uuid.Nil
}

// Permissions returns the caller's permission codes.
func Permissions(c *gin.Context) []string {
	if v, ok := c.Get(CtxPermissions); ok {
		return v.([]string)
	}
	return nil
}

func uuidClaim(claims jwt.MapClaims, key string) (uuid.UUID, error) {
	raw, ok := claims[key].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("claim %s missing", key)
	}
	return uuid.Parse(raw)
}

func stringsClaim(claims jwt.MapClaims, key string) []string {
	raw, ok := claims[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
