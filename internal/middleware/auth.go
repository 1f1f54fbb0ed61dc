// Package middleware implements gin middleware for the booking core:
// RBAC gating, CORS, and request logging. Grounded on auth-service's
// internal/middleware/{auth.go,cors.go,logging.go}, with one deliberate
// simplification: this service never resolves identity itself (§1
// Non-goal) — it trusts a principal already resolved by an upstream
// gateway/auth service and carried on request headers, instead of parsing
// and validating a JWT the way auth-service's AuthMiddleware does.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shearline/booking-core/internal/models"
	"github.com/shearline/booking-core/pkg/logger"
)

const (
	principalRoleHeader     = "X-Principal-Role"
	principalWorkerIDHeader = "X-Principal-Worker-Id"
	principalIDHeader       = "X-Principal-Id"

	ContextKeyRole     = "principal_role"
	ContextKeyWorkerID = "principal_worker_id"
	ContextKeyID       = "principal_id"
)

// AuthMiddleware reads the upstream-resolved principal off request headers
// and gates handlers by role, mirroring auth-service's AuthMiddleware shape
// (RequireAuth/RequireRole) without performing its own token validation.
type AuthMiddleware struct {
	logger *logger.Logger
}

func NewAuthMiddleware(log *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{logger: log}
}

// ResolvePrincipal reads the principal headers into gin context, defaulting
// to PUBLIC when absent (matching the public endpoints of §6).
func (m *AuthMiddleware) ResolvePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := models.Role(c.GetHeader(principalRoleHeader))
		switch role {
		case models.RolePublic, models.RoleWorker, models.RoleStaff, models.RoleAdmin:
		default:
			role = models.RolePublic
		}
		c.Set(ContextKeyRole, role)
		c.Set(ContextKeyWorkerID, c.GetHeader(principalWorkerIDHeader))
		c.Set(ContextKeyID, c.GetHeader(principalIDHeader))
		c.Next()
	}
}

// RequireStaffOrAdmin gates an endpoint to the §6 "Staff / admin" group.
func (m *AuthMiddleware) RequireStaffOrAdmin() gin.HandlerFunc {
	return m.RequireRole(models.RoleStaff, models.RoleAdmin)
}

// RequireWorker gates an endpoint to the WORKER, STAFF or ADMIN roles (the
// worker day view, §4.7). It checks the role only; whether the caller is
// bound to a worker row is not checked here.
func (m *AuthMiddleware) RequireWorker() gin.HandlerFunc {
	return m.RequireRole(models.RoleWorker, models.RoleStaff, models.RoleAdmin)
}

// RequireRole gates an endpoint to one of the given roles.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := PrincipalRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		m.logger.Warn("access denied - insufficient role", "role", role, "path", c.Request.URL.Path)
		c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"code": "insufficient_role", "message": "insufficient permissions"}})
		c.Abort()
	}
}

// PrincipalRole reads the resolved role out of gin context.
func PrincipalRole(c *gin.Context) (models.Role, bool) {
	v, exists := c.Get(ContextKeyRole)
	if !exists {
		return models.RolePublic, false
	}
	role, ok := v.(models.Role)
	return role, ok
}

// PrincipalWorkerID reads the worker id bound to the caller, for the
// worker day view (§4.7).
func PrincipalWorkerID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyWorkerID)
	s, _ := v.(string)
	return s
}

// PrincipalID reads an opaque caller identity, falling back to the role
// name when no id header was sent. No handler calls it; the services record
// the caller's role as the audit and cancel/reschedule actor.
func PrincipalID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyID)
	s, _ := v.(string)
	if s == "" {
		role, _ := PrincipalRole(c)
		return string(role)
	}
	return s
}
