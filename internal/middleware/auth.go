package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/syndromed/backend/internal/models"
	"github.com/syndromed/backend/internal/services"
	"github.com/syndromed/backend/pkg/logger"
	"github.com/syndromed/backend/pkg/utils"
	"gorm.io/gorm"
)

const currentPrincipalKey = "currentPrincipal"

type AuthMiddleware struct {
	Identity *services.IdentityService
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{Identity: services.NewIdentityService(db)}
}

func CORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: "http://localhost:3001,http://127.0.0.1:3001",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// RequireAuth verifies the bearer token and re-fetches the principal record
// by (kind, id). A valid token whose account has since been deleted is
// rejected the same way as an invalid one.
func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("jwt_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	principal, err := a.Identity.FindByKindID(claims.Kind, claims.PrincipalID)
	if err != nil {
		logger.Warn("jwt_principal_not_found", map[string]interface{}{
			"ip":           c.IP(),
			"path":         c.Path(),
			"kind":         string(claims.Kind),
			"principal_id": claims.PrincipalID,
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	c.Locals(currentPrincipalKey, principal)
	c.Locals("actor", fmt.Sprintf("%s:%d", principal.Kind, principal.ID))
	return c.Next()
}

func AdminOnly(c *fiber.Ctx) error {
	return requireKind(c, models.KindAdmin, "admin access required")
}

func DoctorOnly(c *fiber.Ctx) error {
	return requireKind(c, models.KindDoctor, "doctor access required")
}

func UserOnly(c *fiber.Ctx) error {
	return requireKind(c, models.KindNormalUser, "user access required")
}

func requireKind(c *fiber.Ctx, kind models.PrincipalKind, message string) error {
	principal := GetCurrentPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if principal.Kind != kind {
		return utils.Error(c, fiber.StatusForbidden, message)
	}
	return c.Next()
}

func GetCurrentPrincipal(c *fiber.Ctx) *models.Principal {
	value := c.Locals(currentPrincipalKey)
	if value == nil {
		return nil
	}
	principal, ok := value.(*models.Principal)
	if !ok {
		return nil
	}
	return principal
}
