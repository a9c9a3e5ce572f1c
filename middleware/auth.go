package middleware

import (
	"freightlink/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// RequirePermissions is a helper function that creates a middleware with specific permissions
func RequirePermissions(permissions ...string) fiber.Handler {
	return IsAuthenticated(permissions)
}

// RequireAnyPermission allows access if user has any of the specified permissions
func RequireAnyPermission(permissions ...string) fiber.Handler {
	allPerms := append(permissions, constants.PermAny)
	return IsAuthenticated(allPerms)
}

// RequireAuthentication only requires valid authentication without specific permissions
func RequireAuthentication() fiber.Handler {
	return IsAuthenticated([]string{constants.PermAny})
}

// GetClaims returns the verified JWT claims attached by IsAuthenticated
func GetClaims(c *fiber.Ctx) jwt.MapClaims {
	claims, ok := c.Locals("user").(jwt.MapClaims)
	if !ok {
		return jwt.MapClaims{}
	}
	return claims
}

// GetUsername returns the authenticated username, or "" when absent
func GetUsername(c *fiber.Ctx) string {
	if username, ok := GetClaims(c)["username"].(string); ok {
		return username
	}
	return ""
}

// GetUserUuid returns the authenticated user's uuid, or "" when absent
func GetUserUuid(c *fiber.Ctx) string {
	if uuid, ok := GetClaims(c)["uuid"].(string); ok {
		return uuid
	}
	return ""
}

// CheckPermissionInController checks if user has specific permission within a controller
func CheckPermissionInController(c *fiber.Ctx, requiredPermission string) bool {
	userClaims, ok := c.Locals("user").(jwt.MapClaims)
	if !ok {
		return false
	}

	userPermissions, ok := userClaims["permissions"].([]interface{})
	if !ok {
		return false
	}

	for _, p := range userPermissions {
		if perm, ok := p.(string); ok && perm == requiredPermission {
			return true
		}
	}

	return false
}
