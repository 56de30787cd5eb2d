package serverutils

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// CallerMiddleware resolves a caller identity for per-caller session limits.
// A valid bearer token with a user_id claim wins; otherwise the client IP is
// used. Interview clients are allowed to be anonymous, so a missing or bad
// token is not an error here.
func CallerMiddleware(jwtSecret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		caller := ctx.IP()

		authHeader := ctx.Get("Authorization")
		if jwtSecret != "" && strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr := authHeader[7:]
			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			})
			if err == nil && token.Valid {
				if claims, ok := token.Claims.(jwt.MapClaims); ok {
					if userId, ok := claims["user_id"].(string); ok && userId != "" {
						caller = userId
					}
				}
			}
		}

		ctx.Locals("caller_id", caller)
		return ctx.Next()
	}
}
