package server

import (
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"guardex/auth"
	"strings"
	"time"
)

type claimsKey struct{}

// accessLog logs every request once it was handled.
func accessLog(ctx fiber.Ctx) error {
	start := time.Now()
	err := ctx.Next()

	entry := logrus.WithFields(logrus.Fields{
		"method":  ctx.Method(),
		"path":    ctx.Path(),
		"status":  ctx.Response().StatusCode(),
		"ip":      ctx.IP(),
		"latency": time.Since(start).String(),
	})
	if err != nil {
		entry.Warnf("request failed: %v", err)
		return err
	}
	entry.Debug("request handled")
	return nil
}

// optionalBearer authenticates requests that carry a bearer token. Requests
// without one pass through unauthenticated; an invalid token is rejected.
func optionalBearer(tokens *auth.TokenManager) fiber.Handler {
	return func(ctx fiber.Ctx) error {
		header := ctx.Get(fiber.HeaderAuthorization)
		if header == "" {
			return ctx.Next()
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(response{Error: "Invalid authorization header"})
		}

		claims, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(response{Error: "Invalid or expired token"})
		}
		ctx.Locals(claimsKey{}, claims)
		return ctx.Next()
	}
}

func claimsFrom(ctx fiber.Ctx) *auth.Claims {
	claims, _ := ctx.Locals(claimsKey{}).(*auth.Claims)
	return claims
}
