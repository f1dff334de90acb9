package middlewares

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"drawbet/apperr"
	"drawbet/helpers"
	"drawbet/models"
)

const agentKey = "agent"

type AgentLoader interface {
	Get(ctx context.Context, id uint) (*models.Agent, error)
}

// SignAgentToken issues an HS256 token whose subject is the agent id.
func SignAgentToken(secret []byte, agentID uint, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(agentID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "drawbet",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseAgentToken(secret []byte, token string) (uint, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, errors.New("invalid token")
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid subject")
	}
	return uint(id), nil
}

// AgentAuth resolves the bearer token to an active agent and stores it in the request locals.
func AgentAuth(secret []byte, agents AgentLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return unauthorized(c, "TOKEN_REQUIRED")
		}
		id, err := parseAgentToken(secret, token)
		if err != nil {
			return unauthorized(c, "INVALID_TOKEN")
		}
		agent, err := agents.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return unauthorized(c, "INVALID_TOKEN")
			}
			return helpers.JSONError(c, err)
		}
		if !agent.IsActive {
			return unauthorized(c, "AGENT_INACTIVE")
		}
		c.Locals(agentKey, agent)
		return c.Next()
	}
}

// RequireRole lets only agents of the given roles through. It must run after AgentAuth.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		agent := CurrentAgent(c)
		for _, r := range roles {
			if agent != nil && agent.Role == r {
				return c.Next()
			}
		}
		return helpers.JSONError(c, apperr.Forbidden("role not allowed", apperr.Fields{"required": roles}))
	}
}

func CurrentAgent(c *fiber.Ctx) *models.Agent {
	agent, _ := c.Locals(agentKey).(*models.Agent)
	return agent
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": msg,
		"data":    nil,
	})
}
