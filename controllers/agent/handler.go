package agent

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"drawbet/apperr"
	"drawbet/hierarchy"
	"drawbet/models"
)

type Handler struct {
	Store *hierarchy.Store
}

func New(store *hierarchy.Store) *Handler { return &Handler{Store: store} }

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.InvalidFormat("invalid agent id", apperr.Fields{"id": c.Params("id")})
	}
	return uint(id), nil
}

// canManage reports whether actor may change target: an admin, the target's direct upline,
// or the target's moderator.
func canManage(actor, target *models.Agent) bool {
	switch {
	case actor.Role == models.RoleAdmin:
		return true
	case target.UplineID != nil && *target.UplineID == actor.ID:
		return true
	case actor.Role == models.RoleModerator && target.ModeratorID != nil && *target.ModeratorID == actor.ID:
		return true
	}
	return false
}
