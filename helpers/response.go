package helpers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"drawbet/apperr"
)

func JSONSuccess(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// JSONError writes err with the status code of its kind. Unknown errors become a 500 with a generic message.
func JSONError(c *fiber.Ctx, err error) error {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "INTERNAL_ERROR",
			"data":    nil,
		})
	}
	return c.Status(StatusOf(e.Kind)).JSON(fiber.Map{
		"success": false,
		"message": e.Error(),
		"code":    e.Kind,
		"data":    e.Fields,
	})
}

func JSONBadRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": message,
		"data":    nil,
	})
}

func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidFormat, apperr.KindDuplicateDigits, apperr.KindUnsupportedGameOrBetType, apperr.KindInvalidDrawDate:
		return fiber.StatusBadRequest
	case apperr.KindForbidden:
		return fiber.StatusForbidden
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindInvalidState, apperr.KindAlreadySettled, apperr.KindCutoffPassed:
		return fiber.StatusConflict
	case apperr.KindLimitExceeded, apperr.KindProviderInactive, apperr.KindInvalidHierarchy, apperr.KindPayoutMissing:
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}
