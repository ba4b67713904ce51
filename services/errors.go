package services

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Workflow error taxonomy. Services return these sentinels; handlers map
// them to HTTP responses with ErrorResponse. The idempotency conflicts
// (ErrDuplicateReference, ErrAlreadyResolved, ErrAlreadyProcessed) are
// benign: retried calls report success without re-applying effects.
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicatePending   = errors.New("pending request already exists")
	ErrDuplicateReference = errors.New("ledger entry already exists for reference")
	ErrAlreadyResolved    = errors.New("request already resolved")
	ErrAlreadyProcessed   = errors.New("signup already processed")
	ErrSelfReferral       = errors.New("cannot refer yourself")
	ErrInvalidCode        = errors.New("invalid code")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidContent     = errors.New("invalid question content")
	ErrRoundClosed        = errors.New("round closed")
	ErrExpired            = errors.New("expired")
	ErrAlreadyPaired      = errors.New("device already paired")
	ErrNotCompleted       = errors.New("battle not completed")
)

// ErrorResponse writes the taxonomy error to the client. Benign idempotency
// conflicts come back 200 with an already_processed flag so blind retries
// see success.
func ErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, ErrAlreadyProcessed),
		errors.Is(err, ErrDuplicateReference):
		return c.JSON(fiber.Map{"success": true, "already_processed": true})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrDuplicatePending),
		errors.Is(err, ErrAlreadyPaired),
		errors.Is(err, ErrNotCompleted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrSelfReferral),
		errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidContent),
		errors.Is(err, ErrRoundClosed),
		errors.Is(err, ErrExpired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

// isUniqueViolation matches duplicate-key failures from Postgres and SQLite.
// The unique indexes back the check-then-insert idempotency guards, so a
// lost race surfaces here instead of as a double credit.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint")
}
