package handlers

import (
	"github.com/veebeeyoukay/6-7game-beta/middleware"
	"github.com/veebeeyoukay/6-7game-beta/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLedgerRoutes(app *fiber.App, ledgerService *services.LedgerService) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/children/:id/balance", ledgerService.GetBalance)
	secured.Get("/children/:id/ledger", ledgerService.GetLedger)

	// Manual adjustments (corrections) are parent-only; the ledger is
	// append-only so a correction is an offsetting entry, never an edit.
	secured.Post("/children/:id/adjustments", middleware.RequireRole("parent"), ledgerService.CreateAdjustment)
}
