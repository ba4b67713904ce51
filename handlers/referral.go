package handlers

import (
	"github.com/veebeeyoukay/6-7game-beta/middleware"
	"github.com/veebeeyoukay/6-7game-beta/services"

	"github.com/gofiber/fiber/v2"
)

func SetupReferralRoutes(app *fiber.App, referralService *services.ReferralService) {
	// 🔓 Public — clicks and signups land before the referee is authenticated
	app.Post("/referrals/click", referralService.RecordClickEndpoint)
	app.Post("/referrals/signup", referralService.ProcessSignupEndpoint)

	secured := app.Group("/s", middleware.UserContextMiddleware())
	secured.Get("/referrals/:parent_id/stats", referralService.GetStats)
}
