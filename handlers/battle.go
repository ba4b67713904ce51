package handlers

import (
	"github.com/veebeeyoukay/6-7game-beta/middleware"
	"github.com/veebeeyoukay/6-7game-beta/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBattleRoutes(app *fiber.App, battleService *services.BattleService, questionService *services.QuestionService) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/battles", battleService.CreateBattleEndpoint)
	secured.Get("/battles/:id", battleService.GetBattleEndpoint)
	secured.Post("/battles/:id/accept", battleService.AcceptBattleEndpoint)
	secured.Post("/battles/:id/answers", battleService.SubmitAnswerEndpoint)
	secured.Post("/battles/:id/settle", battleService.SettleBattleEndpoint)

	// Question preview is parent-only and touches no battle state
	secured.Post("/questions/preview", middleware.RequireRole("parent"), questionService.PreviewEndpoint)
}
