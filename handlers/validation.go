package handlers

import (
	"github.com/veebeeyoukay/6-7game-beta/middleware"
	"github.com/veebeeyoukay/6-7game-beta/services"

	"github.com/gofiber/fiber/v2"
)

func SetupValidationRoutes(app *fiber.App, validationService *services.ValidationService) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	// Children raise requests from the watch app
	secured.Post("/validation-requests", validationService.CreateRequest)
	secured.Post("/validation-requests/:id/photo", validationService.UploadProofPhoto)

	// Parents review and resolve
	parentOnly := secured.Group("/", middleware.RequireRole("parent"))
	parentOnly.Get("/families/:id/validation-requests", validationService.ListFamilyRequests)
	parentOnly.Post("/validation-requests/:id/resolve", validationService.ResolveRequest)
}
