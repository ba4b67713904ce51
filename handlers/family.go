package handlers

import (
	"github.com/veebeeyoukay/6-7game-beta/middleware"
	"github.com/veebeeyoukay/6-7game-beta/services"

	"github.com/gofiber/fiber/v2"
)

func SetupFamilyRoutes(app *fiber.App, familyService *services.FamilyService, pairingService *services.PairingService) {
	// 🔓 Public routes — no user context, but still require Gateway auth.
	// Onboarding happens before the founding parent has an identity here.
	app.Post("/families", familyService.CreateFamily)
	app.Post("/pairing/validate", pairingService.ValidateCodeEndpoint)

	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/families/:id/children", familyService.AddChild)
	secured.Get("/families/:id/children", familyService.ListChildren)
	secured.Patch("/children/:id/deactivate", familyService.DeactivateChild)
	secured.Get("/children/:id/progress", familyService.GetProgress)

	// Pairing codes are issued by the parent app
	secured.Post("/children/:id/pairing-code", middleware.RequireRole("parent"), pairingService.IssueCodeEndpoint)

	// Task management is parent-only
	parentOnly := secured.Group("/", middleware.RequireRole("parent"))
	parentOnly.Post("/families/:id/tasks", familyService.CreateTask)
	parentOnly.Get("/families/:id/tasks", familyService.ListTasks)
	parentOnly.Put("/tasks/:id", familyService.UpdateTask)
}
