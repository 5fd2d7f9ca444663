// handlers/quest_routes.go
package handlers

import (
	"learning-quest-system/middleware"
	"learning-quest-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupQuestRoutes(app *fiber.App, questService *services.QuestService, activityService *services.ActivityService) {
	// 🔐 Secured routes — require user context from the Gateway
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/quests", questService.ListQuests)
	secured.Post("/quests/:id/complete", questService.CompleteQuest)
	secured.Get("/activity", activityService.GetUserActivity)
}
