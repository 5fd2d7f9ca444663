// handlers/reward_routes.go
package handlers

import (
	"learning-quest-system/middleware"
	"learning-quest-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRewardRoutes(app *fiber.App, rewardService *services.RewardService,
	learnerService *services.LearnerService, authClient *services.AuthServiceClient) {

	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/rewards", rewardService.GetUserRewards)
	secured.Get("/currency", rewardService.GetUserCurrency)

	// SSE authenticates from the query string, not gateway headers, so it
	// lives outside the /s prefix the user-context middleware enforces.
	app.Get("/stream/rewards", middleware.SSEAuthMiddleware(authClient), rewardService.StreamUserRewardsSSE)

	admin := app.Group("/s/admin", middleware.UserContextMiddleware())

	admin.Get("/rewards", rewardService.GetAllRewards)
	admin.Post("/rewards", rewardService.CreateReward)
	admin.Put("/rewards/:id", rewardService.UpdateReward)
	admin.Post("/rewards/:id/icon", rewardService.UploadRewardIcon)
	admin.Post("/rewards/evaluate", rewardService.EvaluateUserRewards)
	admin.Get("/learners/search", learnerService.SearchLearners)
}
