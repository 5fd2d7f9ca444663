package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"learning-quest-system/handlers"
	"learning-quest-system/middleware"
	"learning-quest-system/models"
	"learning-quest-system/services"
	"learning-quest-system/utils"
	"learning-quest-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB — icon uploads are the largest payload
	})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Session-Token, X-Service-Token, Accept-Language",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Book{},
		&models.Chapter{},
		&models.Quest{},
		&models.QuestProgress{},
		&models.Reward{},
		&models.UserReward{},
		&models.UserCurrency{},
		&models.ActivityLog{},
		&models.LearnerProfile{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	secretServiceURL := os.Getenv("SECRET_SERVICE_URL")
	if secretServiceURL == "" {
		log.Fatal("SECRET_SERVICE_URL environment variable not set")
	}
	authServiceURL := os.Getenv("AUTH_SERVICE_URL")
	if authServiceURL == "" {
		log.Fatal("AUTH_SERVICE_URL environment variable not set")
	}
	profileServiceURL := os.Getenv("PROFILE_SERVICE_URL")
	if profileServiceURL == "" {
		log.Fatal("PROFILE_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("LEARNING_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("LEARNING_SERVICE_TOKEN environment variable not set")
	}

	contentService := services.NewContentService(db)
	progressionService := services.NewProgressionService(db)
	activityService := services.NewActivityService(db)
	rewardEngine := services.NewRewardEngine(db, activityService)
	rewardService := services.NewRewardService(db, rewardEngine)
	learnerService := services.NewLearnerService(db)
	secretClient := services.NewSecretServiceClient(secretServiceURL, serviceToken)
	authClient := services.NewAuthServiceClient(authServiceURL, serviceToken)
	verificationClient := services.NewVerificationClient()
	questService := services.NewQuestService(contentService, progressionService,
		verificationClient, secretClient, rewardEngine, activityService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profileSyncWorker := workers.NewProfileSyncWorker(db, profileServiceURL, "/api/v1/public/learners", serviceToken)
	profileSyncWorker.Start(ctx)

	rewardSweeper := workers.NewRewardSweeper(db, rewardEngine)
	go workers.PollRewardSweep(ctx, rewardSweeper, 1*time.Minute)

	contentService.StartPublishScheduler()

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupQuestRoutes(app, questService, activityService)
	handlers.SetupRewardRoutes(app, rewardService, learnerService, authClient)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Learner Profile Sync Worker running")
	log.Println("✅ Reward sweep running (every 1m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")
}
