package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/veebeeyoukay/6-7game-beta/handlers"
	"github.com/veebeeyoukay/6-7game-beta/middleware"
	"github.com/veebeeyoukay/6-7game-beta/models"
	"github.com/veebeeyoukay/6-7game-beta/services"
	"github.com/veebeeyoukay/6-7game-beta/utils"
	"github.com/veebeeyoukay/6-7game-beta/workers"

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
		BodyLimit: 10 * 1024 * 1024, // 10MB — proof photos only
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
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
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
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
		&models.Family{},
		&models.Parent{},
		&models.Child{},
		&models.MollarTransaction{},
		&models.ValidationTask{},
		&models.ValidationRequest{},
		&models.ReferralEvent{},
		&models.Battle{},
		&models.BattleRound{},
		&models.NotificationEvent{},
		&models.LearningProgress{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ledgerService := services.NewLedgerService(db)
	familyService := services.NewFamilyService(db, ledgerService)
	pairingService := services.NewPairingService(db)
	validationService := services.NewValidationService(db, ledgerService)
	referralService := services.NewReferralService(db, ledgerService)

	var provider services.QuestionGenerator
	if providerURL := os.Getenv("QUESTION_PROVIDER_URL"); providerURL != "" {
		provider = services.NewProviderGenerator(providerURL, os.Getenv("QUESTION_PROVIDER_TOKEN"))
	} else {
		log.Println("⚠️  QUESTION_PROVIDER_URL not set — all battle subjects fall back to arithmetic")
	}
	questionService := services.NewQuestionService(provider)
	battleService := services.NewBattleService(db, ledgerService, provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifyWorker := workers.NewNotifyWorker(db, os.Getenv("PARENT_NOTIFY_WEBHOOK"))
	notifyWorker.Start(ctx)

	services.StartExpirySweep(db)

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupFamilyRoutes(app, familyService, pairingService)
	handlers.SetupLedgerRoutes(app, ledgerService)
	handlers.SetupValidationRoutes(app, validationService)
	handlers.SetupReferralRoutes(app, referralService)
	handlers.SetupBattleRoutes(app, battleService, questionService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Notify Worker running (outbox → parent webhook)")
	log.Println("✅ Expiry sweep running (every 1m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
