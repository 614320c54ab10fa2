package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AfyaLink/afyachat-backend/database"
	"github.com/AfyaLink/afyachat-backend/internal/handlers"
	"github.com/AfyaLink/afyachat-backend/internal/jobs"
	"github.com/AfyaLink/afyachat-backend/internal/metrics"
	"github.com/AfyaLink/afyachat-backend/internal/models"
	"github.com/AfyaLink/afyachat-backend/internal/routes"
	"github.com/AfyaLink/afyachat-backend/internal/services"
	"github.com/AfyaLink/afyachat-backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("⚠️  No .env file found - checking environment variables")
		}
	}

	// Initialize storage
	var store storage.Store
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.PendingPayment{},
			&models.Appointment{},
			&models.ChatHistory{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
	}

	// Initialize the notifier; the app stays up without it so webhooks can
	// be exercised locally
	var notifier services.Notifier
	twilioService, err := services.NewTwilioService()
	if err != nil {
		log.Printf("⚠️  Twilio service not initialized: %v", err)
	} else {
		notifier = twilioService
		log.Println("✅ Twilio service initialized")
	}

	// Select the payment channel
	var (
		initiator    services.PaymentInitiator
		mpesaService *services.MpesaService
	)
	switch os.Getenv("PAYMENT_PROVIDER") {
	case "stripe":
		stripeService, err := services.NewStripeCheckoutService()
		if err != nil {
			log.Fatal("Failed to initialize Stripe checkout:", err)
		}
		initiator = stripeService
		log.Println("✅ Stripe hosted checkout configured")
	default:
		mpesaService, err = services.NewMpesaService()
		if err != nil {
			log.Fatal("Failed to initialize M-Pesa client:", err)
		}
		initiator = mpesaService
		log.Println("✅ M-Pesa STK push configured")
	}

	// Select the answer provider
	var answers services.AnswerProvider
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		gemini, err := services.NewGeminiAnswerService(context.Background(), apiKey, os.Getenv("GEMINI_MODEL"))
		if err != nil {
			log.Fatal("Failed to initialize Gemini client:", err)
		}
		defer gemini.Close()
		answers = gemini
		log.Println("✅ Gemini answer provider configured")
	} else {
		answers = services.StaticAnswerService{}
		log.Println("⚠️  GEMINI_API_KEY not set - using static answers")
	}

	// Initialize metrics and services
	m := metrics.New(prometheus.DefaultRegisterer)
	paymentService := services.NewPaymentService(store, initiator, m)
	whatsappService := services.NewWhatsAppService(store, paymentService, answers, m, bookingFee())
	reconciler := services.NewReconcilerService(store, notifier, m)

	// Start the expiry sweep for pending payments whose callback never comes
	sweepJob := jobs.NewPaymentSweepJob(store, 5*time.Minute, paymentWindow())
	sweepJob.Start()

	// Handlers
	whatsappHandler := handlers.NewWhatsAppHandler(whatsappService, notifier)
	paymentHandler := handlers.NewPaymentHandler(reconciler)
	adminHandler := handlers.NewAdminHandler(store, mpesaService)
	healthHandler := handlers.NewHealthHandler("1.0.0", store, notifier != nil, initiator.Channel())

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "AfyaChat Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"message": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	routes.SetupRoutes(app, whatsappHandler, paymentHandler, adminHandler, healthHandler)

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		sweepJob.Stop()
		_ = app.Shutdown()
	}()

	log.Println("========================================")
	log.Printf("🚀 AfyaChat Backend starting on port %s", port)
	log.Printf("📊 Storage: %s", storageType())
	log.Printf("💳 Payment channel: %s", initiator.Channel())
	log.Printf("📱 WhatsApp notifier: %s", notifierStatus(notifier))
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}

// bookingFee reads the appointment fee in whole currency units and returns
// minor units. Defaults to KES 1000.
func bookingFee() int64 {
	fee := int64(1000)
	if raw := os.Getenv("APPOINTMENT_FEE"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			fee = parsed
		}
	}
	return fee * 100
}

// paymentWindow is how long an initiated payment may wait for its callback
// before the sweep marks it expired.
func paymentWindow() time.Duration {
	window := time.Hour
	if raw := os.Getenv("PAYMENT_EXPIRY_MINUTES"); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil && minutes > 0 {
			window = time.Duration(minutes) * time.Minute
		}
	}
	return window
}

func storageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}

func notifierStatus(n services.Notifier) string {
	if n == nil {
		return "Not configured"
	}
	return "Configured"
}
