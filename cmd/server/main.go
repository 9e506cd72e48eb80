package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clubsocios/backend/docs"
	"github.com/clubsocios/backend/internal/config"
	"github.com/clubsocios/backend/internal/database"
	"github.com/clubsocios/backend/internal/handlers"
	mW "github.com/clubsocios/backend/internal/middleware"
	"github.com/clubsocios/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Club Socios Backend API
// @version 1.0
// @description API for club membership, fees and payments administration
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Club Socios Backend API"
	docs.SwaggerInfo.Description = "API for club membership, fees and payments administration"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	billingCfg := config.LoadBillingConfig()

	ledgerService := services.NewLedgerService(db)
	authService := services.NewAuthService(db, redisClient)
	memberService := services.NewMemberService(db, ledgerService)
	paymentService := services.NewPaymentService(db, ledgerService)
	inboxService := services.NewInboxService(db, ledgerService)
	feeService := services.NewFeeService(db, ledgerService)
	dashboardService := services.NewDashboardService(db)
	receiptService := services.NewReceiptService(billingCfg)
	qrService := services.NewQRService(redisClient, billingCfg)
	qrHandler := handlers.NewQRHandler(qrService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for uploaded receipts
	r.Handle("/static/receipts/*", http.StripPrefix("/static/receipts/",
		mW.StaticFileServer(billingCfg.ReceiptsDir)))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Member portal (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetAccount)

			r.Get("/portal/payments", paymentService.GetStatement)
			r.Post("/portal/payments", paymentService.ReportTransfer)
			r.Put("/portal/profile", memberService.UpdateOwnProfile)
			r.Post("/receipts", receiptService.Upload)

			r.Post("/portal/transfer-qr", qrHandler.GenerateQR)
			r.Post("/portal/transfer-qr/resolve", qrHandler.ResolveQR)
		})

		// Administration (admin role required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			r.Use(mW.RequireAdmin)

			r.Get("/members", memberService.ListMembers)
			r.Post("/members", memberService.CreateMember)
			r.Get("/members/search", memberService.SearchMembers)
			r.Get("/members/{memberId}", memberService.GetMember)
			r.Put("/members/{memberId}", memberService.UpdateMember)
			r.Put("/members/{memberId}/status", memberService.SetMemberStatus)

			r.Get("/payments", paymentService.ListPayments)
			r.Post("/payments/cash", paymentService.CreateCashPayment)
			r.Post("/payments/adjustments", paymentService.CreateAdjustment)
			r.Delete("/payments/{paymentId}", paymentService.DeletePayment)

			r.Get("/inbox", inboxService.ListPending)
			r.Post("/inbox/{paymentId}/approve", inboxService.Approve)
			r.Post("/inbox/{paymentId}/reject", inboxService.Reject)

			r.Get("/fees/batches", feeService.ListBatches)
			r.Post("/fees/batches", feeService.GenerateBatch)
			r.Delete("/fees/batches/{label}", feeService.ReverseBatch)

			r.Get("/dashboard/summary", dashboardService.GetSummary)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
