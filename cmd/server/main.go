package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/handlers"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/middleware"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/services"
	"github.com/Rila-coder/ROSCA-System-sub002/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using system environment")
	}
	logging.Setup()

	// Firebase is optional at boot so the API can come up before credentials
	// are provisioned; auth-protected routes fail with 401 until it works.
	credPath := os.Getenv("FIREBASE_CREDENTIALS_PATH")
	if credPath == "" {
		credPath = "./firebase-service-account.json"
	}
	authClient, err := services.InitFirebase(credPath)
	if err != nil {
		slog.Warn("Firebase initialization failed, auth will not work", "error", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := services.AutoMigrate(db); err != nil {
		slog.Error("Auto-migration failed", "error", err)
		os.Exit(1)
	}

	// Redis backs both the summary cache and the per-group cycle lock. When
	// it is not configured we fall back to an in-process lock, which is only
	// safe for a single server instance.
	var cache *services.RedisCache
	var locker services.GroupLocker
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cache, err = services.NewRedisCache(redisURL)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		locker = cache
	} else {
		slog.Warn("REDIS_URL not set, using in-process group locks")
		locker = services.NewLocalGroupLocker()
	}

	emailService := services.NewEmailService()
	whatsappService := services.NewWhatsappService()
	notifier := services.NewNotifier(db, emailService, whatsappService)
	policy := services.NewPolicy(db)
	cycleService := services.NewCycleService(db, locker, policy, notifier)
	midtransService := services.NewMidtransService()
	paymentService := services.NewPaymentService(db, policy, notifier, midtransService)

	authHandler := handlers.NewAuthHandler(authClient)
	groupHandler := handlers.NewGroupHandler(db, cache, policy, cycleService, notifier)
	memberHandler := handlers.NewMemberHandler(db, policy, notifier)
	cycleHandler := handlers.NewCycleHandler(db, cycleService, policy)
	paymentHandler := handlers.NewPaymentHandler(db, paymentService)
	notificationHandler := handlers.NewNotificationHandler(db)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.HTTPErrorHandler = middleware.JSONErrorHandler

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/api/auth/login", authHandler.HandleLogin)
	e.POST("/api/auth/logout", authHandler.HandleLogout)

	// Gateway callbacks authenticate via signature, not session.
	e.POST("/api/payments/midtrans/callback", paymentHandler.MidtransCallback)

	api := e.Group("/api", middleware.RequireAuth(authClient, db))

	api.POST("/groups", groupHandler.CreateGroup)
	api.GET("/groups", groupHandler.ListGroups)
	api.POST("/groups/join", groupHandler.JoinGroup)
	api.GET("/groups/:groupId", groupHandler.GetGroup)
	api.GET("/groups/:groupId/summary", groupHandler.GetGroupSummary)

	api.GET("/groups/:groupId/members", memberHandler.ListMembers)
	api.POST("/groups/:groupId/members", memberHandler.AddMember)
	api.PUT("/groups/:groupId/members/:memberId/role", memberHandler.UpdateMemberRole)
	api.DELETE("/groups/:groupId/members/:memberId", memberHandler.RemoveMember)

	api.GET("/groups/:groupId/cycles", cycleHandler.ListCycles)
	api.GET("/groups/:groupId/cycles/:cycleId/payments", cycleHandler.ListCyclePayments)
	api.POST("/groups/:groupId/cycles/:cycleId/activate", cycleHandler.ActivateCycle)
	api.POST("/groups/:groupId/cycles/:cycleId/complete", cycleHandler.CompleteCycle)
	api.POST("/groups/:groupId/cycles/:cycleId/skip", cycleHandler.SkipCycle)
	api.POST("/groups/:groupId/cycles/:cycleId/unskip", cycleHandler.UnskipCycle)

	api.PUT("/groups/:groupId/payments/:paymentId/mark-paid", paymentHandler.MarkPaid)
	api.PUT("/groups/:groupId/payments/:paymentId/mark-unpaid", paymentHandler.MarkUnpaid)
	api.PUT("/groups/:groupId/payments/bulk/mark-paid", paymentHandler.BulkMarkPaid)
	api.POST("/groups/:groupId/payments/:paymentId/pay", paymentHandler.InitiatePayment)

	api.GET("/notifications", notificationHandler.ListNotifications)
	api.PUT("/notifications/:notificationId/read", notificationHandler.MarkRead)
	api.GET("/notification-preference", notificationHandler.GetPreference)
	api.PUT("/notification-preference", notificationHandler.UpdatePreference)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	slog.Info("Starting server", "port", port)
	if err := e.Start(":" + port); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
