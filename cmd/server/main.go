package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/syndromed/backend/internal/config"
	"github.com/syndromed/backend/internal/database"
	"github.com/syndromed/backend/internal/handlers"
	"github.com/syndromed/backend/internal/middleware"
	"github.com/syndromed/backend/internal/services"
	"github.com/syndromed/backend/internal/storage"
	"github.com/syndromed/backend/pkg/logger"
	"github.com/syndromed/backend/pkg/utils"
)

func main() {
	_ = godotenv.Load()
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationMinutes)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	auditService := services.NewAuditService(db, storageClient)
	auditService.StartExporter(cfg.Audit.ExportInterval)

	authHandler := handlers.NewAuthHandler(db, storageClient, auditService)
	casesHandler := handlers.NewCasesHandler(db, storageClient, auditService)
	detectionsHandler := handlers.NewDetectionsHandler(db, storageClient, auditService)
	articlesHandler := handlers.NewArticlesHandler(db, storageClient, auditService)
	accountsHandler := handlers.NewAccountsHandler(db, storageClient, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 25 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	api.Post("/auth/login", authHandler.Login)
	api.Get("/auth/me", authMiddleware.RequireAuth, authHandler.Me)

	api.Post("/admin/register", authHandler.RegisterAdmin)
	api.Post("/doctor/register", authHandler.RegisterDoctor)
	api.Post("/user/register", authHandler.RegisterUser)

	api.Get("/articles", articlesHandler.List)
	api.Delete("/detections/:id", authMiddleware.RequireAuth, detectionsHandler.Delete)

	doctorRoutes := api.Group("/doctor", authMiddleware.RequireAuth, middleware.DoctorOnly)
	doctorRoutes.Post("/cases", casesHandler.Create)
	doctorRoutes.Get("/cases", casesHandler.List)
	doctorRoutes.Get("/cases/:id", casesHandler.Get)
	doctorRoutes.Delete("/cases/:id", casesHandler.Delete)
	doctorRoutes.Get("/cases/:id/detections", detectionsHandler.ListByCase)
	doctorRoutes.Post("/detections", detectionsHandler.CreateForCase)
	doctorRoutes.Get("/detections", detectionsHandler.DoctorHistory)

	userRoutes := api.Group("/user", authMiddleware.RequireAuth, middleware.UserOnly)
	userRoutes.Post("/detections", detectionsHandler.CreateForSelf)
	userRoutes.Get("/detections", detectionsHandler.ListMine)
	userRoutes.Get("/profile", authHandler.Me)

	adminRoutes := api.Group("/admin", authMiddleware.RequireAuth, middleware.AdminOnly)
	adminRoutes.Post("/articles", articlesHandler.Create)
	adminRoutes.Delete("/articles/:id", articlesHandler.Delete)
	adminRoutes.Delete("/accounts/:kind/:id", accountsHandler.Delete)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
