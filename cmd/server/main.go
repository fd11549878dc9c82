package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/personbook/personbook/internal/handlers"
	"github.com/personbook/personbook/internal/middleware"
	"github.com/personbook/personbook/internal/repositories"
	"github.com/personbook/personbook/internal/services"
	"github.com/personbook/personbook/pkg/cache"
	"github.com/personbook/personbook/pkg/config"
	"github.com/personbook/personbook/pkg/database"
	"github.com/personbook/personbook/pkg/logger"
	"github.com/rs/cors"
)

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Set Gin mode
	gin.SetMode(config.AppConfig.Server.Mode)

	// Initialize database
	if err := database.Init(); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Initialize dependencies
	personCache := cache.New(time.Duration(config.AppConfig.Cache.TTLSeconds) * time.Second)
	personRepo := repositories.NewPersonRepository(database.DB, personCache)
	txManager := repositories.NewTxManager(database.DB)
	personService := services.NewPersonService(personRepo, txManager, config.AppConfig.Rules)
	personHandler := handlers.NewPersonHandler(personService)

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	setupRoutes(router, personHandler)

	// Setup server with CORS for the browser client
	server := &http.Server{
		Addr:         ":" + config.AppConfig.Server.Port,
		Handler:      cors.AllowAll().Handler(router),
		ReadTimeout:  time.Duration(config.AppConfig.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(config.AppConfig.Server.WriteTimeout) * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Infof("Server starting on :%s", config.AppConfig.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	logger.Info("Server stopped")
}

func setupRoutes(router *gin.Engine, personHandler *handlers.PersonHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	persons := router.Group("/api/persons")
	{
		persons.GET("", personHandler.List)
		persons.GET("/search", personHandler.Search)
		persons.GET("/incomplete", personHandler.Incomplete)
		persons.GET("/export", personHandler.Export)
		persons.GET("/:id", personHandler.Get)
		persons.POST("", personHandler.Create)
		persons.PUT("/:id", personHandler.Update)
		persons.DELETE("/:id", personHandler.Delete)
	}
}
