package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"formulary/internal/config"
	"formulary/internal/handler"
	"formulary/internal/repository"
	"formulary/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Print version info
	log.Printf("Formulary Query Engine")
	log.Printf("Version: %s", Version)
	log.Printf("Build Time: %s", BuildTime)
	log.Printf("Git Commit: %s", GitCommit)
	log.Println("")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Initialize database connection
	repo, err := repository.NewPostgresRepository(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	log.Println("✅ Connected to PostgreSQL database")

	// Initialize Meilisearch name index
	var nameIndex *repository.NameIndex
	if cfg.Meili.Enabled {
		nameIndex = repository.NewNameIndex(cfg.Meili.URL, cfg.Meili.APIKey, cfg.Meili.IndexName)
		nameIndex.EnsureIndex()
		log.Printf("✅ Meilisearch name index ready")
		log.Printf("   - URL: %s", cfg.Meili.URL)
		log.Printf("   - Index: %s", cfg.Meili.IndexName)
	} else {
		log.Println("⚠️  Meilisearch is not configured - autocomplete will use database prefix queries")
		log.Println("   Set MEILI_URL environment variable to enable the name index")
	}

	// Initialize OpenAI client
	var aiClient service.AIClient
	if cfg.OpenAI.Enabled {
		aiClient = service.NewOpenAIClient(&cfg.OpenAI)
		log.Printf("✅ OpenAI client initialized")
		log.Printf("   - API Base: %s", cfg.OpenAI.APIBase)
		log.Printf("   - Chat model: %s", cfg.OpenAI.ChatModel)
		log.Printf("   - Chat Temperature: %.2f", cfg.OpenAI.ChatTemperature)
		log.Printf("   - Chat TopP: %.2f", cfg.OpenAI.ChatTopP)
		log.Printf("   - Chat MaxTokens: %d", cfg.OpenAI.ChatMaxTokens)
	} else {
		log.Println("⚠️  OpenAI is disabled - low-confidence queries will keep their rule-based intent")
		log.Println("   Set OPENAI_API_KEY environment variable to enable AI features")
	}

	// Initialize services
	intentService := service.NewIntentService(aiClient)
	queryService := service.NewQueryService(repo, repo, intentService, aiClient, &cfg.Query)

	log.Println("✅ Services initialized")

	// Initialize handlers
	queryHandler := handler.NewQueryHandler(queryService, cfg.Query.MinQueryLength, cfg.Query.MaxQueryLength)
	drugsHandler := handler.NewDrugsHandler(queryService, nameIndex)
	feedbackHandler := handler.NewFeedbackHandler(queryService)
	adminHandler := handler.NewAdminHandler(queryService, nameIndex)

	// Setup Gin router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.AllowedOrigins, ",")
	corsConfig.AllowMethods = strings.Split(cfg.Server.AllowedMethods, ",")
	corsConfig.AllowHeaders = strings.Split(cfg.Server.AllowedHeaders, ",")
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":     "healthy",
			"service":    "formulary-query-engine",
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	// Version endpoint
	router.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	// API routes
	apiV1 := router.Group("/api/v1")
	apiV1.Use(handler.NewRateLimiter(cfg.Query.RateLimit, cfg.Query.RateWindowSec).Middleware())
	if cfg.Query.RequireAPIKey {
		apiV1.Use(handler.APIKeyAuth(cfg.Query.APIKey))
		log.Println("🔒 API key enforcement enabled")
	}
	{
		// Query endpoints
		apiV1.POST("/query", queryHandler.Query)
		apiV1.POST("/query/stream", queryHandler.QueryStream) // Streaming query
		apiV1.GET("/drugs/:name", drugsHandler.GetDrug)
		apiV1.GET("/drugs/:name/alternatives", drugsHandler.GetAlternatives)
		apiV1.POST("/filter", drugsHandler.Filter)

		// Name lookup endpoints
		apiV1.GET("/autocomplete", drugsHandler.Autocomplete)
		apiV1.GET("/suggestions/:query", drugsHandler.Suggestions)
		apiV1.GET("/categories", drugsHandler.Categories)

		// Feedback endpoint
		apiV1.POST("/feedback", feedbackHandler.Submit)

		// Index maintenance
		apiV1.POST("/index/rebuild", adminHandler.RebuildIndex)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("🚀 Starting server on %s", addr)
	log.Printf("📝 API Documentation: http://localhost:%d/api/v1", cfg.Server.Port)

	// Graceful shutdown
	go func() {
		if err := router.Run(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	log.Println("✅ Server stopped")
}
