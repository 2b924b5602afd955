package main

import (
	"context"
	stdlog "log"
	"os"
	"strings"
	"time"

	"docuchat_go_backend/cmd/api/config"
	"docuchat_go_backend/internal/api"
	"docuchat_go_backend/internal/auth"
	"docuchat_go_backend/internal/database"
	"docuchat_go_backend/internal/services"
	"docuchat_go_backend/internal/vecstore"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

func main() {
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	database.InitDB()

	genaiClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GenAIAPIKey))
	if err != nil {
		stdlog.Fatalf("Failed to create GenAI client: %v", err)
	}
	defer genaiClient.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		stdlog.Fatalf("Failed to connect to redis: %v", err)
	}

	vectorClient, err := vecstore.NewClient(logger, vecstore.Config{
		BaseURL: cfg.VectorStoreURL,
		APIKey:  cfg.VectorStoreAPIKey,
	})
	if err != nil {
		stdlog.Fatalf("Failed to create vector store client: %v", err)
	}
	vectorIndex := vecstore.NewIndex(vectorClient, cfg.CollectionName)

	gcsService, err := services.NewGCSService(ctx)
	if err != nil {
		stdlog.Fatalf("Failed to create GCS service: %v", err)
	}

	chunker, err := services.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		stdlog.Fatalf("Invalid chunker configuration: %v", err)
	}

	store := services.NewGormChatStore(database.DB)
	geminiService := services.NewGeminiService(logger, genaiClient)
	extractionService := services.NewPDFExtractionService(logger)
	contextService := services.NewContextService(logger, store, geminiService, geminiService, vectorIndex)
	documentService := services.NewDocumentService(
		logger,
		store,
		extractionService,
		chunker,
		geminiService,
		vectorIndex,
		gcsService,
		cfg.DocumentBucket,
		cfg.MaxDocuments,
		cfg.SignedURLTTL,
	)
	sessionService := services.NewStreamSessionService(logger, services.NewRedisCache(redisClient), cfg.StreamSessionTTL)
	chatService := services.NewChatService(
		logger,
		store,
		contextService,
		geminiService,
		documentService,
		sessionService,
		vectorIndex,
	)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.AllowedOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r, chatService, store)
	auth.SetupRoutes(r, store)

	stdlog.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
