package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	api "daybrief-backend/cmd/api"
	authdomain "daybrief-backend/internal/auth/domain"
	authRepo "daybrief-backend/internal/auth/repository"
	authUsecase "daybrief-backend/internal/auth/usecase"
	integrationdomain "daybrief-backend/internal/integration/domain"
	integrationRepo "daybrief-backend/internal/integration/repository"
	"daybrief-backend/internal/integration/scheduler"
	integrationUsecase "daybrief-backend/internal/integration/usecase"
	"daybrief-backend/internal/notification"
	"daybrief-backend/pkg/ai"
	"daybrief-backend/pkg/chroma"
	"daybrief-backend/pkg/config"
	"daybrief-backend/pkg/crypto"
	"daybrief-backend/pkg/database"
	"daybrief-backend/pkg/fcm"
	"daybrief-backend/pkg/gemini"
	"daybrief-backend/pkg/gmail"
	"daybrief-backend/pkg/httpclient"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&authdomain.FCMToken{},
		&integrationdomain.Integration{},
		&integrationdomain.IntegrationToken{},
		&integrationdomain.OAuthState{},
		&integrationdomain.EmailMessage{},
		&integrationdomain.EmailSyncState{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Token encryption is not optional; refusing to start beats storing
	// credentials in the clear.
	vault, err := crypto.NewVault(cfg.TokenEncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize token vault:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	integrationRepository := integrationRepo.NewIntegrationRepository(db)
	tokenRepository := integrationRepo.NewTokenRepository(db)
	oauthStateRepo := integrationRepo.NewOAuthStateRepository(db)
	messageRepo := integrationRepo.NewEmailMessageRepository(db)
	syncStateRepo := integrationRepo.NewSyncStateRepository(db)

	// Shared outbound HTTP client with retry/backoff
	httpClient := httpclient.New(cfg)

	// Provider registry; microsoft stays unregistered until it has a client
	gmailService := gmail.NewService(httpClient)
	registry := integrationUsecase.NewRegistry()
	registry.Register(integrationUsecase.NewGmailProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GmailEnabled, gmailService))

	oauthUc := integrationUsecase.NewOAuthUsecase(integrationRepository, tokenRepository, oauthStateRepo, registry, vault, httpClient, cfg)

	// Optional services. Assign concrete values into the interface variables
	// only when construction succeeded, so downstream nil checks stay honest.
	var summarizer ai.SummarizerService
	if cfg.GeminiAPIKey != "" {
		geminiService, err := gemini.NewGeminiService(context.Background(), cfg.GeminiAPIKey)
		if err != nil {
			log.Printf("[WARN] Failed to initialize Gemini client (summaries disabled): %v", err)
		} else {
			summarizer = geminiService
			log.Println("Gemini summarizer initialized")
		}
	} else {
		log.Println("[WARN] GEMINI_API_KEY not set, email summaries disabled")
	}

	var indexer integrationUsecase.EmailIndexer
	if cfg.ChromaAPIKey != "" {
		chromaClient, err := chroma.NewChromaClient(cfg)
		if err != nil {
			log.Printf("[WARN] Failed to initialize Chroma client (semantic search disabled): %v", err)
		} else {
			indexer = chromaClient
			log.Println("Chroma client initialized")
		}
	} else {
		log.Println("[WARN] CHROMA_API_KEY not set, semantic search disabled")
	}

	var fcmClient *fcm.Client
	if cfg.FirebaseCredentials != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push notifications disabled): %v", err)
			fcmClient = nil
		}
	} else {
		log.Println("[WARN] No Firebase credentials configured, FCM disabled")
	}
	notifier := notification.NewPushNotifier(fcmClient, fcmTokenRepo)

	// Background sync pipeline
	syncService := integrationUsecase.NewSyncService(integrationRepository, messageRepo, syncStateRepo, oauthUc, registry, summarizer, indexer, notifier, cfg)
	syncService.Start()

	syncScheduler := scheduler.NewSyncScheduler(integrationRepository, syncStateRepo, oauthStateRepo, syncService, cfg)
	syncScheduler.Start()

	// Gmail push notifications via Pub/Sub, only when a project is configured
	if cfg.GoogleProjectID != "" {
		// Accept either the short topic name or the full resource name
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		if topicName == "" {
			topicName = "gmail-updates"
		}

		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, integrationRepository, syncService, notifier)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Println("[WARN] GoogleProjectID not configured, Pub/Sub notifications disabled")
	}

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, fcmTokenRepo, cfg)
	integrationUsecaseInstance := integrationUsecase.NewIntegrationUsecase(integrationRepository, messageRepo, syncStateRepo, oauthUc, registry, syncService, indexer, cfg)

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, integrationUsecaseInstance, oauthUc, cfg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Engine(),
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Block until asked to stop, then drain background work before exiting
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	syncScheduler.Stop()
	syncService.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
