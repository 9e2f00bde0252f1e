package main

import (
	"context"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"finsight/internal/advisor"
	"finsight/internal/cache"
	"finsight/internal/config"
	"finsight/internal/crypto"
	"finsight/internal/db"
	"finsight/internal/handler"
	"finsight/internal/job"
	"finsight/internal/provider"
	"finsight/internal/repository"
	"finsight/internal/service"
	"finsight/internal/vault"
	"finsight/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "finsight/docs"
)

var (
	loadEnvFunc         = godotenv.Load
	loadConfigFunc      = config.Load
	connectPostgresFunc = db.Connect
	newRedisClientFunc  = cache.NewRedisClient
	initTracerFunc      = tracing.InitTracer
	newProfileRepoFunc  = repository.NewProfileRepository
	newConvRepoFunc     = repository.NewConversationRepository
	newAdvisorFunc      = advisor.New
	newMarketServiceFunc = func(
		tracer trace.Tracer,
		providers []provider.MarketProvider,
		marketCache *cache.MarketCache,
		timeout time.Duration,
		strict bool,
	) *service.MarketService {
		return service.NewMarketService(tracer, providers, marketCache, timeout, strict)
	}
	newRefresherFunc       = job.NewMarketRefresher
	startRefresherFunc     = func(r *job.MarketRefresher, ctx context.Context) { go r.Start(ctx) }
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = ossignal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           FinSight API
// @version         1.0
// @description     Privacy-first financial Q&A context service.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = connectPostgresFunc(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to Postgres: %v", err)
		}
		defer pool.Close()
	} else {
		log.Println("DATABASE_URL not set, profiles and conversation history disabled")
	}

	rdb, err := newRedisClientFunc(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Repositories and migrations
	var profileRepo *repository.ProfileRepository
	var convRepo *repository.ConversationRepository
	if pool != nil {
		profileRepo = newProfileRepoFunc(pool, tracer)
		convRepo = newConvRepoFunc(pool, tracer)
		if err := profileRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run profile migrations: %v", err)
		}
		if err := convRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run conversation migrations: %v", err)
		}
	}

	// Profile encryption keys. An invalid configured key is fatal;
	// running without one just disables enrichment.
	var currentCipher, nextCipher *crypto.Cipher
	if cfg.ProfileMasterKey != "" {
		currentCipher, err = crypto.New(cfg.ProfileMasterKey, cfg.ProfileKeyVersion)
		if err != nil {
			log.Fatalf("invalid PROFILE_MASTER_KEY: %v", err)
		}
	}
	if cfg.ProfileMasterKeyNext != "" {
		nextCipher, err = crypto.New(cfg.ProfileMasterKeyNext, cfg.ProfileKeyVersionNext)
		if err != nil {
			log.Fatalf("invalid PROFILE_MASTER_KEY_NEXT: %v", err)
		}
	}

	// Market providers, gated on configured API keys
	var providers []provider.MarketProvider
	if cfg.FredAPIKey != "" {
		providers = append(providers,
			provider.NewIndicatorProvider(tracer, cfg.FredAPIKey, secs(cfg.MarketIndicatorTTLSecs)))
	}
	if cfg.QuoteAPIKey != "" {
		providers = append(providers,
			provider.NewQuoteProvider(tracer, cfg.QuoteAPIKey, secs(cfg.MarketQuoteTTLSecs)))
	}
	if cfg.SearchAPIKey != "" {
		providers = append(providers,
			provider.NewSearchProvider(tracer, cfg.SearchAPIKey, secs(cfg.MarketSearchTTLSecs)))
	}

	marketCache := cache.NewMarketCache(rdb, tracer)
	marketService := newMarketServiceFunc(tracer, providers, marketCache,
		secs(cfg.ProviderTimeoutSecs), cfg.StrictCapabilities)

	var advisorClient *advisor.Client
	if cfg.OpenAIAPIKey != "" {
		advisorClient = newAdvisorFunc(cfg.OpenAIAPIKey, cfg.OpenAIModel, tracer)
	}

	var profileService *service.ProfileService
	if profileRepo != nil && currentCipher != nil && advisorClient != nil {
		profileService = service.NewProfileService(tracer, profileRepo, currentCipher, advisorClient, cfg.ProfileHashPepper)
	} else {
		log.Println("Profile enrichment disabled")
	}

	sessions := vault.NewSessionRegistry(secs(cfg.SessionVaultTTLSecs))

	var profileSource service.ProfileSource
	if profileService != nil {
		profileSource = profileService
	}
	var completer service.Completer
	if advisorClient != nil {
		completer = advisorClient
	}
	var conversations service.ConversationStore
	if convRepo != nil {
		conversations = convRepo
	}
	contextService := service.NewContextService(
		tracer,
		profileSource,
		marketService,
		nil,
		service.NewDemoAccountSource(),
		completer,
		conversations,
		sessions,
		secs(cfg.AnswerTimeoutSecs),
		cfg.AdvisorMaxHistory,
	)

	// Websocket hub receives every background refresh
	hub := handler.NewHub()
	marketService.SetPublisher(hub)

	refresher := newRefresherFunc(tracer, marketService, sessions, secs(cfg.MarketRefreshSecs))
	startRefresherFunc(refresher, ctx)

	h := newHandlerFunc(tracer, contextService, marketService, profileService, hub, currentCipher, nextCipher)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("finsight"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
