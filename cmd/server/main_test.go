package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"finsight/internal/cache"
	"finsight/internal/config"
	"finsight/internal/job"
	"finsight/internal/provider"
	"finsight/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := stubServerDeps()
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func TestSecs(t *testing.T) {
	if secs(90) != 90*time.Second {
		t.Fatalf("unexpected duration: %v", secs(90))
	}
}

func stubServerDeps() func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origConnectPostgres := connectPostgresFunc
	origNewRedisClient := newRedisClientFunc
	origInitTracer := initTracerFunc
	origNewMarketService := newMarketServiceFunc
	origNewRefresher := newRefresherFunc
	origStartRefresher := startRefresherFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			RedisURL:          "localhost:6379",
			HTTPPort:          8080,
			MarketRefreshSecs: 3600,
		}
	}
	newRedisClientFunc = func(ctx context.Context, addr string) (*redis.Client, error) {
		return redis.NewClient(&redis.Options{Addr: addr}), nil
	}
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	newMarketServiceFunc = func(
		tracer trace.Tracer,
		providers []provider.MarketProvider,
		marketCache *cache.MarketCache,
		timeout time.Duration,
		strict bool,
	) *service.MarketService {
		return service.NewMarketService(tracer, providers, marketCache, timeout, strict)
	}
	startRefresherFunc = func(*job.MarketRefresher, context.Context) {}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		connectPostgresFunc = origConnectPostgres
		newRedisClientFunc = origNewRedisClient
		initTracerFunc = origInitTracer
		newMarketServiceFunc = origNewMarketService
		newRefresherFunc = origNewRefresher
		startRefresherFunc = origStartRefresher
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}
