package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/clinicsync/internal/apiclient"
	"github.com/clinicsync/internal/config"
	"github.com/clinicsync/internal/handler"
	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/middleware"
	"github.com/clinicsync/internal/natsbus"
	"github.com/clinicsync/internal/notify"
	"github.com/clinicsync/internal/push"
	"github.com/clinicsync/internal/session"
	"github.com/clinicsync/internal/startup"
	"github.com/clinicsync/internal/storage"
	"github.com/clinicsync/internal/storage/memory"
	"github.com/clinicsync/internal/tracing"
)

func main() {
	logger.SetPrefix("inboxd")

	flags := pflag.NewFlagSet("inboxd", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to YAML config (overrides CONFIG_PATH)")
	addr := flags.String("addr", "", "listen address of the local UI bridge")
	token := flags.String("token", "", "session token to start with (overrides INBOX_TOKEN)")
	logLevel := flags.String("log-level", "", "debug, info, warn, error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Errorf("flags: %v", err)
		os.Exit(2)
	}
	if *configPath != "" {
		os.Setenv("CONFIG_PATH", *configPath)
	}

	cfg := config.Load()
	if *addr != "" {
		cfg.ServerAddr = *addr
	}
	if *token != "" {
		cfg.SessionToken = *token
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger.SetLevel(cfg.LogLevel)
	defer logger.Sync()
	logger.Info("starting inboxd")

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(context.Background(), "inboxd", cfg.Tracing.Endpoint)
		if err != nil {
			logger.Errorf("tracing disabled: %v", err)
		} else {
			defer tracing.Shutdown(tp)
		}
	}

	cache := openCache(cfg)
	defer cache.Close()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	var bgWg sync.WaitGroup

	alerts := notify.New()
	relay := push.NewRelay(cfg.PushServiceURL, cfg.PushUserID)
	if relay.Enabled() {
		alerts.AddObserver(relay)
		bgWg.Add(1)
		go func() {
			defer bgWg.Done()
			relay.Run(bgCtx)
		}()
		logger.Infof("push relay enabled: %s", cfg.PushServiceURL)
	}
	if cfg.NATS.URL != "" {
		nc, err := startup.ConnectNATS(cfg.NATS.URL, cfg.NATS.Token, "inboxd")
		if err != nil {
			logger.Errorf("nats disabled: %v", err)
		} else {
			defer nc.Drain()
			alerts.AddObserver(natsbus.NewPublisher(nc, cfg.NATS.SubjectPrefix, cfg.PushUserID))
			logger.Infof("nats alerts on %s.*", cfg.NATS.SubjectPrefix)
		}
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL:    cfg.APIBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
		MaxRetries: cfg.APIMaxRetries,
		RetryBase:  cfg.APIRetryBase,
	})
	if err != nil {
		logger.Errorf("api client: %v", err)
		os.Exit(1)
	}
	sessions := session.NewManager(client, alerts, session.Options{
		StreamURL:      cfg.StreamURL,
		ReconnectDelay: cfg.ReconnectDelay,
		PongWait:       cfg.WSPongTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
		PageSize:       cfg.PageSize,
		Cache:          cache,
		CacheTTL:       cfg.Cache.TTL(),
	})
	if cfg.SessionToken != "" {
		s := sessions.SetToken(cfg.SessionToken)
		logger.Infof("session %s started from config token %s", s.ID, middleware.MaskToken(cfg.SessionToken))
	}

	inboxH := handler.NewInboxHandler(sessions, cfg.PageSize)
	notifH := handler.NewNotificationHandler(alerts)
	sessionH := handler.NewSessionHandler(sessions)
	eventsH := handler.NewEventsHandler(sessions, inboxH)

	r := chi.NewRouter()
	// chimw.RealIP не используем: LocalOnly должен видеть настоящий RemoteAddr
	r.Use(chimw.RequestID)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: strings.Split(cfg.CORSAllowedOrigins, ","),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Bridge-Secret"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(middleware.LocalOnly(cfg.BridgeSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, time.Minute))
		handler.Routes(r, inboxH, notifH, sessionH, eventsH)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("bridge listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
			sessions.Close()
			os.Exit(1)
		}
	}

	// сначала закрываем сессии: SSE-подписчики получают закрытие каналов и отпускают Shutdown
	sessions.Close()
	logger.Info("session closed, stream disconnected")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	bgCancel()
	bgWg.Wait()
	srvWg.Wait()
	logger.Info("inboxd stopped")
}

// openCache выбирает Redis (если задан REDIS_URL и он доступен) или кеш в памяти.
func openCache(cfg *config.Config) storage.ConversationCache {
	if cfg.Redis.URL == "" {
		logger.Info("cache: in-memory")
		return memory.New()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := startup.ConnectRedisWithRetry(ctx, cfg.Redis.URL, 30*time.Second)
	if err != nil {
		logger.Errorf("cache: redis unavailable, falling back to memory: %v", err)
		return memory.New()
	}
	logger.Info("cache: redis")
	return client
}
