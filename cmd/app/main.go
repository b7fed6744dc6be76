package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-research-core/internal/config"
	analysisAdapters "trading-research-core/internal/infra/adapters/analysis"
	pg "trading-research-core/internal/infra/db/postgres"
	"trading-research-core/internal/infra/devicestore"
	"trading-research-core/internal/infra/logging"
	"trading-research-core/internal/infra/metrics"
	"trading-research-core/internal/infra/orchestrator"
	"trading-research-core/internal/infra/realtime"
	red "trading-research-core/internal/infra/redis"
	"trading-research-core/internal/infra/sched"
	"trading-research-core/internal/infra/security"
	"trading-research-core/internal/infra/web"
	"trading-research-core/internal/infra/worker"
	"trading-research-core/internal/usecase"
)

// Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	metrics.SetBuildInfo(version, commit)

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (strict registration checks)")
	devicePath := flag.String("device-file", "device.json", "path to the per-device identity file")
	deviceInfo := flag.String("device-info", "dashboard", "free-form device description")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	txm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	rateLimiter := red.NewRateLimiter(redisClient)
	notifier := red.NewNotifier(redisClient, logger)
	locker := red.NewLocker(redisClient)

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	var encSvc *security.EncryptionService
	if encKey != "" {
		encSvc, err = security.NewEncryptionService(encKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("encryption")
		}
	} else {
		logger.Warn().Msg("security.encryption_key not set; job payloads stored in plaintext")
	}

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool, encSvc)
	sessionRepo := pg.NewSessionRepo(pool, txm)
	creditRepo := pg.NewCreditRepoCacheDecorator(pg.NewCreditRepo(pool, txm), redisClient)
	userRepo := pg.NewUserRepo(pool)

	deviceStore, err := devicestore.New(*devicePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("device store")
	}

	// ---- Orchestration core ----
	registry := orchestrator.NewRegistry(cfg.Runtime.Dev, logger)
	schedule := orchestrator.Schedule{
		First:    cfg.Poll.FirstInterval,
		Second:   cfg.Poll.SecondInterval,
		Steady:   cfg.Poll.SteadyInterval,
		Deadline: cfg.Poll.Deadline,
	}
	poller := orchestrator.NewPoller(jobRepo, registry, schedule, logger)
	counter := orchestrator.NewActiveJobs()

	// ---- Analysis adapter ----
	service, err := analysisAdapters.NewHTTPAdapter(cfg.Analysis.BaseURL, cfg.Analysis.APIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("analysis adapter")
	}

	// ---- Use cases ----
	auth := usecase.NewAuthState()
	creditGW := usecase.NewCreditGateway(creditRepo, logger)
	launchUC := usecase.NewLaunchUseCase(
		jobRepo, creditGW, service, registry, poller, counter,
		rateLimiter, red.LaunchKey, cfg.RateLimit.LaunchesPerMinute,
		auth, logger,
	)
	sessUC := usecase.NewSessionUseCase(
		sessionRepo, userRepo, deviceStore, notifier, locker,
		auth, counter, *deviceInfo, logger,
	)

	// ---- Workers ----
	pool2 := worker.NewPool(cfg.Analysis.Workers)
	pool2.Start(ctx)
	defer pool2.Stop()

	debouncer := sched.NewAuthDebouncer(cfg.Session.DebounceWindow, sessUC, logger)
	defer debouncer.Stop()

	monitor := sched.NewSessionMonitor(cfg.Session.ValidateInterval, sessUC, logger)
	go func() { _ = monitor.Run(ctx) }()

	reaper := sched.NewJobReaper(time.Minute, cfg.Poll.Deadline, jobRepo, notifier, logger)
	go func() { _ = reaper.Run(ctx) }()

	resetWorker := sched.NewCreditResetWorker(cfg.Credit.ResetCron, cfg.Credit.ResetPeriod, creditRepo, logger)
	go func() { _ = resetWorker.Run(ctx) }()

	bridge := realtime.NewBridge(notifier, registry, sessUC, auth, logger)
	go func() { _ = bridge.Run(ctx) }()

	// ---- HTTP ----
	hub := web.NewHub()
	authMgr := web.NewAuthManager(cfg.Web.JWTSecret, !cfg.Runtime.Dev, "", cfg.Web.TokenTTL)
	srv := web.NewServer(launchUC, sessUC, userRepo, creditRepo, jobRepo, hub, authMgr, auth, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Web.Port), Handler: srv.Routes()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}
