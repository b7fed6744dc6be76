package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	"trading-research-core/internal/application"
	"trading-research-core/internal/config"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/adapter"
	"trading-research-core/internal/domain/ports/repository"
	analysisAdapters "trading-research-core/internal/infra/adapters/analysis"
	pg "trading-research-core/internal/infra/db/postgres"
	"trading-research-core/internal/infra/devicestore"
	"trading-research-core/internal/infra/logging"
	"trading-research-core/internal/infra/orchestrator"
	"trading-research-core/internal/infra/realtime"
	red "trading-research-core/internal/infra/redis"
	"trading-research-core/internal/infra/sched"
	"trading-research-core/internal/infra/worker"
	"trading-research-core/internal/usecase"
)

// Demo flow: sign in a seeded user, launch two analyses against a no-op
// service adapter, then play the execution service by hand. The first
// result arrives over the realtime push channel, the second through the
// polling fallback; each handler fires exactly once either way.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	txm := pg.NewTxManager(pool)

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	notifier := red.NewNotifier(redisClient, logger)
	locker := red.NewLocker(redisClient)

	jobRepo := pg.NewJobRepo(pool, nil)
	sessionRepo := pg.NewSessionRepo(pool, txm)
	creditRepo := pg.NewCreditRepo(pool, txm)
	userRepo := pg.NewUserRepo(pool)

	deviceStore, err := devicestore.New("demo-device.json")
	if err != nil {
		log.Fatalf("device store: %v", err)
	}

	registry := orchestrator.NewRegistry(true, logger)
	// Tight schedule so the pull channel fires within the demo run.
	schedule := orchestrator.Schedule{
		First:    3 * time.Second,
		Second:   2 * time.Second,
		Steady:   2 * time.Second,
		Deadline: time.Minute,
	}
	poller := orchestrator.NewPoller(jobRepo, registry, schedule, logger)
	counter := orchestrator.NewActiveJobs()

	auth := usecase.NewAuthState()
	creditGW := usecase.NewCreditGateway(creditRepo, logger)
	launchUC := usecase.NewLaunchUseCase(
		jobRepo, creditGW, analysisAdapters.NewNoopAdapter(), registry, poller, counter,
		nil, red.LaunchKey, cfg.RateLimit.LaunchesPerMinute,
		auth, logger,
	)
	sessUC := usecase.NewSessionUseCase(
		sessionRepo, userRepo, deviceStore, notifier, locker,
		auth, counter, "demo", logger,
	)

	wp := worker.NewPool(2)
	wp.Start(ctx)
	defer wp.Stop()
	debouncer := sched.NewAuthDebouncer(cfg.Session.DebounceWindow, sessUC, logger)
	defer debouncer.Stop()

	facade := application.NewDashboardFacade(sessUC, launchUC, debouncer, wp)

	bridge := realtime.NewBridge(notifier, registry, sessUC, auth, logger)
	go func() { _ = bridge.Run(ctx) }()

	// ---- Sign in ----
	user, err := userRepo.FindByID(ctx, nil, "u-demo-pro")
	if err != nil {
		log.Fatalf("load seeded user (run cmd/seed first): %v", err)
	}
	if err := facade.SignIn(ctx, user); err != nil {
		log.Fatalf("sign in: %v", err)
	}
	log.Printf("signed in as %s, session %s", user.ID, auth.SessionID())

	deliveries := make(chan model.Delivery, 2)
	handler := func(d model.Delivery) { deliveries <- d }

	payload := json.RawMessage(`{"symbol":"EURUSD","timeframe":"4h"}`)

	// ---- Job 1: result over the push channel ----
	job1, err := facade.Launch(ctx, model.FeatureChartAnalysis, payload, handler)
	if err != nil {
		log.Fatalf("launch job1: %v", err)
	}
	log.Printf("launched %s; completing it like the execution service would", job1)
	completeJob(ctx, jobRepo, notifier, user.ID, job1, `{"text":"Uptrend intact above 1.0850."}`)
	// Publish twice: the second event must be suppressed, not re-delivered.
	publishDone(ctx, notifier, user.ID, job1, `{"text":"Uptrend intact above 1.0850."}`)

	d1 := <-deliveries
	log.Printf("job1 delivered: status=%s source=%s kind=%s", d1.Status, d1.Source, d1.Result.Kind)

	// ---- Job 2: no push event, the poller picks it up ----
	job2, err := facade.Launch(ctx, model.FeaturePortfolioReview, payload, handler)
	if err != nil {
		log.Fatalf("launch job2: %v", err)
	}
	log.Printf("launched %s; writing its result with no event, poller takes it", job2)
	status := model.JobStatusDone
	if err := jobRepo.Update(ctx, nil, job2, model.JobPatch{
		Status:          &status,
		ResponsePayload: json.RawMessage(`{"text":"Portfolio beta 1.2, trim tech exposure."}`),
	}); err != nil {
		log.Fatalf("complete job2: %v", err)
	}

	d2 := <-deliveries
	log.Printf("job2 delivered: status=%s source=%s kind=%s", d2.Status, d2.Source, d2.Result.Kind)

	if err := facade.SignOut(ctx); err != nil {
		log.Fatalf("sign out: %v", err)
	}
	log.Printf("signed out; done")
}

// completeJob writes the terminal row and publishes the change event, which
// is what the execution service and its outbox do in production.
func completeJob(ctx context.Context, jobs repository.JobRepository, pub adapter.EventPublisher, userID, jobID, result string) {
	status := model.JobStatusDone
	if err := jobs.Update(ctx, nil, jobID, model.JobPatch{
		Status:          &status,
		ResponsePayload: json.RawMessage(result),
	}); err != nil {
		log.Fatalf("complete %s: %v", jobID, err)
	}
	publishDone(ctx, pub, userID, jobID, result)
}

func publishDone(ctx context.Context, pub adapter.EventPublisher, userID, jobID, result string) {
	ev := adapter.ChangeEvent{
		Kind:    adapter.EventKindJob,
		UserID:  userID,
		JobID:   jobID,
		Status:  model.JobStatusDone,
		Payload: json.RawMessage(result),
		At:      time.Now(),
	}
	if err := pub.Publish(ctx, ev); err != nil {
		log.Fatalf("publish %s: %v", jobID, err)
	}
}
