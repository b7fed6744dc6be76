package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"trading-research-core/internal/config"
	"trading-research-core/internal/domain/model"
	pg "trading-research-core/internal/infra/db/postgres"
)

// Schema plus a couple of demo users. Safe to run repeatedly.
const schema = `
CREATE TABLE IF NOT EXISTS users (
  id             TEXT PRIMARY KEY,
  email          TEXT NOT NULL,
  display_name   TEXT NOT NULL DEFAULT '',
  plan           TEXT NOT NULL DEFAULT 'free',
  registered_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS jobs (
  id               TEXT PRIMARY KEY,
  user_id          TEXT NOT NULL REFERENCES users(id),
  feature          TEXT NOT NULL,
  status           TEXT NOT NULL DEFAULT 'queued',
  request_payload  BYTEA,
  response_payload BYTEA,
  last_error       TEXT NOT NULL DEFAULT '',
  encrypted        BOOLEAN NOT NULL DEFAULT false,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON jobs (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at);

CREATE TABLE IF NOT EXISTS user_sessions (
  session_id  TEXT PRIMARY KEY,
  user_id     TEXT NOT NULL REFERENCES users(id),
  device_info TEXT NOT NULL DEFAULT '',
  is_active   BOOLEAN NOT NULL DEFAULT true,
  last_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_active ON user_sessions (user_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS user_credits (
  user_id         TEXT PRIMARY KEY REFERENCES users(id),
  plan_type       TEXT NOT NULL DEFAULT 'free',
  remaining       JSONB NOT NULL DEFAULT '{}'::jsonb,
  last_reset_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS credit_engagements (
  job_id     TEXT PRIMARY KEY,
  user_id    TEXT NOT NULL REFERENCES users(id),
  feature    TEXT NOT NULL,
  engaged_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	fmt.Println("schema applied")

	userRepo := pg.NewUserRepo(pool)
	creditRepo := pg.NewCreditRepo(pool, pg.NewTxManager(pool))

	seed := []struct {
		ID    string
		Email string
		Name  string
		Plan  model.PlanType
	}{
		{"u-demo-free", "free@example.com", "Free Demo", model.PlanFree},
		{"u-demo-pro", "pro@example.com", "Pro Demo", model.PlanPro},
		{"u-demo-premium", "premium@example.com", "Premium Demo", model.PlanPremium},
	}

	for _, s := range seed {
		u := model.NewUser(s.ID, s.Email, s.Name, s.Plan)
		if err := userRepo.Save(ctx, nil, u); err != nil {
			log.Fatalf("save user %q: %v", s.ID, err)
		}
		entry := &model.CreditLedgerEntry{
			UserID:        s.ID,
			PlanType:      s.Plan,
			Remaining:     model.PlanGrants(s.Plan),
			LastResetDate: time.Now(),
		}
		if err := creditRepo.Save(ctx, nil, entry); err != nil {
			log.Fatalf("save credits %q: %v", s.ID, err)
		}
		fmt.Printf("seeded: %s (plan=%s, grants=%v)\n", s.ID, s.Plan, entry.Remaining)
	}

	fmt.Println("seeding complete")
}
