package sched

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCreditResetPeriodBoundaries(t *testing.T) {
	log := zerolog.Nop()
	now := time.Date(2026, time.March, 17, 14, 30, 5, 0, time.UTC)

	daily := NewCreditResetWorker("0 0 * * *", "daily", nil, &log)
	if got := daily.periodStart(now); !got.Equal(time.Date(2026, time.March, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("daily boundary = %v", got)
	}

	monthly := NewCreditResetWorker("0 0 1 * *", "monthly", nil, &log)
	if got := monthly.periodStart(now); !got.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("monthly boundary = %v", got)
	}
}
