package scheduler

import (
	"cardpay/helper"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper closes transactions whose cardholder never came back.
type Sweeper interface {
	SweepAbandoned(ctx context.Context) (int, error)
}

type TransactionScheduler struct {
	cron     *cron.Cron
	sweeper  Sweeper
	schedule string
	timeout  time.Duration

	mu      sync.Mutex
	running bool
}

func NewTransactionScheduler(sweeper Sweeper, schedule string) *TransactionScheduler {
	return &TransactionScheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		sweeper:  sweeper,
		schedule: schedule,
		timeout:  time.Minute,
	}
}

// Start registers the sweep job. Runs that overlap a previous sweep are skipped.
func (ts *TransactionScheduler) Start() error {
	entryID, err := ts.cron.AddFunc(ts.schedule, ts.sweep)
	if err != nil {
		return fmt.Errorf("schedule abandoned transaction sweep %q: %w", ts.schedule, err)
	}
	helper.Info("Abandoned transaction sweep scheduled with entry ID %d (%s)", entryID, ts.schedule)
	ts.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish.
func (ts *TransactionScheduler) Stop() {
	<-ts.cron.Stop().Done()
}

func (ts *TransactionScheduler) sweep() {
	ts.mu.Lock()
	if ts.running {
		ts.mu.Unlock()
		helper.Warn("Previous abandoned transaction sweep still running, skipping")
		return
	}
	ts.running = true
	ts.mu.Unlock()
	defer func() {
		ts.mu.Lock()
		ts.running = false
		ts.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), ts.timeout)
	defer cancel()

	swept, err := ts.sweeper.SweepAbandoned(ctx)
	if err != nil {
		helper.Error("Abandoned transaction sweep failed: %v", err)
		return
	}
	if swept > 0 {
		helper.Info("Abandoned transaction sweep closed %d transactions", swept)
	}
}

func (ts *TransactionScheduler) GetStatus() map[string]interface{} {
	entries := ts.cron.Entries()
	status := make(map[string]interface{})
	status["total_entries"] = len(entries)
	status["schedule"] = ts.schedule

	for i, entry := range entries {
		status[fmt.Sprintf("entry_%d", i)] = map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next.Format("2006-01-02 15:04:05"),
			"prev_run": entry.Prev.Format("2006-01-02 15:04:05"),
		}
	}

	return status
}
