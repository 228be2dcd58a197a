package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/refresh"
)

// Refresher is the part of the refresh controller the job needs.
type Refresher interface {
	Request() bool
	Wait(ctx context.Context) (refresh.State, error)
}

// RefreshJob asks the controller for a new snapshot and waits for the outcome.
type RefreshJob struct {
	refresher Refresher
	timeout   time.Duration
}

func NewRefreshJob(r Refresher, timeout time.Duration) *RefreshJob {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &RefreshJob{refresher: r, timeout: timeout}
}

func (j *RefreshJob) Name() string { return "etf_feed_refresh" }

// Run returns nil when a refresh was already in flight; that attempt reports its own result.
func (j *RefreshJob) Run(ctx context.Context) error {
	if !j.refresher.Request() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	st, err := j.refresher.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for refresh: %w", err)
	}
	if st.Status == refresh.StatusFailed {
		return errors.New(st.Reason)
	}
	return nil
}
