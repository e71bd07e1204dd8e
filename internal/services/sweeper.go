package services

import (
	"context"
	"fmt"
	"time"

	"flowgate/internal/repository"
	"flowgate/pkg/models"
)

// DefaultStaleExecutionAge is how long an execution may sit in
// waiting_review without a pending review before the sweeper reaps it.
const DefaultStaleExecutionAge = 7 * 24 * time.Hour

// expiredReviewNote is the system-authored feedback written onto reviews the
// sweeper expires.
const expiredReviewNote = "Expired automatically: no decision before the deadline"

// Sweeper reclaims abandoned review gates and stuck executions. Both passes
// are bulk conditional updates, so overlapping runs and crash retries are
// harmless: a second run finds nothing left to change. The sweeper never
// calls the remote engine — expiry is abandonment, not a decision, and the
// engine observes the failure through its own timeout.
type Sweeper struct {
	store             repository.Store
	audit             *AuditService
	logger            Logger
	staleExecutionAge time.Duration
	now               func() time.Time
}

// NewSweeper creates a new Sweeper. staleExecutionAge <= 0 selects the
// default threshold.
func NewSweeper(store repository.Store, audit *AuditService, logger Logger, staleExecutionAge time.Duration) *Sweeper {
	if staleExecutionAge <= 0 {
		staleExecutionAge = DefaultStaleExecutionAge
	}
	return &Sweeper{
		store:             store,
		audit:             audit,
		logger:            logger,
		staleExecutionAge: staleExecutionAge,
		now:               time.Now,
	}
}

// Run executes one sweep: expire timed-out pending reviews, fail their
// executions, then reap executions stuck waiting with no review at all.
func (s *Sweeper) Run(ctx context.Context) (*repository.SweepResult, error) {
	now := s.now()
	result := &repository.SweepResult{}

	expired, err := s.store.ExpireStaleReviews(ctx, now, expiredReviewNote)
	if err != nil {
		return nil, &models.PersistenceError{Op: "expire reviews", Err: err}
	}
	result.ExpiredReviews = expired

	failed, err := s.store.FailExecutionsWithExpiredReviews(ctx)
	if err != nil {
		return nil, &models.PersistenceError{Op: "fail executions", Err: err}
	}
	result.FailedExecutions = failed

	reaped, err := s.store.ReapStuckExecutions(ctx, now.Add(-s.staleExecutionAge))
	if err != nil {
		return nil, &models.PersistenceError{Op: "reap executions", Err: err}
	}
	result.ReapedExecutions = reaped

	s.logger.Info("cleanup sweep finished",
		"expired_reviews", result.ExpiredReviews,
		"failed_executions", result.FailedExecutions,
		"reaped_executions", result.ReapedExecutions,
	)

	_ = s.audit.Record(ctx, Event{
		EventType: models.AuditEventCleanupSummary,
		Actor:     models.ActorSystem,
		Detail: fmt.Sprintf("expired=%d failed=%d reaped=%d",
			result.ExpiredReviews, result.FailedExecutions, result.ReapedExecutions),
	})

	return result, nil
}

// Counts returns the current pending and expiring-soon numbers for
// monitoring. "Soon" is within the next hour.
func (s *Sweeper) Counts(ctx context.Context) (*repository.PendingCounts, error) {
	return s.store.CountPending(ctx, s.now().Add(time.Hour))
}
