package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	appctx "github.com/Ramsey-B/aster/pkg/context"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/syncer"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var (
	// ErrSchedulerStopped is returned when the scheduler is stopped
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultPollInterval is the default interval between scheduling runs
	DefaultPollInterval = 30 * time.Second

	// DefaultLockTTL is the default TTL for distributed locks
	DefaultLockTTL = 5 * time.Minute

	// DefaultBatchSize is the number of integrations to consider per poll
	DefaultBatchSize = 100

	// LockKeyPrefix is the prefix for scheduler locks
	LockKeyPrefix = "scheduler:integration:"
)

// standard 5-field cron expressions
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// SchedulerRepository defines the interface for scheduler data access.
// This is separate from tenant-scoped repositories as it needs cross-tenant
// access.
type SchedulerRepository interface {
	ListScheduled(ctx context.Context, limit int) ([]ScheduledIntegration, error)
}

// SyncRunner launches one sync run; the orchestrator implements it.
type SyncRunner interface {
	RunSync(ctx context.Context, integrationID uuid.UUID) (*models.SyncOutcome, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// PollInterval is how often to check for due integrations
	PollInterval time.Duration

	// LockTTL is how long a sync run holds its distributed lock
	LockTTL time.Duration

	// BatchSize is the maximum number of integrations to consider per poll
	BatchSize int
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		LockTTL:      DefaultLockTTL,
		BatchSize:    DefaultBatchSize,
	}
}

// Scheduler polls for integrations whose cron schedule is due and runs their
// syncs. A Redis lock per integration keeps multiple instances from racing;
// the conditional status transition in the store backstops it.
type Scheduler struct {
	repo   SchedulerRepository
	runner SyncRunner
	locker *redis.Locker
	config Config
	logger ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(
	repo SchedulerRepository,
	runner SyncRunner,
	locker *redis.Locker,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	// Apply defaults
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	return &Scheduler{
		repo:     repo,
		runner:   runner,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "Scheduler.Start")
	defer span.End()

	s.logger.WithContext(ctx).Infof("Starting scheduler: poll_interval=%s batch_size=%d",
		s.config.PollInterval, s.config.BatchSize)

	go s.pollLoop(ctx)

	s.logger.WithContext(ctx).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// pollLoop continuously polls for due integrations
func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.runSchedulingCycle(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler poll loop stopping")
			return
		case <-ticker.C:
			s.runSchedulingCycle(ctx)
		}
	}
}

// runSchedulingCycle runs a single scheduling cycle
func (s *Scheduler) runSchedulingCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.runSchedulingCycle")
	defer span.End()

	start := time.Now()
	s.logger.WithContext(ctx).Debug("Running scheduling cycle")

	candidates, err := s.repo.ListScheduled(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list scheduled integrations")
		return
	}

	launched := 0
	skipped := 0
	for _, candidate := range candidates {
		if !s.isDue(ctx, candidate, start) {
			continue
		}

		if err := s.runScheduledSync(ctx, candidate); err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) || errors.Is(err, syncer.ErrSyncAlreadyRunning) {
				skipped++
				continue
			}
			s.logger.WithContext(ctx).WithError(err).Warnf("Scheduled sync failed for integration %s", candidate.ID)
			continue
		}
		launched++
	}

	if launched > 0 || skipped > 0 {
		s.logger.WithContext(ctx).Infof("Scheduling cycle completed: launched=%d skipped=%d duration=%s",
			launched, skipped, time.Since(start))
	}
}

// isDue checks the candidate's cron expression against its last run. An
// integration that has never run is due immediately.
func (s *Scheduler) isDue(ctx context.Context, candidate ScheduledIntegration, now time.Time) bool {
	schedule, err := cronParser.Parse(candidate.SyncSchedule)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warnf("Invalid sync schedule %q on integration %s",
			candidate.SyncSchedule, candidate.ID)
		return false
	}

	reference := candidate.LastSyncFinishedAt
	if reference == nil {
		reference = candidate.LastSyncStartedAt
	}
	if reference == nil {
		return true
	}

	return !schedule.Next(*reference).After(now)
}

// runScheduledSync locks the integration and runs its sync inline.
func (s *Scheduler) runScheduledSync(ctx context.Context, candidate ScheduledIntegration) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.runScheduledSync")
	defer span.End()

	lock, err := s.locker.Acquire(ctx, s.lockKey(candidate.ID), s.config.LockTTL)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	// Set tenant context for logging and repository scoping
	ctx = appctx.SetTenantID(ctx, candidate.TenantID.String())

	s.logger.WithContext(ctx).Debugf("Running scheduled sync for integration %s (%s)",
		candidate.ID, candidate.Service)

	outcome, err := s.runner.RunSync(ctx, candidate.ID)
	if err != nil {
		return err
	}

	metrics.SchedulerSyncsScheduled.Inc()
	s.logger.WithContext(ctx).Infof("Scheduled sync for integration %s finished with status %s",
		candidate.ID, outcome.Status)

	return nil
}

func (s *Scheduler) lockKey(integrationID uuid.UUID) string {
	return LockKeyPrefix + integrationID.String()
}
