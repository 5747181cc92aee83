package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stayledger/backend/internal/logging"
	"github.com/stayledger/backend/internal/notify"
	"github.com/stayledger/backend/internal/storage/models"
	"github.com/stayledger/backend/internal/websocket"
)

// ErrSchedulerStopped is returned by RunNow once Stop has been called.
var ErrSchedulerStopped = errors.New("scheduler stopped")

const (
	defaultSyncInterval = 30 * time.Minute
	defaultStartupDelay = 10 * time.Second
)

// Scheduler runs SyncAll on a fixed interval and once shortly after startup.
type Scheduler struct {
	cron         *cron.Cron
	job          cron.Job
	entryID      cron.EntryID
	syncService  *SyncService
	broadcaster  *websocket.EventBroadcaster
	notifier     notify.Notifier
	logger       *slog.Logger
	interval     time.Duration
	startupDelay time.Duration

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	startup   *time.Timer
	startupAt *time.Time
	stopped   bool
	running   sync.WaitGroup
}

// NewScheduler creates a new calendar sync scheduler.
// hub and notifier may be nil.
func NewScheduler(
	syncService *SyncService,
	hub *websocket.Hub,
	notifier notify.Notifier,
	logger *slog.Logger,
	interval, startupDelay time.Duration,
) *Scheduler {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	if startupDelay <= 0 {
		startupDelay = defaultStartupDelay
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}

	logger = logger.With("component", "scheduler")
	var broadcaster *websocket.EventBroadcaster
	if hub != nil {
		broadcaster = websocket.NewEventBroadcaster(hub, logger)
	}

	s := &Scheduler{
		cron:         cron.New(cron.WithLogger(logging.CronLogger(logger))),
		syncService:  syncService,
		broadcaster:  broadcaster,
		notifier:     notifier,
		logger:       logger,
		interval:     interval,
		startupDelay: startupDelay,
	}

	// Ticks and the startup run share one wrapped job so they never overlap.
	cl := logging.CronLogger(logger)
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.tick))
	return s
}

// Start schedules the periodic sync and the delayed startup run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.entryID = s.cron.Schedule(cron.Every(s.interval), s.job)
	s.cron.Start()

	at := time.Now().Add(s.startupDelay)
	s.startupAt = &at
	s.startup = time.AfterFunc(s.startupDelay, func() {
		s.mu.Lock()
		s.startupAt = nil
		s.mu.Unlock()
		s.job.Run()
	})

	s.logger.Info("calendar sync scheduler started",
		"interval", s.interval.String(), "startup_delay", s.startupDelay.String())
	return nil
}

// Stop cancels the pending startup run and waits for a running sync to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.startup != nil {
		s.startup.Stop()
		s.startupAt = nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("stopping calendar sync scheduler")
	<-s.cron.Stop().Done()
	if cancel != nil {
		cancel()
	}
	s.running.Wait()
	s.logger.Info("calendar sync scheduler stopped")
}

// RunNow performs a full sync synchronously and reports the outcome.
// It returns ErrSchedulerStopped after Stop.
func (s *Scheduler) RunNow(ctx context.Context) (models.SyncSummary, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return models.SyncSummary{}, ErrSchedulerStopped
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	summary := s.syncService.SyncAll(ctx)
	s.report(ctx, summary)
	return summary, nil
}

// NextRun returns the time of the next scheduled sync, or nil when not started.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	var next *time.Time
	if entry := s.cron.Entry(s.entryID); entry.Valid() && !entry.Next.IsZero() {
		n := entry.Next
		next = &n
	}
	if s.startupAt != nil && (next == nil || s.startupAt.Before(*next)) {
		at := *s.startupAt
		next = &at
	}
	return next
}

// Interval returns the sync interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Debug("scheduled sync skipped", "reason", err)
	}
}

// report logs the summary, broadcasts it and alerts on failures.
func (s *Scheduler) report(ctx context.Context, summary models.SyncSummary) {
	s.logger.Info("calendar sync finished",
		"properties", summary.Properties,
		"imported", summary.Imported,
		"skipped", summary.Skipped,
		"feed_errors", summary.FeedErrors,
		"failed", len(summary.Failed),
		"duration", summary.FinishedAt.Sub(summary.StartedAt).String())

	if s.broadcaster != nil {
		for _, r := range summary.Results {
			s.broadcaster.BroadcastSyncCompleted(r)
		}
		for _, f := range summary.Failed {
			s.broadcaster.BroadcastSyncError(f.PropertyID, f.PropertyName, f.Message)
		}
		s.broadcaster.BroadcastBatchCompleted(summary, s.NextRun())
	}

	if summary.HasFailures() {
		if s.broadcaster != nil {
			s.broadcaster.BroadcastNotification("warning", "Calendar sync",
				fmt.Sprintf("%d feed error(s), %d failed propert(ies)", summary.FeedErrors, len(summary.Failed)))
		}
		if err := s.notifier.NotifySyncFailures(ctx, summary); err != nil {
			s.logger.Error("sending sync failure alert", "error", err)
		}
	}
}
