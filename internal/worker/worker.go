package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/printpress/notifications/internal/db"
	"github.com/printpress/notifications/internal/mailer"
	"github.com/printpress/notifications/internal/metrics"
)

// Store is the job-store surface the dispatch loop writes through.
// Implemented by db.Repository.
type Store interface {
	ClaimDueJobs(ctx context.Context, limit int) ([]*db.Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID) error
	RetryJob(ctx context.Context, id uuid.UUID, errMsg string, delay time.Duration) error
	FailJob(ctx context.Context, id uuid.UUID, errMsg string) error
	ReclaimStuckJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	MarkCommunication(ctx context.Context, id uuid.UUID, status db.CommunicationStatus, providerRef *string) error
}

// MessageBuilder resolves a claimed job into an outbound message.
type MessageBuilder interface {
	Build(ctx context.Context, job *db.Job) (*BuildResult, error)
}

// Providers resolves tenant settings to a concrete email provider and the
// tenant's sending identity. Implemented by mailer.Selector.
type Providers interface {
	ForSettings(settings *db.CompanySettings) (mailer.Provider, error)
	FromLine(settings *db.CompanySettings) string
	ReplyTo(settings *db.CompanySettings, msg *mailer.Message) *string
}

// Config tunes the dispatch loop.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryDelay   time.Duration
	ReclaimAfter time.Duration
	SendRate     rate.Limit
}

// Worker is the dispatch loop: it claims due jobs on a fixed interval and
// drives each one through build, send, and state write-back. Jobs in a
// batch run strictly sequentially; no single job's failure aborts a cycle.
type Worker struct {
	store     Store
	builder   MessageBuilder
	providers Providers
	limiter   *rate.Limiter
	config    Config
	logger    *zap.Logger
}

func New(store Store, builder MessageBuilder, providers Providers, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 60 * time.Second
	}
	if cfg.ReclaimAfter == 0 {
		cfg.ReclaimAfter = 10 * time.Minute
	}
	if cfg.SendRate == 0 {
		cfg.SendRate = 5
	}

	return &Worker{
		store:     store,
		builder:   builder,
		providers: providers,
		limiter:   rate.NewLimiter(cfg.SendRate, 1),
		config:    cfg,
		logger:    logger,
	}
}

// Start runs the loop until ctx is cancelled. An in-flight job finishes
// its attempt before Start returns, so shutdown never strands a job in
// PROCESSING.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.logger.Info("dispatch loop started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	// Drain any backlog immediately; a restarted worker must not sit out
	// a full poll interval with due jobs waiting.
	w.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dispatch loop stopping")
			return
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.RecordCycle(time.Since(start)) }()

	if n, err := w.store.ReclaimStuckJobs(ctx, w.config.ReclaimAfter); err != nil {
		w.logger.Error("failed to reclaim stuck jobs", zap.Error(err))
	} else if n > 0 {
		metrics.RecordJobsReclaimed(n)
	}

	jobs, err := w.store.ClaimDueJobs(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to claim due jobs", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	w.logger.Debug("claimed jobs", zap.Int("count", len(jobs)))

	for _, job := range jobs {
		if ctx.Err() != nil {
			// Shutdown mid-batch: unclaimed work; the reclaim sweep picks
			// up anything left in PROCESSING.
			return
		}
		w.processJob(ctx, job)
	}
}

// processJob is the per-job failure boundary: every error becomes a state
// transition, never a crashed loop.
func (w *Worker) processJob(ctx context.Context, job *db.Job) {
	w.logger.Info("processing job",
		zap.String("job_id", job.ID.String()),
		zap.String("type", string(job.Type)),
		zap.Int("attempt", job.Attempts),
	)

	result, err := w.builder.Build(ctx, job)
	if err != nil {
		w.handleFailure(ctx, job, communicationRef(job), err)
		return
	}

	if result.Message == nil {
		// Nothing to send (stale order, notifications disabled). The job
		// is complete, not failed: retrying would change nothing.
		if err := w.store.CompleteJob(ctx, job.ID); err != nil {
			w.logger.Error("failed to complete no-op job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
		metrics.RecordJobProcessed("skipped", string(job.Type))
		return
	}

	result.Message.From = w.providers.FromLine(result.Settings)
	result.Message.ReplyTo = w.providers.ReplyTo(result.Settings, result.Message)

	provider, err := w.providers.ForSettings(result.Settings)
	if err != nil {
		w.handleFailure(ctx, job, result.CommunicationID, err)
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		w.handleFailure(ctx, job, result.CommunicationID, err)
		return
	}

	providerRef, err := provider.Send(ctx, result.Message)
	if err != nil {
		metrics.RecordProviderSend(provider.Name(), "error")
		w.handleFailure(ctx, job, result.CommunicationID, err)
		return
	}
	metrics.RecordProviderSend(provider.Name(), "ok")

	if result.CommunicationID != nil {
		if err := w.store.MarkCommunication(ctx, *result.CommunicationID, db.CommunicationSent, providerRef); err != nil {
			w.logger.Error("failed to mark communication sent",
				zap.String("communication_id", result.CommunicationID.String()),
				zap.Error(err),
			)
		}
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		w.logger.Error("failed to complete job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return
	}

	metrics.RecordJobProcessed("done", string(job.Type))
	w.logger.Info("job done",
		zap.String("job_id", job.ID.String()),
		zap.String("provider", provider.Name()),
	)
}

// handleFailure converts an attempt error into the next job state:
// terminal FAILED once the attempt budget is exhausted, otherwise PENDING
// with a delayed run_after.
func (w *Worker) handleFailure(ctx context.Context, job *db.Job, commID *uuid.UUID, cause error) {
	w.logger.Error("job attempt failed",
		zap.String("job_id", job.ID.String()),
		zap.String("type", string(job.Type)),
		zap.Int("attempt", job.Attempts),
		zap.Error(cause),
	)

	if job.Attempts >= w.config.MaxAttempts {
		if commID != nil {
			if err := w.store.MarkCommunication(ctx, *commID, db.CommunicationFailed, nil); err != nil {
				w.logger.Error("failed to mark communication failed",
					zap.String("communication_id", commID.String()),
					zap.Error(err),
				)
			}
		}
		if err := w.store.FailJob(ctx, job.ID, cause.Error()); err != nil {
			w.logger.Error("failed to fail job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
			return
		}
		metrics.RecordJobProcessed("failed", string(job.Type))
		return
	}

	if err := w.store.RetryJob(ctx, job.ID, cause.Error(), w.config.RetryDelay); err != nil {
		w.logger.Error("failed to requeue job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return
	}
	metrics.RecordJobProcessed("retried", string(job.Type))
}

// communicationRef pulls the communication id out of a direct-send
// payload, for failure write-back when the build itself errored.
func communicationRef(job *db.Job) *uuid.UUID {
	if job.Type != db.JobCommunicationEmail {
		return nil
	}
	var payload CommunicationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.CommunicationID == nil {
		return nil
	}
	id, err := uuid.Parse(*payload.CommunicationID)
	if err != nil {
		return nil
	}
	return &id
}
