// Package scheduler runs the background recompute queue. Attribution
// activation enqueues single-affiliate jobs; the worker polls, stamps a
// run token, recomputes the dependents charge and posts the delta.
package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/mutualabs/mutua/internal/clock"
	"github.com/mutualabs/mutua/internal/config"
	"github.com/mutualabs/mutua/internal/observability"
	"github.com/mutualabs/mutua/internal/orgcontext"
	schedulerdomain "github.com/mutualabs/mutua/internal/scheduler/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       *config.Config
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      schedulerdomain.Repository
	Recompute schedulerdomain.Recomputer
	Metrics   *observability.Metrics `optional:"true"`
}

type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       *config.Config
	genID     *snowflake.Node
	clock     clock.Clock
	repo      schedulerdomain.Repository
	recompute schedulerdomain.Recomputer
	metrics   *observability.Metrics
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler"),
		cfg:       p.Cfg,
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		recompute: p.Recompute,
		metrics:   p.Metrics,
	}
}

// Enqueue records a pending recompute job for one affiliate inside the
// caller's transaction.
func (s *Scheduler) Enqueue(ctx context.Context, tx *gorm.DB, affiliateID snowflake.ID) (*schedulerdomain.RecomputeJob, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, orgcontext.ErrMissingOrgID
	}

	now := s.clock.Now(ctx)
	job := &schedulerdomain.RecomputeJob{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		AffiliateID: affiliateID,
		Status:      schedulerdomain.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, tx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// RunForever polls the queue until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	interval := time.Duration(s.cfg.Scheduler.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.log.Info("recompute worker started", zap.Duration("poll_interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("recompute worker stopped")
			return
		case <-ticker.C:
			if n, err := s.RunOnce(ctx); err != nil {
				s.log.Error("recompute poll failed", zap.Error(err))
			} else if n > 0 {
				s.log.Info("recompute batch processed", zap.Int("jobs", n))
			}
		}
	}
}

// RunOnce claims and processes one batch of pending jobs.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	batch := s.cfg.Scheduler.BatchSize
	if batch <= 0 {
		batch = 50
	}
	runToken := uuid.NewString()

	jobs, err := s.repo.ClaimPending(ctx, s.db, batch, runToken)
	if err != nil {
		return 0, err
	}
	for i := range jobs {
		s.processJob(ctx, &jobs[i])
	}
	return len(jobs), nil
}

func (s *Scheduler) processJob(ctx context.Context, job *schedulerdomain.RecomputeJob) {
	jobCtx := orgcontext.WithOrgID(ctx, job.OrgID)

	outcome, err := s.recompute.RecomputeAffiliate(jobCtx, job.AffiliateID)
	now := s.clock.Now(ctx)
	job.UpdatedAt = now
	job.FinishedAt = &now

	switch {
	case err != nil:
		job.Status = schedulerdomain.JobStatusFailed
		job.Error = err.Error()
		s.log.Warn("recompute job failed",
			zap.String("job_id", job.ID.String()),
			zap.String("affiliate_id", job.AffiliateID.String()),
			zap.Error(err))
	case outcome.SkipReason != "":
		job.Status = schedulerdomain.JobStatusDone
		job.Note = outcome.SkipReason
	default:
		job.Status = schedulerdomain.JobStatusDone
	}

	if s.metrics != nil {
		s.metrics.RecomputeJobsTotal.WithLabelValues(string(job.Status)).Inc()
	}
	if err := s.repo.Update(ctx, s.db, job); err != nil {
		s.log.Error("recompute job state update failed",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}
