// Package maintenance runs background integrity sweeps over the durable
// store: version lists over the configured cap are pruned and blocks whose
// owning message is gone are deleted.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"historydb/pkg/logger"
	"historydb/pkg/models"
)

// StoreScanner is the slice of the durable store the sweeper needs.
type StoreScanner interface {
	ListMessages(ctx context.Context) ([]*models.Message, error)
	ListBlocks(ctx context.Context) ([]*models.Block, error)
	UpdateMessage(ctx context.Context, id string, patch models.MessagePatch) (*models.Message, error)
	DeleteMessageBlock(ctx context.Context, id string) error
}

// Sweeper schedules and executes maintenance runs.
type Sweeper struct {
	src         StoreScanner
	cron        string
	maxVersions int
}

// NewSweeper creates a sweeper. cron uses standard 5-field syntax.
func NewSweeper(src StoreScanner, cron string, maxVersions int) *Sweeper {
	return &Sweeper{src: src, cron: cron, maxVersions: maxVersions}
}

// Start validates the schedule and launches the scheduler goroutine.
// Returns a cancel func stopping the scheduler.
func (s *Sweeper) Start(ctx context.Context) (context.CancelFunc, error) {
	cronExpr := s.cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid maintenance cron expression: %s", s.cron)
	}
	ctx2, cancel := context.WithCancel(ctx)
	go s.runScheduler(ctx2, cronExpr)
	logger.Log.Info("maintenance_scheduler_started", zap.String("cron", cronExpr))
	return cancel, nil
}

func (s *Sweeper) runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("maintenance_scheduler_stopping")
			return
		default:
		}

		next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
		if err != nil {
			logger.Log.Error("maintenance_nexttick_failed", zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := s.RunOnce(ctx); err != nil {
				logger.Log.Error("maintenance_run_error", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Log.Info("maintenance_scheduler_stopping")
			return
		}
	}
}

// RunOnce executes a single sweep. Exposed for tests and admin triggers.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	msgs, err := s.src.ListMessages(ctx)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	owners := make(map[string]struct{}, len(msgs))
	pruned := 0
	for _, m := range msgs {
		owners[m.ID] = struct{}{}
		if s.maxVersions <= 0 || len(m.Versions) <= s.maxVersions {
			continue
		}
		vs := pruneOldest(m.Versions, s.maxVersions)
		now := time.Now().UTC().UnixNano()
		if _, err := s.src.UpdateMessage(ctx, m.ID, models.MessagePatch{Versions: &vs, UpdatedAt: &now}); err != nil {
			logger.Log.Error("maintenance_prune_failed", zap.String("message", m.ID), zap.Error(err))
			continue
		}
		pruned += len(m.Versions) - len(vs)
	}

	blocks, err := s.src.ListBlocks(ctx)
	if err != nil {
		return fmt.Errorf("list blocks: %w", err)
	}
	orphans := 0
	for _, b := range blocks {
		if _, ok := owners[b.MessageID]; ok {
			continue
		}
		if err := s.src.DeleteMessageBlock(ctx, b.ID); err != nil {
			logger.Log.Error("maintenance_orphan_delete_failed", zap.String("block", b.ID), zap.Error(err))
			continue
		}
		orphans++
	}

	logger.Log.Info("maintenance_sweep_done",
		zap.Int("messages", len(msgs)),
		zap.Int("versions_pruned", pruned),
		zap.Int("orphan_blocks_deleted", orphans),
	)
	return nil
}

func pruneOldest(vs []models.MessageVersion, max int) []models.MessageVersion {
	out := append([]models.MessageVersion(nil), vs...)
	for len(out) > max {
		oldest := 0
		for i := 1; i < len(out); i++ {
			if out[i].CreatedAt < out[oldest].CreatedAt {
				oldest = i
			}
		}
		out = append(out[:oldest], out[oldest+1:]...)
	}
	return out
}
