package service

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/pkg/scheduler"
)

type exportCleaner interface {
	Cleanup(ttl time.Duration) ([]string, error)
}

type stuckSlideFailer interface {
	FailStuck(ctx context.Context, maxAge time.Duration) (int64, error)
}

type refreshTokenPurger interface {
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// MaintenanceConfig holds schedules and ages for the cron jobs.
type MaintenanceConfig struct {
	CleanupSchedule    string
	StuckJobsSchedule  string
	TokenPurgeSchedule string
	ExportTTL          time.Duration
	SlidesStuckAfter   time.Duration
	WorkDir            string
}

// MaintenanceService owns the periodic cleanup jobs.
type MaintenanceService struct {
	exports exportCleaner
	slides  stuckSlideFailer
	tokens  refreshTokenPurger
	logger  *zap.Logger
	cfg     MaintenanceConfig
	now     func() time.Time
}

// NewMaintenanceService constructs the service with default schedules where unset.
func NewMaintenanceService(exports exportCleaner, slides stuckSlideFailer, tokens refreshTokenPurger, logger *zap.Logger, cfg MaintenanceConfig) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = "0 */30 * * * *"
	}
	if cfg.StuckJobsSchedule == "" {
		cfg.StuckJobsSchedule = "0 */10 * * * *"
	}
	if cfg.TokenPurgeSchedule == "" {
		cfg.TokenPurgeSchedule = "0 15 * * * *"
	}
	if cfg.ExportTTL <= 0 {
		cfg.ExportTTL = 24 * time.Hour
	}
	if cfg.SlidesStuckAfter <= 0 {
		cfg.SlidesStuckAfter = 30 * time.Minute
	}
	return &MaintenanceService{exports: exports, slides: slides, tokens: tokens, logger: logger, cfg: cfg, now: time.Now}
}

// Jobs lists the cron jobs to register.
func (s *MaintenanceService) Jobs() []scheduler.Job {
	return []scheduler.Job{
		{Name: "cleanup-files", Schedule: s.cfg.CleanupSchedule, Timeout: 5 * time.Minute, Run: s.CleanupFiles},
		{Name: "fail-stuck-slides", Schedule: s.cfg.StuckJobsSchedule, Timeout: time.Minute, Run: s.FailStuckSlides},
		{Name: "purge-refresh-tokens", Schedule: s.cfg.TokenPurgeSchedule, Timeout: time.Minute, Run: s.PurgeRefreshTokens},
	}
}

// CleanupFiles removes expired export copies and abandoned transcription work directories.
func (s *MaintenanceService) CleanupFiles(ctx context.Context) error {
	if s.exports != nil {
		removed, err := s.exports.Cleanup(s.cfg.ExportTTL)
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			s.logger.Info("removed expired exports", zap.Int("count", len(removed)))
		}
	}
	return s.cleanupWorkDir(ctx)
}

func (s *MaintenanceService) cleanupWorkDir(ctx context.Context) error {
	if s.cfg.WorkDir == "" {
		return nil
	}
	entries, err := os.ReadDir(s.cfg.WorkDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := s.now().Add(-s.cfg.ExportTTL)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.cfg.WorkDir, entry.Name())); err != nil {
			s.logger.Warn("remove stale work dir", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("removed stale work dirs", zap.Int("count", removed))
	}
	return nil
}

// FailStuckSlides fails slide jobs left in processing.
func (s *MaintenanceService) FailStuckSlides(ctx context.Context) error {
	if s.slides == nil {
		return nil
	}
	_, err := s.slides.FailStuck(ctx, s.cfg.SlidesStuckAfter)
	return err
}

// PurgeRefreshTokens deletes revoked and expired refresh sessions.
func (s *MaintenanceService) PurgeRefreshTokens(ctx context.Context) error {
	if s.tokens == nil {
		return nil
	}
	n, err := s.tokens.DeleteExpiredRefreshTokens(ctx, s.now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("purged refresh tokens", zap.Int64("count", n))
	}
	return nil
}
