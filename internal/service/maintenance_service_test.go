package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeExportCleaner struct {
	ttl     time.Duration
	removed []string
}

func (f *fakeExportCleaner) Cleanup(ttl time.Duration) ([]string, error) {
	f.ttl = ttl
	return f.removed, nil
}

type fakeStuckFailer struct{ maxAge time.Duration }

func (f *fakeStuckFailer) FailStuck(_ context.Context, maxAge time.Duration) (int64, error) {
	f.maxAge = maxAge
	return 1, nil
}

type fakeTokenPurger struct {
	at  time.Time
	err error
}

func (f *fakeTokenPurger) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	f.at = now
	return 3, f.err
}

func TestMaintenanceJobsUseDefaults(t *testing.T) {
	svc := NewMaintenanceService(nil, nil, nil, nil, MaintenanceConfig{})

	jobs := svc.Jobs()
	require.Len(t, jobs, 3)
	schedules := map[string]string{}
	for _, job := range jobs {
		schedules[job.Name] = job.Schedule
		assert.NotNil(t, job.Run)
	}
	assert.Equal(t, "0 */30 * * * *", schedules["cleanup-files"])
	assert.Equal(t, "0 */10 * * * *", schedules["fail-stuck-slides"])
	assert.Equal(t, "0 15 * * * *", schedules["purge-refresh-tokens"])

	for _, job := range jobs {
		assert.NoError(t, job.Run(context.Background()), job.Name)
	}
}

func TestMaintenanceCleanupRemovesStaleWorkDirs(t *testing.T) {
	work := t.TempDir()
	stale := filepath.Join(work, "job-old")
	fresh := filepath.Join(work, "job-new")
	require.NoError(t, os.Mkdir(stale, 0o755))
	require.NoError(t, os.Mkdir(fresh, 0o755))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	exports := &fakeExportCleaner{removed: []string{"exports/a.pdf"}}
	svc := NewMaintenanceService(exports, nil, nil, zap.NewNop(), MaintenanceConfig{ExportTTL: time.Hour, WorkDir: work})

	require.NoError(t, svc.CleanupFiles(context.Background()))
	assert.Equal(t, time.Hour, exports.ttl)
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestMaintenancePassesAgesAndClock(t *testing.T) {
	slides := &fakeStuckFailer{}
	tokens := &fakeTokenPurger{}
	svc := NewMaintenanceService(nil, slides, tokens, zap.NewNop(), MaintenanceConfig{SlidesStuckAfter: 20 * time.Minute})
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	require.NoError(t, svc.FailStuckSlides(context.Background()))
	assert.Equal(t, 20*time.Minute, slides.maxAge)

	require.NoError(t, svc.PurgeRefreshTokens(context.Background()))
	assert.Equal(t, fixed, tokens.at)

	tokens.err = errors.New("db down")
	assert.EqualError(t, svc.PurgeRefreshTokens(context.Background()), "db down")
}
