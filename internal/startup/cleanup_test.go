package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/recovery"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubRunRepo implements only the repository.VideoRunRepository surface
// RecoverAll actually touches; every other method panics if called.
type stubRunRepo struct {
	active   []*models.VideoRun
	segments map[models.ULID][]*models.Segment
	updated  []*models.VideoRun
}

func (s *stubRunRepo) GetActive(ctx context.Context) ([]*models.VideoRun, error) { return s.active, nil }
func (s *stubRunRepo) GetSegmentsByRunID(ctx context.Context, runID models.ULID) ([]*models.Segment, error) {
	return s.segments[runID], nil
}
func (s *stubRunRepo) Update(ctx context.Context, run *models.VideoRun) error {
	s.updated = append(s.updated, run)
	return nil
}
func (s *stubRunRepo) Create(ctx context.Context, run *models.VideoRun) error { panic("unused") }
func (s *stubRunRepo) GetByID(ctx context.Context, id models.ULID) (*models.VideoRun, error) {
	panic("unused")
}
func (s *stubRunRepo) GetByIDWithRelations(ctx context.Context, id models.ULID) (*models.VideoRun, error) {
	panic("unused")
}
func (s *stubRunRepo) GetByUserID(ctx context.Context, userID string, offset, limit int) ([]*models.VideoRun, int64, error) {
	panic("unused")
}
func (s *stubRunRepo) UpdateProgress(ctx context.Context, id models.ULID, phase models.RunStatus, progress, currentSegment int) error {
	panic("unused")
}
func (s *stubRunRepo) Delete(ctx context.Context, id models.ULID) error { panic("unused") }
func (s *stubRunRepo) RequestCancellation(ctx context.Context, id models.ULID) error {
	panic("unused")
}
func (s *stubRunRepo) CreateScenes(ctx context.Context, scenes []*models.Scene) error {
	panic("unused")
}
func (s *stubRunRepo) GetScenesByRunID(ctx context.Context, runID models.ULID) ([]*models.Scene, error) {
	panic("unused")
}
func (s *stubRunRepo) CreateSegments(ctx context.Context, segments []*models.Segment) error {
	panic("unused")
}
func (s *stubRunRepo) GetSegment(ctx context.Context, runID models.ULID, segmentNumber int) (*models.Segment, error) {
	panic("unused")
}
func (s *stubRunRepo) UpdateSegment(ctx context.Context, segment *models.Segment) error {
	panic("unused")
}

func TestRecoverVideoRuns(t *testing.T) {
	dir, err := os.MkdirTemp("", "promptvid-startup-recovery-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	layout, err := storage.NewLayout(dir, "http://localhost:8080")
	require.NoError(t, err)

	run := &models.VideoRun{UserID: "user-1", Status: models.RunStatusDecomposing}
	run.ID = models.NewULID()
	repo := &stubRunRepo{active: []*models.VideoRun{run}}

	svc := recovery.New(repo, layout, newTestLogger())

	recovered, err := RecoverVideoRuns(context.Background(), newTestLogger(), svc)
	require.NoError(t, err)
	assert.Equal(t, []string{run.ID.String()}, recovered)
}

// T009-TEST: Test CleanupOrphanedTempDirs
func TestCleanupOrphanedTempDirs(t *testing.T) {
	t.Run("removes old promptvid-run directories", func(t *testing.T) {
		logger := newTestLogger()

		// Create a temp base directory for the test
		baseDir, err := os.MkdirTemp("", "cleanup-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(baseDir)

		// Create an old orphaned directory (older than 1 hour)
		oldDir := filepath.Join(baseDir, "promptvid-run-01HZ1234567890ABCDEF")
		require.NoError(t, os.Mkdir(oldDir, 0755))

		// Create a dummy file in the old dir first
		dummyFile := filepath.Join(oldDir, "dummy.txt")
		require.NoError(t, os.WriteFile(dummyFile, []byte("test"), 0644))

		// Set modification time to 2 hours ago AFTER creating the file
		// (creating the file would update the dir mtime)
		oldTime := time.Now().Add(-2 * time.Hour)
		require.NoError(t, os.Chtimes(oldDir, oldTime, oldTime))

		// Run cleanup
		count, err := CleanupOrphanedTempDirs(logger, baseDir, 1*time.Hour)
		require.NoError(t, err)

		// Verify the old directory was removed
		assert.Equal(t, 1, count)
		_, err = os.Stat(oldDir)
		assert.True(t, os.IsNotExist(err), "old directory should be removed")
	})

	t.Run("preserves recent promptvid-run directories", func(t *testing.T) {
		logger := newTestLogger()

		// Create a temp base directory for the test
		baseDir, err := os.MkdirTemp("", "cleanup-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(baseDir)

		// Create a recent directory (less than 1 hour old)
		recentDir := filepath.Join(baseDir, "promptvid-run-01HZ0987654321FEDCBA")
		require.NoError(t, os.Mkdir(recentDir, 0755))

		// Set modification time to 30 minutes ago
		recentTime := time.Now().Add(-30 * time.Minute)
		require.NoError(t, os.Chtimes(recentDir, recentTime, recentTime))

		// Run cleanup
		count, err := CleanupOrphanedTempDirs(logger, baseDir, 1*time.Hour)
		require.NoError(t, err)

		// Verify the recent directory was NOT removed
		assert.Equal(t, 0, count)
		_, err = os.Stat(recentDir)
		assert.NoError(t, err, "recent directory should be preserved")
	})

	t.Run("ignores non-promptvid directories", func(t *testing.T) {
		logger := newTestLogger()

		// Create a temp base directory for the test
		baseDir, err := os.MkdirTemp("", "cleanup-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(baseDir)

		// Create an old non-promptvid directory
		otherDir := filepath.Join(baseDir, "some-other-dir")
		require.NoError(t, os.Mkdir(otherDir, 0755))

		// Set modification time to 2 hours ago
		oldTime := time.Now().Add(-2 * time.Hour)
		require.NoError(t, os.Chtimes(otherDir, oldTime, oldTime))

		// Run cleanup
		count, err := CleanupOrphanedTempDirs(logger, baseDir, 1*time.Hour)
		require.NoError(t, err)

		// Verify the non-promptvid directory was NOT removed
		assert.Equal(t, 0, count)
		_, err = os.Stat(otherDir)
		assert.NoError(t, err, "non-promptvid directory should be preserved")
	})

	t.Run("handles non-existent directory gracefully", func(t *testing.T) {
		logger := newTestLogger()

		// Run cleanup on non-existent directory
		count, err := CleanupOrphanedTempDirs(logger, "/nonexistent/path/12345", 1*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("cleans up multiple old directories", func(t *testing.T) {
		logger := newTestLogger()

		// Create a temp base directory for the test
		baseDir, err := os.MkdirTemp("", "cleanup-test-*")
		require.NoError(t, err)
		defer os.RemoveAll(baseDir)

		// Create multiple old directories
		oldDirs := []string{
			"promptvid-run-01HZ1111111111111111",
			"promptvid-run-01HZ2222222222222222",
			"promptvid-run-01HZ3333333333333333",
		}

		oldTime := time.Now().Add(-2 * time.Hour)
		for _, dir := range oldDirs {
			dirPath := filepath.Join(baseDir, dir)
			require.NoError(t, os.Mkdir(dirPath, 0755))
			require.NoError(t, os.Chtimes(dirPath, oldTime, oldTime))
		}

		// Run cleanup
		count, err := CleanupOrphanedTempDirs(logger, baseDir, 1*time.Hour)
		require.NoError(t, err)

		// Verify all old directories were removed
		assert.Equal(t, 3, count)
		for _, dir := range oldDirs {
			dirPath := filepath.Join(baseDir, dir)
			_, err = os.Stat(dirPath)
			assert.True(t, os.IsNotExist(err), "directory %s should be removed", dir)
		}
	})
}
