package worker

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	catalogrepo "github.com/soundcrate/soundcrate/internal/catalog/repository"
	"github.com/soundcrate/soundcrate/internal/clock"
	"github.com/soundcrate/soundcrate/internal/config"
	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
	"github.com/soundcrate/soundcrate/internal/download/packager"
	downloadrepo "github.com/soundcrate/soundcrate/internal/download/repository"
	"github.com/soundcrate/soundcrate/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type poolFixture struct {
	pool  *Pool
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	blob  storage.BlobStore
}

func setupPoolTest(t *testing.T) *poolFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:pool_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	stripLock := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_strip_lock", stripLock))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_strip_lock_row", stripLock))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Release{},
		&catalogdomain.Track{},
		&downloaddomain.Job{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	blob, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.Config{}
	cfg.Download.WorkerCount = 1
	cfg.Download.RetentionWindow = 48 * time.Hour

	pool := NewPool(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       fakeClock,
		Cfg:         cfg,
		Repo:        downloadrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		Packager:    packager.New(packager.CopyEncoder{}, blob, zap.NewNop()),
	})

	return &poolFixture{pool: pool, db: db, node: node, clock: fakeClock, blob: blob}
}

func (f *poolFixture) seedReleaseWithTracks(t *testing.T, dir string, trackCount int) catalogdomain.Release {
	t.Helper()

	release := catalogdomain.Release{
		ID:        f.node.Generate(),
		Artist:    "Night Bus",
		Title:     "Terminal",
		Slug:      "terminal",
		CreatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&release).Error)

	for i := 1; i <= trackCount; i++ {
		src := filepath.Join(dir, fmt.Sprintf("track%d.wav", i))
		require.NoError(t, os.WriteFile(src, []byte(fmt.Sprintf("audio-%d", i)), 0o644))
		require.NoError(t, f.db.Create(&catalogdomain.Track{
			ID:         f.node.Generate(),
			ReleaseID:  release.ID,
			Position:   i,
			Title:      fmt.Sprintf("Track %d", i),
			SourcePath: src,
		}).Error)
	}
	return release
}

func (f *poolFixture) enqueueJob(t *testing.T, releaseID snowflake.ID, format downloaddomain.Format) *downloaddomain.Job {
	t.Helper()
	now := f.clock.Now()
	job := &downloaddomain.Job{
		ID:        f.node.Generate(),
		UserID:    "user-1",
		ReleaseID: releaseID,
		Format:    format,
		Status:    downloaddomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, downloadrepo.Provide().Insert(context.Background(), f.db, job))
	return job
}

func TestRunOnce_PackagesJob(t *testing.T) {
	f := setupPoolTest(t)
	ctx := context.Background()

	release := f.seedReleaseWithTracks(t, t.TempDir(), 2)
	job := f.enqueueJob(t, release.ID, downloaddomain.FormatOriginal)

	processed, err := f.pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	got, err := downloadrepo.Provide().Find(ctx, f.db, job.ID)
	require.NoError(t, err)
	assert.Equal(t, downloaddomain.StatusReady, got.Status)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(48*time.Hour), got.ExpiresAt.UTC())
	assert.Greater(t, got.SizeBytes, int64(0))

	// The artifact is a valid archive with one entry per track.
	body, _, err := f.blob.Open(ctx, got.ArtifactKey)
	require.NoError(t, err)
	defer body.Close()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	assert.Len(t, reader.File, 2)
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	f := setupPoolTest(t)

	processed, err := f.pool.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestRunOnce_MissingSourceFails(t *testing.T) {
	f := setupPoolTest(t)
	ctx := context.Background()

	release := catalogdomain.Release{
		ID:        f.node.Generate(),
		Artist:    "Night Bus",
		Title:     "Terminal",
		Slug:      "terminal",
		CreatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&release).Error)
	require.NoError(t, f.db.Create(&catalogdomain.Track{
		ID:         f.node.Generate(),
		ReleaseID:  release.ID,
		Position:   1,
		Title:      "Track 1",
		SourcePath: "/nonexistent/track.wav",
	}).Error)
	job := f.enqueueJob(t, release.ID, downloaddomain.FormatOriginal)

	processed, err := f.pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	got, err := downloadrepo.Provide().Find(ctx, f.db, job.ID)
	require.NoError(t, err)
	assert.Equal(t, downloaddomain.StatusFailed, got.Status)
	assert.NotEmpty(t, got.FailureReason)
}

func TestRunOnce_ReleaseWithoutTracksFails(t *testing.T) {
	f := setupPoolTest(t)
	ctx := context.Background()

	release := catalogdomain.Release{
		ID:        f.node.Generate(),
		Artist:    "Night Bus",
		Title:     "Terminal",
		Slug:      "terminal",
		CreatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&release).Error)
	job := f.enqueueJob(t, release.ID, downloaddomain.FormatOriginal)

	processed, err := f.pool.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	got, err := downloadrepo.Provide().Find(ctx, f.db, job.ID)
	require.NoError(t, err)
	assert.Equal(t, downloaddomain.StatusFailed, got.Status)
}
