package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/soundcrate/soundcrate/internal/clock"
	"github.com/soundcrate/soundcrate/internal/config"
	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
	downloadrepo "github.com/soundcrate/soundcrate/internal/download/repository"
	"github.com/soundcrate/soundcrate/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type schedulerFixture struct {
	sched *Scheduler
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	blob  storage.BlobStore
}

func setupSchedulerTest(t *testing.T) *schedulerFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:sched_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&downloaddomain.Job{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	blob, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	appCfg := config.Config{}
	appCfg.Download.StuckThreshold = 30 * time.Minute

	sched, err := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  fakeClock,
		AppCfg: appCfg,
		Repo:   downloadrepo.Provide(),
		Blob:   blob,
		Config: Config{BatchSize: 10},
	})
	require.NoError(t, err)

	return &schedulerFixture{sched: sched, db: db, node: node, clock: fakeClock, blob: blob}
}

func (f *schedulerFixture) seedReadyJob(t *testing.T, key string, expiresAt time.Time) *downloaddomain.Job {
	t.Helper()

	now := f.clock.Now()
	require.NoError(t, f.blob.Put(context.Background(), key, strings.NewReader("zip-bytes"), 9, "application/zip"))
	job := &downloaddomain.Job{
		ID:          f.node.Generate(),
		UserID:      "user-1",
		ReleaseID:   f.node.Generate(),
		Format:      downloaddomain.FormatMP3,
		Status:      downloaddomain.StatusReady,
		ArtifactKey: key,
		SizeBytes:   9,
		ExpiresAt:   &expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.db.Create(job).Error)
	return job
}

func (f *schedulerFixture) seedProcessingJob(t *testing.T, startedAt time.Time) *downloaddomain.Job {
	t.Helper()

	now := f.clock.Now()
	job := &downloaddomain.Job{
		ID:        f.node.Generate(),
		UserID:    "user-1",
		ReleaseID: f.node.Generate(),
		Format:    downloaddomain.FormatFLAC,
		Status:    downloaddomain.StatusProcessing,
		StartedAt: &startedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(job).Error)
	return job
}

func (f *schedulerFixture) reload(t *testing.T, id snowflake.ID) *downloaddomain.Job {
	t.Helper()
	got, err := downloadrepo.Provide().Find(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func TestRunOnce_ExpiresLapsedArtifacts(t *testing.T) {
	f := setupSchedulerTest(t)
	ctx := context.Background()

	lapsed := f.seedReadyJob(t, "downloads/a/mp3.zip", f.clock.Now().Add(-time.Hour))
	fresh := f.seedReadyJob(t, "downloads/b/mp3.zip", f.clock.Now().Add(time.Hour))

	require.NoError(t, f.sched.RunOnce(ctx))

	assert.Equal(t, downloaddomain.StatusExpired, f.reload(t, lapsed.ID).Status)
	assert.Equal(t, downloaddomain.StatusReady, f.reload(t, fresh.ID).Status)

	// The lapsed blob is gone, the fresh one stays.
	_, _, err := f.blob.Open(ctx, lapsed.ArtifactKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	body, _, err := f.blob.Open(ctx, fresh.ArtifactKey)
	require.NoError(t, err)
	body.Close()
}

func TestRunOnce_ExpiryDrivenByClock(t *testing.T) {
	f := setupSchedulerTest(t)
	ctx := context.Background()

	job := f.seedReadyJob(t, "downloads/c/mp3.zip", f.clock.Now().Add(48*time.Hour))

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, downloaddomain.StatusReady, f.reload(t, job.ID).Status)

	f.clock.Advance(49 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, downloaddomain.StatusExpired, f.reload(t, job.ID).Status)
}

func TestRunOnce_ToleratesMissingBlob(t *testing.T) {
	f := setupSchedulerTest(t)
	ctx := context.Background()

	job := f.seedReadyJob(t, "downloads/d/mp3.zip", f.clock.Now().Add(-time.Hour))
	require.NoError(t, f.blob.Delete(ctx, job.ArtifactKey))

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Equal(t, downloaddomain.StatusExpired, f.reload(t, job.ID).Status)
}

func TestRunOnce_RecoversStuckProcessing(t *testing.T) {
	f := setupSchedulerTest(t)
	ctx := context.Background()

	stale := f.seedProcessingJob(t, f.clock.Now().Add(-time.Hour))
	active := f.seedProcessingJob(t, f.clock.Now().Add(-time.Minute))

	require.NoError(t, f.sched.RunOnce(ctx))

	got := f.reload(t, stale.ID)
	assert.Equal(t, downloaddomain.StatusFailed, got.Status)
	assert.Equal(t, "packaging worker lost", got.FailureReason)
	assert.Equal(t, downloaddomain.StatusProcessing, f.reload(t, active.ID).Status)
}

func TestExpireArtifactsJob_SurfacesBlobErrors(t *testing.T) {
	f := setupSchedulerTest(t)
	ctx := context.Background()

	job := f.seedReadyJob(t, "downloads/e/mp3.zip", f.clock.Now().Add(-time.Hour))
	f.sched.blob = failingBlob{inner: f.blob}

	err := f.sched.ExpireArtifactsJob(ctx)
	require.Error(t, err)
	// The row only flips after the blob is actually gone.
	assert.Equal(t, downloaddomain.StatusReady, f.reload(t, job.ID).Status)
}

type failingBlob struct {
	inner storage.BlobStore
}

func (b failingBlob) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	return b.inner.Put(ctx, key, body, size, contentType)
}

func (b failingBlob) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	return b.inner.Open(ctx, key)
}

func (b failingBlob) Delete(ctx context.Context, key string) error {
	return errors.New("backend unavailable")
}
