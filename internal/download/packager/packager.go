package packager

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
	"github.com/soundcrate/soundcrate/internal/storage"
	"go.uber.org/zap"
)

// Packager transcodes a release's tracks and writes the zipped
// artifact to blob storage.
type Packager struct {
	encoder Encoder
	blob    storage.BlobStore
	log     *zap.Logger
}

func New(encoder Encoder, blob storage.BlobStore, log *zap.Logger) *Packager {
	return &Packager{
		encoder: encoder,
		blob:    blob,
		log:     log.Named("download.packager"),
	}
}

// ArtifactKey derives the blob location from the job id alone, so the
// sweep can delete blobs without extra bookkeeping.
func ArtifactKey(jobID string, format downloaddomain.Format) string {
	return fmt.Sprintf("downloads/%s/%s.zip", jobID, format)
}

// Package builds the artifact and returns its blob key and size.
func (p *Packager) Package(ctx context.Context, job *downloaddomain.Job, release *catalogdomain.Release, tracks []catalogdomain.Track) (string, int64, error) {
	if len(tracks) == 0 {
		return "", 0, fmt.Errorf("release %s has no tracks", job.ReleaseID)
	}

	workDir, err := os.MkdirTemp("", "soundcrate-pack-*")
	if err != nil {
		return "", 0, err
	}
	defer os.RemoveAll(workDir)

	archivePath := filepath.Join(workDir, "artifact.zip")
	if err := p.buildArchive(ctx, archivePath, workDir, release, tracks, job.Format); err != nil {
		return "", 0, err
	}

	artifact, err := os.Open(archivePath)
	if err != nil {
		return "", 0, err
	}
	defer artifact.Close()
	info, err := artifact.Stat()
	if err != nil {
		return "", 0, err
	}

	key := ArtifactKey(job.ID.String(), job.Format)
	if err := p.blob.Put(ctx, key, artifact, info.Size(), "application/zip"); err != nil {
		return "", 0, err
	}
	return key, info.Size(), nil
}

func (p *Packager) buildArchive(ctx context.Context, archivePath, workDir string, release *catalogdomain.Release, tracks []catalogdomain.Track, format downloaddomain.Format) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, track := range tracks {
		if err := ctx.Err(); err != nil {
			return err
		}

		encoded := filepath.Join(workDir, fmt.Sprintf("track-%d", track.Position))
		ext, err := p.encoder.Encode(ctx, track.SourcePath, encoded, format)
		if err != nil {
			return fmt.Errorf("track %d: %w", track.Position, err)
		}

		name := fmt.Sprintf("%02d - %s.%s", track.Position, sanitize(track.Title), ext)
		entry, err := zw.Create(name)
		if err != nil {
			return err
		}
		src, err := os.Open(encoded)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, src)
		src.Close()
		if err != nil {
			return err
		}
		// Encoded intermediates can be large; drop each one as soon as
		// it is archived.
		_ = os.Remove(encoded)
	}
	return zw.Close()
}

// sanitize strips path separators from track titles before they
// become archive entry names.
func sanitize(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch r {
		case '/', '\\', 0:
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
