package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Request returns an existing in-flight or unexpired READY job for
	// (user, release, format) when one exists, otherwise enqueues a new
	// PENDING job. The caller must be entitled to the release.
	Request(ctx context.Context, userID string, releaseID snowflake.ID, format Format) (*Job, error)

	// Status is the poll target for clients waiting on a job.
	Status(ctx context.Context, userID string, id snowflake.ID) (*Job, error)

	// FetchArtifact streams the packaged zip; only READY and unexpired
	// jobs are servable.
	FetchArtifact(ctx context.Context, userID string, id snowflake.ID) (*Artifact, error)
}
