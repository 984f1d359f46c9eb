package domain

import (
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotEntitled       = errors.New("not_entitled")
	ErrJobNotFound       = errors.New("download_job_not_found")
	ErrArtifactNotReady  = errors.New("artifact_not_ready")
	ErrArtifactExpired   = errors.New("artifact_expired")
	ErrUnsupportedFormat = errors.New("unsupported_format")
)

type Format string

const (
	FormatMP3      Format = "mp3"
	FormatFLAC     Format = "flac"
	FormatOriginal Format = "original"
)

func (f Format) Valid() bool {
	switch f {
	case FormatMP3, FormatFLAC, FormatOriginal:
		return true
	}
	return false
}

type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusReady      JobStatus = "READY"
	StatusFailed     JobStatus = "FAILED"
	StatusExpired    JobStatus = "EXPIRED"
)

// Job tracks one packaging request. Status only moves forward:
// PENDING -> PROCESSING -> {READY, FAILED}, and READY -> EXPIRED via
// the retention sweep.
type Job struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID        string       `json:"user_id" gorm:"type:text;not null;index:ix_download_jobs_user_release"`
	ReleaseID     snowflake.ID `json:"release_id" gorm:"not null;index:ix_download_jobs_user_release"`
	Format        Format       `json:"format" gorm:"type:text;not null"`
	Status        JobStatus    `json:"status" gorm:"type:text;not null;index"`
	ArtifactKey   string       `json:"-" gorm:"type:text;not null;default:''"`
	SizeBytes     int64        `json:"size_bytes" gorm:"not null;default:0"`
	FailureReason string       `json:"failure_reason,omitempty" gorm:"type:text;not null;default:''"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

func (Job) TableName() string { return "download_jobs" }

// Usable reports whether the job's artifact can still be served.
func (j Job) Usable(now time.Time) bool {
	return j.Status == StatusReady && j.ExpiresAt != nil && now.Before(*j.ExpiresAt)
}

// Artifact is a streamable packaged zip.
type Artifact struct {
	Body        io.ReadCloser
	Size        int64
	Filename    string
	ContentType string
}
