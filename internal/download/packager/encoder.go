package packager

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
)

// Encoder turns one source track into the requested delivery format.
type Encoder interface {
	// Encode writes the converted audio to dst. The returned extension
	// (without dot) names the produced file inside the archive.
	Encode(ctx context.Context, src, dst string, format downloaddomain.Format) (string, error)
}

// FFmpegEncoder shells out to ffmpeg. The binary path comes from
// configuration so containers can pin their own build.
type FFmpegEncoder struct {
	Path string
}

func (e *FFmpegEncoder) Encode(ctx context.Context, src, dst string, format downloaddomain.Format) (string, error) {
	var ext string
	var args []string
	switch format {
	case downloaddomain.FormatMP3:
		ext = "mp3"
		args = []string{"-i", src, "-vn", "-codec:a", "libmp3lame", "-b:a", "320k", "-y", dst}
	case downloaddomain.FormatFLAC:
		ext = "flac"
		args = []string{"-i", src, "-vn", "-codec:a", "flac", "-y", dst}
	case downloaddomain.FormatOriginal:
		return copyFile(src, dst)
	default:
		return "", downloaddomain.ErrUnsupportedFormat
	}

	cmd := exec.CommandContext(ctx, e.Path, args...)
	// ffmpeg writes diagnostics to stderr; keep it for failure reasons.
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg: %w: %s", err, tail(output, 300))
	}
	return ext, nil
}

// CopyEncoder passes audio through untouched. Used for the "original"
// format and in tests.
type CopyEncoder struct{}

func (CopyEncoder) Encode(ctx context.Context, src, dst string, format downloaddomain.Format) (string, error) {
	return copyFile(src, dst)
}

func copyFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return extOf(src), nil
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/' && path[i] != '\\'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return "bin"
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
