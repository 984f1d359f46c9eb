package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
)

type requestDownloadRequest struct {
	Format string `json:"format" binding:"required"`
}

func (s *Server) RequestDownload(c *gin.Context) {
	if !s.allowDownloadRequest(c) {
		return
	}

	releaseID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req requestDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if s.storeCfg != nil && !s.storeCfg.FormatEnabled(req.Format) {
		AbortWithError(c, downloaddomain.ErrUnsupportedFormat)
		return
	}

	job, err := s.downloadSvc.Request(c.Request.Context(), currentUserID(c), releaseID, downloaddomain.Format(req.Format))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) DownloadStatus(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	job, err := s.downloadSvc.Status(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) DownloadArtifact(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	artifact, err := s.downloadSvc.FetchArtifact(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer artifact.Body.Close()

	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", artifact.Filename),
	}
	c.DataFromReader(http.StatusOK, artifact.Size, artifact.ContentType, artifact.Body, extraHeaders)
}

// allowDownloadRequest debits the per-user token bucket. Without redis
// the limiter is nil and requests pass through.
func (s *Server) allowDownloadRequest(c *gin.Context) bool {
	if s.dlLimiter == nil {
		return true
	}

	rate := s.cfg.Download.RequestRatePerMin / 60
	burst := s.cfg.Download.RequestBurst
	if rate <= 0 || burst <= 0 {
		return true
	}

	result, err := s.dlLimiter.Allow(c.Request.Context(), "dl:"+currentUserID(c), rate, burst)
	if err != nil {
		// Redis being down should not block purchases of downloads.
		return true
	}
	if !result.Allowed {
		if result.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
			Type:    "rate_limited",
			Message: "too many download requests",
		}})
		return false
	}
	return true
}
