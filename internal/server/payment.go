package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps webhook payloads; providers send kilobytes, so
// anything near the cap is junk.
const maxWebhookBody = 1 << 20

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandlePaymentReturn is the browser redirect target after provider
// approval. The webhook remains the source of truth; this only
// reconciles eagerly so the buyer sees the outcome without waiting.
func (s *Server) HandlePaymentReturn(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	orderID, err := s.paymentSvc.HandleReturn(c.Request.Context(), provider, c.Request.URL.Query())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":  orderID.String(),
		"order_url": "/api/orders/" + orderID.String(),
	})
}
