package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListLibrary(c *gin.Context) {
	entries, err := s.librarySvc.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
