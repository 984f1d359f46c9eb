package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListReleases(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50, 200)

	releases, err := s.catalogSvc.ListReleases(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"releases": releases})
}

func (s *Server) GetRelease(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	release, tracks, err := s.catalogSvc.GetRelease(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	product, err := s.catalogSvc.GetProductByRelease(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"release": release,
		"tracks":  tracks,
		"product": product,
	})
}
