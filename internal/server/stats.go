package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetStats(c *gin.Context) {
	summary, err := s.ledgerSvc.Summary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetUTMStats reports per-campaign conversion and the attributed funnel.
func (s *Server) GetUTMStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := s.ledgerSvc.UTMStats(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	funnel, err := s.ledgerSvc.Funnel(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"stats": stats, "funnel": funnel}})
}
