package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
)

func (s *Server) Reserve(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reservation, err := s.usageSvc.Reserve(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// an empty balance is an answer, not an error
	c.JSON(http.StatusOK, gin.H{"data": reservation})
}

type finalizeRequest struct {
	UsedFree        bool   `json:"used_free"`
	Success         bool   `json:"success"`
	OrderID         string `json:"order_id"`
	OriginalFileID  string `json:"original_file_id"`
	ProcessedFileID string `json:"processed_file_id"`
	Prompt          string `json:"prompt"`
}

func (s *Server) Finalize(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseOptionalSnowflakeID(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order_id"))
		return
	}

	result, err := s.usageSvc.Finalize(c.Request.Context(), usagedomain.FinalizeRequest{
		UserID:          userID,
		UsedFree:        req.UsedFree,
		Success:         req.Success,
		OrderID:         orderID,
		OriginalFileID:  req.OriginalFileID,
		ProcessedFileID: req.ProcessedFileID,
		Prompt:          req.Prompt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
