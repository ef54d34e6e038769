package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/creditledger/internal/account/domain"
	referraldomain "github.com/smallbiznis/creditledger/internal/referral/domain"
)

type createAccountRequest struct {
	UserID      int64  `json:"user_id" binding:"required,gt=0"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMContent  string `json:"utm_content"`
	UTMTerm     string `json:"utm_term"`
}

func (s *Server) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.accountSvc.GetOrCreate(c.Request.Context(), accountdomain.GetOrCreateRequest{
		UserID:    req.UserID,
		Username:  req.Username,
		FirstName: req.FirstName,
		Attribution: accountdomain.Attribution{
			Source:   req.UTMSource,
			Medium:   req.UTMMedium,
			Campaign: req.UTMCampaign,
			Content:  req.UTMContent,
			Term:     req.UTMTerm,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) GetBalance(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.ledgerSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

// GetReferral hands out the caller's invite code, creating it on first use,
// together with their referral totals.
func (s *Server) GetReferral(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := s.referralSvc.EnsureCode(ctx, userID); err != nil {
		AbortWithError(c, err)
		return
	}
	stats, err := s.referralSvc.Stats(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

type setReferrerRequest struct {
	Code           string `json:"code"`
	ReferrerUserID int64  `json:"referrer_user_id"`
}

func (s *Server) SetReferrer(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req setReferrerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	switch {
	case req.Code != "":
		result, err := s.referralSvc.AcceptInvite(ctx, userID, req.Code)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	case req.ReferrerUserID > 0:
		assigned, err := s.referralSvc.AssignReferrer(ctx, userID, req.ReferrerUserID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": referraldomain.InviteResult{Assigned: assigned}})
	default:
		AbortWithError(c, newValidationError("code", "invalid_referral_code", "code or referrer_user_id is required"))
	}
}
