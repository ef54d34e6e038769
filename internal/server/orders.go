package server

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/creditledger/internal/order/domain"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
	"go.uber.org/zap"
)

type createOrderRequest struct {
	UserID            int64           `json:"user_id" binding:"required,gt=0"`
	PackageID         string          `json:"package_id" binding:"required"`
	ExternalReference string          `json:"external_reference"`
	Amount            decimal.Decimal `json:"amount"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	packageID, err := snowflake.ParseString(req.PackageID)
	if err != nil {
		AbortWithError(c, newValidationError("package_id", "invalid_package_id", "invalid package_id"))
		return
	}

	order, err := s.orderSvc.Create(c.Request.Context(), orderdomain.CreateOrderRequest{
		UserID:            req.UserID,
		PackageID:         packageID,
		ExternalReference: req.ExternalReference,
		Amount:            req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (s *Server) ListOrders(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orderSvc.ListByUser(c.Request.Context(), orderdomain.ListOrdersRequest{
		UserID:     userID,
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type paymentNotificationRequest struct {
	ExternalReference string `json:"external_reference" binding:"required"`
}

type paymentNotificationResponse struct {
	orderdomain.SettleResult
	RewardDeferred bool `json:"reward_deferred"`
}

// PaymentNotification settles an order from a payment provider callback.
// A deferred reward still answers 200 so the provider stops redelivering;
// the reconciler completes the reward.
func (s *Server) PaymentNotification(c *gin.Context) {
	var req paymentNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.orderSvc.Settle(c.Request.Context(), req.ExternalReference)
	deferred := errors.Is(err, orderdomain.ErrRewardDeferred)
	if err != nil && !deferred {
		AbortWithError(c, err)
		return
	}
	if deferred {
		s.log.Warn("settled with deferred reward",
			zap.String("reference", req.ExternalReference),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"data": paymentNotificationResponse{
		SettleResult:   result,
		RewardDeferred: deferred,
	}})
}
