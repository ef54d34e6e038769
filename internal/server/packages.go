package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
)

func (s *Server) ListPackages(c *gin.Context) {
	packages, err := s.catalogSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": packages})
}

type syncPackagesRequest struct {
	Packages []struct {
		Name        string          `json:"name" binding:"required"`
		CreditCount int             `json:"credit_count" binding:"required,gt=0"`
		Price       decimal.Decimal `json:"price"`
	} `json:"packages" binding:"dive"`
}

func (s *Server) SyncPackages(c *gin.Context) {
	var req syncPackagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	specs := make([]catalogdomain.PackageSpec, 0, len(req.Packages))
	for _, p := range req.Packages {
		specs = append(specs, catalogdomain.PackageSpec{
			Name:        p.Name,
			CreditCount: p.CreditCount,
			Price:       p.Price,
		})
	}

	result, err := s.catalogSvc.Sync(c.Request.Context(), specs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
