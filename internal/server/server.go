package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/creditledger/internal/account"
	accountdomain "github.com/smallbiznis/creditledger/internal/account/domain"
	"github.com/smallbiznis/creditledger/internal/catalog"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/smallbiznis/creditledger/internal/ledger"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creditledger/internal/observability/tracing"
	"github.com/smallbiznis/creditledger/internal/order"
	orderdomain "github.com/smallbiznis/creditledger/internal/order/domain"
	"github.com/smallbiznis/creditledger/internal/ratelimit"
	"github.com/smallbiznis/creditledger/internal/referral"
	referraldomain "github.com/smallbiznis/creditledger/internal/referral/domain"
	"github.com/smallbiznis/creditledger/internal/usage"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	ratelimit.Module,
	account.Module,
	catalog.Module,
	ledger.Module,
	referral.Module,
	order.Module,
	usage.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	log    *zap.Logger

	accountSvc  accountdomain.Service
	catalogSvc  catalogdomain.Service
	ledgerSvc   ledgerdomain.Service
	referralSvc referraldomain.Service
	orderSvc    orderdomain.Service
	usageSvc    usagedomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Log         *zap.Logger
	AccountSvc  accountdomain.Service
	CatalogSvc  catalogdomain.Service
	LedgerSvc   ledgerdomain.Service
	ReferralSvc referraldomain.Service
	OrderSvc    orderdomain.Service
	UsageSvc    usagedomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		log:         p.Log.Named("http.server"),
		accountSvc:  p.AccountSvc,
		catalogSvc:  p.CatalogSvc,
		ledgerSvc:   p.LedgerSvc,
		referralSvc: p.ReferralSvc,
		orderSvc:    p.OrderSvc,
		usageSvc:    p.UsageSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	api.POST("/accounts", s.CreateAccount)
	accounts := api.Group("/accounts/:user_id")
	accounts.GET("/balance", s.GetBalance)
	accounts.POST("/reservations", s.Reserve)
	accounts.POST("/reservations/finalize", s.Finalize)
	accounts.GET("/orders", s.ListOrders)
	accounts.GET("/referral", s.GetReferral)
	accounts.POST("/referrer", s.SetReferrer)

	api.GET("/packages", s.ListPackages)
	api.PUT("/packages", s.SyncPackages)

	api.POST("/orders", s.CreateOrder)
	api.POST("/payments/notifications", s.PaymentNotification)

	api.GET("/stats", s.GetStats)
	api.GET("/stats/utm", s.GetUTMStats)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
