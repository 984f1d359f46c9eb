package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soundcrate/soundcrate/internal/cart"
	cartdomain "github.com/soundcrate/soundcrate/internal/cart/domain"
	"github.com/soundcrate/soundcrate/internal/catalog"
	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	"github.com/soundcrate/soundcrate/internal/config"
	"github.com/soundcrate/soundcrate/internal/download"
	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
	"github.com/soundcrate/soundcrate/internal/library"
	librarydomain "github.com/soundcrate/soundcrate/internal/library/domain"
	"github.com/soundcrate/soundcrate/internal/observability"
	obsmiddleware "github.com/soundcrate/soundcrate/internal/observability/logger"
	obsmetrics "github.com/soundcrate/soundcrate/internal/observability/metrics"
	obstracing "github.com/soundcrate/soundcrate/internal/observability/tracing"
	"github.com/soundcrate/soundcrate/internal/order"
	orderdomain "github.com/soundcrate/soundcrate/internal/order/domain"
	"github.com/soundcrate/soundcrate/internal/payment"
	paymentdomain "github.com/soundcrate/soundcrate/internal/payment/domain"
	"github.com/soundcrate/soundcrate/internal/providers"
	"github.com/soundcrate/soundcrate/internal/providers/pdf"
	"github.com/soundcrate/soundcrate/internal/ratelimit"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	catalog.Module,
	cart.Module,
	library.Module,
	order.Module,
	payment.Module,
	download.Module,
	providers.Module,
	ratelimit.Module,
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
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	catalogSvc  catalogdomain.Service
	cartSvc     cartdomain.Service
	orderSvc    orderdomain.Service
	paymentSvc  paymentdomain.Service
	downloadSvc downloaddomain.Service
	librarySvc  librarydomain.Service
	pdfSvc      pdf.Provider
	dlLimiter   *ratelimit.TokenBucket
	storeCfg    *config.StoreConfigHolder
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	CatalogSvc  catalogdomain.Service
	CartSvc     cartdomain.Service
	OrderSvc    orderdomain.Service
	PaymentSvc  paymentdomain.Service
	DownloadSvc downloaddomain.Service
	LibrarySvc  librarydomain.Service
	PDFSvc      pdf.Provider
	DLLimiter   *ratelimit.TokenBucket   `optional:"true"`
	StoreCfg    *config.StoreConfigHolder `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		catalogSvc:  p.CatalogSvc,
		cartSvc:     p.CartSvc,
		orderSvc:    p.OrderSvc,
		paymentSvc:  p.PaymentSvc,
		downloadSvc: p.DownloadSvc,
		librarySvc:  p.LibrarySvc,
		pdfSvc:      p.PDFSvc,
		dlLimiter:   p.DLLimiter,
		storeCfg:    p.StoreCfg,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/releases", s.ListReleases)
	api.GET("/releases/:id", s.GetRelease)

	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
	api.GET("/payments/return/:provider", s.HandlePaymentReturn)

	authed := api.Group("")
	authed.Use(s.UserRequired())

	authed.GET("/cart", s.GetCart)
	authed.POST("/cart/items", s.AddCartItem)
	authed.DELETE("/cart/items/:productId", s.RemoveCartItem)

	authed.POST("/orders", s.CreateOrder)
	authed.GET("/orders", s.ListOrders)
	authed.GET("/orders/:id", s.GetOrder)
	authed.POST("/orders/:id/pay", s.PayOrder)
	authed.POST("/orders/:id/cancel", s.CancelOrder)
	authed.GET("/orders/:id/receipt", s.OrderReceipt)

	authed.GET("/library", s.ListLibrary)

	authed.POST("/releases/:id/download", s.RequestDownload)
	authed.GET("/downloads/:id", s.DownloadStatus)
	authed.GET("/downloads/:id/artifact", s.DownloadArtifact)
}
