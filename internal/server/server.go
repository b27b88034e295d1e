package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"skillprob/internal/auth"
	"skillprob/internal/config"
	"skillprob/internal/gateway"
	"skillprob/internal/idempotency"
	"skillprob/internal/ledger"
	"skillprob/internal/notification"
	"skillprob/internal/payment"
	"skillprob/internal/payout"
	"skillprob/internal/wallet"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, notifier *notification.Service) *Server {
	router := gin.Default()
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())

	ledgerRepo := ledger.NewRepository(db)
	walletService := wallet.NewService(ledgerRepo)

	guard := idempotency.NewGuard(db)
	gateways := gateway.NewRegistry(
		gateway.NewRazorpayAdapter(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret),
		gateway.NewStripeAdapter(cfg.StripeAPIKey, cfg.StripeWebhookSecret),
		gateway.NewWalletPayAdapter(walletService),
	)

	paymentRepo := payment.NewRepository(db)
	paymentService := payment.NewService(db, paymentRepo, ledgerRepo, gateways, guard, notifier, cfg.CommissionRateBps)

	payoutRepo := payout.NewRepository(db)
	payoutService := payout.NewService(db, payoutRepo, ledgerRepo, notifier, cfg.PointValueCents)

	walletHandler := wallet.NewHandler(walletService)
	paymentHandler := payment.NewHandler(paymentService, gateways)
	payoutHandler := payout.NewHandler(payoutService)

	// Webhooks are public: authenticity comes from the signature, not a
	// bearer token. Rate limited against gateway retry storms.
	webhooks := router.Group("/webhooks")
	webhooks.Use(RateLimitMiddleware(20, 40))
	{
		webhooks.POST("/:gateway", paymentHandler.HandleWebhook)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/wallet", walletHandler.GetBalance)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)
		protected.POST("/wallet/convert", walletHandler.Convert(cfg.ConversionRateBps))

		protected.POST("/payments", paymentHandler.CreatePayment)
		protected.GET("/payments", paymentHandler.ListMyPayments)
		protected.GET("/payments/:paymentID", paymentHandler.GetPayment)
	}

	ambassador := router.Group("/payouts")
	ambassador.Use(authMiddleware, auth.RequireRole(auth.RoleAmbassador, auth.RoleAdmin))
	{
		ambassador.POST("", payoutHandler.Create)
		ambassador.GET("", payoutHandler.ListMy)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/payouts", payoutHandler.AdminList)
		admin.POST("/payouts/:requestID/approve", payoutHandler.Approve)
		admin.POST("/payouts/:requestID/reject", payoutHandler.Reject)
		admin.POST("/payouts/:requestID/settle", payoutHandler.Settle)

		admin.POST("/payments/:paymentID/refunds", paymentHandler.CreateRefund)
		admin.GET("/payments/:paymentID/refunds", paymentHandler.ListRefunds)

		admin.GET("/wallets/:walletID", walletHandler.AdminGetWallet)
		admin.POST("/wallets/:walletID/freeze", walletHandler.AdminSetFrozen)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())
	SetupSwagger(router)

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
