// Package main runs the course commerce HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/learnhub/backend/config"
	"github.com/learnhub/backend/internal/auth"
	"github.com/learnhub/backend/internal/certificates"
	"github.com/learnhub/backend/internal/checkout"
	"github.com/learnhub/backend/internal/coupons"
	"github.com/learnhub/backend/internal/courses"
	"github.com/learnhub/backend/internal/enrollments"
	"github.com/learnhub/backend/internal/gateway"
	"github.com/learnhub/backend/internal/middleware"
	"github.com/learnhub/backend/internal/models"
	"github.com/learnhub/backend/internal/payments"
	"github.com/learnhub/backend/internal/quizzes"
	"github.com/learnhub/backend/pkg/database"
	"github.com/learnhub/backend/pkg/metrics"
	"github.com/learnhub/backend/pkg/queue"
	"github.com/learnhub/backend/pkg/redis"
	"github.com/learnhub/backend/pkg/response"
	"github.com/learnhub/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var archiver payments.Archiver
	if cfg.AWS.Region != "" && cfg.AWS.WebhookBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			WebhookBucket:   cfg.AWS.WebhookBucket,
		}, logger)
		if err != nil {
			logger.Warn("webhook archive disabled", zap.Error(err))
		} else {
			archiver = s3Client
		}
	}

	if cfg.Stripe.SecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, checkout will fail")
	}
	provider := gateway.NewStripeGateway(gateway.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Timeout:       cfg.Stripe.Timeout,
	}, logger)

	m := metrics.New()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	courseRepo := courses.NewRepository(pool)
	couponRepo := coupons.NewRepository(pool)
	enrollmentRepo := enrollments.NewRepository(pool)
	quizRepo := quizzes.NewRepository(pool)
	certificateRepo := certificates.NewRepository(pool)
	paymentRepo := payments.NewRepository(pool)

	// Commerce
	ledger := coupons.NewLedger(couponRepo, courseRepo, m, logger)
	couponHandler := coupons.NewHandler(ledger, couponRepo)
	coordinator := checkout.NewCoordinator(courseRepo, enrollmentRepo, ledger, paymentRepo, provider, checkout.Options{
		Currency:      cfg.Stripe.Currency,
		PublicBaseURL: cfg.Server.PublicBaseURL,
	}, m, logger)
	checkoutHandler := checkout.NewHandler(coordinator)
	reconciler := payments.NewReconciler(paymentRepo, provider, jobQueue, cfg.Commerce.AdminCommission, m, logger)
	paymentHandler := payments.NewHandler(reconciler, provider, archiver, logger)

	// Credentialing
	engine := certificates.NewEngine(certificateRepo, enrollmentRepo, quizRepo, jobQueue, cfg.Certificate.PassScore, m, logger)
	certificateHandler := certificates.NewHandler(engine, certificateRepo, courseRepo)
	enrollmentHandler := enrollments.NewHandler(enrollmentRepo, courseRepo, engine)
	quizHandler := quizzes.NewHandler(quizRepo, engine, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger, m))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, response.Body{Error: "database unavailable", Code: "unhealthy"})
			return
		}
		if err := rdb.Healthy(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, response.Body{Error: "redis unavailable", Code: "unhealthy"})
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Provider webhook (no JWT; signature checked in handler)
	router.POST("/webhook/payment", paymentHandler.Webhook)

	// Public certificate verification
	router.GET("/certificates/:id", certificateHandler.Get)

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/checkout", checkoutHandler.Create)
		api.GET("/payments/status/:session_id", paymentHandler.Status)

		api.POST("/coupons/validate", couponHandler.Validate)
		admin := api.Group("/coupons", middleware.RequireRole(models.RoleAdmin))
		admin.POST("", couponHandler.Create)
		admin.GET("", couponHandler.List)
		admin.PATCH("/:id", couponHandler.Update)
		admin.DELETE("/:id", couponHandler.Delete)

		api.POST("/enrollments", enrollmentHandler.Enroll)
		api.GET("/enrollments/my-courses", enrollmentHandler.MyCourses)
		api.PATCH("/enrollments/:id/progress", enrollmentHandler.UpdateProgress)

		api.POST("/quizzes/:id/submit", quizHandler.Submit)

		api.POST("/certificates/check-eligibility/:course_id", certificateHandler.CheckEligibility)
		api.GET("/certificates/my-certificates", certificateHandler.MyCertificates)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
