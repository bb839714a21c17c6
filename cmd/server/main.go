package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/cache"
	"github.com/smarttransit/ticketing-backend/internal/config"
	"github.com/smarttransit/ticketing-backend/internal/database"
	"github.com/smarttransit/ticketing-backend/internal/handlers"
	"github.com/smarttransit/ticketing-backend/internal/memstore"
	"github.com/smarttransit/ticketing-backend/internal/notification"
	"github.com/smarttransit/ticketing-backend/internal/services"
	"github.com/smarttransit/ticketing-backend/pkg/gateway"
	"github.com/smarttransit/ticketing-backend/pkg/jwt"
	"github.com/smarttransit/ticketing-backend/pkg/sms"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

// stores bundles the persistence ports behind one storage driver
type stores struct {
	db       *sqlx.DB
	trips    services.TripStore
	ledger   services.SeatLedger
	bookings services.BookingStore
	payments services.PaymentStore
	audits   services.PaymentAuditLog
}

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SmartTransit Ticketing Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	st, err := openStores(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	if st.db != nil {
		defer st.db.Close()
	}

	// Trip cache
	var tripCache services.TripCache
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, trip cache disabled")
		} else {
			defer redisClient.Close()
			tripCache = cache.NewTripCache(redisClient, cfg.Redis.TripTTL)
			logger.WithField("addr", cfg.Redis.Addr).Info("Trip cache enabled")
		}
	}

	// Booking confirmation channels
	var notifiers notification.MultiNotifier
	if cfg.Notification.Mode == "amqp" {
		amqpNotifier, err := notification.NewAMQPNotifier(cfg.Notification.AMQPURL, cfg.Notification.Queue, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize AMQP notifier: %v", err)
		}
		defer amqpNotifier.Close()
		notifiers = append(notifiers, amqpNotifier)
		logger.WithField("queue", cfg.Notification.Queue).Info("Booking confirmations published to RabbitMQ")
	} else {
		notifiers = append(notifiers, notification.NewLogNotifier(logger))
	}
	if cfg.SMS.Enabled {
		smsGateway := sms.NewDialogGateway(sms.DialogConfig{
			APIURL:   cfg.SMS.APIURL,
			Username: cfg.SMS.Username,
			Password: cfg.SMS.Password,
			Mask:     cfg.SMS.Mask,
		})
		notifiers = append(notifiers, notification.NewSMSNotifier(smsGateway, logger))
		logger.WithField("gateway", smsGateway.GetName()).Info("Booking confirmation SMS enabled")
	}

	gw := newGateway(cfg.Payment, logger)

	// Services
	catalogService := services.NewTripCatalogService(st.trips, tripCache, logger)
	bookingService := services.NewBookingService(st.trips, st.ledger, st.bookings, notifiers, cfg.Booking, logger)
	paymentService := services.NewPaymentService(st.bookings, st.trips, st.payments, st.audits, gw, cfg.Payment, logger)

	reconciler := services.NewPaymentReconciler(st.payments, paymentService,
		cfg.Payment.ReconcileSchedule, cfg.Payment.ReconcileGrace, logger)
	if err := reconciler.Start(); err != nil {
		logger.Fatalf("Failed to start payment reconciler: %v", err)
	}

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowsAnyOrigin(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	var pinger handlers.Pinger
	if st.db != nil {
		pinger = st.db
	}
	routes := &handlers.Router{
		Health:   handlers.NewHealthHandler(pinger, cfg.Database.Driver, version),
		Trips:    handlers.NewTripHandler(catalogService, logger),
		Bookings: handlers.NewBookingHandler(bookingService, paymentService, logger),
		Payments: handlers.NewPaymentHandler(paymentService, logger),
	}
	routes.Register(router, jwtService, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	reconciler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

func openStores(cfg *config.Config, logger *logrus.Logger) (*stores, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory storage; data is lost on restart")
		mem := memstore.New()
		return &stores{trips: mem, ledger: mem, bookings: mem, payments: mem, audits: mem}, nil
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	logger.Info("Database connection established")

	return &stores{
		db:       db,
		trips:    database.NewTripRepository(db),
		ledger:   database.NewSeatLedger(db),
		bookings: database.NewBookingRepository(db),
		payments: database.NewPaymentRepository(db),
		audits:   database.NewPaymentAuditRepository(db, logger),
	}, nil
}

func newGateway(cfg config.PaymentConfig, logger *logrus.Logger) gateway.Gateway {
	if cfg.Mode == "http" {
		logger.WithField("base_url", cfg.BaseURL).Info("Using HTTP payment gateway")
		return gateway.NewHTTPGateway(gateway.HTTPConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			Timeout:   cfg.Timeout,
		}, logger)
	}
	logger.Warn("Using simulated payment gateway")
	return gateway.NewSimulatedGateway("")
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}
		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}
