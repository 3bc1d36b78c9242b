package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/yacbhl71/DELICES-DALGERIE/internal/config"
	custommiddleware "github.com/yacbhl71/DELICES-DALGERIE/internal/middleware"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/notify"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/repository"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/service"
	"github.com/yacbhl71/DELICES-DALGERIE/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	dispatcher *notify.Dispatcher
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.Server.Env == "development"))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	// Redis-backed rate limiting on the whole API surface; the middleware
	// fails open when Redis is unreachable.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	router.Use(custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: 120,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit",
	}, logger))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	productRepo := repository.NewProductRepository(db)
	promoRepo := repository.NewPromoCodeRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	adjustmentRepo := repository.NewStockAdjustmentRepository(db)

	// Notification dispatch is fire-and-forget: a bounded queue drained into
	// the log sink, never awaited by the request path.
	dispatcher := notify.NewDispatcher(&notify.LogSink{Logger: logger}, cfg.Checkout.NotifyQueueSize, logger)

	// Initialize services
	userService := service.NewUserService(userRepo, cfg.JWT.Secret, time.Duration(cfg.JWT.AccessExpiry)*time.Minute)
	promoService := service.NewPromoService(promoRepo)
	inventoryService := service.NewInventoryService(productRepo, adjustmentRepo, logger)
	orderService := service.NewOrderService(orderRepo, inventoryService, promoService, dispatcher, cfg.Checkout.ShippingCost, logger)

	// Initialize handlers
	userHandler := transport.NewUserHandler(userService, logger)
	categoryHandler := transport.NewCategoryHandler(categoryRepo, logger)
	productHandler := transport.NewProductHandler(productRepo, logger)
	promoHandler := transport.NewPromoHandler(promoService, promoRepo, logger)
	inventoryHandler := transport.NewInventoryHandler(inventoryService, logger)
	orderHandler := transport.NewOrderHandler(orderService, logger)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminMiddleware := custommiddleware.RequireAdmin(logger)

	// Register routes
	userHandler.RegisterRoutes(router, authMiddleware)
	categoryHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)
	productHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)
	promoHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)
	inventoryHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)
	orderHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		dispatcher: dispatcher,
	}

	return server
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Drain queued notifications before shutting down
	s.dispatcher.Close()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
