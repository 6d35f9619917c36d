package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"promo-system/internal/config"
	"promo-system/internal/database"
	"promo-system/internal/handlers"
	"promo-system/internal/kafka"
	"promo-system/internal/logger"
	"promo-system/internal/metrics"
	"promo-system/internal/models"
	"promo-system/internal/redis"
	"promo-system/internal/services"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Фабричные функции для подключения внешних сервисов (подменяемые в тестах).
var (
	dbConnect        = database.Connect
	redisConnect     = redis.Connect
	newKafkaProducer = kafka.NewProducer
	newKafkaConsumer = kafka.NewConsumer
	kafkaHealthCheck = handlers.CheckKafkaHealth
	loadConfig       = config.Load
	loadStaticPromos = config.LoadStaticPromos
	newLogger        = logger.New
)

// application агрегирует собранные зависимости.
type application struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	mux      *http.ServeMux
	server   *http.Server
}

func main() {
	app, err := buildApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build app: %v\n", err)
		os.Exit(1)
	}
	app.log.WithField("storage", app.cfg.Storage.Backend).Info("Starting promo system server...")

	go func() {
		app.log.WithField("address", app.server.Addr).Info("HTTP server starting")
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		app.log.WithError(err).Error("Server forced to shutdown")
	}
	app.close()
	app.log.Info("Server exited")
}

// close освобождает внешние подключения в обратном порядке.
func (a *application) close() {
	if a.consumer != nil {
		_ = a.consumer.Stop()
	}
	_ = a.producer.Close()
	_ = a.redis.Close()
	_ = a.db.Close()
}

// buildApplication создает все зависимости (подменяемые в тестах).
func buildApplication() (*application, error) {
	cfg := loadConfig()
	log := newLogger(&cfg.Logger)
	metrics.MustRegister()

	static, err := loadStaticPromos(cfg.Promo.StaticFile)
	if err != nil {
		return nil, fmt.Errorf("static promos: %w", err)
	}

	app := &application{cfg: cfg, log: log}

	// Redis нужен всегда: rate limiter и, по умолчанию, хранилище промокодов
	app.redis, err = redisConnect(&cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	var store services.PromoStore
	var dbHealth handlers.DBHealth
	switch cfg.Storage.Backend {
	case config.StorageRedis:
		store = redis.NewPromoStore(app.redis, &cfg.Promo)
	case config.StoragePostgres:
		app.db, err = dbConnect(&cfg.Database, log)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := app.db.Migrate(context.Background()); err != nil {
			app.close()
			return nil, fmt.Errorf("db migrate: %w", err)
		}
		store = database.NewPromoStore(app.db, log, &cfg.Promo)
		dbHealth = app.db
	default:
		app.close()
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	var events services.EventPublisher
	var kafkaCheck func([]string) error
	if cfg.Kafka.Enabled {
		app.producer, err = newKafkaProducer(&cfg.Kafka, log)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.consumer, err = newKafkaConsumer(&cfg.Kafka, log)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		registerEventHandlers(app.consumer, log)
		if err := app.consumer.Start(); err != nil {
			app.close()
			return nil, fmt.Errorf("kafka consumer start: %w", err)
		}
		events = app.producer
		kafkaCheck = kafkaHealthCheck
	}

	resolver := services.NewResolver(static, cfg.Promo.DepositRedirect)
	promoService := services.NewPromoService(store, events, log, &cfg.Promo)
	redemptionService := services.NewRedemptionService(store, resolver, events, log)
	rateLimiter := services.NewRateLimiter(app.redis, log, &cfg.RateLimit)
	redeemLimitCfg := cfg.RateLimit.ForRedemptions()
	redeemLimiter := services.NewRateLimiter(app.redis, log, &redeemLimitCfg)

	promoHandler := handlers.NewPromoHandler(promoService, log)
	redemptionHandler := handlers.NewRedemptionHandler(redemptionService, log)
	healthHandler := handlers.NewHealthHandler(dbHealth, app.redis, cfg.Kafka.Brokers, kafkaCheck)
	rateLimitHandler := handlers.NewRateLimitHandler(rateLimiter, log, &cfg.RateLimit)

	app.mux = setupRoutes(healthHandler, promoHandler, redemptionHandler, rateLimitHandler, rateLimiter, redeemLimiter, log)
	app.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      app.mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	log.WithField("static_promos", len(static)).Info("Application assembled")
	return app, nil
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(healthHandler *handlers.HealthHandler, promoHandler *handlers.PromoHandler, redemptionHandler *handlers.RedemptionHandler, rateLimitHandler *handlers.RateLimitHandler, rateLimiter, redeemLimiter handlers.MiddlewareLimiter, log *logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	applyAPI := func(h http.HandlerFunc) http.HandlerFunc {
		return corsMiddleware(handlers.RateLimitMiddleware(rateLimiter, log, h))
	}

	// Health check endpoints
	mux.HandleFunc("/health", corsMiddleware(healthHandler.Health))
	mux.HandleFunc("/health/readiness", corsMiddleware(healthHandler.Readiness))
	mux.HandleFunc("/health/liveness", corsMiddleware(healthHandler.Liveness))
	mux.Handle("/metrics", promhttp.Handler())

	// Promo codes endpoints
	mux.HandleFunc("/api/promo-codes", applyAPI(handlePromoCodesRoute(promoHandler)))
	mux.HandleFunc("/api/promo-codes/", applyAPI(handlePromoCodeRoute(promoHandler)))

	// Redemption endpoints: активация дополнительно ограничена своим лимитом
	mux.HandleFunc("/api/redemptions", applyAPI(handlers.RateLimitMiddleware(redeemLimiter, log, redemptionHandler.Redeem)))
	mux.HandleFunc("/api/redemptions/pending", applyAPI(redemptionHandler.Pending))

	// Rate limit status
	mux.HandleFunc("/api/rate-limit/status", applyAPI(rateLimitHandler.Status))

	return mux
}

// handlePromoCodesRoute обрабатывает коллекцию промокодов
func handlePromoCodesRoute(handler *handlers.PromoHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.ListPromoCodes(w, r)
		case http.MethodPost:
			handler.CreatePromoCode(w, r)
		default:
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// handlePromoCodeRoute обрабатывает отдельный промокод
func handlePromoCodeRoute(handler *handlers.PromoHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handler.GetPromoCode(w, r)
		case http.MethodDelete:
			handler.DeletePromoCode(w, r)
		default:
			writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// registerEventHandlers регистрирует обработчики событий Kafka.
// Сейчас события только попадают в аудит-лог.
func registerEventHandlers(consumer *kafka.Consumer, log *logger.Logger) {
	audit := func(ctx context.Context, event *models.Event) error {
		log.WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Info("Promo event received")
		return nil
	}

	consumer.RegisterHandler(models.EventTypePromoCreated, audit)
	consumer.RegisterHandler(models.EventTypePromoDeleted, audit)
	consumer.RegisterHandler(models.EventTypePromoRedeemed, audit)
}

// corsMiddleware и другие helper функции
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+handlers.UserIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	type errorResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}
