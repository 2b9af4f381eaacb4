package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yuto-kimura/salonbook/libs/config"
	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/libs/httpx"
	"github.com/yuto-kimura/salonbook/libs/kafkax"
	otelx "github.com/yuto-kimura/salonbook/libs/otel"
	"github.com/yuto-kimura/salonbook/libs/runtime"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/availability"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/calendar"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/deliveries"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/handlers"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/outbox"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/storage"
	"github.com/yuto-kimura/salonbook/services/booking-service/internal/sweep"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: config.String("REDIS_ADDR", "localhost:6379"),
	})
	defer rdb.Close()

	shiftRepo := storage.NewShiftRepository(pool)
	reservationRepo := storage.NewReservationRepository(pool)
	calc := availability.NewCalculator(storage.NewAvailabilityStore(), logger)
	cacheSync := calendar.NewSync(pool, calc, rdb, logger,
		config.Minutes("CALENDAR_CACHE_TTL_MINUTES", 24*time.Hour))
	deliveryRepo := deliveries.NewRepository(config.Int("NOTIFY_MAX_ATTEMPTS", 5))
	channels := deliveries.ParseChannels(config.String("NOTIFY_CHANNELS", "email,log"))

	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)
	go cacheSync.RunRetry(ctx, time.Duration(config.Int("CALENDAR_RETRY_SECONDS", 30))*time.Second)

	expirer := sweep.NewExpirer(reservationRepo, deliveryRepo, outboxRepo, cacheSync, logger,
		channels, config.Minutes("EXPIRY_GRACE_MINUTES", 15*time.Minute))
	go expirer.Run(ctx, config.Minutes("EXPIRY_SWEEP_MINUTES", time.Minute))

	shiftHandler := handlers.NewShiftHandler(shiftRepo, outboxRepo, cacheSync, logger)
	reservationHandler := handlers.NewReservationHandler(
		reservationRepo, calc, deliveryRepo, outboxRepo, cacheSync, logger, channels)
	calendarHandler := handlers.NewCalendarHandler(pool, calc, cacheSync, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/shifts", shiftHandler.Create)
	mux.HandleFunc("/api/v1/shifts/update", shiftHandler.Update)
	mux.HandleFunc("/api/v1/shifts/delete", shiftHandler.Delete)
	mux.HandleFunc("/api/v1/reservations", dispatch(reservationHandler.List, reservationHandler.Create))
	mux.HandleFunc("/api/v1/reservations/get", reservationHandler.Get)
	mux.HandleFunc("/api/v1/reservations/transition", reservationHandler.Transition)
	mux.HandleFunc("/api/v1/public/calendar", calendarHandler.Days)

	limiter := httpx.NewRedisRateLimiter(rdb,
		config.Int("RATE_LIMIT", 120), time.Minute, service)
	cors := httpx.WithCORS(httpx.CORSPolicy{
		AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Idempotency-Key"},
		MaxAge:         10 * time.Minute,
	})
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		cors,
		limiter.Middleware(logger, true),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 30))*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func dispatch(get, post http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			get(w, r)
		case http.MethodPost:
			post(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
