package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yuto-kimura/salonbook/libs/config"
	"github.com/yuto-kimura/salonbook/libs/db"
	"github.com/yuto-kimura/salonbook/libs/httpx"
	otelx "github.com/yuto-kimura/salonbook/libs/otel"
	"github.com/yuto-kimura/salonbook/libs/runtime"
	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/channel"
	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/delivery"
	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/handlers"
	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/outbox"
)

func main() {
	service := config.String("SERVICE_NAME", "notify-worker")
	port, err := config.Port("PORT", "8085")
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

	senders := map[string]channel.Sender{
		"email": channel.NewEmailSender(
			config.String("SMTP_HOST", "mailpit"),
			config.String("SMTP_PORT", "1025"),
			config.String("SMTP_FROM", "no-reply@salonbook.local"),
		),
		"slack": channel.NewSlackSender(config.String("SLACK_WEBHOOK_URL", "")),
		"line": channel.NewLineSender(
			config.String("LINE_PUSH_URL", ""),
			config.String("LINE_CHANNEL_TOKEN", ""),
		),
		"log": channel.NewLogSender(logger),
	}
	send := func(ctx context.Context, d delivery.Delivery) error {
		sender, ok := senders[d.Channel]
		if !ok {
			return fmt.Errorf("unsupported channel: %s", d.Channel)
		}
		return sender.Send(ctx, d.Payload)
	}

	store := delivery.NewPGStore(pool, delivery.NewRepository(), outbox.NewRepository(), logger)
	worker := delivery.NewWorker(store, logger, send, delivery.WorkerConfig{
		Interval:       time.Duration(config.Int("POLL_INTERVAL_SECONDS", 2)) * time.Second,
		BatchSize:      config.Int("BATCH_SIZE", 50),
		BaseBackoff:    config.Minutes("BACKOFF_BASE_MINUTES", 30*time.Second),
		MaxBackoff:     config.Minutes("BACKOFF_MAX_MINUTES", 30*time.Minute),
		AttemptTimeout: time.Duration(config.Int("ATTEMPT_TIMEOUT_SECONDS", 10)) * time.Second,
		StaleAfter:     config.Minutes("STALE_CLAIM_MINUTES", 5*time.Minute),
	})
	go worker.Run(ctx)

	deliveryHandler := handlers.NewDeliveryHandler(store, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	mux.HandleFunc("/api/v1/deliveries/cancel", deliveryHandler.Cancel)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notify")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
