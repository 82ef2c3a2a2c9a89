package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"github.com/spf13/cobra"

	"meeting-booking-api/internal/booking"
	"meeting-booking-api/internal/config"
	"meeting-booking-api/internal/events"
	"meeting-booking-api/internal/grpcapi"
	"meeting-booking-api/internal/grpcweb"
	"meeting-booking-api/internal/handler"
	"meeting-booking-api/internal/logger"
	"meeting-booking-api/internal/middleware"
	"meeting-booking-api/internal/store"
	"meeting-booking-api/internal/validator"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	mode, err := booking.ParseConflictMode(cfg.ConflictMode)
	if err != nil {
		return err
	}

	// database
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	log.Info("store ready", "driver", cfg.DBDriver)

	publisher, err := newPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	idem, err := newIdempotencyStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer idem.Stop()

	svc := booking.NewService(st, publisher, mode, log)
	v := validator.NewMeetingValidator(log)

	// separate buckets so a bridged call is not charged twice
	httpLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer httpLimiter.Stop()
	grpcLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer grpcLimiter.Stop()

	// grpc server
	grpcSrv := grpcapi.NewServer(
		middleware.UnaryLogging(log),
		middleware.UnaryRateLimit(grpcLimiter),
	)
	grpcapi.RegisterMeetingServiceServer(grpcSrv, grpcapi.NewHandler(svc, v, log))

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// grpc-web bridge -> forwards browser requests to grpc on localhost
	bridge, err := grpcweb.New("localhost:"+cfg.GRPCPort, log)
	if err != nil {
		return err
	}
	defer bridge.Close()

	router := httprouter.New()
	handler.New(svc, v, st, log).RegisterRoutes(router)
	bridge.RegisterRoutes(router)

	httpSrv := &http.Server{
		Addr: ":" + cfg.WebPort,
		Handler: chain(router,
			middleware.RequestLogging(log),
			middleware.Recovery(log),
			middleware.RateLimit(httpLimiter, log),
			middleware.RequestTimeout(cfg.RequestTimeout),
			middleware.Idempotency(idem, log),
		),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("grpc listening", "port", cfg.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		log.Info("http listening", "port", cfg.WebPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	// graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if shutdownErr := httpSrv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn("http shutdown", "error", shutdownErr)
	}
	grpcSrv.GracefulStop()

	return err
}

// chain wraps h so the first middleware is outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func newPublisher(cfg *config.Config, log *logger.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		log.Info("AMQP_URL not set, booking events disabled")
		return events.NewNoopPublisher(log), nil
	}
	rabbit, err := events.NewRabbitMQPublisher(cfg.AMQPURL, log)
	if err != nil {
		return nil, err
	}
	return events.NewBreakerPublisher(rabbit, events.DefaultBreakerConfig(), log), nil
}

func newIdempotencyStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (middleware.IdempotencyStore, error) {
	if cfg.RedisURL == "" {
		return middleware.NewInMemoryIdempotencyStore(cfg.IdempotencyTTL), nil
	}
	s, err := middleware.OpenRedisIdempotencyStore(ctx, cfg.RedisURL, cfg.IdempotencyTTL, log)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Info("idempotency keys stored in redis")
	return s, nil
}
