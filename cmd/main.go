// cmd/main.go is the application entry point.
// It wires together all layers, starts the lifecycle scheduler and the HTTP
// server, and handles graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/clock"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/config"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/database"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/handler"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/logging"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/notify"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/repository"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/scheduler"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		base := logging.Base()
		base.Fatal().Err(err).Msg("load config")
	}
	logging.Configure(logging.Config{Level: cfg.LogLevel})
	log := logging.Component("main")

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := repository.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}
	log.Info().Msg("connected to postgres")

	// Wire up layers.
	eventRepo := repository.NewEventRepository(pool)
	regRepo := repository.NewRegistrationRepository(pool)
	teamRepo := repository.NewTeamRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	refundRepo := repository.NewRefundRepository(pool)

	clk := clock.System()
	notifier := notify.LogNotifier{}
	eventSvc := service.NewEventService(eventRepo, regRepo, notifier, clk)
	regSvc := service.NewRegistrationService(eventRepo, regRepo, teamRepo, notifier, clk)
	paySvc := service.NewPaymentService(eventRepo, regRepo, teamRepo, paymentRepo, refundRepo,
		service.NopGateway{}, regSvc, notifier, clk, cfg.PaymentWindow)

	sched := scheduler.New(cfg.SweepInterval, scheduler.LifecycleSteps(eventSvc, regSvc, paySvc))
	lifecycleHandler := handler.NewLifecycleHandler(eventSvc, regSvc, paySvc, sched)

	// Build the router.
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	lifecycleHandler.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sched.Start(ctx)
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}
