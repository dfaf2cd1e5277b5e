package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/match-service/internal/api"
	"jobmate/match-service/internal/grpcserver"
	"jobmate/match-service/internal/scheduler"
	"jobmate/match-service/internal/scraper"
)

var fitIfUnfitted bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC servers, cron jobs and the Kafka consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&fitIfUnfitted, "fit-if-unfitted", false, "fit the vectorizer at startup when no state could be restored")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	if fitIfUnfitted && !a.vec.Fitted() {
		log.Info("no vectorizer state, fitting on the current corpus")
		if err := a.svc.Refit(ctx); err != nil {
			log.Warn("startup fit failed", zap.Error(err))
		}
	}

	// ── Scheduler ───────────────────────────────────────────────────────────
	sched := scheduler.New(a.svc, scheduler.Specs{
		Scrape:    scheduler.EveryHours(cfg.Schedule.ScrapeIntervalHours),
		Match:     scheduler.EveryHours(cfg.Schedule.MatchIntervalHours),
		Retention: cfg.Schedule.RetentionSpec,
	}, log.Named("scheduler"))
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// ── Kafka ───────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := scraper.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID,
			a.ingester, log.Named("kafka"))
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Info("KAFKA_BROKERS not set, jobs topic consumer disabled")
	}

	// ── gRPC server ─────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcSrv := grpcserver.NewServer(a.vec, log.Named("grpc"))
	go func() {
		if err := grpcSrv.Serve(ctx, lis, 15*time.Second); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// ── HTTP server ─────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	h := api.NewHandler(a.matches, a.svc, a.tracker, a.vec, version, log.Named("http"))
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(h, api.DefaultIdentity, log.Named("http")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("version", version), zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("HTTP server error", zap.Error(err))
	}

	log.Info("shutting down…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown error", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	log.Info("stopped.")
	return nil
}
