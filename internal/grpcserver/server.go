// Package grpcserver exposes the match service health over gRPC.
//
// Two services are reported through the standard grpc.health.v1 protocol:
// the overall server ("") is SERVING while the process runs, and
// ServiceMatch is SERVING only while the vectorizer is fitted and no refit
// is pending. Orchestrators use the latter to hold traffic until a model
// exists.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// ServiceMatch is the health service name tracking matching readiness.
const ServiceMatch = "jobmate.match.v1.MatchService"

// VectorizerState is what the health report is derived from.
type VectorizerState interface {
	Fitted() bool
	NeedsRefit() bool
}

// Server wraps a grpc.Server carrying the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	vec    VectorizerState
	log    *zap.Logger
}

// NewServer constructs a Server reporting on vec.
func NewServer(vec VectorizerState, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		grpc:   grpc.NewServer(grpc.ChainUnaryInterceptor(recoverInterceptor(log), logInterceptor(log))),
		health: health.NewServer(),
		vec:    vec,
		log:    log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.Sync()
	return s
}

// Sync publishes the current vectorizer state.
func (s *Server) Sync() {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.vec.Fitted() && !s.vec.NeedsRefit() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceMatch, st)
}

// Serve accepts connections on lis and refreshes the health report every
// interval until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	go s.watch(ctx, interval)

	s.log.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

func (s *Server) watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sync()
		}
	}
}

// GracefulStop marks every service NOT_SERVING and drains connections.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// ─── Interceptors ────────────────────────────────────────────────────────────

func logInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("grpc call",
			zap.String("method", info.FullMethod),
			zap.Duration("took", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		)
		return resp, err
	}
}

func recoverInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("grpc handler panic", zap.String("method", info.FullMethod), zap.Any("panic", r))
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
