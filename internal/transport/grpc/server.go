// transport/grpc поднимает служебный gRPC-листенер: grpc.health.v1 со
// статусом, завязанным на доступность хранилища, и Prometheus-метрики
// вызовов. Прикладных RPC здесь нет, JSON API живёт в transport/http.
package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pribylovaa/emenu-auth/internal/interceptors"
)

// ServiceName — имя сервиса в health-ответах наряду с пустым "".
const ServiceName = "emenu.auth.v1.Auth"

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options — параметры gRPC-листенера.
type Options struct {
	Logger     *slog.Logger
	Timeout    time.Duration
	Reflection bool
}

// Server — gRPC-сервер с health-сервисом.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	pinger Pinger
	log    *slog.Logger
}

// New собирает сервер с цепочкой интерсепторов (recover, logging, timeout,
// prometheus). Статус health изначально NOT_SERVING.
func New(pinger Pinger, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.Recover(opts.Logger),
			interceptors.UnaryLogging(opts.Logger),
			interceptors.WithTimeout(opts.Timeout),
			grpc_prometheus.UnaryServerInterceptor,
		),
		grpc.ChainStreamInterceptor(
			interceptors.StreamRecover(opts.Logger),
			grpc_prometheus.StreamServerInterceptor,
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	if opts.Reflection {
		reflection.Register(srv)
	}

	grpc_prometheus.Register(srv)

	s := &Server{srv: srv, health: hs, pinger: pinger, log: opts.Logger}
	s.SetServing(false)

	return s
}

// Serve блокируется до остановки сервера.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc_listen_start", slog.String("addr", lis.Addr().String()))
	return s.srv.Serve(lis)
}

// SetServing переключает статус health для "" и ServiceName.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Probe пингует хранилище и выставляет статус по результату.
func (s *Server) Probe(ctx context.Context) bool {
	if err := s.pinger.Ping(ctx); err != nil {
		s.log.Warn("health_probe_failed", slog.String("err", err.Error()))
		s.SetServing(false)
		return false
	}

	s.SetServing(true)
	return true
}

// RunProbes вызывает Probe каждые interval до отмены ctx.
func (s *Server) RunProbes(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, interval)
			s.Probe(pctx)
			cancel()
		}
	}
}

// Stop снимает готовность и останавливает сервер; по истечении ctx
// незавершённые вызовы обрываются.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("grpc_stopped")
	case <-ctx.Done():
		s.log.Warn("grpc_force_stop")
		s.srv.Stop()
	}
}
