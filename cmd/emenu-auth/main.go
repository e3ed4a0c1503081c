package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/pribylovaa/emenu-auth/internal/cache"
	"github.com/pribylovaa/emenu-auth/internal/config"
	"github.com/pribylovaa/emenu-auth/internal/directory"
	"github.com/pribylovaa/emenu-auth/internal/metrics"
	"github.com/pribylovaa/emenu-auth/internal/service"
	"github.com/pribylovaa/emenu-auth/internal/storage"
	"github.com/pribylovaa/emenu-auth/internal/storage/memory"
	"github.com/pribylovaa/emenu-auth/internal/storage/postgres"
	"github.com/pribylovaa/emenu-auth/internal/token"
	"github.com/pribylovaa/emenu-auth/internal/tokenstore"
	grpctransport "github.com/pribylovaa/emenu-auth/internal/transport/grpc"
	httptransport "github.com/pribylovaa/emenu-auth/internal/transport/http"
	"github.com/pribylovaa/emenu-auth/migrations"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const (
	healthProbeInterval = 15 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	var configPath, seedUser string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.StringVar(&seedUser, "seed-user", "", "login:password to provision at startup (local development)")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env, "db_driver", cfg.DB.Driver)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Хранилище c таймаутом на подключение и миграции.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 30*time.Second)
	str, err := openStorage(dbCtx, cfg.DB)
	dbCancel()
	if err != nil {
		log.Error("storage_open_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer str.Close()
	log.Info("storage_opened")

	// TokenStore и опциональный Redis-кэш.
	store := tokenstore.New(str, cfg.Auth.TokenHashKey)
	if cfg.Redis.RedisURL != "" {
		tc, err := cache.NewRedisCache(rootCtx, cfg.Redis.RedisURL, cfg.Redis.Prefix)
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer tc.Close()

		store.SetCache(tc)
		log.Info("redis_cache_enabled", slog.String("prefix", cfg.Redis.Prefix))
	}

	dir := directory.New(str)
	if seedUser != "" {
		if err := seed(rootCtx, dir, seedUser); err != nil {
			log.Error("seed_user_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}

	// Сервис.
	m := metrics.New(prometheus.DefaultRegisterer)
	srvc := service.New(token.NewCodec(cfg.Auth.JWTSecret), store, dir, cfg.Auth)
	srvc.SetMetrics(m)
	log.Info("service_initialized", slog.Bool("jwt_only", cfg.Auth.JWTOnly))

	var ready int32 // 0 — not ready; 1 — ready

	// Публичный JSON API.
	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: httptransport.NewRouter(srvc, httptransport.Options{
			Logger:  log,
			Timeout: cfg.Timeouts.Service,
			Metrics: m,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Служебный HTTP.
	opsSrv := &http.Server{
		Addr:              cfg.Ops.Addr(),
		Handler:           opsMux(str, &ready),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	grpcSrv := grpctransport.New(str, grpctransport.Options{
		Logger:     log,
		Timeout:    cfg.Timeouts.Service,
		Reflection: cfg.Env == envLocal || cfg.Env == envDev,
	})

	grpcAddr := cfg.GRPC.Addr()
	listener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Error("grpc_listen_failed",
			slog.String("addr", grpcAddr),
			slog.String("err", err.Error()),
		)
		os.Exit(1)
	}

	serveErrCh := make(chan error, 3)
	for _, s := range []*http.Server{apiSrv, opsSrv} {
		go func(s *http.Server) {
			log.Info("http_listen_start", slog.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErrCh <- err
			}
		}(s)
	}
	go func() {
		if err := grpcSrv.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErrCh <- err
		}
	}()

	// Сервис готов: health -> SERVING и readiness=1.
	grpcSrv.Probe(rootCtx)
	go grpcSrv.RunProbes(rootCtx, healthProbeInterval)
	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		log.Error("serve_failed", slog.String("err", err.Error()))
	}

	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_failed", slog.String("err", err.Error()))
	}
	grpcSrv.Stop(shutdownCtx)
	_ = opsSrv.Shutdown(shutdownCtx)

	log.Info("service_stopped")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// openStorage открывает хранилище по db.driver; для postgres при
// auto_migrate сначала применяются встроенные миграции.
func openStorage(ctx context.Context, cfg config.DBConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	default:
		if cfg.AutoMigrate {
			if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}

		return postgres.New(ctx, cfg.DatabaseURL)
	}
}

// opsMux — /livez, /healthz (ready + ping хранилища) и /metrics.
func opsMux(pinger grpctransport.Pinger, ready *int32) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// seed создаёт пользователя из "login:password", если его ещё нет.
func seed(ctx context.Context, dir *directory.Directory, pair string) error {
	login, password, ok := strings.Cut(pair, ":")
	if !ok {
		return errors.New("seed-user must be login:password")
	}

	if _, err := dir.Register(ctx, login, password); err != nil && !errors.Is(err, directory.ErrLoginTaken) {
		return err
	}

	return nil
}
