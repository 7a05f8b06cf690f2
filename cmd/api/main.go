package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc/health"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/auth"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/config"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/data"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/db"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/middleware"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/presence"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/storage"
)

var errTLSRequired = errors.New("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured")

func main() {
	configFile := pflag.StringP("config", "c", "", "path to server.yaml")
	pflag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadServer(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "skillswap-api"})
	log := logging.L()

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Server) error {
	log := logging.L()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	dbClient, err := db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("connect to DB: %w", err)
	}
	defer func() {
		_ = dbClient.Close(context.Background())
	}()
	if err := dbClient.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	jwtMgr, err := newJWTManager(cfg.JWT)
	if err != nil {
		return err
	}

	registry, err := newPresence(cfg)
	if err != nil {
		return err
	}
	defer registry.Close()

	files, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	// small burst allows a couple of quick retries
	authLimiter := middleware.NewLimiterStore(cfg.RateLimit.RPM, cfg.RateLimit.Burst, time.Minute)
	defer authLimiter.Stop()
	eventLimiter := middleware.NewLimiterStore(cfg.RateLimit.EventsPerMinute, cfg.RateLimit.EventsPerMinute/6, time.Minute)
	defer eventLimiter.Stop()

	srv := newServer(deps{
		Users:         data.NewUsersStore(dbClient.Users()),
		Messages:      data.NewMessagesStore(dbClient.Messages()),
		Notifications: data.NewNotificationsStore(dbClient.Notifications()),
		Exchanges:     data.NewExchangesStore(dbClient.Exchanges()),
		DB:            dbClient,
		Auth:          jwtMgr,
		Presence:      registry,
		Files:         files,
		AuthLimiter:   authLimiter,
		EventLimiter:  eventLimiter,
		WebSocket: wsOptions{
			PingInterval:   cfg.WebSocket.PingInterval,
			PongWait:       cfg.WebSocket.PongWait,
			WriteWait:      cfg.WebSocket.WriteWait,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
			SendBuffer:     cfg.WebSocket.SendBuffer,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		},
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		RequestTimeout: cfg.HTTP.WriteTimeout,
	})
	go srv.runPresence(ctx, cfg.Presence.Interval)

	hs := health.NewServer()
	go watchHealth(ctx, hs, dbClient, 15*time.Second)
	grpcServer, err := newGRPCServer(grpcOptions{
		CertFile:   cfg.TLS.Cert,
		KeyFile:    cfg.TLS.Key,
		RequireTLS: cfg.TLS.Require,
		Limiter:    authLimiter,
		Logger:     logging.Component("grpc"),
	}, hs)
	if err != nil {
		return err
	}

	// Listen and serve. Write timeouts do not apply to hijacked websocket
	// connections.
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}
	lis, err := net.Listen("tcp", cfg.GRPC.Addr())
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errc := make(chan error, 2)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		var err error
		if cfg.TLS.Cert != "" && cfg.TLS.Key != "" {
			err = httpServer.ListenAndServeTLS(cfg.TLS.Cert, cfg.TLS.Key)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errc <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Error().Err(err).Msg("server failed")
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	grpcServer.GracefulStop()
	return nil
}

// newJWTManager uses the rotating key list when JWT_KEYS is set, otherwise
// the single JWT_SECRET.
func newJWTManager(c config.JWTConfig) (*auth.JWTManager, error) {
	if c.Keys == "" {
		return auth.NewJWTManager(c.Secret, c.TTL), nil
	}
	keys, err := auth.ParseKeys(c.Keys)
	if err != nil {
		return nil, err
	}
	return auth.NewJWTManagerFromKeys(keys, c.ActiveKID, c.TTL), nil
}

func newPresence(cfg *config.Server) (presence.Registry, error) {
	if cfg.Presence.Backend != "redis" {
		return presence.NewMemory(), nil
	}
	r, err := presence.NewRedis(presence.RedisConfig{
		Address:           cfg.Redis.Address,
		Password:          cfg.Redis.Password,
		DB:                cfg.Redis.DB,
		Prefix:            cfg.Redis.Prefix,
		InstanceID:        cfg.Redis.InstanceID,
		KeyTTL:            cfg.Redis.KeyTTL,
		HeartbeatInterval: cfg.Redis.HeartbeatInterval,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newStorage(ctx context.Context, c config.StorageConfig) (storage.Store, error) {
	if c.Backend != "s3" {
		local, err := storage.NewLocal(c.LocalPath)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
	bucket, err := storage.NewS3(ctx, storage.S3Config{
		Endpoint:        c.S3.Endpoint,
		Region:          c.S3.Region,
		Bucket:          c.S3.Bucket,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		UsePathStyle:    c.S3.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return bucket, nil
}
