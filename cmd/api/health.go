package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/middleware"
)

// serviceName is the health service name reported for the API.
const serviceName = "skillswap.api"

type pinger interface {
	Ping(ctx context.Context) error
}

// grpcOptions configures the gRPC side of the server.
type grpcOptions struct {
	CertFile   string
	KeyFile    string
	RequireTLS bool
	Limiter    *middleware.LimiterStore
	Logger     zerolog.Logger
}

// newGRPCServer builds the gRPC server that carries the health service,
// with rate limiting and request logging chained in front.
func newGRPCServer(o grpcOptions, hs *health.Server) (*grpc.Server, error) {
	var serverOpts []grpc.ServerOption

	if o.CertFile != "" && o.KeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	} else if o.RequireTLS {
		return nil, errTLSRequired
	}

	interceptors := []grpc.UnaryServerInterceptor{logging.UnaryServerInterceptor(o.Logger)}
	if o.Limiter != nil {
		limited := map[string]bool{healthpb.Health_Check_FullMethodName: true}
		interceptors = append(interceptors, middleware.RateLimitUnaryInterceptor(o.Limiter, limited))
	}
	serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(interceptors...))

	s := grpc.NewServer(serverOpts...)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s, nil
}

// watchHealth keeps hs in step with the database until ctx ends.
func watchHealth(ctx context.Context, hs *health.Server, db pinger, interval time.Duration) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		status := healthpb.HealthCheckResponse_SERVING
		if err := db.Ping(pctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			log := logging.Component("health")
			log.Warn().Err(err).Msg("database ping failed")
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(serviceName, status)
	}

	check()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			check()
		}
	}
}

// healthz answers load balancers over HTTP with the same database check.
func healthz(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
