package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"lakechat/internal/headerauth"
	"lakechat/internal/server/interceptors"
)

// publicMethods skip header-trust evaluation.
var publicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
	"/grpc.health.v1.Health/List":        true,
}

// Deps holds the optional dependencies of the front-door servers.
type Deps struct {
	// HeaderAuth evaluates proxy identity headers. Nil when header auth is disabled; then no
	// middleware or interceptor is registered and no forwarded header is read.
	HeaderAuth *headerauth.Evaluator
}

// NewGRPCServer returns a gRPC server instrumented with otelgrpc, with the header-trust
// interceptors installed when deps.HeaderAuth is set, and the standard health service
// registered. The returned health server lets callers flip serving status on shutdown.
func NewGRPCServer(deps Deps) (*grpc.Server, *health.Server) {
	opts := []grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}
	if deps.HeaderAuth != nil {
		opts = append(opts,
			grpc.ChainUnaryInterceptor(interceptors.HeaderTrustUnary(deps.HeaderAuth, publicMethods)),
			grpc.ChainStreamInterceptor(interceptors.HeaderTrustStream(deps.HeaderAuth, publicMethods)),
		)
	}
	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
