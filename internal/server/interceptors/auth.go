// Package interceptors holds gRPC server interceptors.
package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"lakechat/internal/headerauth"
)

// HeaderTrustUnary returns a unary server interceptor that evaluates proxy-forwarded
// identity headers from gRPC metadata and stores the Identity in the context.
// publicMethods is the set of full method names that skip evaluation (e.g. health checks).
func HeaderTrustUnary(ev *headerauth.Evaluator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		ctx, err := authenticate(ctx, ev)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// HeaderTrustStream is the streaming counterpart of HeaderTrustUnary.
func HeaderTrustStream(ev *headerauth.Evaluator, publicMethods map[string]bool) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if publicMethods[info.FullMethod] {
			return handler(srv, ss)
		}
		ctx, err := authenticate(ss.Context(), ev)
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, ev *headerauth.Evaluator) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	id, err := ev.Evaluate(ctx, headerauth.FromMetadata(md))
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return headerauth.WithIdentity(ctx, id), nil
}

// identityStream overrides Context so handlers see the authenticated identity.
type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }
