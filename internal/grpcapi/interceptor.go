package grpcapi

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"dupulse.app/internal/auth"
)

// healthPrefix marks methods that stay reachable without credentials.
const healthPrefix = "/grpc.health.v1.Health/"

func exempt(method string) bool {
	return strings.HasPrefix(method, healthPrefix)
}

// authorize runs the gate against the call's authorization metadata.
func authorize(ctx context.Context, gate *auth.Gate) (context.Context, error) {
	h := http.Header{}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, v := range md.Get("authorization") {
			h.Add(auth.AuthorizationHeader, v)
		}
	}
	v := gate.Check(ctx, h)
	if !v.Allowed() {
		return nil, verdictStatus(v)
	}
	return auth.ContextWithIdentity(ctx, *v.Identity), nil
}

// verdictStatus maps a denied verdict to the gRPC status carrying the same
// message the HTTP surface uses.
func verdictStatus(v auth.Verdict) error {
	msg := auth.Respond(v).Body.Message
	switch v.Reason {
	case auth.ReasonMissingCredential, auth.ReasonUnauthenticated:
		return status.Error(codes.Unauthenticated, msg)
	default:
		return status.Error(codes.PermissionDenied, msg)
	}
}

// UnaryAdminInterceptor requires an admin credential on every non-health call.
func UnaryAdminInterceptor(gate *auth.Gate) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if exempt(info.FullMethod) {
			return handler(ctx, req)
		}
		ctx, err := authorize(ctx, gate)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

type authorizedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authorizedStream) Context() context.Context { return s.ctx }

// StreamAdminInterceptor is the streaming counterpart of UnaryAdminInterceptor.
func StreamAdminInterceptor(gate *auth.Gate) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if exempt(info.FullMethod) {
			return handler(srv, ss)
		}
		ctx, err := authorize(ss.Context(), gate)
		if err != nil {
			return err
		}
		return handler(srv, &authorizedStream{ServerStream: ss, ctx: ctx})
	}
}
