package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"dupulse.app/internal/auth"
)

const bufSize = 1024 * 1024

type stubProvider map[string]auth.Identity

func (s stubProvider) ResolveIdentity(_ context.Context, token string) (auth.Identity, error) {
	id, ok := s[token]
	if !ok {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	return id, nil
}

type adminSet map[string]bool

func (a adminSet) IsAdmin(_ context.Context, id auth.Identity) (bool, error) {
	return a[id.ID], nil
}

type readinessFunc func(context.Context) error

func (f readinessFunc) Check(ctx context.Context) error { return f(ctx) }

func newTestGate(t *testing.T) *auth.Gate {
	t.Helper()
	gate, err := auth.NewGate(
		stubProvider{"admin-token": {ID: "u-admin"}, "user-token": {ID: "u-user"}},
		adminSet{"u-admin": true},
	)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return gate
}

func startBufGRPC(t *testing.T, srv *Server) (*grpc.ClientConn, func()) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	go func() {
		if err := srv.GRPC().Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	cleanup := func() {
		srv.Stop()
		_ = conn.Close()
		_ = listener.Close()
	}
	return conn, cleanup
}

func TestHealthIsReachableWithoutCredentials(t *testing.T) {
	srv, err := NewServer(newTestGate(t), readinessFunc(func(context.Context) error { return nil }))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if !srv.Refresh(ctx) {
		t.Fatalf("expected ready")
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status: %s", resp.GetStatus())
	}
}

func TestHealthReportsNotServing(t *testing.T) {
	srv, err := NewServer(newTestGate(t), readinessFunc(func(context.Context) error { return errors.New("boom") }))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if srv.Refresh(ctx) {
		t.Fatalf("expected not ready")
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("unexpected status: %s", resp.GetStatus())
	}
}

func callUnary(t *testing.T, ctx context.Context, method string) (auth.Identity, bool, error) {
	t.Helper()
	var (
		seen   auth.Identity
		called bool
	)
	interceptor := UnaryAdminInterceptor(newTestGate(t))
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, func(ctx context.Context, _ any) (any, error) {
		called = true
		seen, _ = auth.IdentityFromContext(ctx)
		return "ok", nil
	})
	return seen, called, err
}

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func TestUnaryInterceptorVerdicts(t *testing.T) {
	cases := []struct {
		name    string
		ctx     context.Context
		code    codes.Code
		message string
	}{
		{"missing", context.Background(), codes.Unauthenticated, auth.MessageMissingCredential},
		{"invalid", withToken("nope"), codes.Unauthenticated, auth.MessageUnauthenticated},
		{"forbidden", withToken("user-token"), codes.PermissionDenied, auth.MessageForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, called, err := callUnary(t, tc.ctx, "/dupulse.admin.v1.Admin/System")
			if called {
				t.Fatalf("handler must not run")
			}
			st, ok := status.FromError(err)
			if !ok || st.Code() != tc.code || st.Message() != tc.message {
				t.Fatalf("unexpected status: %v", err)
			}
		})
	}
}

func TestUnaryInterceptorAllowsAdmin(t *testing.T) {
	seen, called, err := callUnary(t, withToken("admin-token"), "/dupulse.admin.v1.Admin/System")
	if err != nil || !called {
		t.Fatalf("expected call to pass, err=%v", err)
	}
	if seen.ID != "u-admin" {
		t.Fatalf("identity not propagated: %+v", seen)
	}
}

func TestUnaryInterceptorExemptsHealth(t *testing.T) {
	_, called, err := callUnary(t, context.Background(), "/grpc.health.v1.Health/Check")
	if err != nil || !called {
		t.Fatalf("health must bypass the gate, err=%v", err)
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f fakeStream) Context() context.Context { return f.ctx }

func TestStreamInterceptor(t *testing.T) {
	interceptor := StreamAdminInterceptor(newTestGate(t))
	info := &grpc.StreamServerInfo{FullMethod: "/dupulse.admin.v1.Admin/Events"}

	err := interceptor(nil, fakeStream{ctx: withToken("user-token")}, info, func(any, grpc.ServerStream) error {
		t.Fatalf("handler must not run")
		return nil
	})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}

	var seen auth.Identity
	err = interceptor(nil, fakeStream{ctx: withToken("admin-token")}, info, func(_ any, ss grpc.ServerStream) error {
		seen, _ = auth.IdentityFromContext(ss.Context())
		return nil
	})
	if err != nil || seen.ID != "u-admin" {
		t.Fatalf("expected admin stream, err=%v identity=%+v", err, seen)
	}
}

func TestNewServerRequiresGate(t *testing.T) {
	if _, err := NewServer(nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}
