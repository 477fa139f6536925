package observability

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"exam-proctor-service/internal/observability/metrics"
)

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeStream) Context() context.Context { return s.ctx }

func TestUnaryServerInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	m := metrics.DefaultMetrics
	intercept := UnaryServerInterceptor(m, logger)

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 4242}})
	method := "/grpc.health.v1.Health/Check"
	before := testutil.ToFloat64(m.RPCTotal.WithLabelValues(method, codes.OK.String()))

	resp, err := intercept(ctx, "req", &grpc.UnaryServerInfo{FullMethod: method},
		func(ctx context.Context, req any) (any, error) { return "resp", nil })
	if err != nil || resp != "resp" {
		t.Fatalf("unexpected result %v, %v", resp, err)
	}
	if got := testutil.ToFloat64(m.RPCTotal.WithLabelValues(method, codes.OK.String())); got != before+1 {
		t.Errorf("expected RPC counter to increase by 1, got %v -> %v", before, got)
	}
	if !strings.Contains(buf.String(), `"peer":"10.0.0.7:4242"`) {
		t.Errorf("expected peer in log, got %s", buf.String())
	}

	buf.Reset()
	_, err = intercept(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: method},
		func(ctx context.Context, req any) (any, error) {
			return nil, status.Error(codes.Unavailable, "draining")
		})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable to pass through, got %v", err)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), `"code":"Unavailable"`) {
		t.Errorf("expected warn log with code, got %s", buf.String())
	}
}

func TestStreamServerInterceptor_Watch(t *testing.T) {
	var buf bytes.Buffer
	intercept := StreamServerInterceptor(metrics.DefaultMetrics, zerolog.New(&buf))

	err := intercept(nil, fakeStream{ctx: context.Background()},
		&grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true},
		func(srv any, ss grpc.ServerStream) error { return status.Error(codes.Canceled, "client left") })
	if status.Code(err) != codes.Canceled {
		t.Fatalf("expected Canceled, got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"kind":"watch"`) || !strings.Contains(out, `"level":"debug"`) {
		t.Errorf("expected debug watch log, got %s", out)
	}
}
