// Package observability provides gRPC interceptors that record call metrics
// and log each call with its peer address.
package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"exam-proctor-service/internal/observability/metrics"
)

// rpcObserver records one finished control-plane call.
type rpcObserver struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func (o rpcObserver) done(ctx context.Context, method, kind string, start time.Time, err error) {
	duration := time.Since(start)
	code := status.Code(err)
	o.metrics.RecordRPC(method, code.String(), duration.Seconds())

	ev := o.logger.Debug()
	switch {
	case code == codes.Internal || code == codes.Unknown:
		ev = o.logger.Error().Err(err)
	case err != nil && code != codes.Canceled:
		ev = o.logger.Warn().Err(err)
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		ev = ev.Str("peer", p.Addr.String())
	}
	ev.Str("method", method).
		Str("kind", kind).
		Str("code", code.String()).
		Dur("duration", duration).
		Msg("gRPC call finished")
}

// UnaryServerInterceptor records RPC metrics and logs each unary call.
// Failed calls are logged at warn or error; health probes at debug.
func UnaryServerInterceptor(m *metrics.Metrics, logger zerolog.Logger) grpc.UnaryServerInterceptor {
	o := rpcObserver{metrics: m, logger: logger}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		o.done(ctx, info.FullMethod, "unary", start, err)
		return resp, err
	}
}

// StreamServerInterceptor records RPC metrics for streams. Health Watch
// streams stay open until the client leaves, so only their end is logged.
func StreamServerInterceptor(m *metrics.Metrics, logger zerolog.Logger) grpc.StreamServerInterceptor {
	o := rpcObserver{metrics: m, logger: logger}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		kind := "stream"
		if strings.HasSuffix(info.FullMethod, "/Watch") {
			kind = "watch"
		}
		o.done(ss.Context(), info.FullMethod, kind, start, err)
		return err
	}
}
