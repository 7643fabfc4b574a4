package backend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cwrk-planet/spaces/pkg/errs"
)

// WaitHealthy polls the grpc health service at target until it reports
// SERVING or ctx is done.
func WaitHealthy(ctx context.Context, target, service string, every time.Duration) error {
	if every <= 0 {
		every = 500 * time.Millisecond
	}
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return fmt.Errorf("%w: health client: %v", errs.ErrUpstream, err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		callCtx, cancel := context.WithTimeout(ctx, every)
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return nil
		}
		slog.Debug("backend not healthy yet", "target", target, "status", resp.GetStatus().String(), "err", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: backend %s not healthy: %v", errs.ErrUnavailable, target, ctx.Err())
		case <-ticker.C:
		}
	}
}
