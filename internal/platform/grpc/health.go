// Package grpc holds gRPC helpers shared by layoutcrawl commands.
package grpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	initialHealthBackoff = 100 * time.Millisecond
	maxHealthBackoff     = time.Second
	healthCallTimeout    = time.Second
)

// Probe connects to addr and waits until service reports SERVING.
func Probe(ctx context.Context, addr, service string, logf func(string, ...any)) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("health address is required")
	}
	conn, err := gogrpc.NewClient(addr,
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	return WaitForHealth(ctx, conn, service, logf)
}

// WaitForHealth polls the health service on conn with capped exponential
// backoff until service is SERVING or ctx ends.
func WaitForHealth(ctx context.Context, conn gogrpc.ClientConnInterface, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	client := grpc_health_v1.NewHealthClient(conn)
	backoff := initialHealthBackoff
	for {
		status, err := checkOnce(ctx, client, service)
		if err == nil && status == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		if err != nil {
			logf("waiting for %q health: %v", service, err)
		} else {
			logf("waiting for %q health: status %s", service, status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %q health: %w", service, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxHealthBackoff)
	}
}

func checkOnce(ctx context.Context, client grpc_health_v1.HealthClient, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, healthCallTimeout)
	defer cancel()
	response, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return response.GetStatus(), nil
}
