package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"market-gateway/internal/events"
)

func TestOverallFollowsEveryService(t *testing.T) {
	s := New([]string{"quote", "trade"}, nil)
	ctx := context.Background()

	st, err := s.Check(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, st)

	s.SetReady("quote", true)
	st, _ = s.Check(ctx, "quote")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)
	st, _ = s.Check(ctx, "")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, st)

	s.SetReady("trade", true)
	st, _ = s.Check(ctx, "")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)

	// unknown services are ignored
	s.SetReady("other", false)
	st, _ = s.Check(ctx, "")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)
}

func TestWatchFollowsBus(t *testing.T) {
	s := New([]string{"quote"}, nil)
	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Watch(ctx, bus)

	require.Eventually(t, func() bool {
		bus.Publish(events.EventConnectionState, events.StateChange{Context: "quote", State: "ready", At: time.Now()})
		st, _ := s.Check(ctx, "quote")
		return st == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	bus.Publish(events.EventConnectionState, events.StateChange{Context: "quote", State: "reconnecting", At: time.Now()})
	require.Eventually(t, func() bool {
		st, _ := s.Check(ctx, "")
		return st == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)
}

func TestServeOverGRPC(t *testing.T) {
	s := New([]string{"quote"}, nil)
	s.SetReady("quote", true)
	lis := bufconn.Listen(1 << 16)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "quote"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
