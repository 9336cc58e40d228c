package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/steward/internal/history"
)

// startClickHouse starts a ClickHouse container and returns the native
// protocol address. It skips the test when Docker is unavailable.
func startClickHouse(t *testing.T) (addr string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start ClickHouse container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get container host: %v", err)
		return "", nil
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}
	return host + ":" + port.Port(), terminate
}

func TestSinkRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	addr, terminate := startClickHouse(t)
	defer terminate()

	sink, err := New(addr, "default", "default", "", "service_history")
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	ctx := context.Background()
	code := 137
	entries := []history.Entry{
		{OccurredAt: time.Now().UTC(), Event: "ServiceStarted", Service: "mcp-search", PID: 4242, Port: 5101},
		{OccurredAt: time.Now().UTC(), Event: "ServiceStopped", Service: "mcp-search", ExitCode: &code},
		{OccurredAt: time.Now().UTC(), Event: "ServiceStarted", Service: "agent-core", PID: 4300, Port: 9001},
	}
	for _, e := range entries {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Event, err)
		}
	}

	var count uint64
	row := sink.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM service_history WHERE service = ?", "mcp-search")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows for mcp-search, got %d", count)
	}

	var exit *int32
	row = sink.conn.QueryRow(ctx,
		"SELECT exit_code FROM service_history WHERE event = ?", "ServiceStopped")
	if err := row.Scan(&exit); err != nil {
		t.Fatalf("select exit code: %v", err)
	}
	if exit == nil || *exit != 137 {
		t.Fatalf("expected exit code 137, got %v", exit)
	}
}
