package handlers_test

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Eigensu/SM-Visitor/internal/domain"
	"github.com/Eigensu/SM-Visitor/internal/sse"
)

func openStream(t *testing.T, stack *testStack, authz string) (*http.Response, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stack.server.URL+"/v1/events/stream", nil)
	if err != nil {
		cancel()
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", authz)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("open stream: %v", err)
	}
	return resp, cancel
}

// nextEventLine reads stream lines until the next "event:" line, skipping
// heartbeat comments and blank separators.
func nextEventLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()

	for i := 0; i < 100; i++ {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "event:") {
			return line
		}
	}
	t.Fatal("no event line within 100 stream lines")
	return ""
}

func TestEventStream_RequiresAuth(t *testing.T) {
	stack := setupTestServer(t, 50*time.Millisecond)

	req, _ := http.NewRequest(http.MethodGet, stack.server.URL+"/v1/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestEventStream_DeliversAndHeartbeats(t *testing.T) {
	stack := setupTestServer(t, 50*time.Millisecond)
	owner := bearer(t, "owner-1", domain.RoleOwner, "A-101")

	resp, cancel := openStream(t, stack, owner)
	defer cancel()
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)

	// The subscription registers before the handler starts writing, but
	// give the server a moment to get there.
	deadline := time.Now().Add(2 * time.Second)
	for stack.hub.Connections("owner-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never registered with the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Heartbeat comments flow even with no events.
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read heartbeat: %v", err)
	}
	if !strings.HasPrefix(line, ": keep-alive") {
		t.Fatalf("first line = %q, want keep-alive comment", line)
	}

	stack.hub.Publish("owner-1", sse.NewEvent("visit_approved", map[string]string{"visit_id": "visit-1"}))

	if got := nextEventLine(t, reader); got != "event: visit_approved" {
		t.Fatalf("event line = %q, want visit_approved", got)
	}
	data, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read data line: %v", err)
	}
	if !strings.HasPrefix(data, "data: ") || !strings.Contains(data, "visit-1") {
		t.Fatalf("data line = %q, want payload with visit-1", data)
	}
}

func TestEventStream_DisconnectUnsubscribes(t *testing.T) {
	stack := setupTestServer(t, 50*time.Millisecond)
	owner := bearer(t, "owner-1", domain.RoleOwner, "A-101")

	resp, cancel := openStream(t, stack, owner)
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for stack.hub.Connections("owner-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never registered with the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()

	deadline = time.Now().Add(2 * time.Second)
	for stack.hub.Connections("owner-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription still registered after client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
