package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"zedlink/internal/network"
)

type fakeControl struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	toggles     int
	toggleErr   error
}

func (f *fakeControl) Connect()    { f.mu.Lock(); f.connects++; f.mu.Unlock() }
func (f *fakeControl) Disconnect() { f.mu.Lock(); f.disconnects++; f.mu.Unlock() }

func (f *fakeControl) Toggle(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return f.toggleErr
}

type statusBox struct {
	mu sync.Mutex
	st Status
}

func (b *statusBox) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

func (b *statusBox) set(st Status) {
	b.mu.Lock()
	b.st = st
	b.mu.Unlock()
}

func controllerStatus() *statusBox {
	return &statusBox{st: Status{Role: "controller", Name: "desk", Mode: "local", Connection: "disconnected"}}
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndStatus(t *testing.T) {
	box := controllerStatus()
	h := NewServer(box.get, &fakeControl{}, "", nil).Handler()

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var st Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Role != "controller" || st.Mode != "local" {
		t.Errorf("Unexpected status %+v", st)
	}

	if rec := do(t, h, http.MethodPost, "/api/status", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestTargetStatusCarriesPeer(t *testing.T) {
	box := &statusBox{st: Status{
		Role:       "target",
		ListenPort: 9876,
		Peer:       &network.PeerInfo{ID: 3, Remote: "10.0.0.1:5000", Applied: 12},
	}}
	h := NewServer(box.get, nil, "", nil).Handler()

	rec := do(t, h, http.MethodGet, "/api/status", "")
	if !strings.Contains(rec.Body.String(), `"applied":12`) {
		t.Errorf("Expected peer counters in status, got %s", rec.Body.String())
	}

	if rec := do(t, h, http.MethodPost, "/api/toggle", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for toggle on a target, got %d", rec.Code)
	}
}

func TestControlEndpoints(t *testing.T) {
	ctl := &fakeControl{}
	h := NewServer(controllerStatus().get, ctl, "", nil).Handler()

	if rec := do(t, h, http.MethodPost, "/api/connect", ""); rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202 from connect, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/disconnect", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from disconnect, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/toggle", ""); rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202 from toggle, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/toggle", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET toggle, got %d", rec.Code)
	}

	if ctl.connects != 1 || ctl.disconnects != 1 || ctl.toggles != 1 {
		t.Errorf("Expected one call each, got %d/%d/%d", ctl.connects, ctl.disconnects, ctl.toggles)
	}

	ctl.toggleErr = errors.New("stopped")
	if rec := do(t, h, http.MethodPost, "/api/toggle", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when toggle fails, got %d", rec.Code)
	}
}

func TestTokenAuth(t *testing.T) {
	h := NewServer(controllerStatus().get, &fakeControl{}, "secret", nil).Handler()

	if rec := do(t, h, http.MethodPost, "/api/connect", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/connect", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/connect", "secret"); rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202 with token, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/status", ""); rec.Code != http.StatusOK {
		t.Errorf("Expected status open without token, got %d", rec.Code)
	}
}

func TestWebSocketPushesStatus(t *testing.T) {
	box := controllerStatus()
	srv := NewServer(box.get, &fakeControl{}, "", nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var st Status
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("Expected initial status, got %v", err)
	}
	if st.Mode != "local" {
		t.Errorf("Expected local, got %s", st.Mode)
	}

	next := box.get()
	next.Mode = "remote"
	next.Connection = "connected"
	box.set(next)

	// The subscriber may not be registered yet, so keep publishing.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				srv.Notify()
			}
		}
	}()

	for st.Mode != "remote" {
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatalf("Timed out waiting for pushed status: %v", err)
		}
	}
	if st.Connection != "connected" {
		t.Errorf("Expected connected, got %s", st.Connection)
	}
}

func TestServeRecordsPort(t *testing.T) {
	srv := NewServer(controllerStatus().get, nil, "", nil)
	if srv.Port() != 0 {
		t.Fatalf("Expected port 0 before Serve, got %d", srv.Port())
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	want := ln.Addr().(*net.TCPAddr).Port
	if got := srv.Port(); got != want {
		t.Errorf("Expected discovery port %d, got %d", want, got)
	}
}
