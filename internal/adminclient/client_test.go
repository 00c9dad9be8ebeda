package adminclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/attendance-notify/internal/connection"
	"github.com/rickgao/attendance-notify/internal/notify"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("http://localhost:8085/", "secret")

		if c.baseURL != "http://localhost:8085" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://localhost:8085")
		}
		if c.token != "secret" {
			t.Errorf("token = %q, want %q", c.token, "secret")
		}
		if c.httpClient.Timeout != 3*time.Minute {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 3*time.Minute)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with multiple options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("http://localhost:8085", "",
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
		)
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 10)
		}
		if c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 500*time.Millisecond)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("http://localhost:8085", "", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

// TestNormalizeBaseURL tests how addresses given on the command line map to
// the API root.
func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"http://localhost:8085", "http://localhost:8085"},
		{"http://localhost:8085/", "http://localhost:8085"},
		{"localhost:8085", "http://localhost:8085"},
		{" https://ops.example.com/notifier/ ", "https://ops.example.com/notifier"},
		{"https://ops.example.com/notifier/api/", "https://ops.example.com/notifier"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := normalizeBaseURL(tt.addr); got != tt.want {
				t.Errorf("normalizeBaseURL(%q) = %q, want %q", tt.addr, got, tt.want)
			}
		})
	}
}

// TestNewRequest tests the admin headers and the /api prefix.
func TestNewRequest(t *testing.T) {
	t.Run("with token and body", func(t *testing.T) {
		c := NewClient("ops.example.com/notifier", " secret ")
		req, err := c.newRequest(context.Background(), http.MethodPost, "/whatsapp/send", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := req.URL.String(); got != "http://ops.example.com/notifier/api/whatsapp/send" {
			t.Errorf("URL = %q", got)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer secret")
		}
		if got := req.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		if !strings.HasPrefix(req.Header.Get("User-Agent"), "attendance-notify/") {
			t.Errorf("User-Agent = %q", req.Header.Get("User-Agent"))
		}
	})

	t.Run("without token", func(t *testing.T) {
		c := NewClient("http://localhost:8085", "")
		req, err := c.newRequest(context.Background(), http.MethodGet, "/whatsapp/status", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := req.Header["Authorization"]; ok {
			t.Error("Authorization header set without a token")
		}
		if req.Header.Get("Content-Type") != "" {
			t.Error("Content-Type set without a body")
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	t.Run("Error method", func(t *testing.T) {
		err := &APIError{StatusCode: 503, Message: "send failed", Details: "whatsapp client not ready"}
		expected := "admin api error 503: send failed: whatsapp client not ready"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		tests := []struct {
			code     int
			expected bool
		}{
			{500, true},
			{502, true},
			{503, true},
			{429, true},
			{400, false},
			{401, false},
			{404, false},
			{409, false},
		}

		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code}
			if got := err.IsRetryable(); got != tt.expected {
				t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
			}
		}
	})
}

// TestDoRequest tests the HTTP request functionality.
func TestDoRequest(t *testing.T) {
	t.Run("sends token and json body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer secret" {
				t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bearer secret")
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", r.Header.Get("Content-Type"))
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"x":1}` {
				t.Errorf("body = %q", body)
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "secret")
		if _, err := c.doRequest(context.Background(), http.MethodPost, "/x", map[string]int{"x": 1}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("error body is parsed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"start failed","details":"whatsapp client already running"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		_, err := c.doRequest(context.Background(), http.MethodPost, "/x", nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != http.StatusConflict {
			t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusConflict)
		}
		if apiErr.Message != "start failed" || !strings.Contains(apiErr.Details, "already running") {
			t.Errorf("unexpected parsed error %+v", apiErr)
		}
	})
}

// TestDoWithRetry tests retry behavior.
func TestDoWithRetry(t *testing.T) {
	t.Run("retries on 503 then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"state":"READY","ready":true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(3, time.Millisecond))
		st, err := c.Status(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if st.State != connection.StateReady || !st.Ready {
			t.Errorf("status = %+v", st)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("no retry on 401", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(3, time.Millisecond))
		if _, err := c.Status(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(2, time.Millisecond))
		_, err := c.QRCode(context.Background())
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Fatalf("err = %v, want max retries exceeded", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("sends are not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(3, time.Millisecond))
		if _, err := c.Send(context.Background(), "1", "hi"); err == nil {
			t.Fatal("expected error")
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})
}

// TestEndpoints checks each call hits the right route.
func TestEndpoints(t *testing.T) {
	var mu sync.Mutex
	var gotMethod, gotPath string
	var gotBody []byte
	last := func() (string, string, []byte) {
		mu.Lock()
		defer mu.Unlock()
		return gotMethod, gotPath, gotBody
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotMethod, gotPath, gotBody = r.Method, r.URL.Path, body
		mu.Unlock()
		switch r.URL.Path {
		case "/api/whatsapp/recover":
			w.Write([]byte(`{"result":"reconnecting","status":{"state":"INITIALIZING"}}`))
		case "/api/whatsapp/logout":
			w.Write([]byte(`{"status":{"state":"DISCONNECTED"},"warning":"logout: timeout"}`))
		case "/api/whatsapp/send":
			w.Write([]byte(`{"chatId":"1@c.us","strategy":"direct","attempts":1}`))
		case "/api/attendance/events":
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"status":"queued"}`))
		default:
			w.Write([]byte(`{"state":"INITIALIZING"}`))
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	ctx := context.Background()

	lifecycle := []struct {
		call func(context.Context) (connection.Status, error)
		path string
	}{
		{c.Start, "/api/whatsapp/start"},
		{c.Stop, "/api/whatsapp/stop"},
		{c.Restart, "/api/whatsapp/restart"},
	}
	for _, tt := range lifecycle {
		st, err := tt.call(ctx)
		if err != nil {
			t.Fatalf("%s: %v", tt.path, err)
		}
		if method, path, _ := last(); method != http.MethodPost || path != tt.path {
			t.Errorf("got %s %s, want POST %s", method, path, tt.path)
		}
		if st.State != connection.StateInitializing {
			t.Errorf("%s: state = %v", tt.path, st.State)
		}
	}

	rec, err := c.Recover(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rec.Result != connection.RecoveryReconnecting {
		t.Errorf("recover result = %q", rec.Result)
	}

	lo, err := c.Logout(ctx)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if lo.Status.State != connection.StateDisconnected || lo.Warning == "" {
		t.Errorf("logout = %+v", lo)
	}

	res, err := c.Send(ctx, "", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.ChatID != "1@c.us" {
		t.Errorf("chatId = %q", res.ChatID)
	}
	var sent map[string]string
	_, _, body := last()
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatal(err)
	}
	if _, ok := sent["target"]; ok {
		t.Error("empty target should be omitted")
	}

	ev := notify.AttendanceEvent{Employee: "Alice", Action: notify.ActionLogin}
	if err := c.Attendance(ctx, ev); err != nil {
		t.Fatalf("attendance: %v", err)
	}
	if _, path, _ := last(); path != "/api/attendance/events" {
		t.Errorf("path = %q", path)
	}
}
