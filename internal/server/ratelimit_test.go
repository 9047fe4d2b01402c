package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayusman/meshstudio/internal/detector"
)

func TestServer_UploadRateLimit(t *testing.T) {
	st := newTestStudio(detector.NewMockDetector())
	s := New(Config{Studio: st, Log: quietLogger(), MaxUpload: 1 << 20, UploadRate: 1, UploadBurst: 2})
	path := "/api/sessions/" + st.Create().ID() + "/image"

	upload := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		return rec.Code
	}

	// Empty bodies fail multipart parsing, so anything but 429 means the
	// limiter let the request through.
	for i := 0; i < 2; i++ {
		if code := upload("10.0.0.1:5000"); code != http.StatusBadRequest {
			t.Fatalf("upload %d: expected status %d, got %d", i, http.StatusBadRequest, code)
		}
	}
	if code := upload("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Errorf("expected status %d after burst, got %d", http.StatusTooManyRequests, code)
	}
	if code := upload("10.0.0.2:5000"); code != http.StatusBadRequest {
		t.Errorf("expected other client to pass the limiter, got %d", code)
	}

	t.Run("other routes are not limited", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:80", "2001:db8::1"},
		{"203.0.113.9", "203.0.113.9"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}
