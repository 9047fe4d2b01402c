package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/detector"
	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/store"
	"github.com/ayusman/meshstudio/internal/studio"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeDecode treats any upload except "bad" as a 300x300 JPEG.
func fakeDecode(data []byte) (imaging.Image, error) {
	if string(data) == "bad" {
		return imaging.Image{}, imaging.ErrUnsupportedFormat
	}
	return imaging.Image{Data: data, Format: imaging.FormatJPEG, Width: 300, Height: 300}, nil
}

// newTestStudio creates a studio backed by the given detector.
func newTestStudio(d detector.Detector) *studio.Studio {
	log := quietLogger()
	return studio.New(studio.Config{
		Client: detector.NewClient(d, log),
		Log:    log,
		Decode: fakeDecode,
	})
}

// newTestStore creates a store in a temporary directory.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with a JSON body and a session id parameter.
func jsonRequest(method, path, body, sessionID string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return requestWithChiParams(req, map[string]string{"id": sessionID})
}

// uploadRequest creates a multipart image upload for a session.
func uploadRequest(t *testing.T, sessionID string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "face.jpg")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write(data)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessionID+"/image", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return requestWithChiParams(req, map[string]string{"id": sessionID})
}

// assertJSONResponse checks the status and decodes the body into v.
func assertJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, status int, v any) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if v != nil {
		if err := json.Unmarshal(recorder.Body.Bytes(), v); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
	}
}

// assertError checks the status and the error message.
func assertError(t *testing.T, recorder *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	var resp errorResponse
	assertJSONResponse(t, recorder, status, &resp)
	if message != "" && resp.Error != message {
		t.Errorf("expected error %q, got %q", message, resp.Error)
	}
}
