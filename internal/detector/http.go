package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/mesh"
)

const defaultLandmarkURL = "http://localhost:8001"

// HTTPDetector implements Detector against a landmark server that exposes
// GET /info and a multipart POST /detect.
type HTTPDetector struct {
	baseURL string
	client  *http.Client

	mu   sync.Mutex
	info *ModelInfo
}

// NewHTTPDetector creates a detector for the landmark server at config.URL.
func NewHTTPDetector(config Config) *HTTPDetector {
	baseURL := config.URL
	if baseURL == "" {
		baseURL = defaultLandmarkURL
	}
	return &HTTPDetector{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: config.RequestTimeout},
	}
}

// Start asks the server whether the model is loaded.
func (d *HTTPDetector) Start(ctx context.Context) (*ModelInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil {
		return d.info, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/info", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := d.do(req)
	if err != nil {
		return nil, err
	}

	var hs jsonInfo
	if err := json.Unmarshal(body, &hs); err != nil {
		return nil, fmt.Errorf("failed to parse info: %w", err)
	}
	if !hs.Ready {
		if hs.Error == "" {
			hs.Error = "landmark server reported not ready"
		}
		return nil, errors.New(hs.Error)
	}

	d.info = hs.toModelInfo("http")
	return d.info, nil
}

// Detect posts the image to the server and returns the detected face meshes.
func (d *HTTPDetector) Detect(ctx context.Context, img imaging.Image) ([]mesh.FaceMesh, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", img.ContentType())
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/detect", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := d.do(req)
	if err != nil {
		return nil, err
	}
	return parseReply(body)
}

// Close forgets the cached model info. The server itself is not owned.
func (d *HTTPDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
	return nil
}

func (d *HTTPDetector) do(req *http.Request) ([]byte, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
