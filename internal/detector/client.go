package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/mesh"
)

var (
	// ErrInitFailed is returned when the model never became ready after one retry.
	ErrInitFailed = errors.New("face landmark model failed to initialize, please reload the page")
	// ErrInvalidImage is returned for images with a zero width or height.
	ErrInvalidImage = errors.New("image dimensions are zero, image might not be fully loaded")
	// ErrDetectionFailed wraps unexpected errors raised by the model.
	ErrDetectionFailed = errors.New("face landmark detection failed")
)

// initAttempts is the first attempt plus one retry.
const initAttempts = 2

// Client is the application's handle on a Detector. It owns the model's
// lifecycle: construct it, call Initialize once at startup and check Ready.
type Client struct {
	detector Detector
	log      logrus.FieldLogger

	// initMu serializes Initialize. mu only guards ready and info, so
	// readers never wait on a model that is still starting.
	initMu sync.Mutex

	mu    sync.RWMutex
	ready bool
	info  *ModelInfo
}

// NewClient creates a Client around d.
func NewClient(d Detector, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		detector: d,
		log:      log.WithField("component", "detector"),
	}
}

// Initialize starts the model, retrying once on failure. A cancelled ctx
// ends it early with ctx's error.
func (c *Client) Initialize(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.Ready() {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= initAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := c.detector.Start(ctx)
		if err == nil {
			c.mu.Lock()
			c.info = info
			c.ready = true
			c.mu.Unlock()
			c.log.WithFields(logrus.Fields{
				"model":        info.Name,
				"landmarks":    info.NumLandmarks,
				"tessellation": len(info.Tessellation),
			}).Info("face landmark model ready")
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = err
		c.log.WithError(err).WithField("attempt", attempt).Warn("face landmark model failed to start")
	}

	c.log.WithError(lastErr).Error("failed to initialize face landmark model, reload the page or restart the studio")
	return fmt.Errorf("%w: %w", ErrInitFailed, lastErr)
}

// Ready reports whether the model is initialized.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Info returns what the model reported at startup, or nil before Initialize.
func (c *Client) Info() *ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Connections returns the edges to draw between landmarks: the model's own
// tessellation, or the feature contours if it supplied none.
func (c *Client) Connections() []mesh.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.info == nil || len(c.info.Tessellation) == 0 {
		return mesh.ContourConnections()
	}
	out := make([]mesh.Connection, len(c.info.Tessellation))
	copy(out, c.info.Tessellation)
	return out
}

// Detect runs the model on img and returns every detected face.
// Zero-sized images are rejected before the model is touched.
func (c *Client) Detect(ctx context.Context, img imaging.Image) ([]mesh.FaceMesh, error) {
	if img.Empty() {
		return nil, ErrInvalidImage
	}

	if !c.Ready() {
		if err := c.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	faces, err := c.detector.Detect(ctx, img)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"width":  img.Width,
			"height": img.Height,
		}).Error("detection failed")
		return nil, fmt.Errorf("%w: %w", ErrDetectionFailed, err)
	}

	if faces == nil {
		faces = []mesh.FaceMesh{}
	}
	c.log.WithField("faces", len(faces)).Debug("detection finished")
	return faces, nil
}

// Close shuts the model down. The client can be initialized again afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()

	return c.detector.Close()
}
