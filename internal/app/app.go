// Package app wires the meshstudio components together and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/config"
	"github.com/ayusman/meshstudio/internal/detector"
	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/server"
	"github.com/ayusman/meshstudio/internal/store"
	"github.com/ayusman/meshstudio/internal/studio"
)

// Prune timing bounds.
const (
	minPruneInterval = time.Minute
	maxPruneInterval = 15 * time.Minute
)

// Config holds configuration options for the application.
type Config struct {
	Settings *config.Config
	Log      logrus.FieldLogger

	// Detector overrides the provider named in Settings.
	Detector detector.Detector

	// Decode overrides imaging.Decode for uploads.
	Decode func([]byte) (imaging.Image, error)
}

// App owns the store, the detection client, the sessions and the HTTP server.
type App struct {
	config   Config
	log      logrus.FieldLogger
	provider string
	store    *store.Store
	client   *detector.Client
	studio   *studio.Studio
	server   *server.Server

	mu          sync.RWMutex
	onDetection []func(studio.Detection)
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// New opens the store and builds every component. Nothing runs until Start.
func New(cfg Config) (*App, error) {
	if cfg.Settings == nil {
		cfg.Settings = config.Defaults()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config: cfg,
		log:    cfg.Log.WithField("component", "app"),
	}

	dbPath, err := cfg.Settings.DatabasePath()
	if err != nil {
		return nil, err
	}
	a.store, err = store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	d := cfg.Detector
	a.provider = "custom"
	if d == nil {
		d, a.provider = NewDetector(cfg.Settings.Detector, cfg.Log)
	}
	a.client = detector.NewClient(d, cfg.Log)

	a.studio = studio.New(studio.Config{
		Client:      a.client,
		Log:         cfg.Log,
		Decode:      cfg.Decode,
		OnDetection: a.dispatchDetection,
	})

	srv := cfg.Settings.Server
	a.server = server.New(server.Config{
		Addr:         srv.Addr,
		StaticDir:    srv.StaticDir,
		Studio:       a.studio,
		Store:        a.store,
		Log:          cfg.Log,
		MaxUpload:    srv.MaxUploadBytes(),
		UploadRate:   srv.UploadRate,
		UploadBurst:  srv.UploadBurst,
		ReadTimeout:  srv.ReadTimeout,
		WriteTimeout: srv.WriteTimeout,
		IdleTimeout:  srv.IdleTimeout,
	})

	return a, nil
}

// OnDetection registers fn to be called after every applied detection.
func (a *App) OnDetection(fn func(studio.Detection)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onDetection = append(a.onDetection, fn)
}

func (a *App) dispatchDetection(d studio.Detection) {
	a.mu.RLock()
	callbacks := append(([]func(studio.Detection))(nil), a.onDetection...)
	a.mu.RUnlock()

	for _, fn := range callbacks {
		fn(d)
	}
}

// Start warms up the model, starts the session pruner and serves HTTP in the
// background. The returned channel reports a server failure.
func (a *App) Start() <-chan error {
	errCh := make(chan error, 1)

	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return errCh
	}
	a.stopCh = make(chan struct{})

	a.log.WithField("provider", a.provider).Info("starting meshstudio")

	a.wg.Add(2)
	go a.warmUp(a.stopCh)
	go a.pruneLoop(a.stopCh)

	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh
}

// warmUp initializes the model so the first upload does not pay for it.
// Failures are logged; Detect retries lazily.
func (a *App) warmUp(stop <-chan struct{}) {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := a.client.Initialize(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.WithError(err).Warn("model warm-up failed")
	}
}

// pruneLoop drops idle sessions until stop is closed.
func (a *App) pruneLoop(stop <-chan struct{}) {
	defer a.wg.Done()

	idle := a.config.Settings.Server.SessionIdle
	if idle <= 0 {
		return
	}

	ticker := time.NewTicker(pruneInterval(idle))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.studio.Prune(idle)
		}
	}
}

// pruneInterval checks a few times per idle period, within fixed bounds.
func pruneInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < minPruneInterval {
		return minPruneInterval
	}
	if interval > maxPruneInterval {
		return maxPruneInterval
	}
	return interval
}

// Stop shuts the server down and releases the model and the store.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	stop := a.stopCh
	a.stopCh = nil
	a.mu.Unlock()

	var errs []error
	if stop != nil {
		close(stop)
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.wg.Wait()
	}

	for _, sess := range a.studio.List() {
		a.studio.Delete(sess.ID())
	}

	if err := a.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing detector: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}

	a.log.Info("meshstudio stopped")
	return errors.Join(errs...)
}

// Provider returns the name of the detector provider in use.
func (a *App) Provider() string {
	return a.provider
}

// Store returns the preset store.
func (a *App) Store() *store.Store {
	return a.store
}

// Client returns the detection client.
func (a *App) Client() *detector.Client {
	return a.client
}

// Studio returns the session registry.
func (a *App) Studio() *studio.Studio {
	return a.studio
}

// Server returns the HTTP server.
func (a *App) Server() *server.Server {
	return a.server
}
