package app

import (
	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/config"
	"github.com/ayusman/meshstudio/internal/detector"
)

// NewDetector builds the configured landmark provider and returns it with its
// provider name. With the auto provider it tries MediaPipe, then the HTTP
// service when a URL is set, and falls back to the mock detector.
func NewDetector(cfg config.DetectorConfig, log logrus.FieldLogger) (detector.Detector, string) {
	opts := cfg.DetectorOptions()

	switch cfg.Provider {
	case config.ProviderMock:
		return detector.NewMockDetector(), config.ProviderMock
	case config.ProviderHTTP:
		return detector.NewHTTPDetector(opts), config.ProviderHTTP
	case config.ProviderMediaPipe:
		mp, err := detector.NewMediaPipeDetector(opts)
		if err != nil {
			log.WithError(err).Warn("MediaPipe not available, using mock detector")
			return detector.NewMockDetector(), config.ProviderMock
		}
		return mp, config.ProviderMediaPipe
	}

	// Try MediaPipe first, fall back to mock detector
	mp, err := detector.NewMediaPipeDetector(opts)
	if err == nil {
		log.Info("using MediaPipe face mesh detection")
		return mp, config.ProviderMediaPipe
	}
	if cfg.URL != "" {
		log.WithField("url", cfg.URL).Info("using landmark service")
		return detector.NewHTTPDetector(opts), config.ProviderHTTP
	}
	log.WithError(err).Warn("MediaPipe not available, using mock detector")
	return detector.NewMockDetector(), config.ProviderMock
}
