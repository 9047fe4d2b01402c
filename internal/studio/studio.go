// Package studio holds the editing sessions: one uploaded photo, its face mesh
// and the landmarks the user has picked on it.
package studio

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/meshstudio/internal/detector"
	"github.com/ayusman/meshstudio/internal/imaging"
	"github.com/ayusman/meshstudio/internal/topology"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Detection describes a finished detection, for status displays.
type Detection struct {
	SessionID string
	Faces     int
	Landmarks int
	At        time.Time
}

// Config holds the collaborators shared by every session.
type Config struct {
	Client  *detector.Client
	Regions []topology.Region
	Log     logrus.FieldLogger

	// Decode reads an upload. Defaults to imaging.Decode.
	Decode func(data []byte) (imaging.Image, error)

	// OnDetection is called after every applied detection.
	OnDetection func(Detection)
}

// Studio owns the set of live sessions.
type Studio struct {
	config   Config
	log      logrus.FieldLogger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates a Studio.
func New(config Config) *Studio {
	if config.Decode == nil {
		config.Decode = imaging.Decode
	}
	if config.Regions == nil {
		config.Regions = topology.DefaultRegions()
	}
	log := config.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Studio{
		config:   config,
		log:      log.WithField("component", "studio"),
		sessions: make(map[string]*Session),
	}
}

// Client returns the detection client shared by all sessions.
func (s *Studio) Client() *detector.Client {
	return s.config.Client
}

// Regions returns the named regions used for analysis.
func (s *Studio) Regions() []topology.Region {
	return s.config.Regions
}

// Create starts a new, empty session.
func (s *Studio) Create() *Session {
	sess := newSession(uuid.NewString(), s.config, s.log)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.WithField("session", sess.id).Debug("session created")
	return sess
}

// Get returns the session with the given id.
func (s *Studio) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete drops a session and disconnects its subscribers.
func (s *Studio) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	sess.closeSubscribers()
	s.log.WithField("session", id).Debug("session deleted")
	return nil
}

// List returns all sessions, oldest first.
func (s *Studio) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].created.Before(out[j].created)
	})
	return out
}

// Prune drops sessions idle for longer than maxIdle and returns how many.
func (s *Studio) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	var stale []*Session
	for id, sess := range s.sessions {
		if sess.lastActive().Before(cutoff) {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.closeSubscribers()
	}
	if len(stale) > 0 {
		s.log.WithField("count", len(stale)).Info("pruned idle sessions")
	}
	return len(stale)
}
