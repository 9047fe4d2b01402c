package studio

import "github.com/ayusman/meshstudio/internal/topology"

// Event types pushed to session subscribers.
const (
	EventProcessing = "processing"
	EventMesh       = "mesh"
	EventFailed     = "failed"
	EventSelection  = "selection"
)

// subscriberBuffer is how many events a slow subscriber may fall behind.
const subscriberBuffer = 16

// Event is a session change notification.
type Event struct {
	Type       string             `json:"type"`
	Generation uint64             `json:"generation"`
	Selected   []int              `json:"selected,omitempty"`
	Analysis   *topology.Analysis `json:"analysis,omitempty"`
	State      *State             `json:"state,omitempty"`
}

// Subscribe returns a channel of session events and a function that ends the
// subscription. Events are dropped for subscribers that fall behind.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.smu.Lock()
	s.subs[ch] = struct{}{}
	s.smu.Unlock()

	cancel := func() {
		s.smu.Lock()
		defer s.smu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Session) publish(ev Event) {
	s.smu.Lock()
	defer s.smu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.log.WithField("event", ev.Type).Warn("subscriber behind, dropping event")
		}
	}
}

func (s *Session) closeSubscribers() {
	s.smu.Lock()
	defer s.smu.Unlock()

	for ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[chan Event]struct{})
}
