package crawler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mode tags the three crawl procedures. The set is closed; each mode carries
// exactly the request parameters it needs.
type Mode string

// Crawl modes.
const (
	ModeSearch  Mode = "search"
	ModeDetail  Mode = "detail"
	ModeCreator Mode = "creator"
)

// Request describes one crawl run.
type Request struct {
	Mode          Mode     `json:"mode"`
	Keywords      string   `json:"keywords"`
	VideoRefs     []string `json:"video_refs"`
	CreatorRefs   []string `json:"creator_refs"`
	MaxItems      int      `json:"max_items"`
	DownloadMedia bool     `json:"download_media"`
}

// Validate checks that the request carries what its mode needs.
func (r Request) Validate() error {
	switch r.Mode {
	case ModeSearch:
		if strings.TrimSpace(r.Keywords) == "" {
			return fmt.Errorf("search mode requires keywords")
		}
	case ModeDetail:
		if len(r.VideoRefs) == 0 {
			return fmt.Errorf("detail mode requires video refs")
		}
	case ModeCreator:
		if len(r.CreatorRefs) == 0 {
			return fmt.Errorf("creator mode requires creator refs")
		}
	default:
		return fmt.Errorf("unknown crawl mode %q", r.Mode)
	}
	return nil
}

// Status is a point-in-time snapshot of the crawl session, safe to hand to
// the admin surface.
type Status struct {
	Running   bool       `json:"running"`
	RunID     string     `json:"run_id,omitempty"`
	Mode      Mode       `json:"mode,omitempty"`
	Saved     int        `json:"saved"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// sessionState is the single mutable crawl-session record. The orchestrator
// is its only writer; readers get copies via snapshot.
type sessionState struct {
	mu sync.Mutex

	running   bool
	busy      bool
	stopped   bool
	runID     string
	mode      Mode
	saved     int
	startedAt time.Time
}

// begin claims the session for a new crawl. Returns false while a prior
// crawl is still active.
func (s *sessionState) begin(mode Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	s.running = true
	s.stopped = false
	s.runID = uuid.NewString()
	s.mode = mode
	s.saved = 0
	s.startedAt = time.Now().UTC()
	return true
}

// requestStop clears the running flag. In-flight work is not interrupted;
// loops notice stopRequested at their next checkpoint.
func (s *sessionState) requestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.stopped = true
}

func (s *sessionState) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// finish releases the session after the crawl goroutine exits.
func (s *sessionState) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.busy = false
}

func (s *sessionState) addSaved(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved += n
}

func (s *sessionState) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running: s.running,
		Saved:   s.saved,
	}
	if s.busy {
		st.RunID = s.runID
		st.Mode = s.mode
		started := s.startedAt
		st.StartedAt = &started
	}
	return st
}
