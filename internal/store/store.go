package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"peak_analyzer/internal/analysis"
	"peak_analyzer/internal/model"
	"peak_analyzer/internal/optimizer"
	"peak_analyzer/internal/pareto"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// DefaultLimit bounds how many sessions a Store keeps.
const DefaultLimit = 100

// Session is one analysis run together with everything computed from it
// afterwards.
type Session struct {
	ID              string             `json:"id"`
	CreatedAt       time.Time          `json:"created_at"`
	Source          string             `json:"source,omitempty"`
	IntervalMinutes int                `json:"interval_minutes"`
	SampleCount     int                `json:"sample_count"`
	TimeRange       *model.TimeRange   `json:"time_range,omitempty"`
	Samples         []model.Sample     `json:"-"`
	Result          *analysis.Result   `json:"result"`
	Optimization    *optimizer.Outcome `json:"optimization,omitempty"`
	Pareto          *pareto.Selection  `json:"pareto,omitempty"`
}

// NewSession wraps a finished analysis.
func NewSession(source string, req analysis.Request, res *analysis.Result) *Session {
	s := &Session{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		Source:          source,
		IntervalMinutes: req.IntervalMinutes,
		SampleCount:     len(req.Samples),
		Samples:         req.Samples,
		Result:          res,
	}
	if tr, ok := model.SamplesTimeRange(req.Samples); ok {
		s.TimeRange = &tr
	}
	return s
}

// Store holds sessions in memory, oldest evicted first once full.
type Store struct {
	mu       sync.RWMutex
	limit    int
	sessions map[string]*Session
	order    []string // insertion order, oldest first
}

func New(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		limit:    limit,
		sessions: make(map[string]*Session),
	}
}

// Put adds or replaces a session.
func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; !exists {
		s.order = append(s.order, sess.ID)
	}
	s.sessions[sess.ID] = sess

	for len(s.order) > s.limit {
		delete(s.sessions, s.order[0])
		s.order = s.order[1:]
	}
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Update applies fn to the stored session under the write lock.
func (s *Store) Update(id string, fn func(*Session)) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	fn(sess)
	return *sess, nil
}

// List returns all sessions, newest first.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.sessions[s.order[i]])
	}
	return out
}

// Latest returns the most recently added session.
func (s *Store) Latest() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return Session{}, false
	}
	return *s.sessions[s.order[len(s.order)-1]], true
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
