package editor

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/internal/attributes"
)

var ErrSessionNotFound = errors.New("editing session not found")

// Session is a snapshot of one editing session.
type Session struct {
	ID              uuid.UUID            `json:"id"`
	Filename        string               `json:"filename"`
	SourceReference string               `json:"source_reference,omitempty"`
	JobID           *uuid.UUID           `json:"job_id,omitempty"`
	Attributes      []attributes.View    `json:"attributes"`
	Document        *attributes.Document `json:"extracted_json"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

type entry struct {
	filename  string
	sourceRef string
	jobID     *uuid.UUID
	ws        *attributes.Workspace
	created   time.Time
	touched   time.Time
}

// Store holds editing sessions in memory. Each session owns its document and
// order; concurrent requests against the same session are serialised.
type Store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	logger   *slog.Logger
	now      func() time.Time
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[uuid.UUID]*entry),
		logger:   logger,
		now:      time.Now,
	}
}

// NewParams describes the document a session starts from.
type NewParams struct {
	Filename        string
	SourceReference string
	JobID           *uuid.UUID
	Document        *attributes.Document
}

// Create opens a session over a copy of p.Document.
func (s *Store) Create(p NewParams) Session {
	doc := attributes.NewDocument()
	if p.Document != nil {
		doc = p.Document.Clone()
	}
	now := s.now()
	e := &entry{
		filename:  p.Filename,
		sourceRef: p.SourceReference,
		jobID:     p.JobID,
		ws:        attributes.NewWorkspace(doc),
		created:   now,
		touched:   now,
	}
	id := uuid.New()

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()

	s.logger.Info("editor.session.create", "session_id", id, "filename", p.Filename, "attributes", doc.Len())
	return snapshot(id, e)
}

func (s *Store) Get(id uuid.UUID) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	e.touched = s.now()
	return snapshot(id, e), nil
}

// Apply runs ops in order. It stops at the first invalid op; ops before it
// stay applied.
func (s *Store) Apply(id uuid.UUID, ops ...Op) (Session, []Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return Session{}, nil, ErrSessionNotFound
	}
	results := make([]Result, 0, len(ops))
	for _, op := range ops {
		res, err := Apply(e.ws, op)
		if err != nil {
			s.logger.Warn("editor.op.rejected", "session_id", id, "op", op.Kind, "err", err)
			return snapshot(id, e), results, err
		}
		results = append(results, res)
	}
	e.touched = s.now()
	s.logger.Debug("editor.op.ok", "session_id", id, "ops", len(ops))
	return snapshot(id, e), results, nil
}

func (s *Store) Delete(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.logger.Info("editor.session.delete", "session_id", id)
	return true
}

// Sweep drops sessions idle for longer than maxIdle and returns how many
// were removed.
func (s *Store) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.sessions {
		if e.touched.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	if n > 0 {
		s.logger.Info("editor.session.sweep", "removed", n, "remaining", len(s.sessions))
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func snapshot(id uuid.UUID, e *entry) Session {
	return Session{
		ID:              id,
		Filename:        e.filename,
		SourceReference: e.sourceRef,
		JobID:           e.jobID,
		Attributes:      e.ws.Views(),
		Document:        e.ws.Ordered(),
		CreatedAt:       e.created,
		UpdatedAt:       e.touched,
	}
}
