package moderation

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
)

var (
	ErrSessionNotFound = errors.New("moderation: no live session for meeting")
	ErrSessionExists   = errors.New("moderation: session already open")
)

type Factory interface {
	Build(m models.Meeting, opts ...meeting.Option) *Session
}

// Manager keeps one session per live meeting. Sessions share nothing mutable.
type Manager struct {
	factory Factory

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(f Factory) *Manager {
	return &Manager{factory: f, sessions: make(map[string]*Session)}
}

func (m *Manager) Open(mt models.Meeting, opts ...meeting.Option) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[mt.MeetingID]; ok {
		return nil, ErrSessionExists
	}
	s := m.factory.Build(mt, opts...)
	m.sessions[mt.MeetingID] = s
	return s, nil
}

func (m *Manager) Get(meetingID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[meetingID]
	return s, ok
}

// IDs lists the live meetings in no particular order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Collect(maps.Keys(m.sessions))
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) Ingest(ctx context.Context, u models.FinalizedUtterance) error {
	s, ok := m.Get(u.MeetingID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.Ingest(ctx, u)
}

func (m *Manager) Interim(ctx context.Context, meetingID string, in broadcast.Interim) error {
	s, ok := m.Get(meetingID)
	if !ok {
		return ErrSessionNotFound
	}
	s.Interim(ctx, in)
	return nil
}

// End detaches the session first so no new utterance reaches it, then ends it.
func (m *Manager) End(ctx context.Context, meetingID string) (*models.ReviewReport, error) {
	m.mu.Lock()
	s, ok := m.sessions[meetingID]
	delete(m.sessions, meetingID)
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.End(ctx)
}

// Close abandons every live session without reviewing it.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
}
