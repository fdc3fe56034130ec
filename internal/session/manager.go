package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ent0n29/webmind/internal/pagecontext"
	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Greeting opens an empty thread in conversation mode.
const Greeting = "How can I help you today?"

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session ended")
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the state of one open panel.
type Session struct {
	ID               string                   `json:"session_id"`
	ChatID           string                   `json:"chat_id"`
	Status           Status                   `json:"status"`
	ConversationMode bool                     `json:"conversation_mode"`
	PageContext      *pagecontext.PageContext `json:"page_context,omitempty"`
	Messages         []Message                `json:"messages"`
	QueryCount       int                      `json:"query_count"`
	StartedAt        time.Time                `json:"started_at"`
	LastActivityAt   time.Time                `json:"last_activity_at"`
}

// Prior returns the thread as model history: everything after the greeting.
func (s *Session) Prior() []Message {
	msgs := s.Messages
	if len(msgs) > 0 && msgs[0].Role == RoleAssistant && msgs[0].Content == Greeting {
		msgs = msgs[1:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) InactivityTimeout() time.Duration { return m.inactivityTimeout }

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(conversationMode bool) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		ChatID:         uuid.NewString(),
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if conversationMode {
		s.ConversationMode = true
		s.Messages = []Message{{Role: RoleAssistant, Content: Greeting, Timestamp: now}}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	_, err := m.mutate(sessionID, func(*Session) {})
	return err
}

func (m *Manager) SetPageContext(sessionID string, pc pagecontext.PageContext) (*Session, error) {
	return m.mutate(sessionID, func(s *Session) {
		s.PageContext = &pc
	})
}

func (m *Manager) ClearPageContext(sessionID string) (*Session, error) {
	return m.mutate(sessionID, func(s *Session) {
		s.PageContext = nil
	})
}

// SetConversationMode sets the mode, or toggles it when enabled is nil.
func (m *Manager) SetConversationMode(sessionID string, enabled *bool) (*Session, error) {
	return m.mutate(sessionID, func(s *Session) {
		next := !s.ConversationMode
		if enabled != nil {
			next = *enabled
		}
		s.ConversationMode = next
		if next && len(s.Messages) == 0 {
			s.Messages = []Message{{Role: RoleAssistant, Content: Greeting, Timestamp: s.LastActivityAt}}
		}
	})
}

// Clear empties the thread and page context and starts a new chat id.
func (m *Manager) Clear(sessionID string) (*Session, error) {
	return m.mutate(sessionID, func(s *Session) {
		s.ChatID = uuid.NewString()
		s.PageContext = nil
		s.Messages = nil
		if s.ConversationMode {
			s.Messages = []Message{{Role: RoleAssistant, Content: Greeting, Timestamp: s.LastActivityAt}}
		}
	})
}

// RecordExchange appends a completed query and answer. Outside conversation
// mode the thread only ever holds the latest exchange.
func (m *Manager) RecordExchange(sessionID, query, answer string) (*Session, error) {
	return m.mutate(sessionID, func(s *Session) {
		now := s.LastActivityAt
		exchange := []Message{
			{Role: RoleUser, Content: query, Timestamp: now},
			{Role: RoleAssistant, Content: answer, Timestamp: now},
		}
		if s.ConversationMode {
			s.Messages = append(s.Messages, exchange...)
		} else {
			s.Messages = exchange
		}
		s.QueryCount++
	})
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	return clone(s), nil
}

func (m *Manager) mutate(sessionID string, fn func(*Session)) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != StatusActive {
		return nil, ErrEnded
	}
	s.LastActivityAt = time.Now().UTC()
	fn(s)
	return clone(s), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

// expireInactive ends idle sessions and forgets ones that ended a full
// timeout ago.
func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		idle := now.Sub(s.LastActivityAt)
		if s.Status != StatusActive {
			if idle >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if idle < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	if s.PageContext != nil {
		pc := *s.PageContext
		c.PageContext = &pc
	}
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		copy(c.Messages, s.Messages)
	}
	return &c
}
