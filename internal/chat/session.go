package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/schema"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Greeting seeds every new session.
const Greeting = "Hello, Sir/ Ma'am ! I can answer your questions by querying the database. What would you like to know?"

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// State is the per-turn pipeline position.
type State string

const (
	StateIdle                State = "idle"
	StateAwaitingSQL         State = "awaiting_sql"
	StateAwaitingQueryResult State = "awaiting_query_result"
	StateAwaitingAnswer      State = "awaiting_answer"
)

// Session owns the transcript and the schema cache. Messages are append-only.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time

	schema *schema.Cache

	mu       sync.RWMutex
	messages []Message
	state    State
	turns    int
}

func newSession(fetcher schema.Fetcher, now time.Time) *Session {
	return &Session{
		ID:        uuid.New(),
		StartedAt: now,
		schema:    schema.NewCache(fetcher),
		messages:  []Message{{Role: RoleAssistant, Content: Greeting, CreatedAt: now}},
		state:     StateIdle,
	}
}

func (s *Session) append(role Role, content string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Role: role, Content: content, CreatedAt: at})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) finishTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.turns++
}

// SchemaStatus reports what the side panel shows.
type SchemaStatus struct {
	Loaded    bool   `json:"loaded"`
	Available bool   `json:"available"`
	Tables    int    `json:"tables"`
	Text      string `json:"text"`
}

// Snapshot is a copy of the session safe to hand to renderers.
type Snapshot struct {
	ID        string       `json:"session_id"`
	StartedAt time.Time    `json:"started_at"`
	State     State        `json:"state"`
	Turns     int          `json:"turns"`
	Messages  []Message    `json:"messages"`
	Schema    SchemaStatus `json:"schema"`
}

func (s *Session) snapshot() Snapshot {
	s.mu.RLock()
	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	snap := Snapshot{
		ID:        s.ID.String(),
		StartedAt: s.StartedAt,
		State:     s.state,
		Turns:     s.turns,
		Messages:  messages,
	}
	s.mu.RUnlock()

	if description, ok := s.schema.Peek(); ok {
		snap.Schema = SchemaStatus{
			Loaded:    true,
			Available: description.Available(),
			Tables:    description.Tables,
			Text:      description.Text,
		}
	}
	return snap
}

// Transcript is the archived form of a finished session.
type Transcript struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time
	Messages  []Message
}
