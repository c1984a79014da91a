// Package conversation drives the multi-step chat flows: portal registration,
// manual deadline entry and reminder interval input.
package conversation

import (
	"maps"
	"sync"
)

// State is the input the conversation currently expects.
type State int

const (
	Idle State = iota
	AwaitingLogin
	AwaitingPassword
	AwaitingNotificationHours
	AwaitingDeadlineCourse
	AwaitingDeadlineTask
	AwaitingDeadlineDueDate
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingLogin:
		return "awaiting_login"
	case AwaitingPassword:
		return "awaiting_password"
	case AwaitingNotificationHours:
		return "awaiting_notification_hours"
	case AwaitingDeadlineCourse:
		return "awaiting_deadline_course"
	case AwaitingDeadlineTask:
		return "awaiting_deadline_task"
	case AwaitingDeadlineDueDate:
		return "awaiting_deadline_due_date"
	default:
		return "unknown"
	}
}

// Scratchpad keys.
const (
	keyLogin  = "login"
	keyCourse = "course"
	keyTask   = "task"
)

// Session is the state of one conversation plus the fields collected so far.
type Session struct {
	State      State
	Scratchpad map[string]string
}

// Reset returns the session to Idle and drops collected fields.
func (s *Session) Reset() {
	s.State = Idle
	s.Scratchpad = nil
}

// Transition moves to next, keeping the scratchpad.
func (s *Session) Transition(next State) {
	s.State = next
}

func (s *Session) Put(key, value string) {
	if s.Scratchpad == nil {
		s.Scratchpad = make(map[string]string)
	}
	s.Scratchpad[key] = value
}

func (s *Session) Get(key string) string {
	return s.Scratchpad[key]
}

// Store holds sessions in memory, keyed by Telegram user id. Sessions do not
// survive a restart.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]Session)}
}

// Load returns a copy of the user's session; unknown users are Idle.
func (s *Store) Load(userID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[userID]
	sess.Scratchpad = maps.Clone(sess.Scratchpad)
	return sess
}

// Save replaces the user's session. Idle sessions are dropped.
func (s *Store) Save(userID int64, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.State == Idle {
		delete(s.sessions, userID)
		return
	}
	sess.Scratchpad = maps.Clone(sess.Scratchpad)
	s.sessions[userID] = sess
}

func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
