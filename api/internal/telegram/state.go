package telegram

import (
	"sync"

	"exam-grader/api/internal/recognize"
)

type mode string

const (
	modeIdle          mode = ""
	modeAwaitModel    mode = "await_model"
	modeAwaitQuestion mode = "await_question"
)

// Session is what a chat has configured so far. Grading needs ModelAnswer and MaxMarks.
type Session struct {
	ModelAnswer string
	Question    string
	MaxMarks    int
	Strategy    recognize.Strategy // empty means the service default
	Mode        mode
}

// Missing lists the commands still needed before an answer can be graded.
func (s Session) Missing() []string {
	var out []string
	if s.ModelAnswer == "" {
		out = append(out, "/model")
	}
	if s.MaxMarks <= 0 {
		out = append(out, "/marks")
	}
	return out
}

type chatSession struct {
	mu sync.Mutex
	s  Session
}

// Sessions keeps per-chat state. Safe for concurrent use.
type Sessions struct {
	m sync.Map // chatID -> *chatSession
}

func (ss *Sessions) load(chatID int64) *chatSession {
	v, _ := ss.m.LoadOrStore(chatID, &chatSession{})
	return v.(*chatSession)
}

func (ss *Sessions) Get(chatID int64) Session {
	cs := ss.load(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.s
}

// Update applies fn under the chat's lock and returns the result.
func (ss *Sessions) Update(chatID int64, fn func(*Session)) Session {
	cs := ss.load(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	fn(&cs.s)
	return cs.s
}

func (ss *Sessions) Reset(chatID int64) { ss.m.Delete(chatID) }
