package http

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slighter12/ae-bridge-go/logger"
	"github.com/slighter12/ae-bridge-go/runtimebridge"
)

// PanelSessions tracks the CEP panel's event stream. Only one panel is
// attached at a time; a new stream replaces the previous one.
type PanelSessions struct {
	mu     sync.RWMutex
	active *PanelSession
}

// PanelSession is one attached panel stream.
type PanelSession struct {
	ID        string
	Connected time.Time
	LastSeen  time.Time
	stream    *EventStream
}

// PanelStatus is the snapshot served by /host/status.
type PanelStatus struct {
	Connected   bool       `json:"connected"`
	SessionID   string     `json:"sessionId,omitempty"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	Pending     int        `json:"pending"`
}

func NewPanelSessions() *PanelSessions {
	return &PanelSessions{}
}

// Attach makes stream the active panel and closes the one it replaces.
func (ps *PanelSessions) Attach(stream *EventStream) *PanelSession {
	now := time.Now().UTC()
	session := &PanelSession{
		ID:        uuid.NewString(),
		Connected: now,
		LastSeen:  now,
		stream:    stream,
	}

	ps.mu.Lock()
	previous := ps.active
	ps.active = session
	ps.mu.Unlock()

	if previous != nil {
		logger.Info("Panel stream replaced", "previous_session", previous.ID, "session_id", session.ID)
		previous.stream.Close()
	}
	return session
}

// Detach clears session if it is still the active one.
func (ps *PanelSessions) Detach(session *PanelSession) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.active == session {
		ps.active = nil
	}
}

// Touch records panel activity.
func (ps *PanelSessions) Touch() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.active != nil {
		ps.active.LastSeen = time.Now().UTC()
	}
}

// Send pushes req to the active panel and returns that panel's session id.
// It satisfies runtimebridge.Sender.
func (ps *PanelSessions) Send(req runtimebridge.EvalRequest) (string, bool) {
	ps.mu.RLock()
	session := ps.active
	ps.mu.RUnlock()
	if session == nil || session.stream.IsClosed() {
		return "", false
	}
	if err := session.stream.Send("eval", req); err != nil {
		logger.Warn("Failed to push script to panel", "session_id", session.ID, "eval_id", req.ID, "error", err)
		return "", false
	}
	return session.ID, true
}

func (ps *PanelSessions) Status() PanelStatus {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.active == nil {
		return PanelStatus{}
	}
	connected, lastSeen := ps.active.Connected, ps.active.LastSeen
	return PanelStatus{
		Connected:   true,
		SessionID:   ps.active.ID,
		ConnectedAt: &connected,
		LastSeen:    &lastSeen,
	}
}

// CloseAll closes the active stream, if any.
func (ps *PanelSessions) CloseAll() {
	ps.mu.Lock()
	session := ps.active
	ps.active = nil
	ps.mu.Unlock()
	if session != nil {
		session.stream.Close()
	}
}
