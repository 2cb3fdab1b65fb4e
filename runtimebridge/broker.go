// Package runtimebridge correlates scripts pushed to the CEP panel with the
// results the panel posts back.
package runtimebridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPanelUnavailable means no panel stream could take the script.
	ErrPanelUnavailable = errors.New("host panel is not connected")

	// ErrEvalTimeout is returned when the configured eval timeout elapses.
	ErrEvalTimeout = errors.New("host panel did not answer in time")

	// ErrEmptyScript rejects blank scripts before they reach the panel.
	ErrEmptyScript = errors.New("script is empty")

	// ErrUnknownEval is returned by Ack for ids that are not pending.
	ErrUnknownEval = errors.New("unknown or expired eval id")

	// ErrSessionMismatch is returned by Ack when the result comes from a panel
	// session other than the one the script was pushed to.
	ErrSessionMismatch = errors.New("eval was dispatched to another panel session")
)

var evalSeq atomic.Uint64

// EvalRequest is pushed to the panel as one "eval" event.
type EvalRequest struct {
	ID     string `json:"id"`
	Script string `json:"script"`
}

// EvalResult is what the panel posts back for one request.
type EvalResult struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	Result     string    `json:"result"`
	Error      string    `json:"error,omitempty"`
	ReceivedAt time.Time `json:"-"`
}

// Sender pushes a request to the connected panel. It returns the id of the
// panel session that received it and whether it was written.
type Sender func(req EvalRequest) (sessionID string, ok bool)

type pendingEval struct {
	// bound is closed once sessionID is known.
	bound     chan struct{}
	sessionID string
	resultCh  chan EvalResult
}

// EvalBroker coordinates server->panel eval round trips.
type EvalBroker struct {
	mu      sync.Mutex
	timeout time.Duration
	pending map[string]*pendingEval
	sender  Sender
}

// NewEvalBroker returns a broker. A zero timeout waits for the panel until the
// caller's context ends.
func NewEvalBroker(timeout time.Duration) *EvalBroker {
	if timeout < 0 {
		timeout = 0
	}
	return &EvalBroker{
		timeout: timeout,
		pending: make(map[string]*pendingEval),
	}
}

// SetSender installs the function used to reach the panel; nil detaches it.
func (b *EvalBroker) SetSender(sender Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sender = sender
}

// DispatchAndWait pushes script to the panel and blocks for its result.
func (b *EvalBroker) DispatchAndWait(ctx context.Context, script string) (EvalResult, error) {
	if b == nil {
		return EvalResult{}, ErrPanelUnavailable
	}
	if strings.TrimSpace(script) == "" {
		return EvalResult{}, ErrEmptyScript
	}

	id := nextEvalID()
	pending := &pendingEval{
		bound:    make(chan struct{}),
		resultCh: make(chan EvalResult, 1),
	}

	// Registered before sending so a fast panel can ack it. Ack waits on
	// bound for the owning session.
	b.mu.Lock()
	sender := b.sender
	b.pending[id] = pending
	b.mu.Unlock()

	if sender == nil {
		b.remove(id)
		close(pending.bound)
		return EvalResult{}, ErrPanelUnavailable
	}
	sessionID, ok := sender(EvalRequest{ID: id, Script: script})
	if !ok {
		b.remove(id)
		close(pending.bound)
		return EvalResult{}, ErrPanelUnavailable
	}
	b.mu.Lock()
	pending.sessionID = sessionID
	b.mu.Unlock()
	close(pending.bound)

	var timeoutC <-chan time.Time
	if b.timeout > 0 {
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case result := <-pending.resultCh:
		return result, nil
	case <-timeoutC:
		b.remove(id)
		return EvalResult{}, fmt.Errorf("%w after %s", ErrEvalTimeout, b.timeout)
	case <-ctx.Done():
		b.remove(id)
		return EvalResult{}, ctx.Err()
	}
}

// Ack delivers a panel result to its waiter. The result must come from the
// panel session the script was pushed to; a mismatched ack leaves the eval
// pending.
func (b *EvalBroker) Ack(result EvalResult) error {
	if b == nil {
		return ErrUnknownEval
	}
	id := strings.TrimSpace(result.ID)
	if id == "" {
		return ErrUnknownEval
	}

	b.mu.Lock()
	pending, exists := b.pending[id]
	b.mu.Unlock()
	if !exists {
		return ErrUnknownEval
	}
	<-pending.bound

	b.mu.Lock()
	if b.pending[id] != pending {
		b.mu.Unlock()
		return ErrUnknownEval
	}
	if pending.sessionID != result.SessionID {
		b.mu.Unlock()
		return ErrSessionMismatch
	}
	delete(b.pending, id)
	b.mu.Unlock()

	if result.ReceivedAt.IsZero() {
		result.ReceivedAt = time.Now().UTC()
	}
	select {
	case pending.resultCh <- result:
		return nil
	default:
		return ErrUnknownEval
	}
}

// Pending returns the number of scripts still waiting for the panel.
func (b *EvalBroker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *EvalBroker) remove(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func nextEvalID() string {
	seq := evalSeq.Add(1)
	return fmt.Sprintf("eval_%d_%s", time.Now().UTC().UnixNano(), strconv.FormatUint(seq, 10))
}
