package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/slighter12/ae-bridge-go/logger"
	"github.com/slighter12/ae-bridge-go/runtimebridge"
)

const (
	maxPanelResultBytes = 16 << 20
	panelKeepAlive      = 20 * time.Second
)

// handlePanelStream holds the panel's event stream open. Scripts reach the
// panel as "eval" events carrying {id, script}.
func (s *Server) handlePanelStream(c echo.Context) error {
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return hostError("Event stream is not available", nil)
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	streamCtx, stopStream := context.WithCancel(c.Request().Context())
	defer stopStream()

	stream := NewEventStream(c.Response().Writer, flusher, stopStream)
	session := s.panels.Attach(stream)
	defer s.panels.Detach(session)
	defer stream.Close()

	if err := stream.Send("ready", map[string]string{"sessionId": session.ID}); err != nil {
		logger.Warn("Failed to write panel handshake", "session_id", session.ID, "error", err)
		return nil
	}
	logger.Info("Panel stream attached", "session_id", session.ID, "remote_addr", c.RealIP())

	ticker := time.NewTicker(panelKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-streamCtx.Done():
			logger.Info("Panel stream detached", "session_id", session.ID)
			return nil
		case <-ticker.C:
			if err := stream.SendComment("keep-alive"); err != nil {
				return nil
			}
		}
	}
}

// handlePanelResult receives evalScript's result for one pushed script. The
// body carries the sessionId from the stream's "ready" event.
func (s *Server) handlePanelResult(c echo.Context) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxPanelResultBytes))
	if err != nil {
		return validationError("Failed to read request body")
	}
	var result runtimebridge.EvalResult
	if err := json.Unmarshal(body, &result); err != nil {
		return validationError("Invalid JSON body")
	}
	if result.ID == "" {
		return validationError("Missing required field: id")
	}

	if err := s.broker.Ack(result); err != nil {
		if errors.Is(err, runtimebridge.ErrSessionMismatch) {
			logger.Warn("Rejected eval result from another panel session", "eval_id", result.ID, "session_id", result.SessionID)
			return &BridgeError{Kind: KindConflict, Message: "Eval " + result.ID + " belongs to another panel session", Err: err}
		}
		return &BridgeError{Kind: KindNotFound, Message: "Unknown or expired eval id: " + result.ID, Err: err}
	}
	s.panels.Touch()
	return c.JSON(http.StatusOK, Envelope{Status: "success"})
}

func (s *Server) handlePanelStatus(c echo.Context) error {
	status := s.panels.Status()
	status.Pending = s.broker.Pending()
	return c.JSON(http.StatusOK, successEnvelope(status))
}
