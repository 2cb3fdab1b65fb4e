package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/slighter12/ae-bridge-go/config"
	"github.com/slighter12/ae-bridge-go/host"
	"github.com/slighter12/ae-bridge-go/logger"
	"github.com/slighter12/ae-bridge-go/runtimebridge"
)

type Server struct {
	config  *config.Config
	surface host.Surface
	broker  *runtimebridge.EvalBroker
	panels  *PanelSessions
	echo    *echo.Echo
}

// NewServer builds the bridge. broker is the relay broker behind surface when
// scripts go through the CEP panel; it is nil in fixture mode and the panel
// routes are then not registered.
func NewServer(cfg *config.Config, surface host.Surface, broker *runtimebridge.EvalBroker) *Server {
	s := &Server{
		config:  cfg,
		surface: surface,
		broker:  broker,
		panels:  NewPanelSessions(),
		echo:    echo.New(),
	}
	if broker != nil {
		broker.SetSender(s.panels.Send)
	}
	s.setupEcho()
	return s
}

func (s *Server) setupEcho() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.echo.Use(allowAnyOrigin)
	s.echo.Use(requestLogger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	RegisterRoutes(s.echo, s)
}

// Start listens on the configured loopback address until Shutdown.
func (s *Server) Start() error {
	addr := s.config.Address()
	logger.Info("Bridge server starting to listen", "address", addr, "host_mode", s.config.Host.Mode)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes the panel stream and waits for
// in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.panels.CloseAll()
	return s.echo.Shutdown(ctx)
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	bridgeErr, ok := errors.AsType[*BridgeError](err)
	if !ok {
		bridgeErr = fromEchoError(err)
	}
	if bridgeErr.Status() >= http.StatusInternalServerError {
		logger.Error("Bridge request failed", "method", c.Request().Method, "path", c.Request().URL.Path, "kind", bridgeErr.Kind, "error", bridgeErr)
	} else {
		logger.Debug("Bridge request rejected", "method", c.Request().Method, "path", c.Request().URL.Path, "kind", bridgeErr.Kind, "error", bridgeErr)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(bridgeErr.Status())
	} else {
		err = c.JSON(bridgeErr.Status(), bridgeErr.envelope())
	}
	if err != nil {
		logger.Warn("Failed to write error response", "error", err)
	}
}

func fromEchoError(err error) *BridgeError {
	httpErr, ok := errors.AsType[*echo.HTTPError](err)
	if !ok {
		return hostError("Internal server error", err)
	}
	switch httpErr.Code {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return &BridgeError{Kind: KindNotFound, Message: "Not Found", Err: err}
	case http.StatusRequestEntityTooLarge:
		return &BridgeError{Kind: KindTooLarge, Message: "Request body too large", Err: err}
	}
	if httpErr.Code < http.StatusInternalServerError {
		return &BridgeError{Kind: KindValidation, Message: http.StatusText(httpErr.Code), Err: err}
	}
	return hostError(http.StatusText(httpErr.Code), err)
}

func allowAnyOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
		return next(c)
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("Request handled",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Microsecond),
				"remote_addr", v.RemoteIP,
			)
			return nil
		},
	})
}
