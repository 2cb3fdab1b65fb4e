package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/slighter12/ae-bridge-go/codec"
	"github.com/slighter12/ae-bridge-go/host"
	"github.com/slighter12/ae-bridge-go/logger"
	"github.com/slighter12/ae-bridge-go/scanner"
)

const maxExpressionBodyBytes = 1 << 20

const expressionSetMessage = "Expression set successfully"

var healthBody = []byte(`{"status":"ok"}`)

func RegisterRoutes(e *echo.Echo, s *Server) {
	e.GET("/health", s.handleHealth)
	e.GET("/layers", s.handleLayers)
	e.GET("/properties", s.handleProperties)
	e.GET("/selected-properties", s.handleSelectedProperties)
	e.POST("/expression", s.handleSetExpression)
	e.OPTIONS("/*", s.handleOptions)

	if s.broker != nil {
		e.GET("/host/stream", s.handlePanelStream)
		e.POST("/host/result", s.handlePanelResult)
		e.GET("/host/status", s.handlePanelStatus)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSONBlob(http.StatusOK, healthBody)
}

func (s *Server) handleOptions(c echo.Context) error {
	h := c.Response().Header()
	h.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
	h.Set(echo.HeaderAccessControlAllowHeaders, echo.HeaderContentType)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLayers(c echo.Context) error {
	data, err := s.dispatch(c, host.Call("getLayers"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, successEnvelope(data))
}

func (s *Server) handleSelectedProperties(c echo.Context) error {
	data, err := s.dispatch(c, host.Call("getSelectedProperties"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, successEnvelope(data))
}

func (s *Server) handleProperties(c echo.Context) error {
	layerID, opts, err := parsePropertiesQuery(c)
	if err != nil {
		return err
	}
	optionsJSON, marshalErr := json.Marshal(opts)
	if marshalErr != nil {
		return hostError("Failed to encode scan options", marshalErr)
	}

	data, err := s.dispatch(c, host.Call("getProperties", layerID, string(optionsJSON)))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, successEnvelope(data))
}

func parsePropertiesQuery(c echo.Context) (int, scanner.Options, error) {
	query := c.QueryParams()

	rawLayerID := strings.TrimSpace(query.Get("layerId"))
	if rawLayerID == "" {
		return 0, scanner.Options{}, validationError("Missing layerId")
	}
	layerID, err := strconv.Atoi(rawLayerID)
	if err != nil || layerID <= 0 {
		return 0, scanner.Options{}, validationError("layerId must be a positive integer")
	}

	opts := scanner.Options{
		IncludeGroups: nonEmpty(query["includeGroup"]),
		ExcludeGroups: nonEmpty(query["excludeGroup"]),
	}
	if _, present := query["maxDepth"]; present {
		maxDepth, err := strconv.Atoi(strings.TrimSpace(query.Get("maxDepth")))
		if err != nil || maxDepth <= 0 {
			return 0, scanner.Options{}, validationError("maxDepth must be a positive integer")
		}
		opts.MaxDepth = maxDepth
	}
	return layerID, opts, nil
}

type expressionRequest struct {
	LayerID      int
	PropertyPath string
	Expression   string
}

func (s *Server) handleSetExpression(c echo.Context) error {
	limitedBody := http.MaxBytesReader(c.Response(), c.Request().Body, maxExpressionBodyBytes)
	defer limitedBody.Close()

	body, err := io.ReadAll(limitedBody)
	if err != nil {
		if _, ok := errors.AsType[*http.MaxBytesError](err); ok {
			logger.Warn("Request body too large", "limit_bytes", maxExpressionBodyBytes, "remote_addr", c.RealIP())
			return &BridgeError{Kind: KindTooLarge, Message: "Request body too large", Err: err}
		}
		return validationError("Failed to read request body")
	}

	req, bridgeErr := parseExpressionRequest(body)
	if bridgeErr != nil {
		return bridgeErr
	}

	raw, evalErr := s.surface.Eval(c.Request().Context(), host.Call("setExpression", req.LayerID, req.PropertyPath, req.Expression))
	if evalErr != nil {
		return hostError(evalErr.Error(), evalErr)
	}
	if !expressionSucceeded(raw) {
		return &BridgeError{Kind: KindHost, Message: hostMessage(raw)}
	}
	logger.Info("Expression set", "layerId", req.LayerID, "path", req.PropertyPath)
	return c.JSON(http.StatusOK, Envelope{Status: "success", Message: expressionSetMessage})
}

func parseExpressionRequest(body []byte) (expressionRequest, *BridgeError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return expressionRequest{}, validationError("Invalid JSON body")
	}

	var req expressionRequest
	rawLayerID, ok := fields["layerId"]
	if !ok || isJSONNull(rawLayerID) {
		return req, validationError("Missing required field: layerId")
	}
	if err := json.Unmarshal(rawLayerID, &req.LayerID); err != nil || req.LayerID <= 0 {
		return req, validationError("layerId must be a positive integer")
	}

	rawPath, ok := fields["propertyPath"]
	if !ok || isJSONNull(rawPath) {
		return req, validationError("Missing required field: propertyPath")
	}
	if err := json.Unmarshal(rawPath, &req.PropertyPath); err != nil {
		return req, validationError("propertyPath must be a string")
	}
	if strings.TrimSpace(req.PropertyPath) == "" {
		return req, validationError("Missing required field: propertyPath")
	}

	rawExpression, ok := fields["expression"]
	if !ok || isJSONNull(rawExpression) {
		return req, validationError("Missing required field: expression")
	}
	if err := json.Unmarshal(rawExpression, &req.Expression); err != nil {
		return req, validationError("expression must be a string")
	}
	return req, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// expressionSucceeded accepts the bare legacy "success" as well as an encoded
// "success" string or {status:"success"} object.
func expressionSucceeded(raw string) bool {
	if strings.TrimSpace(raw) == "success" {
		return true
	}
	decoded, err := codec.Decode(raw)
	if err != nil {
		return false
	}
	switch v := decoded.(type) {
	case string:
		return v == "success"
	case map[string]any:
		return v["status"] == "success"
	}
	return false
}

// dispatch evaluates script and decodes the host's answer into response data.
func (s *Server) dispatch(c echo.Context, script string) (any, error) {
	raw, err := s.surface.Eval(c.Request().Context(), script)
	if err != nil {
		return nil, hostError(err.Error(), err)
	}
	if isHostErrorString(raw) {
		return nil, &BridgeError{Kind: KindHost, Message: hostMessage(raw)}
	}

	decoded, err := codec.Decode(raw)
	if err != nil {
		return nil, decodeError(raw, err)
	}

	// The host's generic call wrapper answers {status, data|message}.
	if obj, ok := decoded.(map[string]any); ok {
		switch obj["status"] {
		case "error":
			msg, _ := obj["message"].(string)
			if msg == "" {
				msg = "Host reported an error"
			}
			return nil, &BridgeError{Kind: KindHost, Message: msg}
		case "success":
			if data, ok := obj["data"]; ok {
				return data, nil
			}
		}
	}
	return decoded, nil
}

func isHostErrorString(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "Error:")
}

func hostMessage(raw string) string {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return "Host returned an empty result"
	}
	return msg
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
