package host

import (
	"context"

	"github.com/slighter12/ae-bridge-go/runtimebridge"
)

// RelaySurface reaches the host through the CEP panel: scripts are pushed to
// the panel's event stream and the panel posts back evalScript's result.
type RelaySurface struct {
	broker  *runtimebridge.EvalBroker
	include string
}

// NewRelaySurface returns a surface backed by broker. When scriptPath is set,
// every script first loads that host function file.
func NewRelaySurface(broker *runtimebridge.EvalBroker, scriptPath string) *RelaySurface {
	return &RelaySurface{broker: broker, include: IncludeScript(scriptPath)}
}

func (s *RelaySurface) Eval(ctx context.Context, source string) (string, error) {
	result, err := s.broker.DispatchAndWait(ctx, s.include+source)
	if err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", &EvalError{Source: source, Message: result.Error}
	}
	if result.Result == EvalScriptFailure {
		return "", &EvalError{Source: source, Message: result.Result}
	}
	return result.Result, nil
}
