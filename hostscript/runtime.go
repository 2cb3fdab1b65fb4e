// Package hostscript runs host function calls against an in-memory
// composition. It answers the same script-source strings the CEP panel would
// evaluate and returns the same strings the host function file produces.
package hostscript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/slighter12/ae-bridge-go/codec"
	"github.com/slighter12/ae-bridge-go/composition"
	"github.com/slighter12/ae-bridge-go/host"
	"github.com/slighter12/ae-bridge-go/logger"
	"github.com/slighter12/ae-bridge-go/scanner"
)

const (
	// Success is what setExpression returns once the expression is applied.
	Success = "success"
	// NoActiveCompName is getActiveCompName's answer without a composition.
	NoActiveCompName = "No active composition."
)

const errorStringPrefix = "Error: "

var includePattern = regexp.MustCompile(`^\s*\$\.evalFile\(\s*"(?:[^"\\]|\\.)*"\s*\)\s*;`)

// Runtime implements host.Surface. Calls are serialised like the host's
// single script engine, and the composition is fetched again on every call.
type Runtime struct {
	source composition.Source
	mu     sync.Mutex
}

func New(source composition.Source) *Runtime {
	return &Runtime{source: source}
}

var _ host.Surface = (*Runtime)(nil)

func (r *Runtime) Eval(ctx context.Context, source string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	call := stripInclude(source)
	if call == "" {
		return "", &host.EvalError{Source: source, Message: "empty script"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	program, err := expr.Compile(call, r.functions()...)
	if err != nil {
		logger.Debug("Host script rejected", "script", call, "error", err)
		return "", &host.EvalError{Source: source, Message: err.Error()}
	}
	output, err := expr.Run(program, nil)
	if err != nil {
		return "", &host.EvalError{Source: source, Message: err.Error()}
	}
	result, ok := output.(string)
	if !ok {
		return "", &host.EvalError{Source: source, Message: fmt.Sprintf("script returned %T, not a string", output)}
	}
	return result, nil
}

func stripInclude(source string) string {
	source = includePattern.ReplaceAllString(source, "")
	source = strings.TrimSpace(source)
	return strings.TrimSpace(strings.TrimSuffix(source, ";"))
}

func (r *Runtime) functions() []expr.Option {
	return []expr.Option{
		expr.Function("getActiveCompName", func(params ...any) (any, error) {
			if err := arity("getActiveCompName", params, 0, 0); err != nil {
				return nil, err
			}
			return r.activeCompName(), nil
		}),
		expr.Function("getLayers", func(params ...any) (any, error) {
			if err := arity("getLayers", params, 0, 0); err != nil {
				return nil, err
			}
			return r.getLayers(), nil
		}),
		expr.Function("getProperties", func(params ...any) (any, error) {
			if err := arity("getProperties", params, 1, 2); err != nil {
				return nil, err
			}
			id, err := intArg(params[0])
			if err != nil {
				return nil, err
			}
			options := ""
			if len(params) == 2 {
				if options, err = stringArg(params[1]); err != nil {
					return nil, err
				}
			}
			return r.getProperties(id, options), nil
		}),
		expr.Function("getSelectedProperties", func(params ...any) (any, error) {
			if err := arity("getSelectedProperties", params, 0, 0); err != nil {
				return nil, err
			}
			return r.getSelectedProperties(), nil
		}),
		expr.Function("setExpression", func(params ...any) (any, error) {
			if err := arity("setExpression", params, 3, 3); err != nil {
				return nil, err
			}
			id, err := intArg(params[0])
			if err != nil {
				return nil, err
			}
			path, err := stringArg(params[1])
			if err != nil {
				return nil, err
			}
			expression, err := stringArg(params[2])
			if err != nil {
				return nil, err
			}
			return r.setExpression(id, path, expression), nil
		}),
	}
}

func (r *Runtime) activeCompName() string {
	comp, err := r.source.Active()
	if err != nil {
		return NoActiveCompName
	}
	return comp.Label
}

func (r *Runtime) getLayers() string {
	comp, err := r.source.Active()
	if err != nil {
		return hostError(err)
	}
	return encode(comp.LayerSummaries())
}

func (r *Runtime) getProperties(id int, options string) string {
	layer, errText := r.layer(id)
	if errText != "" {
		return errText
	}
	if strings.TrimSpace(options) == "" {
		return encode(scanner.ScanLegacy(layer))
	}
	var opts scanner.Options
	if err := json.Unmarshal([]byte(options), &opts); err != nil {
		return hostError(fmt.Errorf("invalid scan options: %w", err))
	}
	return encode(scanner.Scan(layer, opts))
}

func (r *Runtime) getSelectedProperties() string {
	comp, err := r.source.Active()
	if err != nil {
		return hostError(err)
	}
	return encode(scanner.ScanSelected(comp.Selection()))
}

func (r *Runtime) setExpression(id int, path, expression string) string {
	layer, errText := r.layer(id)
	if errText != "" {
		return errText
	}
	node, ok := scanner.Find(layer, path)
	if !ok {
		return hostError(fmt.Errorf("property %q not found on layer %d", path, id))
	}
	prop, ok := node.(*composition.Property)
	if !ok {
		return hostError(fmt.Errorf("property %q cannot have an expression", path))
	}
	if err := prop.SetExpression(expression); err != nil {
		return hostError(err)
	}
	logger.Debug("Expression set", "layerId", id, "path", path)
	return Success
}

func (r *Runtime) layer(id int) (*composition.Layer, string) {
	comp, err := r.source.Active()
	if err != nil {
		return nil, hostError(err)
	}
	layer, ok := comp.Layer(id)
	if !ok {
		return nil, hostError(fmt.Errorf("layer %d not found", id))
	}
	return layer, ""
}

func encode(v any) string {
	payload, err := codec.Encode(v)
	if err != nil {
		return hostError(err)
	}
	return payload
}

func hostError(err error) string {
	msg := err.Error()
	if errors.Is(err, composition.ErrNoActiveComposition) {
		msg = "No active composition"
	}
	return errorStringPrefix + msg
}

func arity(name string, params []any, minArgs, maxArgs int) error {
	if len(params) < minArgs || len(params) > maxArgs {
		return fmt.Errorf("%s: unexpected argument count %d", name, len(params))
	}
	return nil
}

func intArg(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n), nil
		}
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed, nil
		}
	}
	return 0, fmt.Errorf("expected an integer argument, got %v", v)
}

func stringArg(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected a string argument, got %T", v)
	}
	return s, nil
}
