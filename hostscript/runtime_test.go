package hostscript

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/slighter12/ae-bridge-go/codec"
	"github.com/slighter12/ae-bridge-go/composition"
	"github.com/slighter12/ae-bridge-go/host"
	"github.com/slighter12/ae-bridge-go/scanner"
)

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	comp, err := composition.Load(filepath.Join("..", "composition", "testdata", "basic.yaml"))
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return New(composition.StaticSource{Comp: comp})
}

func eval(t *testing.T, r *Runtime, source string) string {
	t.Helper()
	out, err := r.Eval(context.Background(), source)
	if err != nil {
		t.Fatalf("eval %q: %v", source, err)
	}
	return out
}

func TestGetLayers(t *testing.T) {
	r := newRuntime(t)
	raw := eval(t, r, host.IncludeScript("/ext/host/index.jsx")+"getLayers()")
	if !codec.IsEncoded(raw) {
		t.Fatalf("expected encoded payload, got %q", raw)
	}
	var layers []scanner.Layer
	if err := codec.DecodeInto(raw, &layers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(layers) != 2 || layers[0].Name != "Title" || layers[1].Type != scanner.LayerSolid {
		t.Fatalf("unexpected layers %+v", layers)
	}
}

func TestGetActiveCompName(t *testing.T) {
	if got := eval(t, newRuntime(t), "getActiveCompName();"); got != "Main Comp" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := eval(t, New(composition.StaticSource{}), "getActiveCompName()"); got != NoActiveCompName {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestGetPropertiesWithOptions(t *testing.T) {
	r := newRuntime(t)
	source := host.Call("getProperties", 1, `{"includeGroups":["ADBE Text Properties"]}`)
	var props []scanner.PropertyNode
	if err := codec.DecodeInto(eval(t, r, source), &props); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []scanner.PropertyNode{{Name: "Source Text", Path: "ADBE Text Properties.ADBE Text Document", Value: "Hello"}}
	if !reflect.DeepEqual(props, want) {
		t.Fatalf("unexpected properties %+v", props)
	}
}

func TestGetPropertiesLegacyEmitsEveryLeaf(t *testing.T) {
	r := newRuntime(t)
	var props []scanner.PropertyNode
	if err := codec.DecodeInto(eval(t, r, "getProperties(1)"), &props); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(props) != 4 {
		t.Fatalf("expected 4 legacy properties, got %+v", props)
	}
	if props[3].Path != "ADBE Transform Group.ADBE Marker Locked" {
		t.Fatalf("unexpected last property %+v", props[3])
	}
}

func TestGetPropertiesErrors(t *testing.T) {
	r := newRuntime(t)
	if got := eval(t, r, "getProperties(9)"); !strings.HasPrefix(got, "Error: ") {
		t.Fatalf("expected error string, got %q", got)
	}
	if got := eval(t, r, `getProperties(1, "{not json")`); !strings.HasPrefix(got, "Error: ") {
		t.Fatalf("expected error string, got %q", got)
	}
	if got := eval(t, New(composition.StaticSource{}), "getLayers()"); got != "Error: No active composition" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestGetSelectedProperties(t *testing.T) {
	var selected []scanner.SelectedProperty
	if err := codec.DecodeInto(eval(t, newRuntime(t), "getSelectedProperties()"), &selected); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(selected) != 2 || selected[1].Name != "Opacity" {
		t.Fatalf("unexpected selection %+v", selected)
	}
}

func TestSetExpression(t *testing.T) {
	r := newRuntime(t)
	source := host.Call("setExpression", 1, "ADBE Transform Group.ADBE Position", "value + [0, \"10\"]\n")
	if got := eval(t, r, source); got != Success {
		t.Fatalf("unexpected result %q", got)
	}

	var props []scanner.PropertyNode
	opts := host.Call("getProperties", 1, `{"includeGroups":["ADBE Transform Group"]}`)
	if err := codec.DecodeInto(eval(t, r, opts), &props); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !props[0].HasExpression {
		t.Fatalf("expected position to carry an expression, got %+v", props[0])
	}

	if got := eval(t, r, host.Call("setExpression", 1, "ADBE Transform Group.Nope", "1")); !strings.HasPrefix(got, "Error: ") {
		t.Fatalf("expected error for unknown path, got %q", got)
	}
	if got := eval(t, r, host.Call("setExpression", 1, "ADBE Transform Group.ADBE Marker Locked", "1")); !strings.HasPrefix(got, "Error: ") {
		t.Fatalf("expected error for locked property, got %q", got)
	}
}

func TestEvalRejectsBadScripts(t *testing.T) {
	r := newRuntime(t)
	for _, source := range []string{"", "getLayers(", "getLayers(1)", "getProperties(\"x\")", "1 + 1"} {
		_, err := r.Eval(context.Background(), source)
		if _, ok := errors.AsType[*host.EvalError](err); !ok {
			t.Fatalf("%q: expected *host.EvalError, got %v", source, err)
		}
	}
}

func TestEvalHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newRuntime(t).Eval(ctx, "getLayers()"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
