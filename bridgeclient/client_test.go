package bridgeclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/slighter12/ae-bridge-go/scanner"
)

func TestLayersAndHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			io.WriteString(w, `{"status":"ok"}`)
		case "/layers":
			io.WriteString(w, `{"status":"success","data":[{"id":1,"name":"Title","type":"Text"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := New(ts.URL + "/")
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	layers, err := c.Layers(context.Background())
	if err != nil {
		t.Fatalf("layers: %v", err)
	}
	want := []scanner.Layer{{ID: 1, Name: "Title", Type: scanner.LayerText}}
	if !reflect.DeepEqual(layers, want) {
		t.Fatalf("unexpected layers %+v", layers)
	}
}

func TestPropertiesQuery(t *testing.T) {
	var gotQuery map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		io.WriteString(w, `{"status":"success","data":[{"name":"Opacity","path":"ADBE Transform Group.ADBE Opacity","value":"100","hasExpression":true}]}`)
	}))
	defer ts.Close()

	props, err := New(ts.URL).Properties(context.Background(), 2, scanner.Options{
		IncludeGroups: []string{"ADBE Transform Group", " "},
		ExcludeGroups: []string{"ADBE Effect Parade"},
		MaxDepth:      3,
	})
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	if len(props) != 1 || !props[0].HasExpression {
		t.Fatalf("unexpected properties %+v", props)
	}
	want := map[string][]string{
		"layerId":      {"2"},
		"includeGroup": {"ADBE Transform Group"},
		"excludeGroup": {"ADBE Effect Parade"},
		"maxDepth":     {"3"},
	}
	if !reflect.DeepEqual(gotQuery, want) {
		t.Fatalf("unexpected query %v", gotQuery)
	}
}

func TestClientSideValidation(t *testing.T) {
	c := New("http://127.0.0.1:1")
	if _, err := c.Properties(context.Background(), 0, scanner.Options{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := c.SetExpression(context.Background(), 1, " ", "1"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSetExpression(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/expression" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&body)
		io.WriteString(w, `{"status":"success","message":"Expression set successfully"}`)
	}))
	defer ts.Close()

	msg, err := New(ts.URL).SetExpression(context.Background(), 1, "ADBE Transform Group.ADBE Position", "")
	if err != nil {
		t.Fatalf("set expression: %v", err)
	}
	if msg != "Expression set successfully" {
		t.Fatalf("unexpected message %q", msg)
	}
	if body["expression"] != "" || body["layerId"] != float64(1) {
		t.Fatalf("unexpected request body %v", body)
	}
}

func TestErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"status":"error","message":"Failed to decode host result","rawResult":"__ENC__%ZZ"}`)
	}))
	defer ts.Close()

	_, err := New(ts.URL).SelectedProperties(context.Background())
	bridgeErr, ok := errors.AsType[*BridgeError](err)
	if !ok {
		t.Fatalf("expected *BridgeError, got %v", err)
	}
	if bridgeErr.StatusCode != http.StatusInternalServerError || bridgeErr.RawResult != "__ENC__%ZZ" {
		t.Fatalf("unexpected error %+v", bridgeErr)
	}
}

func TestNonEnvelopeResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := New(ts.URL).Layers(context.Background())
	if bridgeErr, ok := errors.AsType[*BridgeError](err); !ok || bridgeErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 bridge error, got %v", err)
	}
}
