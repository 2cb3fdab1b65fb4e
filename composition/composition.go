// Package composition is an in-memory model of a host composition: layers and
// their property trees, loadable from YAML fixtures. Nodes implement the
// scanner capability interfaces; optional flags left unset behave like a host
// property that throws on access.
package composition

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/slighter12/ae-bridge-go/scanner"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnsupported         = errors.New("attribute is not supported on this property")
	ErrNoActiveComposition = errors.New("no active composition")
)

// Composition is the active composition.
type Composition struct {
	Label  string   `yaml:"name"`
	Layers []*Layer `yaml:"layers"`
}

// Layer is one composition layer. Its top-level properties are its children.
type Layer struct {
	Label    string      `yaml:"name"`
	Type     string      `yaml:"type"`
	Match    string      `yaml:"matchName"`
	Selected bool        `yaml:"selected"`
	Children []*Property `yaml:"properties"`
}

// Parse decodes a YAML fixture and links parent pointers.
func Parse(data []byte) (*Composition, error) {
	var comp Composition
	if err := yaml.Unmarshal(data, &comp); err != nil {
		return nil, fmt.Errorf("failed to parse composition: %w", err)
	}
	if err := comp.validate(); err != nil {
		return nil, err
	}
	comp.link()
	return &comp, nil
}

// Load reads and parses a YAML fixture file.
func Load(path string) (*Composition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read composition: %w", err)
	}
	return Parse(data)
}

func (c *Composition) validate() error {
	for i, layer := range c.Layers {
		if layer == nil {
			return fmt.Errorf("layer %d is empty", i+1)
		}
		for _, p := range layer.Children {
			if err := p.validate(); err != nil {
				return fmt.Errorf("layer %d (%s): %w", i+1, layer.Label, err)
			}
		}
	}
	return nil
}

func (c *Composition) link() {
	for _, layer := range c.Layers {
		linkChildren(layer, layer.Children)
	}
}

func linkChildren(parent any, children []*Property) {
	for i, child := range children {
		child.parent = parent
		child.index = i + 1
		linkChildren(child, child.Children)
	}
}

// Layer returns the layer with the given 1-based index.
func (c *Composition) Layer(id int) (*Layer, bool) {
	if id < 1 || id > len(c.Layers) {
		return nil, false
	}
	return c.Layers[id-1], true
}

// LayerSummaries lists every layer with its index and normalized type.
func (c *Composition) LayerSummaries() []scanner.Layer {
	out := make([]scanner.Layer, 0, len(c.Layers))
	for i, layer := range c.Layers {
		out = append(out, scanner.Layer{ID: i + 1, Name: layer.Label, Type: scanner.LayerTypeOf(layer.Type)})
	}
	return out
}

// Selection returns the selected layers and their selected properties in
// tree order.
func (c *Composition) Selection() []scanner.SelectedLayer {
	var out []scanner.SelectedLayer
	for i, layer := range c.Layers {
		if !layer.Selected {
			continue
		}
		var props []any
		collectSelected(layer.Children, &props)
		out = append(out, scanner.SelectedLayer{ID: i + 1, Name: layer.Label, Layer: layer, Properties: props})
	}
	return out
}

func collectSelected(props []*Property, out *[]any) {
	for _, p := range props {
		if p.Selected {
			*out = append(*out, p)
		}
		collectSelected(p.Children, out)
	}
}

func (l *Layer) MatchName() (string, error) {
	if l.Match == "" {
		return "", ErrUnsupported
	}
	return l.Match, nil
}

func (l *Layer) Name() (string, error) { return l.Label, nil }

func (l *Layer) NumProperties() (int, error) { return len(l.Children), nil }

func (l *Layer) Property(index int) (any, error) {
	if index < 1 || index > len(l.Children) {
		return nil, fmt.Errorf("property index %d out of range", index)
	}
	return l.Children[index-1], nil
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
