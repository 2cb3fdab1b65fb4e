// Package scanner walks a layer's property tree and flattens it into
// (path, value, hasExpression) records.
//
// Host objects are duck-typed: a node is any value and each capability is an
// optional interface. The host's type tags are unreliable, so every accessor
// may fail or panic; both are treated as "capability absent".
package scanner

import "strings"

// LayerType names the kind of a composition layer.
type LayerType string

const (
	LayerText    LayerType = "Text"
	LayerShape   LayerType = "Shape"
	LayerPreComp LayerType = "PreComp"
	LayerVideo   LayerType = "Video"
	LayerAudio   LayerType = "Audio"
	LayerSolid   LayerType = "Solid"
	LayerCamera  LayerType = "Camera"
	LayerLight   LayerType = "Light"
	LayerAV      LayerType = "AVLayer"
	LayerUnknown LayerType = "Unknown"
)

var layerTypes = []LayerType{
	LayerText, LayerShape, LayerPreComp, LayerVideo, LayerAudio,
	LayerSolid, LayerCamera, LayerLight, LayerAV,
}

// LayerTypeOf maps a loose type hint onto a LayerType.
func LayerTypeOf(hint string) LayerType {
	hint = strings.TrimSpace(hint)
	for _, lt := range layerTypes {
		if strings.EqualFold(hint, string(lt)) {
			return lt
		}
	}
	switch strings.ToLower(hint) {
	case "textlayer":
		return LayerText
	case "shapelayer":
		return LayerShape
	case "precomposition", "comp", "compitem":
		return LayerPreComp
	case "footage":
		return LayerVideo
	case "cameralayer":
		return LayerCamera
	case "lightlayer":
		return LayerLight
	}
	return LayerUnknown
}

// Layer is one entry of the active composition. ID is the 1-based layer index.
type Layer struct {
	ID   int       `json:"id"`
	Name string    `json:"name"`
	Type LayerType `json:"type"`
}

// PropertyNode is one exposed leaf property.
type PropertyNode struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	Value         string `json:"value"`
	HasExpression bool   `json:"hasExpression"`
}

// SelectedProperty is a selected leaf property together with its layer.
type SelectedProperty struct {
	LayerID       int    `json:"layerId"`
	LayerName     string `json:"layerName"`
	Name          string `json:"name"`
	Path          string `json:"path"`
	Value         string `json:"value"`
	HasExpression bool   `json:"hasExpression"`
}

// Options scopes a scan. IncludeGroups and ExcludeGroups only apply to the
// top-level groups directly under the layer. MaxDepth <= 0 means unbounded.
type Options struct {
	IncludeGroups []string `json:"includeGroups,omitempty"`
	ExcludeGroups []string `json:"excludeGroups,omitempty"`
	MaxDepth      int      `json:"maxDepth,omitempty"`
}

// PropertyType is the host's own type tag.
type PropertyType int

const (
	PropertyTypeUnknown PropertyType = iota
	PropertyTypeProperty
	PropertyTypeIndexedGroup
	PropertyTypeNamedGroup
)

// Kind is the result of Classify.
type Kind int

const (
	KindUnknown Kind = iota
	KindGroup
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// Capability interfaces a host node may implement.
type (
	MatchNamer interface {
		MatchName() (string, error)
	}
	Namer interface {
		Name() (string, error)
	}
	Indexer interface {
		PropertyIndex() (int, error)
	}
	TypeTagger interface {
		PropertyType() (PropertyType, error)
	}
	Container interface {
		NumProperties() (int, error)
		Property(index int) (any, error)
	}
	Enabler interface {
		Enabled() (bool, error)
	}
	ExpressionSetter interface {
		CanSetExpression() (bool, error)
	}
	ValueSetter interface {
		CanSetValue() (bool, error)
	}
	Valuer interface {
		Value() (any, error)
	}
	ExpressionHolder interface {
		ExpressionEnabled() (bool, error)
	}
	Parenter interface {
		ParentProperty() (any, error)
	}
)
