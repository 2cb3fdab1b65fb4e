package composition

import (
	"errors"
	"fmt"
	"slices"

	"github.com/slighter12/ae-bridge-go/scanner"
)

// Property is a property or property group.
//
// Kind is "group", "indexed_group", "property" or empty; an empty kind makes
// PropertyType fail so the scanner falls back to duck typing. Broken lists
// capability names that fail on access, e.g. ["canSetExpression"].
type Property struct {
	Match           string      `yaml:"matchName"`
	Label           string      `yaml:"name"`
	Kind            string      `yaml:"kind"`
	Current         any         `yaml:"value"`
	Expr            string      `yaml:"expression"`
	ExprEnabled     *bool       `yaml:"expressionEnabled"`
	IsEnabled       *bool       `yaml:"enabled"`
	AllowExpression *bool       `yaml:"canSetExpression"`
	AllowValue      *bool       `yaml:"canSetValue"`
	Selected        bool        `yaml:"selected"`
	Broken          []string    `yaml:"broken"`
	Children        []*Property `yaml:"properties"`

	parent any
	index  int
}

func (p *Property) validate() error {
	if p == nil {
		return errors.New("empty property entry")
	}
	switch normalizeKind(p.Kind) {
	case "", "group", "indexed_group", "property":
	default:
		return fmt.Errorf("property %q has unknown kind %q", p.Match, p.Kind)
	}
	for _, child := range p.Children {
		if err := child.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Property) broken(capability string) bool {
	return slices.Contains(p.Broken, capability)
}

func (p *Property) MatchName() (string, error) {
	if p.Match == "" || p.broken("matchName") {
		return "", ErrUnsupported
	}
	return p.Match, nil
}

func (p *Property) Name() (string, error) {
	if p.Label == "" || p.broken("name") {
		return "", ErrUnsupported
	}
	return p.Label, nil
}

func (p *Property) PropertyIndex() (int, error) { return p.index, nil }

func (p *Property) PropertyType() (scanner.PropertyType, error) {
	if p.broken("propertyType") {
		return scanner.PropertyTypeUnknown, ErrUnsupported
	}
	switch normalizeKind(p.Kind) {
	case "group":
		return scanner.PropertyTypeNamedGroup, nil
	case "indexed_group":
		return scanner.PropertyTypeIndexedGroup, nil
	case "property":
		return scanner.PropertyTypeProperty, nil
	}
	return scanner.PropertyTypeUnknown, ErrUnsupported
}

func (p *Property) NumProperties() (int, error) {
	if p.broken("numProperties") {
		return 0, ErrUnsupported
	}
	return len(p.Children), nil
}

func (p *Property) Property(index int) (any, error) {
	if index < 1 || index > len(p.Children) {
		return nil, fmt.Errorf("property index %d out of range", index)
	}
	return p.Children[index-1], nil
}

func (p *Property) Enabled() (bool, error) { return p.flag("enabled", p.IsEnabled) }

func (p *Property) CanSetExpression() (bool, error) {
	return p.flag("canSetExpression", p.AllowExpression)
}

func (p *Property) CanSetValue() (bool, error) { return p.flag("canSetValue", p.AllowValue) }

func (p *Property) Value() (any, error) {
	if p.broken("value") {
		return nil, ErrUnsupported
	}
	return p.Current, nil
}

func (p *Property) ExpressionEnabled() (bool, error) {
	if p.broken("expressionEnabled") {
		return false, ErrUnsupported
	}
	if p.ExprEnabled != nil {
		return *p.ExprEnabled, nil
	}
	return p.Expr != "", nil
}

func (p *Property) ParentProperty() (any, error) {
	if p.parent == nil {
		return nil, ErrUnsupported
	}
	return p.parent, nil
}

func (p *Property) flag(name string, v *bool) (bool, error) {
	if v == nil || p.broken(name) {
		return false, ErrUnsupported
	}
	return *v, nil
}

// SetExpression attaches expression to a leaf property. An empty expression
// clears it.
func (p *Property) SetExpression(expression string) error {
	if scanner.Classify(p) != scanner.KindLeaf {
		return fmt.Errorf("%s is a property group", p.id())
	}
	if can, err := p.CanSetExpression(); err == nil && !can {
		return fmt.Errorf("%s cannot have an expression", p.id())
	}
	p.Expr = expression
	enabled := expression != ""
	p.ExprEnabled = &enabled
	return nil
}

func (p *Property) id() string {
	return scanner.StableID(p, p.index)
}
