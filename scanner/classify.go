package scanner

import (
	"fmt"
	"reflect"
)

// safely calls fn and converts both errors and panics into ok == false.
func safely[T any](fn func() (T, error)) (v T, ok bool) {
	defer func() {
		if recover() != nil {
			var zero T
			v, ok = zero, false
		}
	}()
	v, err := fn()
	if err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

func typeTag(node any) (PropertyType, bool) {
	tagger, ok := node.(TypeTagger)
	if !ok {
		return PropertyTypeUnknown, false
	}
	return safely(tagger.PropertyType)
}

func numProperties(node any) int {
	container, ok := node.(Container)
	if !ok {
		return 0
	}
	n, ok := safely(container.NumProperties)
	if !ok || n < 0 {
		return 0
	}
	return n
}

func property(node any, index int) (any, bool) {
	container, ok := node.(Container)
	if !ok {
		return nil, false
	}
	child, ok := safely(func() (any, error) { return container.Property(index) })
	if !ok || isNil(child) {
		return nil, false
	}
	return child, true
}

func parentOf(node any) (any, bool) {
	parenter, ok := node.(Parenter)
	if !ok {
		return nil, false
	}
	parent, ok := safely(parenter.ParentProperty)
	if !ok || isNil(parent) {
		return nil, false
	}
	return parent, true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func sameNode(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// IsTraversable reports whether node is a group: its type tag says so, or it
// exposes at least one child.
func IsTraversable(node any) bool {
	return Classify(node) == KindGroup
}

// Classify decides whether node is a group or a leaf. Fallback order: group
// type tag, property type tag, child count > 0, then leaf.
func Classify(node any) Kind {
	if isNil(node) {
		return KindUnknown
	}
	if tag, ok := typeTag(node); ok {
		switch tag {
		case PropertyTypeIndexedGroup, PropertyTypeNamedGroup:
			return KindGroup
		case PropertyTypeProperty:
			return KindLeaf
		}
	}
	if numProperties(node) > 0 {
		return KindGroup
	}
	return KindLeaf
}

// StableID returns the node's matchName, else its display name, else a
// positional placeholder.
func StableID(node any, index int) string {
	if m, ok := node.(MatchNamer); ok {
		if id, ok := safely(m.MatchName); ok && id != "" {
			return id
		}
	}
	if n, ok := node.(Namer); ok {
		if name, ok := safely(n.Name); ok && name != "" {
			return name
		}
	}
	return fmt.Sprintf("Property_%d", index)
}

// DisplayName returns the node's display name, falling back to fallback.
func DisplayName(node any, fallback string) string {
	if n, ok := node.(Namer); ok {
		if name, ok := safely(n.Name); ok && name != "" {
			return name
		}
	}
	return fallback
}

func indexOf(node any) int {
	if ix, ok := node.(Indexer); ok {
		if i, ok := safely(ix.PropertyIndex); ok {
			return i
		}
	}
	return 0
}

// Exposed reports whether a leaf should be emitted: it must be enabled and
// settable. CanSetExpression wins over CanSetValue when both are readable.
func Exposed(node any) bool {
	if e, ok := node.(Enabler); ok {
		if enabled, ok := safely(e.Enabled); ok && !enabled {
			return false
		}
	}
	if s, ok := node.(ExpressionSetter); ok {
		if can, ok := safely(s.CanSetExpression); ok {
			return can
		}
	}
	if s, ok := node.(ValueSetter); ok {
		if can, ok := safely(s.CanSetValue); ok {
			return can
		}
	}
	return true
}

// HasExpression reports whether an expression is enabled on node.
func HasExpression(node any) bool {
	if h, ok := node.(ExpressionHolder); ok {
		if enabled, ok := safely(h.ExpressionEnabled); ok {
			return enabled
		}
	}
	return false
}

// ValueString stringifies the node's current value; failures yield "".
func ValueString(node any) string {
	v, ok := node.(Valuer)
	if !ok {
		return ""
	}
	value, ok := safely(v.Value)
	if !ok {
		return ""
	}
	return Stringify(value)
}
