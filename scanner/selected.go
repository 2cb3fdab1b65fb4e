package scanner

// maxParentWalk bounds the parent-chain walk for malformed hosts.
const maxParentWalk = 64

// SelectedLayer is a selected layer together with its selected properties.
// Layer is the layer object itself; the parent walk stops when it reaches it.
type SelectedLayer struct {
	ID         int
	Name       string
	Layer      any
	Properties []any
}

// ScanSelected emits the selected leaf properties of each selected layer.
// Groups in the selection are skipped, not expanded.
func ScanSelected(layers []SelectedLayer) []SelectedProperty {
	out := []SelectedProperty{}
	for _, layer := range layers {
		for _, prop := range layer.Properties {
			if Classify(prop) != KindLeaf || !Exposed(prop) {
				continue
			}
			path := PathOf(prop, layer.Layer)
			out = append(out, SelectedProperty{
				LayerID:       layer.ID,
				LayerName:     layer.Name,
				Name:          DisplayName(prop, StableID(prop, indexOf(prop))),
				Path:          path,
				Value:         ValueString(prop),
				HasExpression: HasExpression(prop),
			})
		}
	}
	return out
}

// PathOf rebuilds node's path by walking parent links up to, but not
// including, root.
func PathOf(node any, root any) string {
	var segments []string
	current := node
	for range maxParentWalk {
		segments = append(segments, StableID(current, indexOf(current)))
		parent, ok := parentOf(current)
		if !ok || (root != nil && sameNode(parent, root)) {
			break
		}
		current = parent
	}
	path := ""
	for i := len(segments) - 1; i >= 0; i-- {
		path = joinPath(path, segments[i])
	}
	return path
}
