package scanner

import "strings"

// LegacyGroups is the fixed top-level allowlist scanned when no options are
// given.
var LegacyGroups = []string{
	"ADBE Transform Group",
	"ADBE Effect Parade",
	"ADBE Text Properties",
	"ADBE Root Vectors Group",
}

type walker struct {
	include   map[string]struct{}
	exclude   map[string]struct{}
	maxDepth  int
	exposeAll bool
	out       []PropertyNode
}

// Scan flattens the property tree under root, depth-first and pre-order, in
// the host's native child order. root itself contributes no path segment.
func Scan(root any, opts Options) []PropertyNode {
	w := &walker{
		include:  toSet(opts.IncludeGroups),
		exclude:  toSet(opts.ExcludeGroups),
		maxDepth: opts.MaxDepth,
		out:      []PropertyNode{},
	}
	w.visit(root, "", 0)
	return w.out
}

// ScanLegacy scans only LegacyGroups, without a depth limit, and emits every
// leaf regardless of its settable flags.
func ScanLegacy(root any) []PropertyNode {
	w := &walker{
		include:   toSet(LegacyGroups),
		exposeAll: true,
		out:       []PropertyNode{},
	}
	w.visit(root, "", 0)
	return w.out
}

func (w *walker) visit(container any, prefix string, depth int) {
	if w.maxDepth > 0 && depth >= w.maxDepth {
		return
	}
	n := numProperties(container)
	for i := 1; i <= n; i++ {
		child, ok := property(container, i)
		if !ok {
			continue
		}
		id := StableID(child, i)
		if depth == 0 && !w.topLevelAllowed(id) {
			continue
		}
		path := joinPath(prefix, id)

		switch Classify(child) {
		case KindGroup:
			if w.maxDepth <= 0 || depth+1 < w.maxDepth {
				w.visit(child, path, depth+1)
			}
		case KindLeaf:
			if w.exposeAll || Exposed(child) {
				w.out = append(w.out, PropertyNode{
					Name:          DisplayName(child, id),
					Path:          path,
					Value:         ValueString(child),
					HasExpression: HasExpression(child),
				})
			}
		}
	}
}

func (w *walker) topLevelAllowed(id string) bool {
	if len(w.include) > 0 {
		if _, ok := w.include[id]; !ok {
			return false
		}
	}
	_, excluded := w.exclude[id]
	return !excluded
}

// Find resolves a dot-joined path of stable ids below root. Ids may contain
// dots themselves, so the longest matching id wins at each level.
func Find(root any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	return find(root, path)
}

func find(container any, rest string) (any, bool) {
	var best any
	bestLen := -1
	n := numProperties(container)
	for i := 1; i <= n; i++ {
		child, ok := property(container, i)
		if !ok {
			continue
		}
		id := StableID(child, i)
		if rest == id {
			return child, true
		}
		if strings.HasPrefix(rest, id+".") && len(id) > bestLen {
			best, bestLen = child, len(id)
		}
	}
	if bestLen < 0 {
		return nil, false
	}
	return find(best, rest[bestLen+1:])
}

func joinPath(prefix, id string) string {
	if prefix == "" {
		return id
	}
	return prefix + "." + id
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
