package mock

import (
	"sort"
	"strconv"
	"strings"
)

// tree is a JSON document addressed by slash-separated paths. Interior nodes
// are map[string]any; empty objects and nulls are never stored.
type tree struct {
	root any
}

func splitPath(p string) []string {
	raw := strings.Split(p, "/")
	segs := raw[:0]
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func (t *tree) get(segs []string) any {
	node := t.root
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return clone(node)
}

// set replaces the node at segs. A nil value deletes it.
func (t *tree) set(segs []string, value any) {
	t.root = setAt(t.root, segs, prune(clone(value)))
}

func setAt(node any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}
	m, ok := node.(map[string]any)
	if !ok {
		if value == nil {
			return node
		}
		m = make(map[string]any)
	}
	child := setAt(m[segs[0]], segs[1:], value)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// prune drops nulls and empty objects, returning nil when nothing is left.
// Arrays are stored as objects keyed by index.
func prune(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if p := prune(child); p == nil {
				delete(val, k)
			} else {
				val[k] = p
			}
		}
		if len(val) == 0 {
			return nil
		}
		return val
	case []any:
		m := make(map[string]any, len(val))
		for i, child := range val {
			m[strconv.Itoa(i)] = child
		}
		return prune(m)
	default:
		return v
	}
}

// render turns objects keyed 0..n-1 back into arrays.
func render(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = render(child)
	}
	arr := make([]any, len(m))
	for i := range arr {
		child, ok := m[strconv.Itoa(i)]
		if !ok {
			return m
		}
		arr[i] = child
	}
	return arr
}

func clone(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, child := range m {
		out[k] = clone(child)
	}
	return out
}

// shallow replaces every child of an object with true.
func shallow(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k := range val {
			out[k] = true
		}
		return out
	default:
		return v
	}
}

// limitByKey keeps the first or last n children of an object in key order.
func limitByKey(v any, first, last int) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if first > 0 && first < len(keys) {
		keys = keys[:first]
	}
	if last > 0 && last < len(keys) {
		keys = keys[len(keys)-last:]
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = m[k]
	}
	return out
}
