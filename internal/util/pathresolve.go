// Package util provides small generic helpers shared by the import pipeline.
package util

import "slices"

// PathResolver turns parent links into full paths. Each node contributes one
// segment and its path is its parent's path plus that segment.
//
// Resolution is memoized and tolerates cycles: a node reached again while it is
// still being resolved contributes only its own segment, so A -> B -> A yields
// a finite path instead of recursing forever.
type PathResolver[K comparable] struct {
	segment func(K) string
	parent  func(K) (K, bool)

	cache    map[K][]string
	visiting map[K]bool
}

// NewPathResolver creates a resolver. segment returns a node's own path
// segment; parent returns the node's parent and whether it is known.
func NewPathResolver[K comparable](segment func(K) string, parent func(K) (K, bool)) *PathResolver[K] {
	return &PathResolver[K]{
		segment:  segment,
		parent:   parent,
		cache:    make(map[K][]string),
		visiting: make(map[K]bool),
	}
}

// Resolve returns the full path of key. The returned slice is owned by the caller.
func (r *PathResolver[K]) Resolve(key K) []string {
	return slices.Clone(r.resolve(key))
}

func (r *PathResolver[K]) resolve(key K) []string {
	if cached, ok := r.cache[key]; ok {
		return cached
	}

	own := r.segment(key)
	if r.visiting[key] {
		return []string{own}
	}

	r.visiting[key] = true
	var parentPath []string
	if p, ok := r.parent(key); ok {
		parentPath = r.resolve(p)
	}
	delete(r.visiting, key)

	resolved := make([]string, 0, len(parentPath)+1)
	resolved = append(resolved, parentPath...)
	resolved = append(resolved, own)
	r.cache[key] = resolved
	return resolved
}
