// Package taxonomy resolves ancestor closures over the subject hierarchy.
package taxonomy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"examprep-service/internal/domain"
)

// DefaultMaxDepth bounds every ancestor walk.
const DefaultMaxDepth = 32

// PathSeparator joins ids in a materialized path.
const PathSeparator = "."

// Reader is the read side of the taxonomy store.
type Reader interface {
	// GetNode returns the node or domain.ErrTaxonomyNodeNotFound.
	GetNode(ctx context.Context, id string) (domain.TaxonomyNode, error)
	// AncestorPath returns the materialized path root first, self last, or nil when the
	// store does not maintain one for id.
	AncestorPath(ctx context.Context, id string) ([]string, error)
}

// Resolver computes ancestor chains, preferring the materialized path and falling back
// to a bounded parent-pointer walk.
type Resolver struct {
	reader   Reader
	maxDepth int
}

func NewResolver(reader Reader, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{reader: reader, maxDepth: maxDepth}
}

// AncestorsOf returns id first, then its parent, up to the root.
func (r *Resolver) AncestorsOf(ctx context.Context, id string) ([]string, error) {
	path, err := r.reader.AncestorPath(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(path) > 0 {
		return r.fromPath(id, path)
	}
	return r.walk(ctx, id)
}

// Closure returns the deduplicated union of the ancestor chains of every id, sorted.
func (r *Resolver) Closure(ctx context.Context, ids []string) ([]string, error) {
	set := make(map[string]struct{})
	for _, id := range ids {
		chain, err := r.AncestorsOf(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, n := range chain {
			set[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Resolver) fromPath(id string, path []string) ([]string, error) {
	if len(path) > r.maxDepth {
		return nil, fmt.Errorf("%w: path of %q is %d deep (max %d)", domain.ErrTaxonomyCycle, id, len(path), r.maxDepth)
	}
	if path[len(path)-1] != id {
		return nil, fmt.Errorf("%w: path of %q ends at %q", domain.ErrTaxonomyCycle, id, path[len(path)-1])
	}
	seen := make(map[string]struct{}, len(path))
	out := make([]string, 0, len(path))
	for i := len(path) - 1; i >= 0; i-- {
		n := path[i]
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("%w: %q repeats in path of %q", domain.ErrTaxonomyCycle, n, id)
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

func (r *Resolver) walk(ctx context.Context, id string) ([]string, error) {
	seen := make(map[string]struct{})
	out := make([]string, 0, 4)
	cur := id
	for cur != "" {
		if _, dup := seen[cur]; dup {
			return nil, fmt.Errorf("%w: %q reached twice walking from %q", domain.ErrTaxonomyCycle, cur, id)
		}
		if len(out) >= r.maxDepth {
			return nil, fmt.Errorf("%w: walk from %q exceeded depth %d", domain.ErrTaxonomyCycle, id, r.maxDepth)
		}
		node, err := r.reader.GetNode(ctx, cur)
		if err != nil {
			return nil, err
		}
		seen[cur] = struct{}{}
		out = append(out, cur)
		cur = node.ParentID
	}
	return out, nil
}

// SplitPath parses a materialized path; an empty string yields nil.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}

// ChildPath derives a node's materialized path from its parent's.
func ChildPath(parentPath, id string) string {
	if parentPath == "" {
		return id
	}
	return parentPath + PathSeparator + id
}
