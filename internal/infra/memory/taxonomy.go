package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"examprep-service/internal/domain"
	"examprep-service/internal/taxonomy"
)

// Taxonomy is an in-memory taxonomy store that maintains materialized paths on write.
type Taxonomy struct {
	mu    sync.RWMutex
	nodes map[string]domain.TaxonomyNode
}

func NewTaxonomy(nodes ...domain.TaxonomyNode) (*Taxonomy, error) {
	t := &Taxonomy{nodes: make(map[string]domain.TaxonomyNode)}
	for _, n := range nodes {
		if err := t.UpsertNode(context.Background(), n); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// UpsertNode stores n under its parent; parents must be stored first. Moving a node
// rewrites the paths of its whole subtree.
func (t *Taxonomy) UpsertNode(_ context.Context, n domain.TaxonomyNode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	parentPath := ""
	if n.ParentID != "" {
		parent, ok := t.nodes[n.ParentID]
		if !ok {
			return fmt.Errorf("%w: parent %s of %s", domain.ErrTaxonomyNodeNotFound, n.ParentID, n.ID)
		}
		for _, id := range taxonomy.SplitPath(parent.Path) {
			if id == n.ID {
				return fmt.Errorf("%w: %s cannot move under its descendant %s", domain.ErrTaxonomyCycle, n.ID, n.ParentID)
			}
		}
		parentPath = parent.Path
	}
	n.Path = taxonomy.ChildPath(parentPath, n.ID)

	oldPath := t.nodes[n.ID].Path
	t.nodes[n.ID] = n
	if oldPath == "" || oldPath == n.Path {
		return nil
	}
	prefix := oldPath + taxonomy.PathSeparator
	for id, d := range t.nodes {
		if strings.HasPrefix(d.Path, prefix) {
			d.Path = n.Path + d.Path[len(oldPath):]
			t.nodes[id] = d
		}
	}
	return nil
}

// Corrupt overwrites a node verbatim, bypassing path maintenance (tests only).
func (t *Taxonomy) Corrupt(n domain.TaxonomyNode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[n.ID] = n
}

func (t *Taxonomy) GetNode(_ context.Context, id string) (domain.TaxonomyNode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return domain.TaxonomyNode{}, fmt.Errorf("%w: %s", domain.ErrTaxonomyNodeNotFound, id)
	}
	return n, nil
}

func (t *Taxonomy) AncestorPath(ctx context.Context, id string) ([]string, error) {
	n, err := t.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return taxonomy.SplitPath(n.Path), nil
}
