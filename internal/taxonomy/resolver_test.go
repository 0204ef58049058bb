package taxonomy

import (
	"context"
	"fmt"
	"testing"

	"examprep-service/internal/domain"
	"github.com/stretchr/testify/require"
)

// mapReader serves nodes from a map; paths are only returned when withPaths is set.
type mapReader struct {
	nodes     map[string]domain.TaxonomyNode
	withPaths bool
	gets      int
}

func (m *mapReader) GetNode(_ context.Context, id string) (domain.TaxonomyNode, error) {
	m.gets++
	n, ok := m.nodes[id]
	if !ok {
		return domain.TaxonomyNode{}, fmt.Errorf("%w: %s", domain.ErrTaxonomyNodeNotFound, id)
	}
	return n, nil
}

func (m *mapReader) AncestorPath(_ context.Context, id string) ([]string, error) {
	if !m.withPaths {
		return nil, nil
	}
	n, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaxonomyNodeNotFound, id)
	}
	return SplitPath(n.Path), nil
}

func forest() map[string]domain.TaxonomyNode {
	nodes := map[string]domain.TaxonomyNode{}
	add := func(id, parent string) {
		path := id
		if parent != "" {
			path = ChildPath(nodes[parent].Path, id)
		}
		nodes[id] = domain.TaxonomyNode{ID: id, ParentID: parent, Path: path}
	}
	add("S", "")
	add("C", "S")
	add("T1", "C")
	add("T2", "C")
	add("ST", "T1")
	add("S2", "")
	return nodes
}

func TestAncestorsOfBothRepresentations(t *testing.T) {
	for _, withPaths := range []bool{true, false} {
		r := NewResolver(&mapReader{nodes: forest(), withPaths: withPaths}, 0)

		got, err := r.AncestorsOf(context.Background(), "ST")
		require.NoError(t, err)
		require.Equal(t, []string{"ST", "T1", "C", "S"}, got)

		got, err = r.AncestorsOf(context.Background(), "S2")
		require.NoError(t, err)
		require.Equal(t, []string{"S2"}, got)
	}
}

func TestAncestorsOfUsesPathWithoutWalking(t *testing.T) {
	reader := &mapReader{nodes: forest(), withPaths: true}
	r := NewResolver(reader, 0)

	_, err := r.AncestorsOf(context.Background(), "ST")
	require.NoError(t, err)
	require.Zero(t, reader.gets)
}

func TestAncestorsOfDetectsParentCycle(t *testing.T) {
	nodes := map[string]domain.TaxonomyNode{
		"a": {ID: "a", ParentID: "b"},
		"b": {ID: "b", ParentID: "c"},
		"c": {ID: "c", ParentID: "a"},
	}
	r := NewResolver(&mapReader{nodes: nodes}, 0)

	_, err := r.AncestorsOf(context.Background(), "a")
	require.ErrorIs(t, err, domain.ErrTaxonomyCycle)
}

func TestAncestorsOfDetectsCorruptPath(t *testing.T) {
	nodes := map[string]domain.TaxonomyNode{
		"a": {ID: "a", Path: "a.b.a"},
		"b": {ID: "b", Path: "a.x"},
	}
	r := NewResolver(&mapReader{nodes: nodes, withPaths: true}, 0)

	_, err := r.AncestorsOf(context.Background(), "a")
	require.ErrorIs(t, err, domain.ErrTaxonomyCycle)

	_, err = r.AncestorsOf(context.Background(), "b")
	require.ErrorIs(t, err, domain.ErrTaxonomyCycle)
}

func TestAncestorsOfBoundsDepth(t *testing.T) {
	nodes := map[string]domain.TaxonomyNode{}
	parent := ""
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("n%d", i)
		nodes[id] = domain.TaxonomyNode{ID: id, ParentID: parent}
		parent = id
	}
	r := NewResolver(&mapReader{nodes: nodes}, 5)

	_, err := r.AncestorsOf(context.Background(), "n9")
	require.ErrorIs(t, err, domain.ErrTaxonomyCycle)

	got, err := r.AncestorsOf(context.Background(), "n3")
	require.NoError(t, err)
	require.Len(t, got, 4)
}

func TestAncestorsOfMissingNode(t *testing.T) {
	r := NewResolver(&mapReader{nodes: forest()}, 0)
	_, err := r.AncestorsOf(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrTaxonomyNodeNotFound)
}

func TestAncestorsEndAtRootWithoutRepeats(t *testing.T) {
	nodes := forest()
	r := NewResolver(&mapReader{nodes: nodes}, 0)
	for id := range nodes {
		chain, err := r.AncestorsOf(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, id, chain[0])
		require.Empty(t, nodes[chain[len(chain)-1]].ParentID, "chain of %s must end at a root", id)
		seen := map[string]bool{}
		for _, n := range chain {
			require.False(t, seen[n], "chain of %s repeats %s", id, n)
			seen[n] = true
		}
	}
}

func TestClosureDeduplicatesSharedAncestors(t *testing.T) {
	r := NewResolver(&mapReader{nodes: forest(), withPaths: true}, 0)

	got, err := r.Closure(context.Background(), []string{"T1", "T2"})
	require.NoError(t, err)
	require.Equal(t, []string{"C", "S", "T1", "T2"}, got)
}
