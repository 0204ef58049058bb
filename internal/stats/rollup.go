// Package stats propagates graded answers into the per-user taxonomy aggregates.
package stats

import (
	"context"
	"fmt"

	"examprep-service/internal/domain"
	"examprep-service/internal/logger"
)

// AncestorResolver yields the sorted, deduplicated ancestor closure of a tag set.
type AncestorResolver interface {
	Closure(ctx context.Context, ids []string) ([]string, error)
}

// Writer is the transaction-scoped side of the aggregate store.
type Writer interface {
	UpsertUserTaxonomyStats(ctx context.Context, userID, nodeID string, delta domain.StatsDelta) error
}

// Engine rolls one graded answer up every ancestor of the question's tags.
type Engine struct {
	resolver AncestorResolver
	log      *logger.Logger
}

func NewEngine(resolver AncestorResolver, log *logger.Logger) *Engine {
	return &Engine{resolver: resolver, log: log}
}

// Plan resolves the nodes a submission touches. It only reads the taxonomy, so callers
// run it before opening the write transaction.
func (e *Engine) Plan(ctx context.Context, tagIDs []string) ([]string, error) {
	nodes, err := e.resolver.Closure(ctx, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve ancestors: %w", err)
	}
	return nodes, nil
}

// Apply upserts one aggregate row per node. Nodes arrive sorted, which keeps the row
// lock order identical across concurrent submissions of the same user.
func (e *Engine) Apply(ctx context.Context, w Writer, userID string, nodes []string, delta domain.StatsDelta) error {
	for _, node := range nodes {
		if err := w.UpsertUserTaxonomyStats(ctx, userID, node, delta); err != nil {
			return fmt.Errorf("upsert stats %s/%s: %w", userID, node, err)
		}
	}
	e.log.Debug("stats rolled up", "user_id", userID, "nodes", len(nodes), "score", delta.Score, "max_score", delta.MaxScore)
	return nil
}

// Rollup is Plan followed by Apply.
func (e *Engine) Rollup(ctx context.Context, w Writer, userID string, tagIDs []string, delta domain.StatsDelta) error {
	nodes, err := e.Plan(ctx, tagIDs)
	if err != nil {
		return err
	}
	return e.Apply(ctx, w, userID, nodes, delta)
}
