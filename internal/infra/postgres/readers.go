package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"examprep-service/internal/domain"
	"examprep-service/internal/taxonomy"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// TaxonomyReader reads taxonomy nodes and their materialized paths through pgx.
type TaxonomyReader struct {
	pool *pgxpool.Pool
}

var _ taxonomy.Reader = (*TaxonomyReader)(nil)

func NewTaxonomyReader(pool *pgxpool.Pool) *TaxonomyReader {
	return &TaxonomyReader{pool: pool}
}

func (r *TaxonomyReader) GetNode(ctx context.Context, id string) (domain.TaxonomyNode, error) {
	var n domain.TaxonomyNode
	err := r.pool.QueryRow(ctx,
		`SELECT id, COALESCE(parent_id, ''), name, node_type, path FROM taxonomy WHERE id=$1`, id,
	).Scan(&n.ID, &n.ParentID, &n.Name, &n.NodeType, &n.Path)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TaxonomyNode{}, fmt.Errorf("%w: %s", domain.ErrTaxonomyNodeNotFound, id)
	}
	if err != nil {
		return domain.TaxonomyNode{}, classify("load taxonomy node", err)
	}
	return n, nil
}

func (r *TaxonomyReader) AncestorPath(ctx context.Context, id string) ([]string, error) {
	var path string
	err := r.pool.QueryRow(ctx, `SELECT path FROM taxonomy WHERE id=$1`, id).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaxonomyNodeNotFound, id)
	}
	if err != nil {
		return nil, classify("load taxonomy path", err)
	}
	return taxonomy.SplitPath(path), nil
}

// VersionLoader loads immutable quiz versions with their JSONB snapshot.
type VersionLoader struct {
	pool *pgxpool.Pool
}

func NewVersionLoader(pool *pgxpool.Pool) *VersionLoader {
	return &VersionLoader{pool: pool}
}

func (l *VersionLoader) GetQuizVersion(ctx context.Context, id string) (domain.QuizVersion, error) {
	var (
		v           domain.QuizVersion
		raw         []byte
		publishedAt *time.Time
	)
	err := l.pool.QueryRow(ctx,
		`SELECT id, quiz_id, sequence_number, snapshot, published_at, created_at FROM quiz_versions WHERE id=$1`, id,
	).Scan(&v.ID, &v.QuizID, &v.SequenceNumber, &raw, &publishedAt, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizVersion{}, fmt.Errorf("%w: %s", domain.ErrQuizVersionNotFound, id)
	}
	if err != nil {
		return domain.QuizVersion{}, classify("load quiz version", err)
	}
	if err := json.Unmarshal(raw, &v.Snapshot); err != nil {
		return domain.QuizVersion{}, fmt.Errorf("unmarshal quiz version %s: %w", id, err)
	}
	v.PublishedAt = publishedAt
	return v, nil
}
