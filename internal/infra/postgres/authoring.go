package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"examprep-service/internal/domain"
	"examprep-service/internal/taxonomy"
	"github.com/uptrace/bun"
)

// Authoring writes the mutable taxonomy, questions and quizzes. It stands in for the
// authoring collaborator and is used by the seed command and the integration tests.
type Authoring struct {
	db *bun.DB
}

func NewAuthoring(db *bun.DB) *Authoring {
	return &Authoring{db: db}
}

// UpsertNode stores n and derives its materialized path from the parent. Moving a node
// rewrites the paths of its whole subtree in the same transaction.
func (a *Authoring) UpsertNode(ctx context.Context, n domain.TaxonomyNode) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		parentPath := ""
		if n.ParentID != "" {
			err := tx.NewSelect().Model((*taxonomyRow)(nil)).Column("path").Where("id = ?", n.ParentID).Scan(ctx, &parentPath)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: parent %s of %s", domain.ErrTaxonomyNodeNotFound, n.ParentID, n.ID)
			}
			if err != nil {
				return err
			}
			for _, id := range taxonomy.SplitPath(parentPath) {
				if id == n.ID {
					return fmt.Errorf("%w: %s cannot move under its descendant %s", domain.ErrTaxonomyCycle, n.ID, n.ParentID)
				}
			}
		}
		path := taxonomy.ChildPath(parentPath, n.ID)

		var oldPath string
		err := tx.NewSelect().Model((*taxonomyRow)(nil)).Column("path").Where("id = ?", n.ID).Scan(ctx, &oldPath)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		row := &taxonomyRow{ID: n.ID, ParentID: n.ParentID, Name: n.Name, NodeType: n.NodeType, Path: path}
		_, err = tx.NewInsert().Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("parent_id = EXCLUDED.parent_id").
			Set("name = EXCLUDED.name").
			Set("node_type = EXCLUDED.node_type").
			Set("path = EXCLUDED.path").
			Exec(ctx)
		if err != nil {
			return err
		}

		if oldPath != "" && oldPath != path {
			_, err = tx.NewUpdate().Model((*taxonomyRow)(nil)).
				Set("path = ? || substr(path, char_length(CAST(? AS text)) + 1)", path, oldPath).
				Where("starts_with(path, ?)", oldPath+taxonomy.PathSeparator).
				Exec(ctx)
		}
		return err
	})
}

// UpsertQuestion replaces a question and its taxonomy tags.
func (a *Authoring) UpsertQuestion(ctx context.Context, q domain.Question) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := &questionRow{ID: q.ID, Title: q.Title, Body: q.Body, Parts: q.Parts}
		_, err := tx.NewInsert().Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("body = EXCLUDED.body").
			Set("parts = EXCLUDED.parts").
			Set("updated_at = now()").
			Exec(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*questionTaxonomyRow)(nil)).Where("question_id = ?", q.ID).Exec(ctx); err != nil {
			return err
		}
		if len(q.TaxonomyIDs) == 0 {
			return nil
		}
		tags := make([]questionTaxonomyRow, 0, len(q.TaxonomyIDs))
		for _, id := range q.TaxonomyIDs {
			tags = append(tags, questionTaxonomyRow{QuestionID: q.ID, TaxonomyID: id})
		}
		_, err = tx.NewInsert().Model(&tags).On("CONFLICT DO NOTHING").Exec(ctx)
		return err
	})
}

// UpsertQuiz replaces a quiz and its ordered question list.
func (a *Authoring) UpsertQuiz(ctx context.Context, q domain.Quiz) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := &quizRow{ID: q.ID, Title: q.Title, Description: q.Description, Settings: q.Settings}
		_, err := tx.NewInsert().Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("description = EXCLUDED.description").
			Set("settings = EXCLUDED.settings").
			Set("updated_at = now()").
			Exec(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*quizQuestionRow)(nil)).Where("quiz_id = ?", q.ID).Exec(ctx); err != nil {
			return err
		}
		if len(q.QuestionIDs) == 0 {
			return nil
		}
		links := make([]quizQuestionRow, len(q.QuestionIDs))
		for i, id := range q.QuestionIDs {
			links[i] = quizQuestionRow{QuizID: q.ID, QuestionID: id, Position: i + 1}
		}
		_, err = tx.NewInsert().Model(&links).Exec(ctx)
		return err
	})
}
