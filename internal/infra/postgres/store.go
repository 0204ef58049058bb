package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"examprep-service/internal/domain"
	"examprep-service/internal/store"
	"github.com/uptrace/bun"
)

// Store runs units of work in READ COMMITTED transactions. Row locks taken inside a
// unit (quiz row on publish, attempt row on submit and finish) serialize the writers
// that need it; stats rows rely on the upsert being a single atomic statement.
type Store struct {
	db *bun.DB
}

var _ store.Store = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
	return classify("tx", err)
}

type pgTx struct {
	tx bun.Tx
}

func notFound(err error, sentinel error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
	}
	return err
}

func (t *pgTx) LockQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var row quizRow
	err := t.tx.NewSelect().Model(&row).Where("qz.id = ?", quizID).For("UPDATE").Scan(ctx)
	if err != nil {
		return domain.Quiz{}, notFound(err, domain.ErrQuizNotFound, "%s", quizID)
	}

	var ids []string
	err = t.tx.NewSelect().Model((*quizQuestionRow)(nil)).
		Column("question_id").
		Where("quiz_id = ?", quizID).
		OrderExpr("position ASC").
		Scan(ctx, &ids)
	if err != nil {
		return domain.Quiz{}, err
	}
	return domain.Quiz{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Settings:    row.Settings,
		QuestionIDs: ids,
	}, nil
}

func (t *pgTx) QuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var rows []questionRow
	err := t.tx.NewSelect().Model(&rows).
		Join("JOIN quiz_questions AS qq ON qq.question_id = q.id").
		Where("qq.quiz_id = ?", quizID).
		OrderExpr("qq.position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	var tags []questionTaxonomyRow
	err = t.tx.NewSelect().Model(&tags).
		Where("question_id IN (?)", bun.In(ids)).
		OrderExpr("taxonomy_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[string][]string, len(rows))
	for _, tag := range tags {
		byQuestion[tag.QuestionID] = append(byQuestion[tag.QuestionID], tag.TaxonomyID)
	}

	out := make([]domain.Question, len(rows))
	for i, r := range rows {
		out[i] = domain.Question{
			ID:          r.ID,
			Title:       r.Title,
			Body:        r.Body,
			Parts:       r.Parts,
			TaxonomyIDs: byQuestion[r.ID],
		}
	}
	return out, nil
}

func (t *pgTx) CreateQuestionVersion(ctx context.Context, v domain.QuestionVersion) (bool, error) {
	row := &questionVersionRow{
		ID:          v.ID,
		QuestionID:  v.QuestionID,
		Fingerprint: v.Fingerprint,
		Snapshot:    v.Snapshot,
		CreatedAt:   v.CreatedAt,
	}
	res, err := t.tx.NewInsert().Model(row).On("CONFLICT (fingerprint) DO NOTHING").Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *pgTx) QuestionVersionByFingerprint(ctx context.Context, fingerprint string) (domain.QuestionVersion, error) {
	var row questionVersionRow
	if err := t.tx.NewSelect().Model(&row).Where("fingerprint = ?", fingerprint).Scan(ctx); err != nil {
		return domain.QuestionVersion{}, notFound(err, domain.ErrQuestionNotFound, "fingerprint %s", fingerprint)
	}
	return row.toDomain(), nil
}

func (t *pgTx) CountQuestionVersions(ctx context.Context, questionID string) (int, error) {
	return t.tx.NewSelect().Model((*questionVersionRow)(nil)).Where("question_id = ?", questionID).Count(ctx)
}

func (t *pgTx) NextQuizVersionSequence(ctx context.Context, quizID string) (int, error) {
	var next int
	err := t.tx.NewSelect().Model((*quizVersionRow)(nil)).
		ColumnExpr("COALESCE(MAX(sequence_number), 0) + 1").
		Where("quiz_id = ?", quizID).
		Scan(ctx, &next)
	return next, err
}

func (t *pgTx) CreateQuizVersion(ctx context.Context, v domain.QuizVersion) error {
	row := &quizVersionRow{
		ID:             v.ID,
		QuizID:         v.QuizID,
		SequenceNumber: v.SequenceNumber,
		Snapshot:       v.Snapshot,
		PublishedAt:    v.PublishedAt,
		CreatedAt:      v.CreatedAt,
	}
	if _, err := t.tx.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return &domain.TransientError{Op: "create quiz version", Err: err}
		}
		return err
	}
	return nil
}

func (t *pgTx) LatestPublishedQuizVersion(ctx context.Context, quizID string) (domain.QuizVersion, error) {
	var row quizVersionRow
	err := t.tx.NewSelect().Model(&row).
		Where("quiz_id = ?", quizID).
		Where("published_at IS NOT NULL").
		OrderExpr("sequence_number DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.QuizVersion{}, notFound(err, domain.ErrNoPublishedVersion, "%s", quizID)
	}
	return row.toDomain(), nil
}

func (t *pgTx) QuizVersion(ctx context.Context, id string) (domain.QuizVersion, error) {
	var row quizVersionRow
	if err := t.tx.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.QuizVersion{}, notFound(err, domain.ErrQuizVersionNotFound, "%s", id)
	}
	return row.toDomain(), nil
}

func (t *pgTx) CreateQuizAttempt(ctx context.Context, a domain.QuizAttempt) error {
	_, err := t.tx.NewInsert().Model(attemptRow(a)).Exec(ctx)
	return err
}

func (t *pgTx) LockQuizAttempt(ctx context.Context, id string, exclusive bool) (domain.QuizAttempt, error) {
	mode := "SHARE"
	if exclusive {
		mode = "UPDATE"
	}
	var row quizAttemptRow
	if err := t.tx.NewSelect().Model(&row).Where("id = ?", id).For(mode).Scan(ctx); err != nil {
		return domain.QuizAttempt{}, notFound(err, domain.ErrAttemptNotFound, "%s", id)
	}
	return row.toDomain(), nil
}

func (t *pgTx) UpdateQuizAttempt(ctx context.Context, a domain.QuizAttempt) error {
	res, err := t.tx.NewUpdate().Model(attemptRow(a)).
		Column("status", "score", "max_score", "submitted_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, a.ID)
	}
	return nil
}

func (t *pgTx) QuestionAttempt(ctx context.Context, attemptID, questionID string) (domain.QuestionAttempt, error) {
	var row questionAttemptRow
	err := t.tx.NewSelect().Model(&row).
		Where("quiz_attempt_id = ?", attemptID).
		Where("question_id = ?", questionID).
		Scan(ctx)
	if err != nil {
		return domain.QuestionAttempt{}, notFound(err, domain.ErrQuestionNotFound, "%s in attempt %s", questionID, attemptID)
	}
	return row.toDomain(), nil
}

func (t *pgTx) CreateQuestionAttempt(ctx context.Context, qa domain.QuestionAttempt) error {
	row := &questionAttemptRow{
		ID:                qa.ID,
		QuizAttemptID:     qa.QuizAttemptID,
		QuestionID:        qa.QuestionID,
		QuestionVersionID: qa.QuestionVersionID,
		UserID:            qa.UserID,
		Answer:            qa.Answer,
		Score:             qa.Score,
		MaxScore:          qa.MaxScore,
		Correct:           qa.Correct,
		RollupStatus:      string(qa.RollupStatus),
		CreatedAt:         qa.CreatedAt,
	}
	res, err := t.tx.NewInsert().Model(row).On("CONFLICT (quiz_attempt_id, question_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrQuestionAlreadyAnswered, qa.QuestionID)
	}
	return nil
}

func (t *pgTx) ListQuestionAttempts(ctx context.Context, attemptID string) ([]domain.QuestionAttempt, error) {
	var rows []questionAttemptRow
	err := t.tx.NewSelect().Model(&rows).
		Where("quiz_attempt_id = ?", attemptID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return questionAttempts(rows), nil
}

func (t *pgTx) UserQuestionAttempts(ctx context.Context, userID, questionID string) ([]domain.QuestionAttempt, error) {
	var rows []questionAttemptRow
	err := t.tx.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Where("question_id = ?", questionID).
		OrderExpr("created_at DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return questionAttempts(rows), nil
}

func (t *pgTx) PendingRollups(ctx context.Context, limit int) ([]domain.QuestionAttempt, error) {
	var rows []questionAttemptRow
	q := t.tx.NewSelect().Model(&rows).
		Where("rollup_status = ?", string(domain.RollupPending)).
		OrderExpr("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return questionAttempts(rows), nil
}

func (t *pgTx) MarkRollupApplied(ctx context.Context, questionAttemptID string) (bool, error) {
	res, err := t.tx.NewUpdate().Model((*questionAttemptRow)(nil)).
		Set("rollup_status = ?", string(domain.RollupApplied)).
		Where("id = ?", questionAttemptID).
		Where("rollup_status = ?", string(domain.RollupPending)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// upsertStatsSQL inserts or increments one aggregate in a single statement; the
// average is derived from the incremented totals in the same write.
const upsertStatsSQL = `
INSERT INTO user_taxonomy_stats AS uts (
	user_id, taxonomy_id, questions_attempted, questions_correct,
	total_score, total_max_score, average_score_percent, first_attempt_at, last_attempt_at
) VALUES (?, ?, 1, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, taxonomy_id) DO UPDATE SET
	questions_attempted = uts.questions_attempted + 1,
	questions_correct = uts.questions_correct + EXCLUDED.questions_correct,
	total_score = uts.total_score + EXCLUDED.total_score,
	total_max_score = uts.total_max_score + EXCLUDED.total_max_score,
	average_score_percent = CASE
		WHEN uts.total_max_score + EXCLUDED.total_max_score > 0
		THEN (uts.total_score + EXCLUDED.total_score) / (uts.total_max_score + EXCLUDED.total_max_score) * 100
		ELSE 0
	END,
	first_attempt_at = LEAST(uts.first_attempt_at, EXCLUDED.first_attempt_at),
	last_attempt_at = GREATEST(uts.last_attempt_at, EXCLUDED.last_attempt_at)`

func (t *pgTx) UpsertUserTaxonomyStats(ctx context.Context, userID, nodeID string, d domain.StatsDelta) error {
	correct := 0
	if d.Correct {
		correct = 1
	}
	_, err := t.tx.ExecContext(ctx, upsertStatsSQL,
		userID, nodeID, correct,
		d.Score, d.MaxScore, domain.AveragePercent(d.Score, d.MaxScore),
		d.At, d.At,
	)
	return err
}

func (t *pgTx) UserTaxonomyStats(ctx context.Context, userID string) ([]domain.UserTaxonomyStats, error) {
	var rows []userTaxonomyStatsRow
	err := t.tx.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("taxonomy_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserTaxonomyStats, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func questionAttempts(rows []questionAttemptRow) []domain.QuestionAttempt {
	out := make([]domain.QuestionAttempt, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}
