package app

import (
	"context"
	"fmt"
	"time"

	"examprep-service/internal/domain"
	"examprep-service/internal/store"
)

// ReplayReport summarizes one replay pass.
type ReplayReport struct {
	Scanned int
	Applied int
	Failed  int
}

// ReplayPendingRollups applies the stats delta of question attempts whose rollup was
// deferred because the taxonomy could not be resolved at grading time. Each rollup is
// applied and marked in its own transaction; rollups that still fail stay pending.
func (s *AttemptService) ReplayPendingRollups(ctx context.Context, batch int) (ReplayReport, error) {
	var pending []domain.QuestionAttempt
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		pending, err = tx.PendingRollups(ctx, batch)
		return err
	})
	if err != nil {
		return ReplayReport{}, fmt.Errorf("list pending rollups: %w", err)
	}

	report := ReplayReport{Scanned: len(pending)}
	for _, qa := range pending {
		applied, err := s.replayOne(ctx, qa)
		switch {
		case err != nil:
			report.Failed++
			s.log.Warn("rollup replay failed", "question_attempt_id", qa.ID, "error", err)
		case applied:
			report.Applied++
		}
	}
	if report.Scanned > 0 {
		s.log.Info("rollup replay pass", "scanned", report.Scanned, "applied", report.Applied, "failed", report.Failed)
	}
	return report, nil
}

func (s *AttemptService) replayOne(ctx context.Context, qa domain.QuestionAttempt) (bool, error) {
	attempt, err := s.readAttempt(ctx, qa.QuizAttemptID)
	if err != nil {
		return false, err
	}
	version, err := s.versions.GetQuizVersion(ctx, attempt.QuizVersionID)
	if err != nil {
		return false, err
	}
	entry, ok := version.Snapshot.Question(qa.QuestionID)
	if !ok {
		return false, fmt.Errorf("%w: %s in quiz version %s", domain.ErrQuestionNotFound, qa.QuestionID, version.ID)
	}
	nodes, err := s.rollup.Plan(ctx, entry.Question.TaxonomyIDs)
	if err != nil {
		return false, err
	}

	delta := domain.StatsDelta{Correct: qa.Correct, Score: qa.Score, MaxScore: qa.MaxScore, At: qa.CreatedAt}
	claimed := false
	err = store.WithRetry(ctx, s.retry, s.log, "replay rollup", func() error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			claimed, err = tx.MarkRollupApplied(ctx, qa.ID)
			if err != nil || !claimed {
				return err
			}
			return s.rollup.Apply(ctx, tx, qa.UserID, nodes, delta)
		})
	})
	return claimed, err
}

// RunRollupReplayer replays pending rollups every interval until ctx is cancelled.
func (s *AttemptService) RunRollupReplayer(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReplayPendingRollups(ctx, batch); err != nil {
				s.log.Warn("rollup replay pass failed", "error", err)
			}
		}
	}
}
