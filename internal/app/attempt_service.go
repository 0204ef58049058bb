package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"examprep-service/internal/domain"
	"examprep-service/internal/events"
	"examprep-service/internal/grading"
	"examprep-service/internal/logger"
	"examprep-service/internal/stats"
	"examprep-service/internal/store"
	"github.com/google/uuid"
)

// VersionReader loads immutable quiz versions, typically through a cache.
type VersionReader interface {
	GetQuizVersion(ctx context.Context, quizVersionID string) (domain.QuizVersion, error)
}

// AttemptService coordinates attempts: it binds them to a published version, grades
// answers against that version and keeps the taxonomy stats in the same transaction.
type AttemptService struct {
	store    store.Store
	versions VersionReader
	rollup   *stats.Engine
	events   events.Publisher
	progress *ProgressHub
	log      *logger.Logger
	retry    store.RetryPolicy
	clock    func() time.Time
	newID    func() string
}

func NewAttemptService(
	st store.Store,
	versions VersionReader,
	rollup *stats.Engine,
	pub events.Publisher,
	log *logger.Logger,
	retry store.RetryPolicy,
) *AttemptService {
	return &AttemptService{
		store:    st,
		versions: versions,
		rollup:   rollup,
		events:   pub,
		progress: NewProgressHub(),
		log:      log,
		retry:    retry,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock overrides the time source (tests).
func (s *AttemptService) WithClock(clock func() time.Time) *AttemptService {
	s.clock = clock
	return s
}

// StartAttempt binds a new attempt to the highest published version of quizID.
func (s *AttemptService) StartAttempt(ctx context.Context, userID, quizID string) (domain.QuizAttempt, error) {
	ctx = context.WithoutCancel(ctx)

	var attempt domain.QuizAttempt
	err := store.WithRetry(ctx, s.retry, s.log, "start attempt", func() error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			version, err := tx.LatestPublishedQuizVersion(ctx, quizID)
			if err != nil {
				return err
			}
			attempt = domain.QuizAttempt{
				ID:            s.newID(),
				QuizID:        quizID,
				QuizVersionID: version.ID,
				UserID:        userID,
				Status:        domain.AttemptInProgress,
				StartedAt:     s.clock().UTC(),
			}
			return tx.CreateQuizAttempt(ctx, attempt)
		})
	})
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	s.log.Info("attempt started", "attempt_id", attempt.ID, "quiz_id", quizID, "quiz_version_id", attempt.QuizVersionID, "user_id", userID)
	return attempt, nil
}

type submitOutcome struct {
	result   domain.SubmitResult
	qa       domain.QuestionAttempt
	progress domain.AttemptProgress
	replayed bool
}

// SubmitAnswer grades answer against the question as frozen in the attempt's version,
// stores the graded QuestionAttempt and rolls the result up the taxonomy, all in one
// transaction. Re-sending the same answer returns the stored result.
func (s *AttemptService) SubmitAnswer(ctx context.Context, attemptID, questionID string, answer domain.Answer) (domain.SubmitResult, error) {
	ctx = context.WithoutCancel(ctx)

	var out submitOutcome
	err := store.WithRetry(ctx, s.retry, s.log, "submit answer", func() error {
		var err error
		out, err = s.submitOnce(ctx, attemptID, questionID, answer)
		return err
	})
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if out.replayed {
		s.log.Info("answer resubmitted, returning stored result", "attempt_id", attemptID, "question_id", questionID)
		return out.result, nil
	}

	s.log.Info("answer graded",
		"attempt_id", attemptID,
		"question_id", questionID,
		"score", out.qa.Score,
		"max_score", out.qa.MaxScore,
		"rollup_pending", out.result.RollupPending,
	)
	s.publish(ctx, events.AnswerGraded, events.AnswerGradedEvent{
		EventType:         events.AnswerGraded,
		QuizAttemptID:     attemptID,
		QuestionAttemptID: out.qa.ID,
		QuestionID:        questionID,
		UserID:            out.qa.UserID,
		Score:             out.qa.Score,
		MaxScore:          out.qa.MaxScore,
		Correct:           out.qa.Correct,
		RollupPending:     out.result.RollupPending,
		GradedAt:          out.qa.CreatedAt,
	})
	s.progress.broadcast(out.progress)
	return out.result, nil
}

func (s *AttemptService) submitOnce(ctx context.Context, attemptID, questionID string, answer domain.Answer) (submitOutcome, error) {
	attempt, err := s.readAttempt(ctx, attemptID)
	if err != nil {
		return submitOutcome{}, err
	}
	if attempt.Status != domain.AttemptInProgress {
		return submitOutcome{}, fmt.Errorf("%w: %s is %s", domain.ErrAttemptNotActive, attemptID, attempt.Status)
	}
	version, err := s.versions.GetQuizVersion(ctx, attempt.QuizVersionID)
	if err != nil {
		return submitOutcome{}, fmt.Errorf("load quiz version %s: %w", attempt.QuizVersionID, err)
	}
	entry, ok := version.Snapshot.Question(questionID)
	if !ok {
		return submitOutcome{}, fmt.Errorf("%w: %s in quiz version %s", domain.ErrQuestionNotFound, questionID, version.ID)
	}

	graded, err := grading.Grade(entry.Question, answer)
	if err != nil {
		return submitOutcome{}, err
	}

	pending := false
	nodes, err := s.rollup.Plan(ctx, entry.Question.TaxonomyIDs)
	if err != nil {
		if !isTaxonomyError(err) {
			return submitOutcome{}, err
		}
		pending = true
		s.log.Error("taxonomy unresolved, rollup deferred", "attempt_id", attemptID, "question_id", questionID, "error", err)
	}

	var out submitOutcome
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		attempt, err := tx.LockQuizAttempt(ctx, attemptID, false)
		if err != nil {
			return err
		}
		if attempt.Status != domain.AttemptInProgress {
			return fmt.Errorf("%w: %s is %s", domain.ErrAttemptNotActive, attemptID, attempt.Status)
		}

		existing, err := tx.QuestionAttempt(ctx, attemptID, questionID)
		switch {
		case err == nil:
			if !sameAnswer(existing.Answer, answer) {
				return fmt.Errorf("%w: %s", domain.ErrQuestionAlreadyAnswered, questionID)
			}
			out.qa = existing
			out.replayed = true
		case errors.Is(err, domain.ErrQuestionNotFound):
			now := s.clock().UTC()
			out.qa = domain.QuestionAttempt{
				ID:                s.newID(),
				QuizAttemptID:     attemptID,
				QuestionID:        questionID,
				QuestionVersionID: entry.QuestionVersionID,
				UserID:            attempt.UserID,
				Answer:            answer,
				Score:             graded.Score,
				MaxScore:          graded.MaxScore,
				Correct:           graded.Correct,
				RollupStatus:      domain.RollupApplied,
				CreatedAt:         now,
			}
			if pending {
				out.qa.RollupStatus = domain.RollupPending
			}
			if err := tx.CreateQuestionAttempt(ctx, out.qa); err != nil {
				if errors.Is(err, domain.ErrQuestionAlreadyAnswered) {
					// lost a race with an identical retry; rerun to read its result
					return &domain.TransientError{Op: "create question attempt", Err: err}
				}
				return err
			}
			if !pending {
				delta := graded.Delta()
				delta.At = now
				if err := s.rollup.Apply(ctx, tx, attempt.UserID, nodes, delta); err != nil {
					return err
				}
			}
		default:
			return err
		}

		answered, err := tx.ListQuestionAttempts(ctx, attemptID)
		if err != nil {
			return err
		}
		out.progress = progressOf(attempt, version.Snapshot, answered, s.clock().UTC())
		out.result = domain.SubmitResult{
			QuestionAttemptID: out.qa.ID,
			Score:             out.qa.Score,
			MaxScore:          out.qa.MaxScore,
			NextQuestionID:    nextQuestion(version.Snapshot, questionID, answered),
			RollupPending:     out.qa.RollupStatus == domain.RollupPending,
		}
		return nil
	})
	return out, err
}

// FinishAttempt closes the attempt and totals its question scores.
func (s *AttemptService) FinishAttempt(ctx context.Context, attemptID string) (domain.AttemptSummary, error) {
	ctx = context.WithoutCancel(ctx)

	var (
		summary  domain.AttemptSummary
		progress domain.AttemptProgress
	)
	err := store.WithRetry(ctx, s.retry, s.log, "finish attempt", func() error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			attempt, err := tx.LockQuizAttempt(ctx, attemptID, true)
			if err != nil {
				return err
			}
			if attempt.Status != domain.AttemptInProgress {
				return fmt.Errorf("%w: %s is %s", domain.ErrAttemptNotActive, attemptID, attempt.Status)
			}
			answered, err := tx.ListQuestionAttempts(ctx, attemptID)
			if err != nil {
				return err
			}
			version, err := tx.QuizVersion(ctx, attempt.QuizVersionID)
			if err != nil {
				return err
			}

			now := s.clock().UTC()
			attempt.Score, attempt.MaxScore = 0, 0
			for _, qa := range answered {
				attempt.Score += qa.Score
				attempt.MaxScore += qa.MaxScore
			}
			attempt.Status = domain.AttemptSubmitted
			attempt.SubmittedAt = &now
			if err := tx.UpdateQuizAttempt(ctx, attempt); err != nil {
				return err
			}
			summary = domain.AttemptSummary{Attempt: attempt, Questions: answered}
			progress = progressOf(attempt, version.Snapshot, answered, now)
			return nil
		})
	})
	if err != nil {
		return domain.AttemptSummary{}, err
	}

	a := summary.Attempt
	s.log.Info("attempt finished", "attempt_id", a.ID, "score", a.Score, "max_score", a.MaxScore, "answered", len(summary.Questions))
	s.publish(ctx, events.AttemptFinished, events.AttemptFinishedEvent{
		EventType:     events.AttemptFinished,
		QuizAttemptID: a.ID,
		QuizID:        a.QuizID,
		QuizVersionID: a.QuizVersionID,
		UserID:        a.UserID,
		Score:         a.Score,
		MaxScore:      a.MaxScore,
		SubmittedAt:   *a.SubmittedAt,
	})
	s.progress.broadcast(progress)
	return summary, nil
}

// GetAttempt returns an attempt with its graded answers.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID string) (domain.AttemptSummary, error) {
	var summary domain.AttemptSummary
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		attempt, err := tx.LockQuizAttempt(ctx, attemptID, false)
		if err != nil {
			return err
		}
		answered, err := tx.ListQuestionAttempts(ctx, attemptID)
		if err != nil {
			return err
		}
		summary = domain.AttemptSummary{Attempt: attempt, Questions: answered}
		return nil
	})
	return summary, err
}

// UserStats returns every taxonomy aggregate of userID.
func (s *AttemptService) UserStats(ctx context.Context, userID string) ([]domain.UserTaxonomyStats, error) {
	var rows []domain.UserTaxonomyStats
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rows, err = tx.UserTaxonomyStats(ctx, userID)
		return err
	})
	return rows, err
}

// QuestionHistory lists every answer userID gave to questionID, newest first, with totals.
func (s *AttemptService) QuestionHistory(ctx context.Context, userID, questionID string) (domain.QuestionHistory, error) {
	var answers []domain.QuestionAttempt
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		answers, err = tx.UserQuestionAttempts(ctx, userID, questionID)
		return err
	})
	if err != nil {
		return domain.QuestionHistory{}, err
	}
	h := domain.QuestionHistory{
		QuestionID:    questionID,
		TotalAttempts: len(answers),
		Attempts:      answers,
	}
	if h.Attempts == nil {
		h.Attempts = []domain.QuestionAttempt{}
	}
	for _, qa := range answers {
		if qa.Correct {
			h.CorrectAttempts++
		}
	}
	h.IsSolved = h.CorrectAttempts > 0
	return h, nil
}

// Subscribe streams progress for an attempt, starting with its current state.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *AttemptService) Subscribe(ctx context.Context, attemptID string) (<-chan domain.AttemptProgress, func(), error) {
	sub, cancel := s.progress.subscribe(attemptID)
	summary, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	version, err := s.versions.GetQuizVersion(ctx, summary.Attempt.QuizVersionID)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	s.progress.start(sub, progressOf(summary.Attempt, version.Snapshot, summary.Questions, s.clock().UTC()))
	return sub.ch, cancel, nil
}

func (s *AttemptService) readAttempt(ctx context.Context, attemptID string) (domain.QuizAttempt, error) {
	var attempt domain.QuizAttempt
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		attempt, err = tx.LockQuizAttempt(ctx, attemptID, false)
		return err
	})
	return attempt, err
}

func (s *AttemptService) publish(ctx context.Context, key string, evt any) {
	if err := s.events.Publish(ctx, key, evt); err != nil {
		s.log.Warn("publish event", "routing_key", key, "error", err)
	}
}

func isTaxonomyError(err error) bool {
	return errors.Is(err, domain.ErrTaxonomyCycle) || errors.Is(err, domain.ErrTaxonomyNodeNotFound)
}

// nextQuestion is the first unanswered question after current in snapshot order,
// wrapping around, or nil when every question has an answer.
func nextQuestion(snapshot domain.QuizSnapshot, current string, answered []domain.QuestionAttempt) *string {
	done := make(map[string]struct{}, len(answered))
	for _, qa := range answered {
		done[qa.QuestionID] = struct{}{}
	}
	qs := snapshot.Questions
	start := 0
	for i, q := range qs {
		if q.Question.QuestionID == current {
			start = i
			break
		}
	}
	for i := 1; i <= len(qs); i++ {
		id := qs[(start+i)%len(qs)].Question.QuestionID
		if _, ok := done[id]; !ok {
			return &id
		}
	}
	return nil
}

func progressOf(a domain.QuizAttempt, snapshot domain.QuizSnapshot, answered []domain.QuestionAttempt, now time.Time) domain.AttemptProgress {
	p := domain.AttemptProgress{
		AttemptID: a.ID,
		Status:    a.Status,
		Answered:  len(answered),
		Total:     len(snapshot.Questions),
		UpdatedAt: now,
	}
	for _, qa := range answered {
		p.Score += qa.Score
		p.MaxScore += qa.MaxScore
	}
	return p
}

// sameAnswer compares answers ignoring part and option order.
func sameAnswer(a, b domain.Answer) bool {
	ea, errA := canonicalAnswer(a)
	eb, errB := canonicalAnswer(b)
	return errA == nil && errB == nil && bytes.Equal(ea, eb)
}

func canonicalAnswer(a domain.Answer) ([]byte, error) {
	parts := make([]domain.PartAnswer, len(a.Parts))
	for i, p := range a.Parts {
		ids := append([]string(nil), p.SelectedOptionIDs...)
		sort.Strings(ids)
		p.SelectedOptionIDs = ids
		parts[i] = p
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartID < parts[j].PartID })
	return json.Marshal(domain.Answer{Parts: parts})
}
