package versioning

import (
	"context"
	"fmt"
	"time"

	"examprep-service/internal/domain"
	"examprep-service/internal/events"
	"examprep-service/internal/grading"
	"examprep-service/internal/logger"
	"examprep-service/internal/store"
	"github.com/google/uuid"
)

// Publisher turns the current state of a quiz into a new immutable QuizVersion.
type Publisher struct {
	store  store.Store
	events events.Publisher
	log    *logger.Logger
	retry  store.RetryPolicy
	clock  func() time.Time
	newID  func() string
}

func NewPublisher(st store.Store, pub events.Publisher, log *logger.Logger, retry store.RetryPolicy) *Publisher {
	return &Publisher{
		store:  st,
		events: pub,
		log:    log,
		retry:  retry,
		clock:  time.Now,
		newID:  uuid.NewString,
	}
}

// WithClock overrides the time source (tests).
func (p *Publisher) WithClock(clock func() time.Time) *Publisher {
	p.clock = clock
	return p
}

// Publish snapshots every question of quizID, reusing question versions whose content
// is unchanged, and records a quiz version with the next sequence number. Concurrent
// publishes of one quiz serialize on the quiz row lock.
func (p *Publisher) Publish(ctx context.Context, quizID string) (domain.PublishResult, error) {
	var (
		version domain.QuizVersion
		reused  int
	)
	err := store.WithRetry(ctx, p.retry, p.log, "publish", func() error {
		reused = 0
		return p.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			version, reused, err = p.publishTx(ctx, tx, quizID)
			return err
		})
	})
	if err != nil {
		return domain.PublishResult{}, err
	}

	p.log.Info("quiz published",
		"quiz_id", quizID,
		"quiz_version_id", version.ID,
		"sequence", version.SequenceNumber,
		"questions", len(version.Snapshot.Questions),
		"reused_versions", reused,
	)
	evt := events.QuizPublishedEvent{
		EventType:      events.QuizPublished,
		QuizID:         quizID,
		QuizVersionID:  version.ID,
		SequenceNumber: version.SequenceNumber,
		Questions:      len(version.Snapshot.Questions),
		PublishedAt:    *version.PublishedAt,
	}
	if err := p.events.Publish(ctx, events.QuizPublished, evt); err != nil {
		p.log.Warn("publish quiz event", "quiz_id", quizID, "error", err)
	}

	return domain.PublishResult{
		QuizVersionID:    version.ID,
		SequenceNumber:   version.SequenceNumber,
		SnapshotDocument: version.Snapshot,
	}, nil
}

func (p *Publisher) publishTx(ctx context.Context, tx store.Tx, quizID string) (domain.QuizVersion, int, error) {
	quiz, err := tx.LockQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizVersion{}, 0, err
	}
	questions, err := tx.QuizQuestions(ctx, quizID)
	if err != nil {
		return domain.QuizVersion{}, 0, err
	}
	if len(questions) == 0 {
		return domain.QuizVersion{}, 0, fmt.Errorf("%w: %s", domain.ErrEmptyQuiz, quizID)
	}

	now := p.clock().UTC()
	snapshot := domain.QuizSnapshot{
		QuizID:      quiz.ID,
		Title:       quiz.Title,
		Description: quiz.Description,
		Settings:    quiz.Settings,
		Questions:   make([]domain.SnapshotQuestion, 0, len(questions)),
	}
	reused := 0
	for i, q := range questions {
		if err := grading.Validate(q); err != nil {
			return domain.QuizVersion{}, 0, fmt.Errorf("question %s: %w", q.ID, err)
		}
		qv, created, err := p.questionVersion(ctx, tx, q, now)
		if err != nil {
			return domain.QuizVersion{}, 0, err
		}
		if !created {
			reused++
		}
		snapshot.Questions = append(snapshot.Questions, domain.SnapshotQuestion{
			Position:          i + 1,
			QuestionVersionID: qv.ID,
			Fingerprint:       qv.Fingerprint,
			Question:          qv.Snapshot,
		})
	}

	seq, err := tx.NextQuizVersionSequence(ctx, quizID)
	if err != nil {
		return domain.QuizVersion{}, 0, err
	}
	version := domain.QuizVersion{
		ID:             p.newID(),
		QuizID:         quizID,
		SequenceNumber: seq,
		Snapshot:       snapshot,
		PublishedAt:    &now,
		CreatedAt:      now,
	}
	if err := tx.CreateQuizVersion(ctx, version); err != nil {
		return domain.QuizVersion{}, 0, err
	}
	return version, reused, nil
}

// questionVersion returns the stored version for q's current content, creating it when
// no version with the same fingerprint exists.
func (p *Publisher) questionVersion(ctx context.Context, tx store.Tx, q domain.Question, now time.Time) (domain.QuestionVersion, bool, error) {
	snap := Snapshot(q)
	fp, err := Fingerprint(snap)
	if err != nil {
		return domain.QuestionVersion{}, false, err
	}
	v := domain.QuestionVersion{
		ID:          p.newID(),
		QuestionID:  q.ID,
		Fingerprint: fp,
		Snapshot:    snap,
		CreatedAt:   now,
	}
	created, err := tx.CreateQuestionVersion(ctx, v)
	if err != nil {
		return domain.QuestionVersion{}, false, err
	}
	if created {
		return v, true, nil
	}
	existing, err := tx.QuestionVersionByFingerprint(ctx, fp)
	if err != nil {
		return domain.QuestionVersion{}, false, err
	}
	return existing, false, nil
}
