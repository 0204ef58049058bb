// Package store defines the transactional persistence contract shared by the
// publish, attempt and rollup use cases. Implementations live under internal/infra.
package store

import (
	"context"

	"examprep-service/internal/domain"
)

// Store runs units of work atomically: fn's writes commit together or not at all.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is every operation available inside one unit of work.
type Tx interface {
	AuthoringTx
	VersionTx
	AttemptTx
	StatsTx
}

// AuthoringTx reads the mutable quiz/question definitions owned by the authoring collaborator.
type AuthoringTx interface {
	// LockQuiz loads the quiz and holds it against concurrent publishes until commit.
	LockQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// QuizQuestions returns the quiz's current questions in quiz order, with their taxonomy tags.
	QuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// VersionTx stores the immutable version records.
type VersionTx interface {
	// CreateQuestionVersion inserts v unless its fingerprint exists; created reports which happened.
	CreateQuestionVersion(ctx context.Context, v domain.QuestionVersion) (created bool, err error)
	QuestionVersionByFingerprint(ctx context.Context, fingerprint string) (domain.QuestionVersion, error)
	// NextQuizVersionSequence returns max(sequence)+1 for the quiz, 1 for the first version.
	NextQuizVersionSequence(ctx context.Context, quizID string) (int, error)
	CreateQuizVersion(ctx context.Context, v domain.QuizVersion) error
	// LatestPublishedQuizVersion returns the highest sequence with a publish timestamp.
	LatestPublishedQuizVersion(ctx context.Context, quizID string) (domain.QuizVersion, error)
	QuizVersion(ctx context.Context, id string) (domain.QuizVersion, error)
	CountQuestionVersions(ctx context.Context, questionID string) (int, error)
}

// AttemptTx stores quiz and question attempts.
type AttemptTx interface {
	CreateQuizAttempt(ctx context.Context, a domain.QuizAttempt) error
	// LockQuizAttempt loads the attempt; exclusive blocks other lockers, shared only blocks exclusive ones.
	LockQuizAttempt(ctx context.Context, id string, exclusive bool) (domain.QuizAttempt, error)
	UpdateQuizAttempt(ctx context.Context, a domain.QuizAttempt) error
	// QuestionAttempt returns the answer recorded for (attempt, question) or domain.ErrQuestionNotFound.
	QuestionAttempt(ctx context.Context, attemptID, questionID string) (domain.QuestionAttempt, error)
	// CreateQuestionAttempt fails with domain.ErrQuestionAlreadyAnswered on a second row for (attempt, question).
	CreateQuestionAttempt(ctx context.Context, qa domain.QuestionAttempt) error
	ListQuestionAttempts(ctx context.Context, attemptID string) ([]domain.QuestionAttempt, error)
	// UserQuestionAttempts returns every answer userID gave to questionID across attempts, newest first.
	UserQuestionAttempts(ctx context.Context, userID, questionID string) ([]domain.QuestionAttempt, error)
	// PendingRollups claims up to limit question attempts whose rollup has not been applied.
	PendingRollups(ctx context.Context, limit int) ([]domain.QuestionAttempt, error)
	// MarkRollupApplied flips a pending rollup to applied; claimed is false when another
	// transaction got there first.
	MarkRollupApplied(ctx context.Context, questionAttemptID string) (claimed bool, err error)
}

// StatsTx maintains the per-(user, node) aggregates.
type StatsTx interface {
	// UpsertUserTaxonomyStats atomically inserts or increments one aggregate row.
	UpsertUserTaxonomyStats(ctx context.Context, userID, nodeID string, delta domain.StatsDelta) error
	UserTaxonomyStats(ctx context.Context, userID string) ([]domain.UserTaxonomyStats, error)
}
