package domain

import "time"

// AttemptStatus is the lifecycle state of a quiz attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
)

// RollupStatus records whether a graded answer has reached the stats aggregates.
type RollupStatus string

const (
	RollupApplied RollupStatus = "applied"
	RollupPending RollupStatus = "pending"
)

// QuizAttempt is bound to one quiz version at start time; the binding never changes.
type QuizAttempt struct {
	ID            string        `json:"id"`
	QuizID        string        `json:"quizId"`
	QuizVersionID string        `json:"quizVersionId"`
	UserID        string        `json:"userId"`
	Status        AttemptStatus `json:"status"`
	Score         float64       `json:"score"`
	MaxScore      float64       `json:"maxScore"`
	StartedAt     time.Time     `json:"startedAt"`
	SubmittedAt   *time.Time    `json:"submittedAt,omitempty"`
}

// PartAnswer is the response to a single question part.
type PartAnswer struct {
	PartID            string   `json:"partId"`
	SelectedOptionIDs []string `json:"selectedOptionIds,omitempty"`
	Text              *string  `json:"text,omitempty"`
	Numeric           *float64 `json:"numeric,omitempty"`
}

// Answer is a submitted response to a whole question.
type Answer struct {
	Parts []PartAnswer `json:"parts"`
}

// QuestionAttempt is the graded record of one answer within an attempt.
type QuestionAttempt struct {
	ID                string       `json:"id"`
	QuizAttemptID     string       `json:"quizAttemptId"`
	QuestionID        string       `json:"questionId"`
	QuestionVersionID string       `json:"questionVersionId"`
	UserID            string       `json:"userId"`
	Answer            Answer       `json:"answer"`
	Score             float64      `json:"score"`
	MaxScore          float64      `json:"maxScore"`
	Correct           bool         `json:"correct"`
	RollupStatus      RollupStatus `json:"rollupStatus"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// SubmitResult is returned to the caller of submit-answer.
type SubmitResult struct {
	QuestionAttemptID string  `json:"questionAttemptId"`
	Score             float64 `json:"score"`
	MaxScore          float64 `json:"maxScore"`
	NextQuestionID    *string `json:"nextQuestionId"`
	RollupPending     bool    `json:"rollupPending,omitempty"`
}

// PublishResult is returned to the caller of publish.
type PublishResult struct {
	QuizVersionID    string       `json:"quizVersionId"`
	SequenceNumber   int          `json:"sequenceNumber"`
	SnapshotDocument QuizSnapshot `json:"snapshotDocument"`
}

// AttemptSummary is a finished attempt together with its graded answers.
type AttemptSummary struct {
	Attempt   QuizAttempt       `json:"attempt"`
	Questions []QuestionAttempt `json:"questions"`
}

// QuestionHistory is one user's record on one question across all attempts.
type QuestionHistory struct {
	QuestionID      string            `json:"questionId"`
	TotalAttempts   int               `json:"totalAttempts"`
	CorrectAttempts int               `json:"correctAttempts"`
	IsSolved        bool              `json:"isSolved"`
	Attempts        []QuestionAttempt `json:"attempts"`
}

// AttemptProgress is pushed to subscribers of an attempt after every change.
type AttemptProgress struct {
	AttemptID string        `json:"attemptId"`
	Status    AttemptStatus `json:"status"`
	Answered  int           `json:"answered"`
	Total     int           `json:"total"`
	Score     float64       `json:"score"`
	MaxScore  float64       `json:"maxScore"`
	UpdatedAt time.Time     `json:"updatedAt"`
}
