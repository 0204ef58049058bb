// Package events defines the domain events emitted after a unit of work commits.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	QuizPublished   = "quiz.published"
	AnswerGraded    = "answer.graded"
	AttemptFinished = "attempt.finished"
)

// Publisher delivers an event to downstream consumers. Events are sent only after
// commit, so a failed publish never rolls back stored state.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type QuizPublishedEvent struct {
	EventType      string    `json:"eventType"`
	QuizID         string    `json:"quizId"`
	QuizVersionID  string    `json:"quizVersionId"`
	SequenceNumber int       `json:"sequenceNumber"`
	Questions      int       `json:"questions"`
	PublishedAt    time.Time `json:"publishedAt"`
}

type AnswerGradedEvent struct {
	EventType         string    `json:"eventType"`
	QuizAttemptID     string    `json:"quizAttemptId"`
	QuestionAttemptID string    `json:"questionAttemptId"`
	QuestionID        string    `json:"questionId"`
	UserID            string    `json:"userId"`
	Score             float64   `json:"score"`
	MaxScore          float64   `json:"maxScore"`
	Correct           bool      `json:"correct"`
	RollupPending     bool      `json:"rollupPending"`
	GradedAt          time.Time `json:"gradedAt"`
}

type AttemptFinishedEvent struct {
	EventType     string    `json:"eventType"`
	QuizAttemptID string    `json:"quizAttemptId"`
	QuizID        string    `json:"quizId"`
	QuizVersionID string    `json:"quizVersionId"`
	UserID        string    `json:"userId"`
	Score         float64   `json:"score"`
	MaxScore      float64   `json:"maxScore"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Recorded is one event captured by a Recorder.
type Recorded struct {
	RoutingKey string
	Event      any
}

// Recorder keeps published events in memory; used by tests and the local dev server.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

func (r *Recorder) Publish(_ context.Context, routingKey string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{RoutingKey: routingKey, Event: event})
	return nil
}

func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Recorded, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events were published under routingKey.
func (r *Recorder) Count(routingKey string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.RoutingKey == routingKey {
			n++
		}
	}
	return n
}
