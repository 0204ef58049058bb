package domain

import "time"

// TaxonomyNode is one entry of the subject hierarchy (subject, chapter, topic, subtopic).
type TaxonomyNode struct {
	ID       string `json:"id" yaml:"id"`
	ParentID string `json:"parentId,omitempty" yaml:"parent_id"` // empty for roots
	Name     string `json:"name" yaml:"name"`
	NodeType string `json:"nodeType" yaml:"node_type"`
	// Path is the materialized ancestor chain, root first, self last, joined by ".".
	Path string `json:"path,omitempty" yaml:"-"`
}

// PartKind selects the grading rule of a question part.
type PartKind string

const (
	PartSingleSelect       PartKind = "single_select"
	PartMultiSelect        PartKind = "multi_select"
	PartMultiSelectPartial PartKind = "multi_select_partial"
	PartText               PartKind = "text"
	PartNumeric            PartKind = "numeric"
	PartRegex              PartKind = "regex"
)

// Option represents a possible answer for a select part.
type Option struct {
	ID      string  `json:"id" yaml:"id"`
	Label   string  `json:"label" yaml:"label"`
	Correct bool    `json:"correct" yaml:"correct"`
	Weight  float64 `json:"weight,omitempty" yaml:"weight"` // partial-credit weight, defaults to 1
}

// CreditWeight is the option's share for partial credit.
func (o Option) CreditWeight() float64 {
	if o.Weight == 0 {
		return 1
	}
	return o.Weight
}

// Part is one gradable input of a question.
type Part struct {
	ID              string   `json:"id" yaml:"id"`
	Kind            PartKind `json:"kind" yaml:"kind"`
	Prompt          string   `json:"prompt,omitempty" yaml:"prompt"`
	Weight          float64  `json:"weight" yaml:"weight"` // defaults to 1 if zero
	Options         []Option `json:"options,omitempty" yaml:"options"`
	AcceptedAnswers []string `json:"acceptedAnswers,omitempty" yaml:"accepted_answers"`
	Pattern         string   `json:"pattern,omitempty" yaml:"pattern"`
	NumericAnswer   float64  `json:"numericAnswer,omitempty" yaml:"numeric_answer"`
	Tolerance       float64  `json:"tolerance,omitempty" yaml:"tolerance"`
}

// Points is the part's max score.
func (p Part) Points() float64 {
	if p.Weight == 0 {
		return 1
	}
	return p.Weight
}

// Question is the mutable, authoring-side question.
type Question struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Body        string   `json:"body,omitempty" yaml:"body"`
	Parts       []Part   `json:"parts" yaml:"parts"`
	TaxonomyIDs []string `json:"taxonomyIds" yaml:"taxonomy_ids"`
}

// QuizSettings are quiz-level options frozen into every published version.
type QuizSettings struct {
	TimeLimitSeconds int     `json:"timeLimitSeconds,omitempty" yaml:"time_limit_seconds"`
	PassPercent      float64 `json:"passPercent,omitempty" yaml:"pass_percent"`
	ShuffleQuestions bool    `json:"shuffleQuestions,omitempty" yaml:"shuffle_questions"`
}

// Quiz is the mutable, authoring-side quiz: settings plus an ordered list of question ids.
type Quiz struct {
	ID          string       `json:"id" yaml:"id"`
	Title       string       `json:"title" yaml:"title"`
	Description string       `json:"description,omitempty" yaml:"description"`
	Settings    QuizSettings `json:"settings" yaml:"settings"`
	QuestionIDs []string     `json:"questionIds" yaml:"question_ids"`
}

// QuestionSnapshot is the frozen, gradable content of a question.
type QuestionSnapshot struct {
	QuestionID  string   `json:"questionId"`
	Title       string   `json:"title"`
	Body        string   `json:"body,omitempty"`
	Parts       []Part   `json:"parts"`
	TaxonomyIDs []string `json:"taxonomyIds"`
}

// MaxScore is the sum of part points and does not depend on any answer.
func (s QuestionSnapshot) MaxScore() float64 {
	total := 0.0
	for _, p := range s.Parts {
		total += p.Points()
	}
	return total
}

// QuestionVersion is an immutable, content-addressed copy of a question.
type QuestionVersion struct {
	ID          string           `json:"id"`
	QuestionID  string           `json:"questionId"`
	Fingerprint string           `json:"fingerprint"`
	Snapshot    QuestionSnapshot `json:"snapshot"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// SnapshotQuestion is one position of a quiz snapshot.
type SnapshotQuestion struct {
	Position          int              `json:"position"`
	QuestionVersionID string           `json:"questionVersionId"`
	Fingerprint       string           `json:"fingerprint"`
	Question          QuestionSnapshot `json:"question"`
}

// QuizSnapshot is the single frozen document a quiz version carries.
type QuizSnapshot struct {
	QuizID      string             `json:"quizId"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Settings    QuizSettings       `json:"settings"`
	Questions   []SnapshotQuestion `json:"questions"`
}

// Question returns the snapshot entry for questionID.
func (s QuizSnapshot) Question(questionID string) (SnapshotQuestion, bool) {
	for _, q := range s.Questions {
		if q.Question.QuestionID == questionID {
			return q, true
		}
	}
	return SnapshotQuestion{}, false
}

// QuizVersion is an immutable published point-in-time copy of a quiz.
type QuizVersion struct {
	ID             string       `json:"id"`
	QuizID         string       `json:"quizId"`
	SequenceNumber int          `json:"sequenceNumber"`
	Snapshot       QuizSnapshot `json:"snapshot"`
	PublishedAt    *time.Time   `json:"publishedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}
