package postgres

import (
	"time"

	"examprep-service/internal/domain"
	"github.com/uptrace/bun"
)

type taxonomyRow struct {
	bun.BaseModel `bun:"table:taxonomy,alias:t"`

	ID       string `bun:"id,pk"`
	ParentID string `bun:"parent_id,nullzero"`
	Name     string `bun:"name"`
	NodeType string `bun:"node_type"`
	Path     string `bun:"path"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID        string        `bun:"id,pk"`
	Title     string        `bun:"title"`
	Body      string        `bun:"body"`
	Parts     []domain.Part `bun:"parts,type:jsonb"`
	UpdatedAt time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type questionTaxonomyRow struct {
	bun.BaseModel `bun:"table:question_taxonomy,alias:qt"`

	QuestionID string `bun:"question_id,pk"`
	TaxonomyID string `bun:"taxonomy_id,pk"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:qz"`

	ID          string              `bun:"id,pk"`
	Title       string              `bun:"title"`
	Description string              `bun:"description"`
	Settings    domain.QuizSettings `bun:"settings,type:jsonb"`
	UpdatedAt   time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type quizQuestionRow struct {
	bun.BaseModel `bun:"table:quiz_questions,alias:qq"`

	QuizID     string `bun:"quiz_id,pk"`
	QuestionID string `bun:"question_id,pk"`
	Position   int    `bun:"position"`
}

type questionVersionRow struct {
	bun.BaseModel `bun:"table:question_versions,alias:qv"`

	ID          string                  `bun:"id,pk"`
	QuestionID  string                  `bun:"question_id"`
	Fingerprint string                  `bun:"fingerprint"`
	Snapshot    domain.QuestionSnapshot `bun:"snapshot,type:jsonb"`
	CreatedAt   time.Time               `bun:"created_at"`
}

func (r questionVersionRow) toDomain() domain.QuestionVersion {
	return domain.QuestionVersion{
		ID:          r.ID,
		QuestionID:  r.QuestionID,
		Fingerprint: r.Fingerprint,
		Snapshot:    r.Snapshot,
		CreatedAt:   r.CreatedAt,
	}
}

type quizVersionRow struct {
	bun.BaseModel `bun:"table:quiz_versions,alias:zv"`

	ID             string              `bun:"id,pk"`
	QuizID         string              `bun:"quiz_id"`
	SequenceNumber int                 `bun:"sequence_number"`
	Snapshot       domain.QuizSnapshot `bun:"snapshot,type:jsonb"`
	PublishedAt    *time.Time          `bun:"published_at"`
	CreatedAt      time.Time           `bun:"created_at"`
}

func (r quizVersionRow) toDomain() domain.QuizVersion {
	return domain.QuizVersion{
		ID:             r.ID,
		QuizID:         r.QuizID,
		SequenceNumber: r.SequenceNumber,
		Snapshot:       r.Snapshot,
		PublishedAt:    r.PublishedAt,
		CreatedAt:      r.CreatedAt,
	}
}

type quizAttemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:qa"`

	ID            string     `bun:"id,pk"`
	QuizID        string     `bun:"quiz_id"`
	QuizVersionID string     `bun:"quiz_version_id"`
	UserID        string     `bun:"user_id"`
	Status        string     `bun:"status"`
	Score         float64    `bun:"score"`
	MaxScore      float64    `bun:"max_score"`
	StartedAt     time.Time  `bun:"started_at"`
	SubmittedAt   *time.Time `bun:"submitted_at"`
}

func attemptRow(a domain.QuizAttempt) *quizAttemptRow {
	return &quizAttemptRow{
		ID:            a.ID,
		QuizID:        a.QuizID,
		QuizVersionID: a.QuizVersionID,
		UserID:        a.UserID,
		Status:        string(a.Status),
		Score:         a.Score,
		MaxScore:      a.MaxScore,
		StartedAt:     a.StartedAt,
		SubmittedAt:   a.SubmittedAt,
	}
}

func (r quizAttemptRow) toDomain() domain.QuizAttempt {
	return domain.QuizAttempt{
		ID:            r.ID,
		QuizID:        r.QuizID,
		QuizVersionID: r.QuizVersionID,
		UserID:        r.UserID,
		Status:        domain.AttemptStatus(r.Status),
		Score:         r.Score,
		MaxScore:      r.MaxScore,
		StartedAt:     r.StartedAt,
		SubmittedAt:   r.SubmittedAt,
	}
}

type questionAttemptRow struct {
	bun.BaseModel `bun:"table:question_attempts,alias:qat"`

	ID                string        `bun:"id,pk"`
	QuizAttemptID     string        `bun:"quiz_attempt_id"`
	QuestionID        string        `bun:"question_id"`
	QuestionVersionID string        `bun:"question_version_id"`
	UserID            string        `bun:"user_id"`
	Answer            domain.Answer `bun:"answer,type:jsonb"`
	Score             float64       `bun:"score"`
	MaxScore          float64       `bun:"max_score"`
	Correct           bool          `bun:"correct"`
	RollupStatus      string        `bun:"rollup_status"`
	CreatedAt         time.Time     `bun:"created_at"`
}

func (r questionAttemptRow) toDomain() domain.QuestionAttempt {
	return domain.QuestionAttempt{
		ID:                r.ID,
		QuizAttemptID:     r.QuizAttemptID,
		QuestionID:        r.QuestionID,
		QuestionVersionID: r.QuestionVersionID,
		UserID:            r.UserID,
		Answer:            r.Answer,
		Score:             r.Score,
		MaxScore:          r.MaxScore,
		Correct:           r.Correct,
		RollupStatus:      domain.RollupStatus(r.RollupStatus),
		CreatedAt:         r.CreatedAt,
	}
}

type userTaxonomyStatsRow struct {
	bun.BaseModel `bun:"table:user_taxonomy_stats,alias:uts"`

	UserID              string    `bun:"user_id,pk"`
	TaxonomyID          string    `bun:"taxonomy_id,pk"`
	QuestionsAttempted  int       `bun:"questions_attempted"`
	QuestionsCorrect    int       `bun:"questions_correct"`
	TotalScore          float64   `bun:"total_score"`
	TotalMaxScore       float64   `bun:"total_max_score"`
	AverageScorePercent float64   `bun:"average_score_percent"`
	FirstAttemptAt      time.Time `bun:"first_attempt_at"`
	LastAttemptAt       time.Time `bun:"last_attempt_at"`
}

func (r userTaxonomyStatsRow) toDomain() domain.UserTaxonomyStats {
	return domain.UserTaxonomyStats{
		UserID:              r.UserID,
		TaxonomyID:          r.TaxonomyID,
		QuestionsAttempted:  r.QuestionsAttempted,
		QuestionsCorrect:    r.QuestionsCorrect,
		TotalScore:          r.TotalScore,
		TotalMaxScore:       r.TotalMaxScore,
		AverageScorePercent: r.AverageScorePercent,
		FirstAttemptAt:      r.FirstAttemptAt,
		LastAttemptAt:       r.LastAttemptAt,
	}
}
