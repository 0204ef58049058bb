package domain

import "time"

// UserTaxonomyStats is the denormalized per-(user, node) aggregate.
type UserTaxonomyStats struct {
	UserID              string    `json:"userId"`
	TaxonomyID          string    `json:"taxonomyId"`
	QuestionsAttempted  int       `json:"questionsAttempted"`
	QuestionsCorrect    int       `json:"questionsCorrect"`
	TotalScore          float64   `json:"totalScore"`
	TotalMaxScore       float64   `json:"totalMaxScore"`
	AverageScorePercent float64   `json:"averageScorePercent"`
	FirstAttemptAt      time.Time `json:"firstAttemptAt"`
	LastAttemptAt       time.Time `json:"lastAttemptAt"`
}

// StatsDelta is the contribution of one graded answer to every aggregate it touches.
type StatsDelta struct {
	Correct  bool
	Score    float64
	MaxScore float64
	At       time.Time
}

// Apply folds the delta into s, recomputing the average in the same step.
func (s *UserTaxonomyStats) Apply(d StatsDelta) {
	if s.QuestionsAttempted == 0 {
		s.FirstAttemptAt = d.At
	}
	s.QuestionsAttempted++
	if d.Correct {
		s.QuestionsCorrect++
	}
	s.TotalScore += d.Score
	s.TotalMaxScore += d.MaxScore
	s.AverageScorePercent = AveragePercent(s.TotalScore, s.TotalMaxScore)
	s.LastAttemptAt = d.At
}

// AveragePercent returns score/max as a percentage, or 0 when max is 0.
func AveragePercent(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return score / max * 100
}
