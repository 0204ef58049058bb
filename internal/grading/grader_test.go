package grading

import (
	"errors"
	"testing"

	"examprep-service/internal/domain"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func numPtr(f float64) *float64 { return &f }
func selectAnswer(part string, opts ...string) domain.PartAnswer {
	return domain.PartAnswer{PartID: part, SelectedOptionIDs: opts}
}

func singleSelect() domain.QuestionSnapshot {
	return domain.QuestionSnapshot{
		QuestionID: "q1",
		Parts: []domain.Part{{
			ID:   "p1",
			Kind: domain.PartSingleSelect,
			Options: []domain.Option{
				{ID: "o1", Label: "3"},
				{ID: "o2", Label: "4", Correct: true},
			},
		}},
	}
}

func TestGradeSingleSelect(t *testing.T) {
	res, err := Grade(singleSelect(), domain.Answer{Parts: []domain.PartAnswer{selectAnswer("p1", "o2")}})
	require.NoError(t, err)
	require.Equal(t, 1.0, res.Score)
	require.Equal(t, 1.0, res.MaxScore)
	require.True(t, res.Correct)

	res, err = Grade(singleSelect(), domain.Answer{Parts: []domain.PartAnswer{selectAnswer("p1", "o1")}})
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Score)
	require.Equal(t, 1.0, res.MaxScore)
	require.False(t, res.Correct)
}

func TestGradeSingleSelectRejectsTwoOptions(t *testing.T) {
	_, err := Grade(singleSelect(), domain.Answer{Parts: []domain.PartAnswer{selectAnswer("p1", "o1", "o2")}})
	require.ErrorIs(t, err, domain.ErrMalformedAnswer)
}

func TestGradeRejectsUnknownIDs(t *testing.T) {
	cases := map[string]domain.Answer{
		"unknown option": {Parts: []domain.PartAnswer{selectAnswer("p1", "nope")}},
		"unknown part":   {Parts: []domain.PartAnswer{selectAnswer("p9", "o1")}},
		"duplicate part": {Parts: []domain.PartAnswer{selectAnswer("p1", "o1"), selectAnswer("p1", "o2")}},
	}
	for name, answer := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Grade(singleSelect(), answer)
			require.True(t, errors.Is(err, domain.ErrMalformedAnswer), "got %v", err)
		})
	}
}

func TestGradeMultiSelectExact(t *testing.T) {
	snap := domain.QuestionSnapshot{
		QuestionID: "q2",
		Parts: []domain.Part{{
			ID:     "p1",
			Kind:   domain.PartMultiSelect,
			Weight: 2,
			Options: []domain.Option{
				{ID: "a", Correct: true},
				{ID: "b", Correct: true},
				{ID: "c"},
			},
		}},
	}

	res, err := Grade(snap, domain.Answer{Parts: []domain.PartAnswer{selectAnswer("p1", "b", "a")}})
	require.NoError(t, err)
	require.Equal(t, 2.0, res.Score)
	require.True(t, res.Correct)

	res, err = Grade(snap, domain.Answer{Parts: []domain.PartAnswer{selectAnswer("p1", "a")}})
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Score)
	require.Equal(t, 2.0, res.MaxScore)
}

func TestGradeMultiSelectPartial(t *testing.T) {
	snap := domain.QuestionSnapshot{
		QuestionID: "q3",
		Parts: []domain.Part{{
			ID:     "p1",
			Kind:   domain.PartMultiSelectPartial,
			Weight: 4,
			Options: []domain.Option{
				{ID: "a", Correct: true},
				{ID: "b", Correct: true},
				{ID: "c"},
				{ID: "d"},
			},
		}},
	}

	res, err := Grade(snap, domain.Answer{Parts: []domain.PartAnswer{selectAnswer("p1", "a")}})
	require.NoError(t, err)
	require.InDelta(t, 2.0, res.Score, 1e-9)
	require.False(t, res.Correct)

	// one right, one wrong cancels out
	res, err = Grade(snap, domain.Answer{Parts: []domain.PartAnswer{selectAnswer("p1", "a", "c")}})
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Score)

	// selecting everything never beats the penalty
	res, err = Grade(snap, domain.Answer{Parts: []domain.PartAnswer{selectAnswer("p1", "a", "b", "c", "d")}})
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Score)

	res, err = Grade(snap, domain.Answer{Parts: []domain.PartAnswer{selectAnswer("p1", "a", "b")}})
	require.NoError(t, err)
	require.True(t, res.Correct)
}

func TestGradeMultiPartSumsParts(t *testing.T) {
	snap := domain.QuestionSnapshot{
		QuestionID: "q4",
		Parts: []domain.Part{
			{ID: "greet", Kind: domain.PartText, Weight: 2, AcceptedAnswers: []string{"hello"}},
			{ID: "digits", Kind: domain.PartRegex, Weight: 3, Pattern: `^\d{3}$`},
			{ID: "pi", Kind: domain.PartNumeric, Weight: 1, NumericAnswer: 3.14, Tolerance: 0.01},
		},
	}
	require.Equal(t, 6.0, snap.MaxScore())

	res, err := Grade(snap, domain.Answer{Parts: []domain.PartAnswer{
		{PartID: "greet", Text: strPtr("  Hello ")},
		{PartID: "digits", Text: strPtr("123")},
		{PartID: "pi", Numeric: numPtr(3.141)},
	}})
	require.NoError(t, err)
	require.Equal(t, 6.0, res.Score)
	require.True(t, res.Correct)

	res, err = Grade(snap, domain.Answer{Parts: []domain.PartAnswer{
		{PartID: "greet", Text: strPtr("hello")},
		{PartID: "digits", Text: strPtr("12a")},
	}})
	require.NoError(t, err)
	require.Equal(t, 2.0, res.Score)
	require.Equal(t, 6.0, res.MaxScore)
	require.False(t, res.Correct)
}

func TestGradeMaxScoreIndependentOfAnswer(t *testing.T) {
	res, err := Grade(singleSelect(), domain.Answer{})
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Score)
	require.Equal(t, 1.0, res.MaxScore)
}

func TestGradeOptionsOnTextPartAreMalformed(t *testing.T) {
	snap := domain.QuestionSnapshot{Parts: []domain.Part{{ID: "t", Kind: domain.PartText, AcceptedAnswers: []string{"x"}}}}
	_, err := Grade(snap, domain.Answer{Parts: []domain.PartAnswer{selectAnswer("t", "o1")}})
	require.ErrorIs(t, err, domain.ErrMalformedAnswer)
}

func TestValidate(t *testing.T) {
	good := domain.Question{ID: "q", Parts: singleSelect().Parts}
	require.NoError(t, Validate(good))

	twoCorrect := domain.Question{ID: "q", Parts: []domain.Part{{
		ID: "p", Kind: domain.PartSingleSelect,
		Options: []domain.Option{{ID: "a", Correct: true}, {ID: "b", Correct: true}},
	}}}
	require.ErrorIs(t, Validate(twoCorrect), domain.ErrInvalidQuestion)

	badRegex := domain.Question{ID: "q", Parts: []domain.Part{{ID: "p", Kind: domain.PartRegex, Pattern: "("}}}
	require.ErrorIs(t, Validate(badRegex), domain.ErrInvalidQuestion)

	require.ErrorIs(t, Validate(domain.Question{ID: "q"}), domain.ErrInvalidQuestion)
}
