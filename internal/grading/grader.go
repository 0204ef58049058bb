// Package grading scores a submitted answer against a frozen question snapshot.
// Grading is pure: it reads only the snapshot and the answer.
package grading

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"examprep-service/internal/domain"
)

const scoreEpsilon = 1e-9

// Result is the outcome of grading one answer.
type Result struct {
	Score    float64
	MaxScore float64
	Correct  bool
}

// Delta converts a result into the stats contribution it makes.
func (r Result) Delta() domain.StatsDelta {
	return domain.StatsDelta{Correct: r.Correct, Score: r.Score, MaxScore: r.MaxScore}
}

// Grade scores answer against snapshot. The max score is the sum of part points
// regardless of how many parts were answered.
func Grade(snapshot domain.QuestionSnapshot, answer domain.Answer) (Result, error) {
	parts := make(map[string]domain.Part, len(snapshot.Parts))
	for _, p := range snapshot.Parts {
		parts[p.ID] = p
	}

	responses := make(map[string]domain.PartAnswer, len(answer.Parts))
	for _, pa := range answer.Parts {
		part, ok := parts[pa.PartID]
		if !ok {
			return Result{}, fmt.Errorf("%w: part %q not in question %q", domain.ErrMalformedAnswer, pa.PartID, snapshot.QuestionID)
		}
		if _, dup := responses[pa.PartID]; dup {
			return Result{}, fmt.Errorf("%w: part %q answered twice", domain.ErrMalformedAnswer, pa.PartID)
		}
		if err := checkOptions(part, pa); err != nil {
			return Result{}, err
		}
		responses[pa.PartID] = pa
	}

	res := Result{MaxScore: snapshot.MaxScore()}
	for _, part := range snapshot.Parts {
		resp, ok := responses[part.ID]
		if !ok {
			continue
		}
		score, err := gradePart(part, resp)
		if err != nil {
			return Result{}, err
		}
		res.Score += score
	}
	res.Correct = res.MaxScore > 0 && math.Abs(res.Score-res.MaxScore) < scoreEpsilon
	return res, nil
}

func checkOptions(part domain.Part, pa domain.PartAnswer) error {
	if len(pa.SelectedOptionIDs) == 0 {
		return nil
	}
	if !isSelect(part.Kind) {
		return fmt.Errorf("%w: part %q does not take options", domain.ErrMalformedAnswer, part.ID)
	}
	known := make(map[string]struct{}, len(part.Options))
	for _, o := range part.Options {
		known[o.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(pa.SelectedOptionIDs))
	for _, id := range pa.SelectedOptionIDs {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: option %q not in part %q", domain.ErrMalformedAnswer, id, part.ID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: option %q selected twice", domain.ErrMalformedAnswer, id)
		}
		seen[id] = struct{}{}
	}
	if part.Kind == domain.PartSingleSelect && len(pa.SelectedOptionIDs) > 1 {
		return fmt.Errorf("%w: part %q accepts a single option", domain.ErrMalformedAnswer, part.ID)
	}
	return nil
}

func gradePart(part domain.Part, resp domain.PartAnswer) (float64, error) {
	points := part.Points()
	switch part.Kind {
	case domain.PartSingleSelect:
		if len(resp.SelectedOptionIDs) == 1 && optionByID(part, resp.SelectedOptionIDs[0]).Correct {
			return points, nil
		}
		return 0, nil
	case domain.PartMultiSelect:
		if sameSet(correctIDs(part), resp.SelectedOptionIDs) {
			return points, nil
		}
		return 0, nil
	case domain.PartMultiSelectPartial:
		return partialCredit(part, resp.SelectedOptionIDs), nil
	case domain.PartText:
		if resp.Text == nil {
			return 0, nil
		}
		given := strings.ToLower(strings.TrimSpace(*resp.Text))
		for _, accepted := range part.AcceptedAnswers {
			if given == strings.ToLower(strings.TrimSpace(accepted)) {
				return points, nil
			}
		}
		return 0, nil
	case domain.PartNumeric:
		if resp.Numeric == nil {
			return 0, nil
		}
		if math.Abs(*resp.Numeric-part.NumericAnswer) <= part.Tolerance+scoreEpsilon {
			return points, nil
		}
		return 0, nil
	case domain.PartRegex:
		if resp.Text == nil {
			return 0, nil
		}
		re, err := regexp.Compile(part.Pattern)
		if err != nil {
			return 0, fmt.Errorf("%w: part %q pattern: %v", domain.ErrInvalidQuestion, part.ID, err)
		}
		if re.MatchString(strings.TrimSpace(*resp.Text)) {
			return points, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: part %q has unknown kind %q", domain.ErrInvalidQuestion, part.ID, part.Kind)
	}
}

// partialCredit awards each correct option its weighted share and subtracts the
// share of every wrongly selected option, floored at zero.
func partialCredit(part domain.Part, selected []string) float64 {
	totalCorrect := 0.0
	for _, o := range part.Options {
		if o.Correct {
			totalCorrect += o.CreditWeight()
		}
	}
	if totalCorrect == 0 {
		return 0
	}
	earned := 0.0
	for _, id := range selected {
		o := optionByID(part, id)
		if o.Correct {
			earned += o.CreditWeight()
		} else {
			earned -= o.CreditWeight()
		}
	}
	if earned <= 0 {
		return 0
	}
	return part.Points() * earned / totalCorrect
}

func isSelect(kind domain.PartKind) bool {
	switch kind {
	case domain.PartSingleSelect, domain.PartMultiSelect, domain.PartMultiSelectPartial:
		return true
	}
	return false
}

func optionByID(part domain.Part, id string) domain.Option {
	for _, o := range part.Options {
		if o.ID == id {
			return o
		}
	}
	return domain.Option{}
}

func correctIDs(part domain.Part) []string {
	ids := make([]string, 0, len(part.Options))
	for _, o := range part.Options {
		if o.Correct {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
