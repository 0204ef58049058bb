package grading

import (
	"fmt"
	"regexp"

	"examprep-service/internal/domain"
)

// Validate checks that a question can be graded as authored.
func Validate(q domain.Question) error {
	if len(q.Parts) == 0 {
		return fmt.Errorf("%w: question %q has no parts", domain.ErrInvalidQuestion, q.ID)
	}
	partIDs := make(map[string]struct{}, len(q.Parts))
	for _, p := range q.Parts {
		if p.ID == "" {
			return fmt.Errorf("%w: question %q has a part without id", domain.ErrInvalidQuestion, q.ID)
		}
		if _, dup := partIDs[p.ID]; dup {
			return fmt.Errorf("%w: question %q repeats part %q", domain.ErrInvalidQuestion, q.ID, p.ID)
		}
		partIDs[p.ID] = struct{}{}
		if p.Weight < 0 {
			return fmt.Errorf("%w: part %q has negative weight", domain.ErrInvalidQuestion, p.ID)
		}
		if err := validatePart(p); err != nil {
			return err
		}
	}
	return nil
}

func validatePart(p domain.Part) error {
	switch p.Kind {
	case domain.PartSingleSelect, domain.PartMultiSelect, domain.PartMultiSelectPartial:
		if len(p.Options) == 0 {
			return fmt.Errorf("%w: part %q has no options", domain.ErrInvalidQuestion, p.ID)
		}
		seen := make(map[string]struct{}, len(p.Options))
		correct := 0
		for _, o := range p.Options {
			if o.ID == "" {
				return fmt.Errorf("%w: part %q has an option without id", domain.ErrInvalidQuestion, p.ID)
			}
			if _, dup := seen[o.ID]; dup {
				return fmt.Errorf("%w: part %q repeats option %q", domain.ErrInvalidQuestion, p.ID, o.ID)
			}
			if o.Weight < 0 {
				return fmt.Errorf("%w: option %q has negative weight", domain.ErrInvalidQuestion, o.ID)
			}
			seen[o.ID] = struct{}{}
			if o.Correct {
				correct++
			}
		}
		if p.Kind == domain.PartSingleSelect && correct != 1 {
			return fmt.Errorf("%w: single-select part %q needs exactly one correct option, has %d", domain.ErrInvalidQuestion, p.ID, correct)
		}
		if correct == 0 {
			return fmt.Errorf("%w: part %q has no correct option", domain.ErrInvalidQuestion, p.ID)
		}
	case domain.PartText:
		if len(p.AcceptedAnswers) == 0 {
			return fmt.Errorf("%w: text part %q has no accepted answers", domain.ErrInvalidQuestion, p.ID)
		}
	case domain.PartNumeric:
		if p.Tolerance < 0 {
			return fmt.Errorf("%w: numeric part %q has negative tolerance", domain.ErrInvalidQuestion, p.ID)
		}
	case domain.PartRegex:
		if _, err := regexp.Compile(p.Pattern); err != nil || p.Pattern == "" {
			return fmt.Errorf("%w: regex part %q has an invalid pattern", domain.ErrInvalidQuestion, p.ID)
		}
	default:
		return fmt.Errorf("%w: part %q has unknown kind %q", domain.ErrInvalidQuestion, p.ID, p.Kind)
	}
	return nil
}
