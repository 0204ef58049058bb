// Package versioning freezes mutable quizzes into immutable, content-addressed versions.
package versioning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"examprep-service/internal/domain"
)

// FingerprintPrefix names the hash algorithm inside every fingerprint.
const FingerprintPrefix = "sha256:"

// Snapshot freezes the gradable content of q. Taxonomy tags are sorted and deduplicated
// so tag order never changes the fingerprint.
func Snapshot(q domain.Question) domain.QuestionSnapshot {
	tags := make([]string, 0, len(q.TaxonomyIDs))
	seen := make(map[string]struct{}, len(q.TaxonomyIDs))
	for _, id := range q.TaxonomyIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		tags = append(tags, id)
	}
	sort.Strings(tags)

	parts := make([]domain.Part, len(q.Parts))
	for i, p := range q.Parts {
		p.Options = append([]domain.Option(nil), p.Options...)
		p.AcceptedAnswers = append([]string(nil), p.AcceptedAnswers...)
		parts[i] = p
	}

	return domain.QuestionSnapshot{
		QuestionID:  q.ID,
		Title:       q.Title,
		Body:        q.Body,
		Parts:       parts,
		TaxonomyIDs: tags,
	}
}

// Fingerprint hashes the canonical JSON encoding of s. Struct fields marshal in
// declaration order, which makes the encoding stable.
func Fingerprint(s domain.QuestionSnapshot) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot %s: %w", s.QuestionID, err)
	}
	sum := sha256.Sum256(raw)
	return FingerprintPrefix + hex.EncodeToString(sum[:]), nil
}
