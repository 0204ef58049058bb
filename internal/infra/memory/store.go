package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"examprep-service/internal/domain"
	"examprep-service/internal/store"
)

// Store is an in-memory implementation of store.Store. Transactions are serialized by a
// single mutex and run against a copy of the state that replaces the live state on commit.
type Store struct {
	mu         sync.Mutex
	state      *state
	commitErrs []error
}

type state struct {
	quizzes          map[string]domain.Quiz
	questions        map[string]domain.Question
	questionVersions map[string]domain.QuestionVersion
	fingerprints     map[string]string
	quizVersions     map[string]domain.QuizVersion
	attempts         map[string]domain.QuizAttempt
	questionAttempts map[string]domain.QuestionAttempt
	answered         map[answerKey]string
	stats            map[statsKey]domain.UserTaxonomyStats
}

type answerKey struct{ attemptID, questionID string }

type statsKey struct{ userID, nodeID string }

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		quizzes:          make(map[string]domain.Quiz),
		questions:        make(map[string]domain.Question),
		questionVersions: make(map[string]domain.QuestionVersion),
		fingerprints:     make(map[string]string),
		quizVersions:     make(map[string]domain.QuizVersion),
		attempts:         make(map[string]domain.QuizAttempt),
		questionAttempts: make(map[string]domain.QuestionAttempt),
		answered:         make(map[answerKey]string),
		stats:            make(map[statsKey]domain.UserTaxonomyStats),
	}
}

func (s *state) clone() *state {
	c := newState()
	copyMap(c.quizzes, s.quizzes)
	copyMap(c.questions, s.questions)
	copyMap(c.questionVersions, s.questionVersions)
	copyMap(c.fingerprints, s.fingerprints)
	copyMap(c.quizVersions, s.quizVersions)
	copyMap(c.attempts, s.attempts)
	copyMap(c.questionAttempts, s.questionAttempts)
	copyMap(c.answered, s.answered)
	copyMap(c.stats, s.stats)
	return c
}

func copyMap[K comparable, V any](dst, src map[K]V) {
	for k, v := range src {
		dst[k] = v
	}
}

// WithTx runs fn on a private copy of the state and publishes it only if fn and the
// simulated commit both succeed.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{st: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if len(s.commitErrs) > 0 {
		err := s.commitErrs[0]
		s.commitErrs = s.commitErrs[1:]
		return err
	}
	s.state = tx.st
	return nil
}

// FailCommits makes the next len(errs) commits fail with the given errors (tests only).
func (s *Store) FailCommits(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErrs = append(s.commitErrs, errs...)
}

// SaveQuestion creates or replaces a mutable question, as the authoring collaborator would.
func (s *Store) SaveQuestion(q domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	next.questions[q.ID] = q
	s.state = next
}

// SaveQuiz creates or replaces a mutable quiz.
func (s *Store) SaveQuiz(q domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	next.quizzes[q.ID] = q
	s.state = next
}

// GetQuizVersion reads a committed quiz version; it satisfies VersionLoader.
func (s *Store) GetQuizVersion(ctx context.Context, id string) (domain.QuizVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{st: s.state}).QuizVersion(ctx, id)
}

// QuestionVersionCount is the number of stored question versions across all questions.
func (s *Store) QuestionVersionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.questionVersions)
}

// Stats returns the committed aggregate for (userID, nodeID).
func (s *Store) Stats(userID, nodeID string) (domain.UserTaxonomyStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.state.stats[statsKey{userID, nodeID}]
	return row, ok
}

// StatsRowCount is the number of committed aggregate rows.
func (s *Store) StatsRowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.stats)
}

// QuestionAttemptCount is the number of committed question attempts.
func (s *Store) QuestionAttemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.questionAttempts)
}

type memTx struct {
	st *state
}

func (t *memTx) LockQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	q, ok := t.st.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	return q, nil
}

func (t *memTx) QuizQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	quiz, err := t.LockQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Question, 0, len(quiz.QuestionIDs))
	for _, id := range quiz.QuestionIDs {
		q, ok := t.st.questions[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
		}
		out = append(out, q)
	}
	return out, nil
}

func (t *memTx) CreateQuestionVersion(_ context.Context, v domain.QuestionVersion) (bool, error) {
	if _, ok := t.st.fingerprints[v.Fingerprint]; ok {
		return false, nil
	}
	t.st.questionVersions[v.ID] = v
	t.st.fingerprints[v.Fingerprint] = v.ID
	return true, nil
}

func (t *memTx) QuestionVersionByFingerprint(_ context.Context, fingerprint string) (domain.QuestionVersion, error) {
	id, ok := t.st.fingerprints[fingerprint]
	if !ok {
		return domain.QuestionVersion{}, fmt.Errorf("%w: fingerprint %s", domain.ErrQuestionNotFound, fingerprint)
	}
	return t.st.questionVersions[id], nil
}

func (t *memTx) CountQuestionVersions(_ context.Context, questionID string) (int, error) {
	n := 0
	for _, v := range t.st.questionVersions {
		if v.QuestionID == questionID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) NextQuizVersionSequence(_ context.Context, quizID string) (int, error) {
	max := 0
	for _, v := range t.st.quizVersions {
		if v.QuizID == quizID && v.SequenceNumber > max {
			max = v.SequenceNumber
		}
	}
	return max + 1, nil
}

func (t *memTx) CreateQuizVersion(_ context.Context, v domain.QuizVersion) error {
	for _, existing := range t.st.quizVersions {
		if existing.QuizID == v.QuizID && existing.SequenceNumber == v.SequenceNumber {
			return fmt.Errorf("quiz %s already has version %d", v.QuizID, v.SequenceNumber)
		}
	}
	t.st.quizVersions[v.ID] = v
	return nil
}

func (t *memTx) LatestPublishedQuizVersion(_ context.Context, quizID string) (domain.QuizVersion, error) {
	var latest domain.QuizVersion
	found := false
	for _, v := range t.st.quizVersions {
		if v.QuizID != quizID || v.PublishedAt == nil {
			continue
		}
		if !found || v.SequenceNumber > latest.SequenceNumber {
			latest = v
			found = true
		}
	}
	if !found {
		return domain.QuizVersion{}, fmt.Errorf("%w: %s", domain.ErrNoPublishedVersion, quizID)
	}
	return latest, nil
}

func (t *memTx) QuizVersion(_ context.Context, id string) (domain.QuizVersion, error) {
	v, ok := t.st.quizVersions[id]
	if !ok {
		return domain.QuizVersion{}, fmt.Errorf("%w: %s", domain.ErrQuizVersionNotFound, id)
	}
	return v, nil
}

func (t *memTx) CreateQuizAttempt(_ context.Context, a domain.QuizAttempt) error {
	t.st.attempts[a.ID] = a
	return nil
}

func (t *memTx) LockQuizAttempt(_ context.Context, id string, _ bool) (domain.QuizAttempt, error) {
	a, ok := t.st.attempts[id]
	if !ok {
		return domain.QuizAttempt{}, fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, id)
	}
	return a, nil
}

func (t *memTx) UpdateQuizAttempt(_ context.Context, a domain.QuizAttempt) error {
	existing, ok := t.st.attempts[a.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, a.ID)
	}
	if existing.QuizVersionID != a.QuizVersionID {
		return fmt.Errorf("attempt %s: quiz version binding is immutable", a.ID)
	}
	t.st.attempts[a.ID] = a
	return nil
}

func (t *memTx) QuestionAttempt(_ context.Context, attemptID, questionID string) (domain.QuestionAttempt, error) {
	id, ok := t.st.answered[answerKey{attemptID, questionID}]
	if !ok {
		return domain.QuestionAttempt{}, fmt.Errorf("%w: %s in attempt %s", domain.ErrQuestionNotFound, questionID, attemptID)
	}
	return t.st.questionAttempts[id], nil
}

func (t *memTx) CreateQuestionAttempt(_ context.Context, qa domain.QuestionAttempt) error {
	key := answerKey{qa.QuizAttemptID, qa.QuestionID}
	if _, ok := t.st.answered[key]; ok {
		return fmt.Errorf("%w: %s", domain.ErrQuestionAlreadyAnswered, qa.QuestionID)
	}
	t.st.questionAttempts[qa.ID] = qa
	t.st.answered[key] = qa.ID
	return nil
}

func (t *memTx) ListQuestionAttempts(_ context.Context, attemptID string) ([]domain.QuestionAttempt, error) {
	var out []domain.QuestionAttempt
	for _, qa := range t.st.questionAttempts {
		if qa.QuizAttemptID == attemptID {
			out = append(out, qa)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (t *memTx) UserQuestionAttempts(_ context.Context, userID, questionID string) ([]domain.QuestionAttempt, error) {
	var out []domain.QuestionAttempt
	for _, qa := range t.st.questionAttempts {
		if qa.UserID == userID && qa.QuestionID == questionID {
			out = append(out, qa)
		}
	}
	sortByCreated(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (t *memTx) PendingRollups(_ context.Context, limit int) ([]domain.QuestionAttempt, error) {
	var out []domain.QuestionAttempt
	for _, qa := range t.st.questionAttempts {
		if qa.RollupStatus == domain.RollupPending {
			out = append(out, qa)
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) MarkRollupApplied(_ context.Context, questionAttemptID string) (bool, error) {
	qa, ok := t.st.questionAttempts[questionAttemptID]
	if !ok {
		return false, fmt.Errorf("%w: question attempt %s", domain.ErrAttemptNotFound, questionAttemptID)
	}
	if qa.RollupStatus != domain.RollupPending {
		return false, nil
	}
	qa.RollupStatus = domain.RollupApplied
	t.st.questionAttempts[questionAttemptID] = qa
	return true, nil
}

func (t *memTx) UpsertUserTaxonomyStats(_ context.Context, userID, nodeID string, delta domain.StatsDelta) error {
	key := statsKey{userID, nodeID}
	row, ok := t.st.stats[key]
	if !ok {
		row = domain.UserTaxonomyStats{UserID: userID, TaxonomyID: nodeID}
	}
	row.Apply(delta)
	t.st.stats[key] = row
	return nil
}

func (t *memTx) UserTaxonomyStats(_ context.Context, userID string) ([]domain.UserTaxonomyStats, error) {
	var out []domain.UserTaxonomyStats
	for key, row := range t.st.stats {
		if key.userID == userID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaxonomyID < out[j].TaxonomyID })
	return out, nil
}

func sortByCreated(qas []domain.QuestionAttempt) {
	sort.SliceStable(qas, func(i, j int) bool {
		if !qas[i].CreatedAt.Equal(qas[j].CreatedAt) {
			return qas[i].CreatedAt.Before(qas[j].CreatedAt)
		}
		return qas[i].ID < qas[j].ID
	})
}
