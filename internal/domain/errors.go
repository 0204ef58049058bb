package domain

import "errors"

var (
	// ErrTaxonomyCycle is returned when an ancestor walk revisits a node or exceeds the depth bound.
	ErrTaxonomyCycle = errors.New("taxonomy cycle detected")
	// ErrTaxonomyNodeNotFound indicates a taxonomy id that is not present in the taxonomy store.
	ErrTaxonomyNodeNotFound = errors.New("taxonomy node not found")
	// ErrMalformedAnswer is returned when an answer references parts or options the snapshot does not have.
	ErrMalformedAnswer = errors.New("malformed answer")
	// ErrAttemptNotActive is returned when an attempt is no longer in progress.
	ErrAttemptNotActive = errors.New("attempt not active")
	// ErrNoPublishedVersion is returned when a quiz has never been published.
	ErrNoPublishedVersion = errors.New("quiz has no published version")
	// ErrTransientStore marks retryable store failures (timeouts, lost connections, serialization conflicts).
	ErrTransientStore = errors.New("transient store error")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question id that is not part of the requested quiz or version.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAttemptNotFound indicates an unknown quiz attempt.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuestionAlreadyAnswered is returned when a question receives a second, different answer within one attempt.
	ErrQuestionAlreadyAnswered = errors.New("question already answered in this attempt")
	// ErrQuizVersionNotFound indicates an unknown quiz version id.
	ErrQuizVersionNotFound = errors.New("quiz version not found")
	// ErrInvalidQuestion is returned by publish when a question cannot be graded as authored.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrEmptyQuiz is returned by publish when the quiz has no questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
)

// TransientError wraps a driver failure that the caller may retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return ErrTransientStore.Error() + ": " + e.Err.Error()
	}
	return ErrTransientStore.Error() + ": " + e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransientStore) match.
func (e *TransientError) Is(target error) bool {
	return target == ErrTransientStore
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
