package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"examprep-service/internal/domain"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrTransientStore):
		return http.StatusServiceUnavailable, "transient_store_error"
	case errors.Is(err, domain.ErrMalformedAnswer):
		return http.StatusBadRequest, "malformed_answer"
	case errors.Is(err, domain.ErrInvalidQuestion):
		return http.StatusBadRequest, "invalid_question"
	case errors.Is(err, domain.ErrEmptyQuiz):
		return http.StatusBadRequest, "empty_quiz"
	case errors.Is(err, domain.ErrAttemptNotActive):
		return http.StatusConflict, "attempt_not_active"
	case errors.Is(err, domain.ErrNoPublishedVersion):
		return http.StatusConflict, "no_published_version"
	case errors.Is(err, domain.ErrQuestionAlreadyAnswered):
		return http.StatusConflict, "question_already_answered"
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrQuizVersionNotFound),
		errors.Is(err, domain.ErrTaxonomyNodeNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrTaxonomyCycle):
		return http.StatusInternalServerError, "taxonomy_cycle"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = http.StatusText(status)
	}
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Message:   msg,
		Code:      code,
		Retryable: status == http.StatusServiceUnavailable,
	}})
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
