package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"examprep-service/internal/app"
	"examprep-service/internal/domain"
	"examprep-service/internal/logger"
	"examprep-service/internal/versioning"
)

const maxRequestBytes = 1 << 20

// API serves the publish, attempt and stats endpoints. Authentication happens upstream;
// the caller's identity arrives in the X-User-ID header.
type API struct {
	attempts  *app.AttemptService
	publisher *versioning.Publisher
	log       *logger.Logger
}

func NewAPI(attempts *app.AttemptService, publisher *versioning.Publisher, log *logger.Logger) *API {
	return &API{attempts: attempts, publisher: publisher, log: log}
}

// Register mounts every route on mux, including the attempt websocket.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /quizzes/{quizID}/publish", a.handlePublish)
	mux.HandleFunc("POST /quizzes/{quizID}/attempts", a.handleStartAttempt)
	mux.HandleFunc("GET /attempts/{attemptID}", a.handleGetAttempt)
	mux.HandleFunc("POST /attempts/{attemptID}/answers", a.handleSubmitAnswer)
	mux.HandleFunc("POST /attempts/{attemptID}/finish", a.handleFinishAttempt)
	mux.HandleFunc("GET /users/{userID}/taxonomy-stats", a.handleUserStats)
	mux.HandleFunc("GET /users/{userID}/questions/{questionID}/attempts", a.handleQuestionHistory)
	mux.HandleFunc("GET /ws/attempts", NewWSHandler(a.attempts, a.log).ServeWS)
}

func (a *API) handlePublish(w http.ResponseWriter, r *http.Request) {
	res, err := a.publisher.Publish(r.Context(), r.PathValue("quizID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "X-User-ID header is required", "invalid_request")
		return
	}
	attempt, err := a.attempts.StartAttempt(r.Context(), userID, r.PathValue("quizID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (a *API) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	summary, err := a.attempts.GetAttempt(r.Context(), r.PathValue("attemptID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type submitAnswerRequest struct {
	QuestionID string        `json:"questionId"`
	Answer     domain.Answer `json:"answer"`
}

func (a *API) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var in submitAnswerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid answer payload: "+err.Error(), "invalid_request")
		return
	}
	if strings.TrimSpace(in.QuestionID) == "" {
		writeError(w, http.StatusBadRequest, "questionId is required", "invalid_request")
		return
	}
	res, err := a.attempts.SubmitAnswer(r.Context(), r.PathValue("attemptID"), in.QuestionID, in.Answer)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleFinishAttempt(w http.ResponseWriter, r *http.Request) {
	summary, err := a.attempts.FinishAttempt(r.Context(), r.PathValue("attemptID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleUserStats(w http.ResponseWriter, r *http.Request) {
	rows, err := a.attempts.UserStats(r.Context(), r.PathValue("userID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.UserTaxonomyStats{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleQuestionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.attempts.QuestionHistory(r.Context(), r.PathValue("userID"), r.PathValue("questionID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		a.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeDomainError(w, err)
}
