package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"examprep-service/internal/domain"
)

func do(t *testing.T, mux *http.ServeMux, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	api, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	rec := do(t, mux, http.MethodPost, "/quizzes/quiz-1/attempts", nil, map[string]string{"X-User-ID": "u1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var attempt domain.QuizAttempt
	if err := json.NewDecoder(rec.Body).Decode(&attempt); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}

	nine := 9.0
	rec = do(t, mux, http.MethodPost, "/attempts/"+attempt.ID+"/answers", map[string]any{
		"questionId": "q2",
		"answer":     domain.Answer{Parts: []domain.PartAnswer{{PartID: "p1", Numeric: &nine}}},
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res domain.SubmitResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Score != 1 || res.NextQuestionID == nil || *res.NextQuestionID != "q1" {
		t.Fatalf("unexpected result %+v", res)
	}

	rec = do(t, mux, http.MethodPost, "/attempts/"+attempt.ID+"/answers", map[string]any{
		"questionId": "q1",
		"answer":     domain.Answer{Parts: []domain.PartAnswer{{PartID: "p1", SelectedOptionIDs: []string{"nope"}}}},
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed: expected 400, got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodPost, "/attempts/"+attempt.ID+"/finish", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finish: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, mux, http.MethodPost, "/attempts/"+attempt.ID+"/finish", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second finish: expected 409, got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodGet, "/users/u1/taxonomy-stats", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", rec.Code)
	}
	var rows []domain.UserTaxonomyStats
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected stats for arith and math, got %+v", rows)
	}

	rec = do(t, mux, http.MethodGet, "/users/u1/questions/q2/attempts", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rec.Code)
	}
	var history domain.QuestionHistory
	if err := json.NewDecoder(rec.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if history.TotalAttempts != 1 || !history.IsSolved || history.Attempts[0].QuizAttemptID != attempt.ID {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestPublishAndStartErrors(t *testing.T) {
	api, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	if rec := do(t, mux, http.MethodPost, "/quizzes/quiz-1/publish", nil, nil); rec.Code != http.StatusCreated {
		t.Fatalf("publish: expected 201, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, "/quizzes/draft/publish", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty quiz: expected 400, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, "/quizzes/draft/attempts", nil, map[string]string{"X-User-ID": "u1"}); rec.Code != http.StatusConflict {
		t.Fatalf("unpublished: expected 409, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, "/quizzes/quiz-1/attempts", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user: expected 400, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/attempts/missing", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing attempt: expected 404, got %d", rec.Code)
	}
}

func TestStatusForTransientIsRetryable(t *testing.T) {
	err := &domain.TransientError{Op: "commit", Err: errors.New("timeout")}
	if status, _ := statusFor(err); status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	rec := httptest.NewRecorder()
	writeDomainError(rec, err)
	var body errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Error.Retryable {
		t.Fatalf("expected retryable flag")
	}
}
