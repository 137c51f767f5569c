package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/curriculum"
	"github.com/abhisek/nextlesson/internal/logger"
	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/recommend"
	"github.com/abhisek/nextlesson/internal/service"
	"github.com/abhisek/nextlesson/internal/spacedrep"
	"github.com/abhisek/nextlesson/internal/store"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	course, err := curriculum.NewCourse("algebra", "Algebra", []curriculum.Outcome{
		{ID: "vars", CurriculumOrder: 1, EstimatedMinutes: 10},
		{ID: "eqns", CurriculumOrder: 2, EstimatedMinutes: 10},
	}, []curriculum.Lesson{
		{ID: "intro", Title: "Intro", TargetOutcomeIDs: []string{"vars"}, EstimatedMinutes: 10, CurriculumOrder: 1},
		{ID: "solve", Title: "Solving", TargetOutcomeIDs: []string{"eqns"}, EstimatedMinutes: 40, CurriculumOrder: 2},
	})
	require.NoError(t, err)

	mem := store.NewMemory()
	svc := service.New(service.Deps{
		Catalog:   curriculum.NewStaticCatalog(course),
		Mastery:   mem,
		History:   mem,
		Clock:     func() time.Time { return now },
		Config:    service.DefaultConfig(),
		Update:    mastery.DefaultConfig(),
		Due:       spacedrep.DefaultConfig(),
		Recommend: recommend.DefaultConfig(),
	})
	return NewRouter(logger.Nop(), NewHandler(logger.Nop(), svc), nil)
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	rec := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDPropagated(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestCompletionThenRecommendation(t *testing.T) {
	r := newTestRouter(t)

	rec := do(r, http.MethodPost, "/v1/courses/algebra/completions",
		`{"learner_id":"ada","lesson_id":"intro","scores":{"vars":0.9}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res service.CompletionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.EventID)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Records[0].ObservationCount)

	rec = do(r, http.MethodGet, "/v1/courses/algebra/learners/ada/recommendations?max_block_minutes=30", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out recommend.CourseRecommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "algebra", out.CourseID)
	assert.Equal(t, "ada", out.LearnerID)
	require.Len(t, out.Candidates, 2)
	for _, c := range out.Candidates {
		switch c.LessonID {
		case "intro":
			assert.True(t, c.HasFlag(recommend.FlagRecentlyTaught))
		case "solve":
			assert.True(t, c.HasFlag(recommend.FlagTooLong))
		}
	}
	assert.Equal(t, "Overdue>LowMastery>Order | -Recent -TooLong", out.RubricDescription)
}

func TestDueAndMastery(t *testing.T) {
	r := newTestRouter(t)

	rec := do(r, http.MethodGet, "/v1/courses/algebra/learners/ada/due", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var due struct {
		Count int               `json:"count"`
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &due))
	assert.Equal(t, 2, due.Count)
	assert.Len(t, due.Items, due.Count)

	rec = do(r, http.MethodGet, "/v1/courses/algebra/learners/ada/mastery", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"records":[]}`, rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{"block too small", http.MethodGet, "/v1/courses/algebra/learners/ada/recommendations?max_block_minutes=4", "", 400, CodeValidation},
		{"block too large", http.MethodGet, "/v1/courses/algebra/learners/ada/recommendations?max_block_minutes=121", "", 400, CodeValidation},
		{"avoid too large", http.MethodGet, "/v1/courses/algebra/learners/ada/recommendations?avoid_repeat_within_days=31", "", 400, CodeValidation},
		{"unparseable int", http.MethodGet, "/v1/courses/algebra/learners/ada/recommendations?max_block_minutes=ten", "", 400, CodeValidation},
		{"unparseable bool", http.MethodGet, "/v1/courses/algebra/learners/ada/recommendations?prefer_overdue=maybe", "", 400, CodeValidation},
		{"unknown course", http.MethodGet, "/v1/courses/geometry/learners/ada/recommendations", "", 404, CodeNotFound},
		{"unknown course due", http.MethodGet, "/v1/courses/geometry/learners/ada/due", "", 404, CodeNotFound},
		{"bad json", http.MethodPost, "/v1/courses/algebra/completions", `{"learner_id":`, 400, CodeValidation},
		{"score out of range", http.MethodPost, "/v1/courses/algebra/completions", `{"learner_id":"ada","lesson_id":"intro","scores":{"vars":1.5}}`, 400, CodeValidation},
		{"course mismatch", http.MethodPost, "/v1/courses/algebra/completions", `{"course_id":"geometry","learner_id":"ada","lesson_id":"intro","scores":{"vars":0.5}}`, 400, CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			apiErr := decodeError(t, rec)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperr.Validation("f", 1, "bad"), http.StatusBadRequest},
		{apperr.NotFound("course", "x"), http.StatusNotFound},
		{&apperr.ConflictError{Key: "k", Expected: 1}, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := StatusFor(tt.err)
		assert.Equal(t, tt.status, status, "err = %v", tt.err)
	}
}

// failingTutor always fails with an internal error.
type failingTutor struct{ Tutor }

func (failingTutor) DueSummary(context.Context, string, string) (spacedrep.Summary, error) {
	return spacedrep.Summary{}, errors.New("db password=hunter2 unreachable")
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(logger.Nop(), NewHandler(logger.Nop(), failingTutor{}), nil)
	rec := do(r, http.MethodGet, "/v1/courses/algebra/learners/ada/due", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.Equal(t, CodeInternal, decodeError(t, rec).Code)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	origin := "http://localhost:5173"

	r := gin.New()
	r.Use(CORS([]string{origin}))
	r.OPTIONS("/v1/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/x", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
}
