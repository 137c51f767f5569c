package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/logger"
	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/recommend"
	"github.com/abhisek/nextlesson/internal/service"
	"github.com/abhisek/nextlesson/internal/spacedrep"
	"github.com/abhisek/nextlesson/internal/store"
)

// Tutor is the service surface the HTTP layer needs.
type Tutor interface {
	RecordCompletion(ctx context.Context, ev mastery.CompletionEvent) (service.CompletionResult, error)
	Recommend(ctx context.Context, req service.RecommendRequest) (recommend.CourseRecommendation, error)
	DueSummary(ctx context.Context, courseID, learnerID string) (spacedrep.Summary, error)
	Mastery(ctx context.Context, courseID, learnerID string) ([]store.Versioned, error)
}

type Handler struct {
	log   *logger.Logger
	tutor Tutor
}

func NewHandler(log *logger.Logger, tutor Tutor) *Handler {
	return &Handler{
		log:   log.With("handler", "TutorHandler"),
		tutor: tutor,
	}
}

// POST /v1/courses/:courseID/completions
func (h *Handler) RecordCompletion(c *gin.Context) {
	courseID := c.Param("courseID")

	var ev mastery.CompletionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		h.respondErr(c, apperr.Validation("body", nil, err.Error()))
		return
	}
	if ev.CourseID == "" {
		ev.CourseID = courseID
	}
	if ev.CourseID != courseID {
		h.respondErr(c, apperr.Validation("course_id", ev.CourseID, "does not match path course "+courseID))
		return
	}

	res, err := h.tutor.RecordCompletion(c.Request.Context(), ev)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, res)
}

// GET /v1/courses/:courseID/learners/:learnerID/recommendations
func (h *Handler) Recommend(c *gin.Context) {
	constraints, err := parseConstraints(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	rec, err := h.tutor.Recommend(c.Request.Context(), service.RecommendRequest{
		CourseID:    c.Param("courseID"),
		LearnerID:   c.Param("learnerID"),
		Constraints: constraints,
	})
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, rec)
}

// GET /v1/courses/:courseID/learners/:learnerID/due
func (h *Handler) DueSummary(c *gin.Context) {
	sum, err := h.tutor.DueSummary(c.Request.Context(), c.Param("courseID"), c.Param("learnerID"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	RespondOK(c, sum)
}

// GET /v1/courses/:courseID/learners/:learnerID/mastery
func (h *Handler) Mastery(c *gin.Context) {
	records, err := h.tutor.Mastery(c.Request.Context(), c.Param("courseID"), c.Param("learnerID"))
	if err != nil {
		h.respondErr(c, err)
		return
	}
	if records == nil {
		records = []store.Versioned{}
	}
	RespondOK(c, gin.H{"records": records})
}

// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseConstraints reads the optional query parameters over the defaults.
// Unparseable values are validation errors; range checks happen downstream.
func parseConstraints(c *gin.Context) (recommend.Constraints, error) {
	out := recommend.DefaultConstraints()

	ints := []struct {
		name string
		dst  *int
	}{
		{"max_block_minutes", &out.MaxBlockMinutes},
		{"avoid_repeat_within_days", &out.AvoidRepeatWithinDays},
	}
	for _, p := range ints {
		raw, ok := c.GetQuery(p.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return out, apperr.Validation(p.name, raw, "must be an integer")
		}
		*p.dst = n
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"prefer_overdue", &out.PreferOverdue},
		{"prefer_low_mastery", &out.PreferLowMastery},
	}
	for _, p := range bools {
		raw, ok := c.GetQuery(p.name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return out, apperr.Validation(p.name, raw, "must be a boolean")
		}
		*p.dst = b
	}
	return out, nil
}
