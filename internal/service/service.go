package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/nextlesson/internal/apperr"
	"github.com/abhisek/nextlesson/internal/curriculum"
	"github.com/abhisek/nextlesson/internal/logger"
	"github.com/abhisek/nextlesson/internal/mastery"
	"github.com/abhisek/nextlesson/internal/recommend"
	"github.com/abhisek/nextlesson/internal/spacedrep"
	"github.com/abhisek/nextlesson/internal/store"
)

const DefaultMaxRetries = 5

type Config struct {
	MaxRetries int `mapstructure:"max_retries"`
}

func DefaultConfig() Config {
	return Config{MaxRetries: DefaultMaxRetries}
}

func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return apperr.Validation("service.max_retries", c.MaxRetries, "must be >= 1")
	}
	return nil
}

// Deps are the collaborators a Service needs. Clock defaults to time.Now.
type Deps struct {
	Catalog   curriculum.Catalog
	Mastery   store.MasteryRepo
	History   store.HistoryRepo
	Log       *logger.Logger
	Clock     func() time.Time
	Config    Config
	Update    mastery.Config
	Due       spacedrep.Config
	Recommend recommend.Config
}

// Service ties the pure mastery, due and recommendation packages to
// storage and the course catalog.
type Service struct {
	catalog curriculum.Catalog
	mastery store.MasteryRepo
	history store.HistoryRepo
	log     *logger.Logger
	now     func() time.Time
	tracer  trace.Tracer

	cfg        Config
	masteryCfg mastery.Config
	dueCfg     spacedrep.Config
	engine     *recommend.Engine
}

func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Config.MaxRetries < 1 {
		d.Config.MaxRetries = DefaultMaxRetries
	}
	return &Service{
		catalog:    d.Catalog,
		mastery:    d.Mastery,
		history:    d.History,
		log:        d.Log.With("service", "Tutor"),
		now:        d.Clock,
		tracer:     otel.Tracer("nextlesson/service"),
		cfg:        d.Config,
		masteryCfg: d.Update,
		dueCfg:     d.Due,
		engine:     recommend.NewEngine(d.Recommend, d.Due),
	}
}

// CompletionResult is returned by RecordCompletion.
type CompletionResult struct {
	EventID string           `json:"event_id"`
	Records []mastery.Record `json:"records"`
}

// RecordCompletion folds a completed lesson into the learner's mastery.
// All touched outcomes are read, updated and saved as one versioned batch,
// retried as a whole on version conflicts. An event therefore counts once
// for every outcome or not at all, and a rejected event can be resent.
func (s *Service) RecordCompletion(ctx context.Context, ev mastery.CompletionEvent) (CompletionResult, error) {
	ctx, span := s.tracer.Start(ctx, "RecordCompletion", trace.WithAttributes(
		attribute.String("course.id", ev.CourseID),
		attribute.String("lesson.id", ev.LessonID),
	))
	defer span.End()

	res, err := s.recordCompletion(ctx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *Service) recordCompletion(ctx context.Context, ev mastery.CompletionEvent) (CompletionResult, error) {
	if err := ev.Validate(); err != nil {
		return CompletionResult{}, err
	}
	course, err := s.catalog.Course(ctx, ev.CourseID)
	if err != nil {
		return CompletionResult{}, err
	}
	if err := checkTargets(course, ev); err != nil {
		return CompletionResult{}, err
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	at := ev.CompletedAt
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	records, err := s.applyWithRetry(ctx, ev, at)
	if err != nil {
		return CompletionResult{}, err
	}

	if err := s.history.RecordLesson(ctx, ev.LearnerID, ev.CourseID, ev.LessonID, at); err != nil {
		return CompletionResult{}, fmt.Errorf("record lesson history: %w", err)
	}

	s.log.Info("completion recorded",
		"event_id", ev.ID,
		"learner_id", ev.LearnerID,
		"course_id", ev.CourseID,
		"lesson_id", ev.LessonID,
		"outcomes", len(records),
	)
	return CompletionResult{EventID: ev.ID, Records: records}, nil
}

// checkTargets accepts scores only for outcomes the lesson teaches.
func checkTargets(course *curriculum.Course, ev mastery.CompletionEvent) error {
	lesson, ok := course.Lesson(ev.LessonID)
	if !ok {
		return apperr.Validation("lesson_id", ev.LessonID, "not in course "+course.ID)
	}
	targets := make(map[string]bool, len(lesson.TargetOutcomeIDs))
	for _, id := range lesson.TargetOutcomeIDs {
		targets[id] = true
	}
	for _, oid := range ev.OutcomeIDs() {
		if !course.HasOutcome(oid) {
			return apperr.Validation("scores", oid, "outcome not in course "+course.ID)
		}
		if !targets[oid] {
			return apperr.Validation("scores", oid, "outcome not targeted by lesson "+lesson.ID)
		}
	}
	return nil
}

// applyWithRetry reads every touched record, folds the event in and saves
// the batch until it lands or the retry budget is spent.
func (s *Service) applyWithRetry(ctx context.Context, ev mastery.CompletionEvent, at time.Time) ([]mastery.Record, error) {
	ids := ev.OutcomeIDs()
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current, err := s.readCurrent(ctx, ev, ids)
		if err != nil {
			return nil, err
		}
		existing := make(map[string]mastery.Record, len(current))
		for id, v := range current {
			existing[id] = v.Record
		}
		updated, err := mastery.ApplyCompletion(s.masteryCfg, existing, ev, at)
		if err != nil {
			return nil, err
		}

		records := make([]mastery.Record, len(ids))
		writes := make([]store.Write, len(ids))
		for i, id := range ids {
			records[i] = updated[id]
			writes[i] = store.Write{Record: updated[id], Expected: current[id].Version}
		}
		err = s.mastery.SaveMastery(ctx, writes...)
		if err == nil {
			return records, nil
		}
		if !apperr.IsConflict(err) {
			return nil, err
		}
		lastErr = err
		s.log.Debug("mastery update conflict, retrying", "event_id", ev.ID, "error", err, "attempt", attempt)
	}
	s.log.Warn("mastery update retries exhausted", "event_id", ev.ID, "retries", s.cfg.MaxRetries)
	return nil, lastErr
}

// readCurrent loads the stored record of every outcome in parallel.
func (s *Service) readCurrent(ctx context.Context, ev mastery.CompletionEvent, ids []string) (map[string]store.Versioned, error) {
	found := make([]store.Versioned, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			v, err := s.mastery.GetMastery(gctx, ev.Key(id))
			found[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]store.Versioned, len(ids))
	for i, id := range ids {
		out[id] = found[i]
	}
	return out, nil
}

// RecommendRequest asks for the next lessons for one learner in one course.
type RecommendRequest struct {
	CourseID    string
	LearnerID   string
	Constraints recommend.Constraints
}

// Recommend loads the course, the learner's mastery and lesson history in
// parallel and ranks the course's lessons.
func (s *Service) Recommend(ctx context.Context, req RecommendRequest) (recommend.CourseRecommendation, error) {
	ctx, span := s.tracer.Start(ctx, "Recommend", trace.WithAttributes(
		attribute.String("course.id", req.CourseID),
	))
	defer span.End()

	if req.LearnerID == "" {
		return recommend.CourseRecommendation{}, apperr.Validation("learner_id", nil, "required")
	}
	if err := req.Constraints.Validate(); err != nil {
		return recommend.CourseRecommendation{}, err
	}

	now := s.now().UTC()
	course, records, taught, err := s.load(ctx, req.CourseID, req.LearnerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return recommend.CourseRecommendation{}, err
	}

	rec, err := s.engine.Recommend(course, records, RecentlyTaught(taught, now), req.Constraints, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return recommend.CourseRecommendation{}, err
	}
	rec.LearnerID = req.LearnerID

	top := rec.Candidates[0]
	s.log.Info("recommendation served",
		"learner_id", req.LearnerID,
		"course_id", req.CourseID,
		"candidates", len(rec.Candidates),
		"top_lesson", top.LessonID,
		"top_score", top.PriorityScore,
	)
	return rec, nil
}

// DueSummary lists the learner's outcomes that need review in a course.
func (s *Service) DueSummary(ctx context.Context, courseID, learnerID string) (spacedrep.Summary, error) {
	ctx, span := s.tracer.Start(ctx, "DueSummary", trace.WithAttributes(
		attribute.String("course.id", courseID),
	))
	defer span.End()

	if learnerID == "" {
		return spacedrep.Summary{}, apperr.Validation("learner_id", nil, "required")
	}

	course, records, _, err := s.load(ctx, courseID, learnerID)
	if err != nil {
		span.RecordError(err)
		return spacedrep.Summary{}, err
	}
	return spacedrep.Summarize(s.dueCfg, course, records, s.now().UTC()), nil
}

// Mastery returns the learner's stored records for a course.
func (s *Service) Mastery(ctx context.Context, courseID, learnerID string) ([]store.Versioned, error) {
	if _, err := s.catalog.Course(ctx, courseID); err != nil {
		return nil, err
	}
	return s.mastery.ListMastery(ctx, learnerID, courseID)
}

func (s *Service) load(ctx context.Context, courseID, learnerID string) (*curriculum.Course, []mastery.Record, map[string]time.Time, error) {
	var (
		course  *curriculum.Course
		stored  []store.Versioned
		taught  map[string]time.Time
		g, gctx = errgroup.WithContext(ctx)
	)
	g.Go(func() error {
		var err error
		course, err = s.catalog.Course(gctx, courseID)
		return err
	})
	g.Go(func() error {
		var err error
		stored, err = s.mastery.ListMastery(gctx, learnerID, courseID)
		return err
	})
	g.Go(func() error {
		var err error
		taught, err = s.history.LessonTimes(gctx, learnerID, courseID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	records := make([]mastery.Record, len(stored))
	for i, v := range stored {
		records[i] = v.Record
	}
	return course, records, taught, nil
}

// RecentlyTaught converts last-taught times into whole days ago. Times in
// the future count as zero days.
func RecentlyTaught(taught map[string]time.Time, now time.Time) map[string]int {
	out := make(map[string]int, len(taught))
	for id, at := range taught {
		days := int(math.Floor(now.Sub(at).Hours() / 24))
		if days < 0 {
			days = 0
		}
		out[id] = days
	}
	return out
}
