package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/nextlesson/internal/logger"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

func NewRouter(log *logger.Logger, h *Handler, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("nextlesson"))
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(CORS(corsOrigins))

	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1/courses/:courseID")
	{
		v1.POST("/completions", h.RecordCompletion)

		learner := v1.Group("/learners/:learnerID")
		learner.GET("/recommendations", h.Recommend)
		learner.GET("/due", h.DueSummary)
		learner.GET("/mastery", h.Mastery)
	}

	return r
}

type Server struct {
	Engine *gin.Engine
	log    *logger.Logger
	cfg    Config
}

func NewServer(log *logger.Logger, tutor Tutor, cfg Config) *Server {
	return &Server{
		Engine: NewRouter(log, NewHandler(log, tutor), cfg.CORSOrigins),
		log:    log.With("component", "HTTPServer"),
		cfg:    cfg,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
