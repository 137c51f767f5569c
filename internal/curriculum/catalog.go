package curriculum

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/abhisek/nextlesson/internal/apperr"
)

// Catalog supplies the complete, read-only course catalog for a request.
type Catalog interface {
	// Course returns the course or an apperr.NotFoundError.
	Course(ctx context.Context, courseID string) (*Course, error)
}

// StaticCatalog serves a fixed set of courses held in memory.
type StaticCatalog struct {
	courses map[string]*Course
}

// NewStaticCatalog indexes the given courses by ID.
func NewStaticCatalog(courses ...*Course) *StaticCatalog {
	m := make(map[string]*Course, len(courses))
	for _, c := range courses {
		m[c.ID] = c
	}
	return &StaticCatalog{courses: m}
}

func (s *StaticCatalog) Course(_ context.Context, courseID string) (*Course, error) {
	c, ok := s.courses[courseID]
	if !ok {
		return nil, apperr.NotFound("course", courseID)
	}
	return c, nil
}

// FileCatalog loads courses from <dir>/<courseID>.{yaml,yml,json}.
// Parsed courses are cached until Reload is called.
type FileCatalog struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*Course
}

// NewFileCatalog creates a catalog rooted at dir.
func NewFileCatalog(dir string) *FileCatalog {
	return &FileCatalog{dir: dir, cache: make(map[string]*Course)}
}

var catalogExtensions = []struct {
	ext    string
	format Format
}{
	{".yaml", FormatYAML},
	{".yml", FormatYAML},
	{".json", FormatJSON},
}

func (f *FileCatalog) Course(ctx context.Context, courseID string) (*Course, error) {
	if err := validateCourseID(courseID); err != nil {
		return nil, err
	}

	f.mu.RLock()
	c, ok := f.cache[courseID]
	f.mu.RUnlock()
	if ok {
		return c, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, e := range catalogExtensions {
		path := filepath.Join(f.dir, courseID+e.ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		c, err := Decode(data, e.format)
		if err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", path, err)
		}
		if c.ID != courseID {
			return nil, apperr.Validation("catalog", path,
				fmt.Sprintf("file declares course %q, want %q", c.ID, courseID))
		}

		f.mu.Lock()
		f.cache[courseID] = c
		f.mu.Unlock()
		return c, nil
	}
	return nil, apperr.NotFound("course", courseID)
}

// CourseIDs lists the course IDs available in the catalog directory.
func (f *FileCatalog) CourseIDs() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, ce := range catalogExtensions {
			if ext == ce.ext {
				seen[strings.TrimSuffix(e.Name(), ext)] = true
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Reload drops all cached courses.
func (f *FileCatalog) Reload() {
	f.mu.Lock()
	f.cache = make(map[string]*Course)
	f.mu.Unlock()
}

func validateCourseID(id string) error {
	if id == "" {
		return apperr.Validation("course_id", nil, "required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return apperr.Validation("course_id", id, "must not contain path separators")
	}
	return nil
}
