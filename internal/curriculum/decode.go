package curriculum

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/nextlesson/internal/apperr"
)

// SupportedSchemaMajor is the catalog schema major version this build reads.
const SupportedSchemaMajor = "v1"

//go:embed course.schema.json
var courseSchemaJSON []byte

const courseSchemaURL = "schema://nextlesson/course.schema.json"

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// Format is a catalog file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Decode parses a catalog document, validates it against the course schema,
// checks its schema version, and runs structural validation.
func Decode(data []byte, format Format) (*Course, error) {
	var doc any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, apperr.Validation("catalog", nil, fmt.Sprintf("invalid JSON: %v", err))
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, apperr.Validation("catalog", nil, fmt.Sprintf("invalid YAML: %v", err))
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}

	// Round-trip through encoding/json so YAML and JSON documents reach the
	// schema validator with the same value types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, apperr.Validation("catalog", nil, fmt.Sprintf("unrepresentable document: %v", err))
	}
	normalized, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("normalize catalog: %w", err)
	}

	schema, err := courseSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(normalized); err != nil {
		return nil, apperr.Validation("catalog", nil, fmt.Sprintf("schema validation failed: %v", err))
	}

	var c Course
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, apperr.Validation("catalog", nil, fmt.Sprintf("decode course: %v", err))
	}
	if err := checkSchemaVersion(c.SchemaVersion); err != nil {
		return nil, err
	}
	course, err := NewCourse(c.ID, c.Title, c.Outcomes, c.Lessons)
	if err != nil {
		return nil, err
	}
	course.SchemaVersion = c.SchemaVersion
	return course, nil
}

// checkSchemaVersion accepts an empty version or any version whose major
// matches SupportedSchemaMajor. A missing "v" prefix is tolerated.
func checkSchemaVersion(v string) error {
	if v == "" {
		return nil
	}
	canonical := v
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		return apperr.Validation("schema_version", v, "not a semantic version")
	}
	if semver.Major(canonical) != SupportedSchemaMajor {
		return apperr.Validation("schema_version", v,
			fmt.Sprintf("unsupported major version, want %s.x", SupportedSchemaMajor))
	}
	return nil
}

// courseSchema compiles the embedded course schema once.
func courseSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		var def any
		if err := json.Unmarshal(courseSchemaJSON, &def); err != nil {
			compileErr = fmt.Errorf("parse course schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(courseSchemaURL, def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(courseSchemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile course schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}
