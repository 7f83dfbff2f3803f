package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// Spec is the declared shape of a structured answer: a JSON schema derived from T plus an
// optional semantic check the schema cannot express.
type Spec[T any] struct {
	Name        string
	Description string

	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
	check    func(*T) error
}

func NewSpec[T any](name, description string, check func(*T) error) (*Spec[T], error) {
	s, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", name, err)
	}
	s.Title = name
	s.Description = description
	rs, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema %s: %w", name, err)
	}
	return &Spec[T]{Name: name, Description: description, schema: s, resolved: rs, check: check}, nil
}

func MustSpec[T any](name, description string, check func(*T) error) *Spec[T] {
	s, err := NewSpec[T](name, description, check)
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaError is a payload that was received but not accepted. Its text is what gets fed
// back to the model on the next attempt.
type SchemaError struct {
	Stage string // decode|schema|check
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Stage, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Parse turns a raw payload into T. Malformed JSON is repaired once before giving up.
func (s *Spec[T]) Parse(raw string) (T, error) {
	var zero T
	payload := stripFences(raw)

	var inst any
	if err := json.Unmarshal([]byte(payload), &inst); err != nil {
		var syn *json.SyntaxError
		if !errors.As(err, &syn) {
			return zero, &SchemaError{Stage: "decode", Err: err}
		}
		fixed, rerr := jsonrepair.JSONRepair(payload)
		if rerr != nil {
			return zero, &SchemaError{Stage: "decode", Err: err}
		}
		payload = fixed
		if err := json.Unmarshal([]byte(payload), &inst); err != nil {
			return zero, &SchemaError{Stage: "decode", Err: err}
		}
	}

	if err := s.resolved.Validate(inst); err != nil {
		return zero, &SchemaError{Stage: "schema", Err: err}
	}

	var v T
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return zero, &SchemaError{Stage: "decode", Err: err}
	}
	if s.check != nil {
		if err := s.check(&v); err != nil {
			return zero, &SchemaError{Stage: "check", Err: err}
		}
	}
	return v, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// WithCheck returns a copy of s sharing its schema but using check. Useful when the
// semantic rule depends on per-call context.
func (s *Spec[T]) WithCheck(check func(*T) error) *Spec[T] {
	c := *s
	c.check = check
	return &c
}
