package simulator

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// DefaultMinContentLength is the shortest answer accepted as a real response.
const DefaultMinContentLength = 20

const chatResponseSchema = `{
  "type": "object",
  "required": ["response", "session_id"],
  "properties": {
    "response":    {"type": "string"},
    "session_id":  {"type": "string"},
    "search_mode": {"type": "string"},
    "sources":     {"type": "array"}
  }
}`

const sessionResponseSchema = `{
  "type": "object",
  "required": ["session_id"],
  "properties": {
    "session_id": {"type": "string", "minLength": 1}
  }
}`

const healthResponseSchema = `{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"type": "string"}
  }
}`

// Validator checks response bodies against compiled JSON schemas.
type Validator struct {
	minLength int
	chat      *gojsonschema.Schema
	session   *gojsonschema.Schema
	health    *gojsonschema.Schema
}

// NewValidator compiles the response schemas.
func NewValidator(minLength int) (*Validator, error) {
	if minLength <= 0 {
		minLength = DefaultMinContentLength
	}
	v := &Validator{minLength: minLength}
	for _, s := range []struct {
		dst    **gojsonschema.Schema
		source string
	}{
		{&v.chat, chatResponseSchema},
		{&v.session, sessionResponseSchema},
		{&v.health, healthResponseSchema},
	} {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s.source))
		if err != nil {
			return nil, fmt.Errorf("simulator: compile schema: %w", err)
		}
		*s.dst = schema
	}
	return v, nil
}

func (v *Validator) check(task Task, schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &ValidationError{Task: task, Reason: "unparseable body: " + err.Error()}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &ValidationError{Task: task, Reason: strings.Join(msgs, "; ")}
	}
	return nil
}

// Chat validates a chat response body and its content length.
func (v *Validator) Chat(task Task, body []byte, content string) error {
	if err := v.check(task, v.chat, body); err != nil {
		return err
	}
	return v.Content(task, content)
}

// Content enforces the minimum content length.
func (v *Validator) Content(task Task, content string) error {
	if n := len(strings.TrimSpace(content)); n < v.minLength {
		return &ValidationError{Task: task, Reason: fmt.Sprintf("content length %d below minimum %d", n, v.minLength)}
	}
	return nil
}

func (v *Validator) Session(body []byte) error {
	return v.check("session_init", v.session, body)
}

func (v *Validator) Health(task Task, body []byte) error {
	return v.check(task, v.health, body)
}
