// Package schema defines the request and response shapes of the HTTP API
// and the decoding/validation pipeline that turns JSON bodies into them.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/earthframe/earthframe/pkg/naming"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// ExtraKey is the free-form extension map whose keys are never rewritten.
const ExtraKey = "extra"

// legacyKeys maps snake_case names produced by historical camelCase
// spellings onto their canonical field names.
var legacyKeys = map[string]string{
	"comp_set_alias": "compset_alias",
}

// FieldError describes a single invalid request field. Field is the
// camelCase path of the field, e.g. "artifacts[0].kind".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a request body is malformed or fails
// validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)

			continue
		}

		parts = append(parts, f.Field+": "+f.Message)
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Fields: []FieldError{{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}}}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}

		if name == "" {
			name = f.Name
		}

		return naming.ToCamel(name)
	})

	return v
}

// ReadJSON decodes a request body into a generic JSON value.
func ReadJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid("", "request body is empty")
		}

		return nil, invalid("", "invalid JSON: %v", err)
	}

	if dec.More() {
		return nil, invalid("", "request body must contain a single JSON value")
	}

	return raw, nil
}

// Decode reads a JSON object from r into out, accepting camelCase or
// snake_case keys, then validates it.
func Decode(r io.Reader, out any) error {
	raw, err := ReadJSON(r)
	if err != nil {
		return err
	}

	return DecodeValue(raw, out)
}

// DecodeValue maps an already decoded JSON value into out and validates it.
func DecodeValue(raw any, out any) error {
	if _, ok := raw.(map[string]any); !ok {
		return invalid("", "request body must be a JSON object")
	}

	if err := duplicateKeys(raw); err != nil {
		return err
	}

	normalized := canonicalKeys(naming.SnakeizeKeys(raw, ExtraKey))

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			jsonNumberHook,
			timeHook,
			mapstructure.TextUnmarshallerHookFunc(),
		),
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	if err := dec.Decode(normalized); err != nil {
		return decodeError(err)
	}

	if err := validate.Struct(out); err != nil {
		return validationError(err)
	}

	return nil
}

// duplicateKeys rejects objects that spell one field more than once, such
// as gridResolution alongside grid_resolution.
func duplicateKeys(raw any) error {
	collisions := naming.SnakeCollisions(raw, ExtraKey)
	if len(collisions) == 0 {
		return nil
	}

	out := &ValidationError{}

	for _, c := range collisions {
		out.Fields = append(out.Fields, FieldError{
			Field:   camelPath(c.Path),
			Message: "field given more than once (" + strings.Join(c.Keys, ", ") + ")",
		})
	}

	return out
}

// canonicalKeys renames legacy keys in place, without overriding a
// canonical key that is also present.
func canonicalKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for legacy, canonical := range legacyKeys {
			lv, ok := val[legacy]
			if !ok {
				continue
			}

			delete(val, legacy)

			if _, exists := val[canonical]; !exists {
				val[canonical] = lv
			}
		}

		for k, child := range val {
			if k == ExtraKey {
				continue
			}

			val[k] = canonicalKeys(child)
		}
	case []any:
		for i, child := range val {
			val[i] = canonicalKeys(child)
		}
	}

	return v
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timeHook parses timestamps in the layouts clients commonly send. Values
// without a zone are taken as UTC.
func timeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}

	s, _ := data.(string)

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return nil, fmt.Errorf("invalid datetime %q", s)
}

// jsonNumberHook turns json.Number into the numeric kind the target needs.
func jsonNumberHook(from, to reflect.Type, data any) (any, error) {
	n, ok := data.(json.Number)
	if !ok {
		return data, nil
	}

	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return n.Int64()
	case reflect.Float32, reflect.Float64:
		return n.Float64()
	case reflect.Interface:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}

		return n.Float64()
	}

	return data, nil
}

var quotedName = regexp.MustCompile(`'([^']*)'`)

// decodeError converts mapstructure type errors into field errors.
func decodeError(err error) error {
	var msErr *mapstructure.Error
	if !errors.As(err, &msErr) {
		return invalid("", "%v", err)
	}

	out := &ValidationError{}

	for _, msg := range msErr.Errors {
		field := ""
		if m := quotedName.FindStringSubmatch(msg); m != nil {
			field = camelPath(m[1])
		}

		out.Fields = append(out.Fields, FieldError{Field: field, Message: msg})
	}

	return out
}

// camelPath converts a dotted snake_case path like "artifacts[0].size_bytes"
// to camelCase.
func camelPath(path string) string {
	parts := strings.Split(path, ".")
	for i, p := range parts {
		name, index, _ := strings.Cut(p, "[")
		if index != "" {
			parts[i] = naming.ToCamel(name) + "[" + index

			continue
		}

		parts[i] = naming.ToCamel(name)
	}

	return strings.Join(parts, ".")
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating request: %w", err)
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}

	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}

		out.Fields = append(out.Fields, FieldError{
			Field:   field,
			Message: describe(fe),
		})
	}

	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}

		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "url", "http_url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
