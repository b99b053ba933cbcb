// Package evaluation turns a photographed answer into a graded outcome and
// reads the model's reply into a result or a displayable error.
package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pavelanni/companion/internal/llm"
	"github.com/pavelanni/companion/internal/llm/prompts"
	"github.com/pavelanni/companion/internal/model"
)

// MsgUnreadable is shown when the reply is not a JSON object.
const MsgUnreadable = "could not read AI response"

// MsgServiceError stands in for an "error" value that carries no message.
const MsgServiceError = "AI service error"

const replySchemaURL = "schema://answer-evaluation-reply.json"

// requiredKeys are checked in order so the first missing one is named.
var requiredKeys = []string{
	prompts.KeyMarksAwarded,
	prompts.KeyEvaluationSummary,
	prompts.KeyModelAnswer,
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// replySchema is the evaluation schema relaxed for reading: mistakes may be
// omitted and unknown keys are tolerated.
func replySchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		def := prompts.EvaluationSchema()
		delete(def, "additionalProperties")
		req := make([]any, 0, len(requiredKeys))
		for _, k := range requiredKeys {
			req = append(req, k)
		}
		def["required"] = req

		// The compiler wants plain decoded JSON, not Go maps of typed slices.
		b, err := json.Marshal(def)
		if err != nil {
			compileErr = fmt.Errorf("marshal reply schema: %w", err)
			return
		}
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
		if err != nil {
			compileErr = fmt.Errorf("parse reply schema: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource(replySchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add reply schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(replySchemaURL)
	})
	return compiled, compileErr
}

// Interpret reads the model's raw reply. It never panics and always returns
// exactly one of a result or an error; the raw text is kept on errors caused
// by the reply itself.
func Interpret(raw string) model.Outcome {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return model.Failed(MsgUnreadable, raw)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return model.Failed(MsgUnreadable, raw)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return model.Failed(MsgUnreadable, raw)
	}

	if v, ok := obj[prompts.KeyError]; ok {
		msg := errorMessage(v)
		if msg == "" {
			return model.Failed(MsgServiceError, raw)
		}
		return model.Failed(msg, "")
	}

	for _, k := range requiredKeys {
		if v, ok := obj[k]; !ok || v == nil {
			return model.Failed(fmt.Sprintf("AI response is missing %q", k), raw)
		}
	}
	if v, ok := obj[prompts.KeyMistakes]; ok && v == nil {
		delete(obj, prompts.KeyMistakes)
	}

	schema, err := replySchema()
	if err != nil {
		return model.Failed(fmt.Sprintf("cannot check AI response: %v", err), raw)
	}
	if err := schema.Validate(obj); err != nil {
		return model.Failed(validationMessage(err), raw)
	}

	// Validation passed, so the typed decode below cannot disagree on shapes.
	var res model.EvaluationResult
	b, err := json.Marshal(obj)
	if err == nil {
		err = json.Unmarshal(b, &res)
	}
	if err != nil {
		return model.Failed(MsgUnreadable, raw)
	}
	if res.Mistakes == nil {
		res.Mistakes = []string{}
	}
	return model.Succeeded(res)
}

// FromError converts a failed model call into an outcome through the same
// path a reply carrying an "error" key takes.
func FromError(err error) model.Outcome {
	return Interpret(llm.ErrorPayload(err))
}

// errorMessage returns "" for a null or blank value.
func errorMessage(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// validationMessage names the offending field from the first schema error.
func validationMessage(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		if len(leaf.InstanceLocation) > 0 {
			return fmt.Sprintf("AI response has an invalid %q field", leaf.InstanceLocation[0])
		}
	}
	return "AI response does not match the expected format"
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
