package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyResponse indicates the model replied without any text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// ErrTruncated indicates the reply hit the output token limit.
var ErrTruncated = errors.New("reply truncated at the token limit")

// ErrRateLimit indicates the provider rejected the call for quota or rate reasons (429).
type ErrRateLimit struct {
	Err error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited by LLM provider: %v", e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the provider answered with something other
// than a usable reply.
type ErrInvalidResponse struct {
	Content string
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid LLM response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down, unreachable or
// refused the request.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrorPayload encodes err as the {"error": "<message>"} reply that callers
// expecting raw model text can parse like any other evaluation reply.
func ErrorPayload(err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	b, mErr := json.Marshal(map[string]string{"error": msg})
	if mErr != nil {
		return `{"error":"unknown error"}`
	}
	return string(b)
}
