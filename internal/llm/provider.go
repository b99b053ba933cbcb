package llm

import "context"

// Provider is the core abstraction for remote model interaction.
type Provider interface {
	// Generate sends a prompt, and optionally images, to the model and
	// returns its text reply. When the request's Schema is set the provider
	// asks the model for JSON conforming to it using the provider's native
	// structured output mechanism. The reply is returned unvalidated.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the model.
type Request struct {
	// System is the system prompt. Optional.
	System string

	// Prompt is the user instruction.
	Prompt string

	// Images are attached after the prompt, in order.
	Images []Image

	// Schema is the JSON Schema the response must conform to. When nil the
	// reply is free text.
	Schema *Schema

	// MaxTokens is the maximum number of tokens in the response.
	// Zero leaves the provider default.
	MaxTokens int

	// Temperature controls randomness. Zero leaves the provider default.
	Temperature float64
}

// Image is an encoded raster attached to a request.
type Image struct {
	MIMEType string
	Data     []byte
}

// Schema defines the JSON structure expected from the model.
type Schema struct {
	// Name identifies this schema, e.g. "answer-evaluation".
	Name string

	// Description is sent to providers that support it.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the model's output.
type Response struct {
	// Text is the reply exactly as the model produced it.
	Text string

	// Usage reports token consumption for this request.
	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason is normalized to "end", "max_tokens" or "error".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
