package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/companion/internal/llm/prompts"
	"github.com/pavelanni/companion/internal/model"
)

// Client wraps a Provider with the two calls the companion makes: writing a
// practice question and grading a photographed answer.
type Client struct {
	provider  Provider
	timeout   time.Duration
	maxTokens int
}

// NewClient creates a client. A zero timeout leaves calls bounded only by
// the caller's context.
func NewClient(p Provider, timeout time.Duration) *Client {
	return &Client{provider: p, timeout: timeout}
}

// SetMaxTokens caps the length of every reply. Zero leaves the provider default.
func (c *Client) SetMaxTokens(n int) {
	c.maxTokens = n
}

// ModelID reports the model behind the client.
func (c *Client) ModelID() string {
	return c.provider.ModelID()
}

// GenerateQuestion asks the model for one descriptive question on topic at
// the given difficulty. The reply text is returned unmodified.
func (c *Client) GenerateQuestion(ctx context.Context, topic model.Topic, difficulty model.Difficulty) (string, error) {
	prompt, err := prompts.BuildQuestionPrompt(topic, difficulty)
	if err != nil {
		return "", fmt.Errorf("build question prompt: %w", err)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.provider.Generate(WithPurpose(ctx, PurposeQuestion), Request{
		Prompt:    prompt,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if err := checkReply(resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Text, nil
}

// Evaluate sends the grading prompt with the answer image and asks for JSON
// matching prompts.EvaluationSchema. The reply text is returned untouched;
// interpreting it is the caller's job.
func (c *Client) Evaluate(ctx context.Context, prompt string, img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("evaluate: answer image is empty")
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.provider.Generate(WithPurpose(ctx, PurposeEvaluation), Request{
		Prompt:    prompt,
		Images:    []Image{img},
		MaxTokens: c.maxTokens,
		Schema: &Schema{
			Name:        prompts.EvaluationSchemaName,
			Description: "Examiner's evaluation of a handwritten answer.",
			Definition:  prompts.EvaluationSchema(),
		},
	})
	if err != nil {
		return "", err
	}
	if err := checkReply(resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// checkReply rejects a reply that was cut off at the output token limit.
func checkReply(resp *Response) error {
	if resp.StopReason == "max_tokens" {
		return &ErrInvalidResponse{Content: resp.Text, Err: ErrTruncated}
	}
	return nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}
