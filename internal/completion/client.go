// Package completion provides the metered completion service client used by
// agent workers. Calls are pay-per-token; the budget governor must authorize
// every call before it is made.
package completion

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/optilist/optilist/internal/config"
)

// Request is one metered completion call.
type Request struct {
	// Model is the model id to use.
	Model string
	// System is the optional system prompt.
	System string
	// Prompt is the user prompt.
	Prompt string
	// MaxTokens caps the output length. Zero uses the client default.
	MaxTokens int
}

// Response is the output of a completion call, including the reported token
// usage that actual cost is derived from.
type Response struct {
	// Text is the model's output.
	Text string
	// InputTokens is the reported input token count.
	InputTokens int64
	// OutputTokens is the reported output token count.
	OutputTokens int64
}

// Service is the completion boundary agent workers call through. Fakes
// implement it in tests.
type Service interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client wraps the Anthropic SDK client with a bounded per-call timeout.
type Client struct {
	inner           anthropic.Client
	useBedrock      bool
	callTimeout     time.Duration
	maxOutputTokens int
}

// NewClient creates a new completion client from configuration. It supports
// the direct API with a key, or AWS Bedrock via the default credential chain.
func NewClient(cfg config.CompletionConfig) (*Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}

	maxOutput := cfg.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = 1024
	}

	return &Client{
		inner:           anthropic.NewClient(opts...),
		useBedrock:      cfg.UseAWSBedrock,
		callTimeout:     callTimeout,
		maxOutputTokens: maxOutput,
	}, nil
}

// Complete performs one metered call. The call is bounded by the configured
// timeout; an expired timeout surfaces as an error and is treated like any
// other provider error by the caller.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	model := anthropic.Model(req.Model)
	if c.useBedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxOutputTokens
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	msg, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Response{
		Text:         text.String(),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock
// cross-region inference profile format: us.anthropic.{model}-v1:0.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	if strings.HasPrefix(string(model), "us.anthropic.") {
		return model
	}
	return anthropic.Model("us.anthropic." + string(model) + "-v1:0")
}
