package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ahrav/go-fightlens/internal/domain"
	"github.com/ahrav/go-fightlens/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-fightlens/internal/llm/errors"
	"github.com/ahrav/go-fightlens/internal/llm/transport"
)

// OpenAIProvider serves requests through the openai-go SDK.
// SDK retries are disabled; retry policy belongs to the caller.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a provider from cfg. An empty endpoint keeps the
// SDK default base URL.
func NewOpenAIProvider(cfg configuration.ProviderConfig, httpClient *http.Client) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

// Handle implements transport.Handler.
func (p *OpenAIProvider) Handle(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	user, err := openAIUserMessage(req)
	if err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, user)

	params := openai.ChatCompletionNewParams{
		Model:       openai.F(openai.ChatModel(req.Model)),
		Messages:    openai.F(messages),
		Temperature: openai.F(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.F(req.MaxTokens)
	}

	callCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := p.client.Chat.Completions.New(callCtx, params)
	latency := time.Since(start)
	if err != nil {
		return nil, convertOpenAIError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices: %w", llmerrors.ErrInvalidResponse)
	}

	choice := completion.Choices[0]
	resp := &transport.Response{
		Content:      choice.Message.Content,
		FinishReason: mapOpenAIFinishReason(string(choice.FinishReason)),
		Model:        completion.Model,
		Usage: transport.NormalizedUsage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
			LatencyMs:        latency.Milliseconds(),
		},
	}
	if completion.ID != "" {
		resp.ProviderRequestIDs = []string{completion.ID}
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	if err := transport.ValidateResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// openAIUserMessage builds the user turn, attaching the frame as an
// image_url part. Inline frames become data URIs; handles must be URLs.
func openAIUserMessage(req *transport.Request) (openai.ChatCompletionMessageParamUnion, error) {
	if req.Frame == nil {
		return openai.UserMessage(req.Prompt), nil
	}

	mode, err := req.Frame.Mode()
	if err != nil {
		return nil, llmerrors.NewValidationError("frame", err)
	}

	imageURL := req.Frame.Handle
	switch {
	case mode == domain.FrameInline:
		imageURL = req.Frame.DataURI()
	case !isURL(imageURL):
		return nil, llmerrors.NewValidationError("frame.handle",
			fmt.Errorf("%w: openai accepts image URLs only", ErrUnsupportedHandle))
	}

	return openai.UserMessageParts(
		openai.ImagePart(imageURL),
		openai.TextPart(req.Prompt),
	), nil
}

// convertOpenAIError maps SDK errors onto the shared taxonomy.
func convertOpenAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("openai request failed: %w", err)
	}

	pe := &llmerrors.ProviderError{
		Provider:   ProviderOpenAI,
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Message,
		Code:       apiErr.Code,
		Type:       classifyErrorType(apiErr.StatusCode, apiErr.Code),
		Cause:      err,
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(apiErr.StatusCode)
	}
	if apiErr.Response != nil {
		pe.RetryAfter = parseRetryAfter(apiErr.Response.Header)
	}
	return pe
}

func mapOpenAIFinishReason(reason string) transport.FinishReason {
	switch reason {
	case "stop":
		return transport.FinishStop
	case "length":
		return transport.FinishLength
	case "content_filter":
		return transport.FinishContentFilter
	default:
		return transport.FinishUnknown
	}
}
