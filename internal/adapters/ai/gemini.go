package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"taskpilot/pkg/errors"
)

const providerNameGemini = "gemini"

// Ensure GeminiProvider implements ChatProvider
var _ ChatProvider = (*GeminiProvider)(nil)

// GeminiProvider talks to the Gemini API via the official SDK.
type GeminiProvider struct {
	client      *genai.Client
	rateLimiter *rate.Limiter
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(ctx context.Context, apiKey string, reqPerMinute int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "gemini API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}

	return &GeminiProvider{
		client:      client,
		rateLimiter: NewRequestLimiter(reqPerMinute),
	}, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return providerNameGemini
}

// Chat sends a chat completion request.
func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, &RateLimitError{Provider: providerNameGemini, Err: err}
	}

	contents, systemText := p.convertMessages(req.Messages)

	temperature := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}

	if systemText != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemText}},
		}
	}

	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, def := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:                 def.Function.Name,
				Description:          def.Function.Description,
				ParametersJsonSchema: def.Function.Parameters,
			})
		}
		config.Tools = []*genai.Tool{tool}
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, p.classifyError(ctx, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &InvalidResponseError{
			Provider: providerNameGemini,
			Err:      errors.New("no candidates in response"),
		}
	}

	candidate := resp.Candidates[0]

	msg := Message{Role: RoleAssistant}
	for i, part := range candidate.Content.Parts {
		if part.Text != "" {
			if msg.Content != "" {
				msg.Content += "\n"
			}
			msg.Content += part.Text
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, &InvalidResponseError{Provider: providerNameGemini, Err: err}
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   fmt.Sprintf("call_%d", i),
				Type: "function",
				Function: FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		}
	}

	finishReason := FinishReasonStop
	if len(msg.ToolCalls) > 0 {
		finishReason = FinishReasonToolCalls
	} else if candidate.FinishReason == genai.FinishReasonMaxTokens {
		finishReason = FinishReasonLength
	}

	chatResp := &ChatResponse{
		Model: req.Model,
		Choices: []Choice{{
			Message:      msg,
			FinishReason: finishReason,
		}},
	}

	if resp.UsageMetadata != nil {
		chatResp.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return chatResp, nil
}

// convertMessages maps the wire model onto genai contents.
// System messages are collected into a single system instruction.
func (p *GeminiProvider) convertMessages(messages []Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemText string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if systemText != "" {
				systemText += "\n"
			}
			systemText += msg.Content

		case RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})

		case RoleAssistant:
			content := &genai.Content{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]interface{}
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: tc.Function.Name,
						Args: args,
					},
				})
			}
			contents = append(contents, content)

		case RoleTool:
			var response map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
				response = map[string]interface{}{"output": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     msg.Name,
						Response: response,
					},
				}},
			})
		}
	}

	return contents, systemText
}

func (p *GeminiProvider) classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &TimeoutError{Provider: providerNameGemini, Err: err}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &RateLimitError{Provider: providerNameGemini, Err: err}
		case apiErr.Code >= 500:
			return errors.Wrapf(errors.ErrLLM, "gemini API error (%d): %s", apiErr.Code, apiErr.Message)
		}
		return errors.Wrapf(errors.ErrLLM, "gemini API error (%d): %s", apiErr.Code, apiErr.Message)
	}

	return errors.Wrap(errors.ErrLLM, err.Error())
}
