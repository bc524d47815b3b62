// Package providers holds LLMProvider implementations, one per backend SDK.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/toolfleet/orchestrator/internal/agent"
)

// AnthropicProvider adapts the Anthropic Messages API to agent.LLMProvider.
type AnthropicProvider struct {
	client       anthropic.Client
	apiKey       string
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicProvider validates config and builds a client, defaulting
// MaxRetries/RetryDelay/DefaultModel when left zero.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		apiKey:       config.APIKey,
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

// Name identifies this provider for logging and config selection.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete sends req to Claude and returns a channel of streaming chunks.
// The channel is closed after a Done or Error chunk.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	chunks := make(chan *agent.CompletionChunk)

	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}
	tools, err := p.convertTools(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
	}

	go func() {
		defer close(chunks)

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(p.getModel(req.Model)),
			Messages:  messages,
			MaxTokens: int64(p.getMaxTokens(req.MaxTokens)),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		// Anthropic's SDK reports transport/API errors only after the
		// stream has been drained (stream.Err(), not at NewStreaming), so
		// a retry replays the whole request — but only while nothing has
		// reached the caller yet; once a text/thinking delta has been
		// forwarded, replaying would duplicate visible output.
		for attempt := 0; ; attempt++ {
			stream := p.client.Messages.NewStreaming(ctx, params)
			hadProgress, streamErr := p.processStream(stream, chunks)
			if streamErr == nil {
				return
			}
			if hadProgress || attempt >= p.maxRetries || !p.isRetryableError(streamErr) {
				chunks <- &agent.CompletionChunk{Error: fmt.Errorf("anthropic: %w", streamErr)}
				return
			}
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				chunks <- &agent.CompletionChunk{Error: ctx.Err()}
				return
			case <-time.After(backoff):
			}
		}
	}()

	return chunks, nil
}

// processStream translates Anthropic SSE events into CompletionChunks,
// accumulating a tool_use block's id/name/json across delta events and
// emitting the completed ToolCall on message_stop. It reports hadProgress
// so the caller knows whether a retry would duplicate already-forwarded
// output.
func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.CompletionChunk) (hadProgress bool, err error) {
	var currentToolCall *agent.ToolCall
	var currentToolInput strings.Builder
	var toolCalls []agent.ToolCall
	finish := agent.FinishStop

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolCall = &agent.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					hadProgress = true
					chunks <- &agent.CompletionChunk{Text: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					hadProgress = true
					chunks <- &agent.CompletionChunk{Thinking: delta.Thinking}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if currentToolCall != nil {
				currentToolCall.ArgsJSON = currentToolInput.String()
				toolCalls = append(toolCalls, *currentToolCall)
				currentToolCall = nil
			}

		case "message_delta":
			reason := event.AsMessageDelta().Delta.StopReason
			switch reason {
			case "tool_use":
				finish = agent.FinishToolCalls
			case "max_tokens":
				finish = agent.FinishLength
			}

		case "message_stop":
			chunks <- &agent.CompletionChunk{ToolCalls: toolCalls, FinishReason: finish, Done: true}
			return true, nil
		}
	}

	if streamErr := stream.Err(); streamErr != nil {
		return hadProgress, streamErr
	}
	chunks <- &agent.CompletionChunk{ToolCalls: toolCalls, FinishReason: finish, Done: true}
	return true, nil
}

func (p *AnthropicProvider) convertMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			if m.ToolCall != nil {
				var input map[string]any
				if m.ToolCall.ArgsJSON != "" {
					_ = json.Unmarshal([]byte(m.ToolCall.ArgsJSON), &input)
				}
				out = append(out, anthropic.NewAssistantMessage(
					anthropic.NewToolUseBlock(m.ToolCall.ID, input, m.ToolCall.Name),
				))
			} else {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			}
		case "tool":
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func (p *AnthropicProvider) convertTools(tools []agent.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Parameters) > 0 {
			var schemaMap map[string]any
			if err := json.Unmarshal(t.Parameters, &schemaMap); err != nil {
				return nil, fmt.Errorf("anthropic: tool %q: invalid parameter schema: %w", t.Name, err)
			}
			if props, ok := schemaMap["properties"].(map[string]any); ok {
				schema.Properties = props
			}
			if req, ok := schemaMap["required"].([]any); ok {
				for _, r := range req {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out, nil
}

func (p *AnthropicProvider) getModel(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *AnthropicProvider) getMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return 4096
}

func (p *AnthropicProvider) isRetryableError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "529")
}
