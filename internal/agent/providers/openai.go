package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/toolfleet/orchestrator/internal/agent"
)

// OpenAIProvider adapts the Chat Completions API to agent.LLMProvider.
type OpenAIProvider struct {
	BaseProvider
	client *openai.Client
	apiKey string
}

// NewOpenAIProvider builds a provider for apiKey. An empty key produces a
// provider that fails every Complete call, so configuration errors surface
// at call time rather than at startup.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	p := &OpenAIProvider{BaseProvider: NewBaseProvider("openai", 3, time.Second), apiKey: apiKey}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

// Name identifies this provider for logging and config selection.
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends req to the Chat Completions API and returns a channel of
// streaming chunks. The channel is closed after a Done or Error chunk.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("openai: api key not configured")
	}

	messages := p.convertMessages(req.Messages, req.System)
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err := p.Retry(ctx, p.isRetryableError, func() error {
		var streamErr error
		stream, streamErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		return streamErr
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

// processStream translates OpenAI's streamed deltas into CompletionChunks,
// accumulating each indexed tool call's id/name/arguments across deltas
// and emitting the completed set on the finish-reason/EOF boundary.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := map[int]*agent.ToolCall{}
	order := []int{}
	finish := agent.FinishStop

	emitToolCalls := func() []agent.ToolCall {
		out := make([]agent.ToolCall, 0, len(order))
		for _, idx := range order {
			if tc := toolCalls[idx]; tc != nil && tc.ID != "" {
				out = append(out, *tc)
			}
		}
		return out
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				chunks <- &agent.CompletionChunk{ToolCalls: emitToolCalls(), FinishReason: finish, Done: true}
				return
			}
			chunks <- &agent.CompletionChunk{Error: fmt.Errorf("openai: stream error: %w", err), Done: true}
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			chunks <- &agent.CompletionChunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &agent.ToolCall{}
				order = append(order, index)
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[index].ArgsJSON += tc.Function.Arguments
			}
		}

		switch choice.FinishReason {
		case "tool_calls":
			finish = agent.FinishToolCalls
		case "length":
			finish = agent.FinishLength
		}
	}
}

func (p *OpenAIProvider) convertMessages(messages []agent.CompletionMessage, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, m := range messages {
		switch m.Role {
		case "assistant":
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			if m.ToolCall != nil {
				msg.ToolCalls = []openai.ToolCall{{
					ID:       m.ToolCall.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: m.ToolCall.Name, Arguments: m.ToolCall.ArgsJSON},
				}}
			}
			out = append(out, msg)
		case "tool":
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		default:
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

func (p *OpenAIProvider) convertTools(tools []agent.ToolSpec) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		schema := map[string]any{"type": "object", "properties": map[string]any{}}
		if len(t.Parameters) > 0 {
			_ = json.Unmarshal(t.Parameters, &schema)
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

func (p *OpenAIProvider) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
