package llmclient

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/tools"
	"github.com/autopoiesis-dev/agentcore/internal/turn"
)

// AnthropicClient implements turn.LLMClient against Claude's Messages API,
// forwarding text and thinking deltas to onChunk as the response streams in.
type AnthropicClient struct {
	client    anthropic.Client
	model     models.ModelConfig
	toolSpecs []tools.ToolSpec
}

// NewAnthropicClient builds a client reading its API key from
// ANTHROPIC_API_KEY. toolSpecs is the fixed set of tools offered on every
// call; internal/turn never renegotiates tool availability mid-turn.
func NewAnthropicClient(model models.ModelConfig, toolSpecs []tools.ToolSpec) *AnthropicClient {
	return &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY"))),
		model:     model,
		toolSpecs: toolSpecs,
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, history []models.ConversationItem, onChunk func(turn.CompletionChunk)) (turn.CompletionResult, error) {
	messages := buildAnthropicMessages(history)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model.Model),
		MaxTokens: int64(c.model.MaxTokens),
		Messages:  messages,
	}
	if c.model.Temperature > 0 {
		params.Temperature = anthropic.Float(c.model.Temperature)
	}
	if len(c.toolSpecs) > 0 {
		params.Tools = buildAnthropicTools(c.toolSpecs)
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return turn.CompletionResult{}, fmt.Errorf("llmclient: accumulating anthropic stream: %w", err)
		}
		if onChunk == nil {
			continue
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			switch d := delta.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if d.Text != "" {
					onChunk(turn.CompletionChunk{TextDelta: d.Text})
				}
			case anthropic.ThinkingDelta:
				if d.Thinking != "" {
					onChunk(turn.CompletionChunk{ThinkingDelta: d.Thinking})
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		if apiErr, ok := err.(*anthropic.Error); ok {
			return turn.CompletionResult{}, classifyByStatusCode(apiErr.StatusCode, apiErr)
		}
		return turn.CompletionResult{}, classifyGenericError(err)
	}

	item, finishReason := parseAnthropicMessage(message)
	return turn.CompletionResult{
		Items:        []models.ConversationItem{item},
		FinishReason: finishReason,
		Usage: models.TokenUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

// buildAnthropicMessages converts conversation history to Anthropic's
// message format. Tool calls are content blocks inside the assistant
// message that issued them; tool results are content blocks inside a user
// message, not a distinct role.
func buildAnthropicMessages(history []models.ConversationItem) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))

	for _, item := range history {
		switch item.Type {
		case models.ItemTypeUserMessage:
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{{
					OfText: &anthropic.TextBlockParam{Text: item.Content},
				}},
			})

		case models.ItemTypeAssistantMessage:
			content := make([]anthropic.ContentBlockParamUnion, 0, 1+len(item.ToolCalls))
			if item.Content != "" {
				content = append(content, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: item.Content},
				})
			}
			for _, tc := range item.ToolCalls {
				content = append(content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: tc.Arguments,
					},
				})
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: content,
				})
			}

		case models.ItemTypeToolResult:
			text := item.ToolOutput
			if item.ToolError != "" {
				text = item.ToolError
			}
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: item.ToolCallID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: text},
						}},
						IsError: anthropic.Bool(item.ToolError != ""),
					},
				}},
			})
		}
	}

	return messages
}

func buildAnthropicTools(specs []tools.ToolSpec) []anthropic.ToolUnionParam {
	toolDefs := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		properties := make(map[string]interface{}, len(spec.Parameters))
		required := make([]string, 0)
		for _, p := range spec.Parameters {
			prop := map[string]interface{}{
				"type":        p.Type,
				"description": p.Description,
			}
			if p.Items != nil {
				prop["items"] = p.Items
			}
			properties[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}

		inputSchema := anthropic.ToolInputSchemaParam{Properties: properties}
		if len(required) > 0 {
			inputSchema.Required = required
		}

		toolDefs = append(toolDefs, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: inputSchema,
			},
		})
	}
	return toolDefs
}

// parseAnthropicMessage folds every content block of one accumulated
// message into a single assistant ConversationItem, matching the shape
// turn.Execute appends to history for an assistant turn.
func parseAnthropicMessage(message anthropic.Message) (models.ConversationItem, models.FinishReason) {
	item := models.ConversationItem{Type: models.ItemTypeAssistantMessage}
	finishReason := models.FinishReasonStop

	for _, block := range message.Content {
		switch block.Type {
		case "text":
			text := block.AsText()
			item.Content += text.Text
		case "tool_use":
			toolUse := block.AsToolUse()
			input, _ := toolUse.Input.(map[string]interface{})
			item.ToolCalls = append(item.ToolCalls, models.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: input,
			})
		}
	}

	switch message.StopReason {
	case anthropic.StopReasonToolUse:
		finishReason = models.FinishReasonToolCalls
	case anthropic.StopReasonMaxTokens:
		finishReason = models.FinishReasonLength
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		finishReason = models.FinishReasonStop
	}
	if len(item.ToolCalls) > 0 {
		finishReason = models.FinishReasonToolCalls
	}

	return item, finishReason
}
