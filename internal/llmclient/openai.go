package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"

	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/tools"
	"github.com/autopoiesis-dev/agentcore/internal/turn"
)

// OpenAIClient implements turn.LLMClient against the Chat Completions API,
// the second provider the turn executor can run against without internal/turn
// knowing which SDK backs it.
type OpenAIClient struct {
	client    openai.Client
	model     models.ModelConfig
	toolSpecs []tools.ToolSpec
}

// NewOpenAIClient builds a client reading its API key from OPENAI_API_KEY.
func NewOpenAIClient(model models.ModelConfig, toolSpecs []tools.ToolSpec) *OpenAIClient {
	return &OpenAIClient{
		client:    openai.NewClient(option.WithAPIKey(os.Getenv("OPENAI_API_KEY"))),
		model:     model,
		toolSpecs: toolSpecs,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, history []models.ConversationItem, onChunk func(turn.CompletionChunk)) (turn.CompletionResult, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model.Model),
		Messages: buildOpenAIMessages(history),
	}
	if c.model.Temperature > 0 {
		params.Temperature = param.NewOpt(c.model.Temperature)
	}
	if len(c.toolSpecs) > 0 {
		params.Tools = buildOpenAITools(c.toolSpecs)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if onChunk == nil || len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			onChunk(turn.CompletionChunk{TextDelta: delta})
		}
	}
	if err := stream.Err(); err != nil {
		if apiErr, ok := err.(*openai.Error); ok {
			return turn.CompletionResult{}, classifyByStatusCode(apiErr.StatusCode, apiErr)
		}
		return turn.CompletionResult{}, classifyGenericError(err)
	}
	if len(acc.Choices) == 0 {
		return turn.CompletionResult{}, fmt.Errorf("llmclient: openai stream produced no choices")
	}

	choice := acc.Choices[0]
	item := models.ConversationItem{
		Type:    models.ItemTypeAssistantMessage,
		Content: choice.Message.Content,
	}
	finishReason := models.FinishReasonStop
	switch choice.FinishReason {
	case "tool_calls":
		finishReason = models.FinishReasonToolCalls
	case "length":
		finishReason = models.FinishReasonLength
	case "content_filter":
		finishReason = models.FinishReasonContentFilter
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = map[string]interface{}{"_raw": tc.Function.Arguments}
		}
		item.ToolCalls = append(item.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	if len(item.ToolCalls) > 0 {
		finishReason = models.FinishReasonToolCalls
	}

	return turn.CompletionResult{
		Items:        []models.ConversationItem{item},
		FinishReason: finishReason,
		Usage: models.TokenUsage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:      int(acc.Usage.TotalTokens),
		},
	}, nil
}

// buildOpenAIMessages converts conversation history to Chat Completions
// messages. OpenAI requires a tool result message to follow the assistant
// message carrying the matching tool_calls entry — our history already
// preserves that order, so this is a straight per-item translation.
func buildOpenAIMessages(history []models.ConversationItem) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))

	for _, item := range history {
		switch item.Type {
		case models.ItemTypeUserMessage:
			messages = append(messages, openai.UserMessage(item.Content))

		case models.ItemTypeAssistantMessage:
			if len(item.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(item.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(item.ToolCalls))
			for _, tc := range item.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Arguments)
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			assistantMsg := &openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if item.Content != "" {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(item.Content),
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: assistantMsg})

		case models.ItemTypeToolResult:
			content := item.ToolOutput
			if item.ToolError != "" {
				content = fmt.Sprintf("Error: %s", item.ToolError)
			}
			messages = append(messages, openai.ToolMessage(content, item.ToolCallID))
		}
	}

	return messages
}

func buildOpenAITools(specs []tools.ToolSpec) []openai.ChatCompletionToolParam {
	toolDefs := make([]openai.ChatCompletionToolParam, 0, len(specs))
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

		toolDefs = append(toolDefs, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: param.NewOpt(spec.Description),
				Parameters: shared.FunctionParameters{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			},
		})
	}
	return toolDefs
}
