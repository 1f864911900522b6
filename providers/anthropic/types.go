package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/petal-labs/anthropic-go/core"
	"github.com/petal-labs/anthropic-go/stream"
)

// Message is a complete assistant message. Non-streaming calls return it
// directly; streaming calls produce it through stream.Collect.
type Message = stream.Message

// ContentBlock is one block of response content.
type ContentBlock = stream.ContentBlock

// Usage reports token consumption.
type Usage = stream.Usage

// Roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageRequest is a request to the Messages API.
type MessageRequest struct {
	Model         string         `json:"model" validate:"required"`
	MaxTokens     int            `json:"max_tokens" validate:"gt=0"`
	Messages      []MessageParam `json:"messages" validate:"required,min=1,dive"`
	System        string         `json:"system,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=1"`
	TopP          *float64       `json:"top_p,omitempty" validate:"omitempty,gt=0,lte=1"`
	TopK          *int           `json:"top_k,omitempty" validate:"omitempty,gt=0"`
	StopSequences []string       `json:"stop_sequences,omitempty"`
	Tools         []Tool         `json:"tools,omitempty" validate:"omitempty,dive"`
	ToolChoice    *ToolChoice    `json:"tool_choice,omitempty"`
	Metadata      *Metadata      `json:"metadata,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
}

// MessageParam is one conversation turn.
type MessageParam struct {
	Role    string         `json:"role" validate:"oneof=user assistant"`
	Content []RequestBlock `json:"content" validate:"required,min=1"`
}

// RequestBlock is a content block sent to the API.
type RequestBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// For tool_use blocks echoed back in assistant turns
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// For tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Tool describes a tool the model may call.
type Tool struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema" validate:"required"`
}

// ToolChoice controls tool use: "auto", "any", "tool" or "none".
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Metadata is request metadata.
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// UserMessage returns a user turn with a single text block.
func UserMessage(text string) MessageParam {
	return MessageParam{Role: RoleUser, Content: []RequestBlock{{Type: "text", Text: text}}}
}

// AssistantMessage returns an assistant turn with a single text block.
func AssistantMessage(text string) MessageParam {
	return MessageParam{Role: RoleAssistant, Content: []RequestBlock{{Type: "text", Text: text}}}
}

// ToolResult returns a user turn answering tool call toolUseID.
func ToolResult(toolUseID, content string, isError bool) MessageParam {
	return MessageParam{Role: RoleUser, Content: []RequestBlock{{
		Type:      "tool_result",
		ToolUseID: toolUseID,
		Content:   content,
		IsError:   isError,
	}}}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the request before any attempt is made. Failures wrap
// core.ErrBadRequest, or are core.ErrModelRequired / core.ErrNoMessages.
func (r *MessageRequest) Validate() error {
	if r == nil {
		return core.ErrBadRequest
	}
	if strings.TrimSpace(r.Model) == "" {
		return core.ErrModelRequired
	}
	if len(r.Messages) == 0 {
		return core.ErrNoMessages
	}
	if err := requestValidator().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			err = errors.New(strings.Join(fields, "; "))
		}
		return &core.ProviderError{
			Provider: ProviderName,
			Code:     "invalid_request",
			Message:  err.Error(),
			Err:      core.ErrBadRequest,
		}
	}
	return nil
}

// ModelInfo describes a model available to the API key.
type ModelInfo struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ModelList is one page of models.
type ModelList struct {
	Data    []ModelInfo `json:"data"`
	HasMore bool        `json:"has_more"`
	FirstID string      `json:"first_id"`
	LastID  string      `json:"last_id"`
}

// ListModelsParams paginates ListModels.
type ListModelsParams struct {
	Limit    int
	AfterID  string
	BeforeID string
}
