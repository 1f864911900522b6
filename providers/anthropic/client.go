package anthropic

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/petal-labs/anthropic-go/core"
)

// messagesPath is the API endpoint for messages.
const messagesPath = "/v1/messages"

// CreateMessage sends a non-streaming request. Transport failures, 429s and
// 5xx responses are retried per the configured policy; a failure after the
// last attempt is a *core.CallError carrying the attempt history.
func (c *Client) CreateMessage(ctx context.Context, req *MessageRequest) (*Message, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	antReq := *req
	antReq.Stream = false
	body, err := json.Marshal(&antReq)
	if err != nil {
		return nil, newDecodeError(err)
	}

	resp, err := c.exec.Do(ctx, ClassMessages, c.dispatcher(http.MethodPost, messagesPath, body, false))
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(resp.Body, &msg); err != nil {
		derr := newDecodeError(err)
		if pe, ok := derr.(*core.ProviderError); ok {
			pe.Status = resp.StatusCode
			pe.RequestID = resp.Header.Get("request-id")
		}
		return nil, derr
	}
	return &msg, nil
}
