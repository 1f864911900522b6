package anthropic

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/petal-labs/anthropic-go/stream"
)

// StreamMessage opens a streaming request. Retries cover establishing the
// stream only; once events flow, a dropped connection or server error event
// ends the stream with an error and is never replayed.
//
// The caller must drain or Close the returned stream.
//
//	s, err := client.StreamMessage(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	for ev, err := range s.Events(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    if d, ok := ev.(stream.ContentBlockDelta); ok {
//	        fmt.Print(d.Delta.Text)
//	    }
//	}
func (c *Client) StreamMessage(ctx context.Context, req *MessageRequest) (*stream.Stream, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	antReq := *req
	antReq.Stream = true
	body, err := json.Marshal(&antReq)
	if err != nil {
		return nil, newDecodeError(err)
	}

	resp, err := c.exec.Open(ctx, ClassMessages, c.dispatcher(http.MethodPost, messagesPath, body, true))
	if err != nil {
		return nil, err
	}

	return stream.New(resp.Body,
		stream.WithProvider(ProviderName),
		stream.WithLogger(c.config.Logger.With(
			zap.String("request_id", resp.Header.Get("request-id")),
		)),
	), nil
}

// CollectMessage streams a request and accumulates it into a Message.
// Blocks until the stream completes or ctx is done.
func (c *Client) CollectMessage(ctx context.Context, req *MessageRequest) (*Message, error) {
	s, err := c.StreamMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream.Collect(ctx, s)
}
