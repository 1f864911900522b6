package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/petal-labs/anthropic-go/core"
)

// Accumulator folds stream events into a complete Message.
// The zero value is ready to use.
type Accumulator struct {
	msg     Message
	started bool
	done    bool
	partial map[int]*strings.Builder
}

// Apply folds ev into the message. Events after the terminal event are
// ignored. An Error event is returned as a classified error.
func (a *Accumulator) Apply(ev Event) error {
	if a.done {
		return nil
	}
	switch e := ev.(type) {
	case MessageStart:
		content := a.msg.Content
		a.msg = e.Message
		if len(a.msg.Content) == 0 {
			a.msg.Content = content
		}
		a.started = true

	case ContentBlockStart:
		if b := a.block(e.Index); b != nil {
			*b = e.ContentBlock
		}

	case ContentBlockDelta:
		a.applyDelta(e.Index, e.Delta)

	case ContentBlockStop:
		a.closeBlock(e.Index)

	case MessageDelta:
		if e.Delta.StopReason != "" {
			a.msg.StopReason = e.Delta.StopReason
		}
		if e.Delta.StopSequence != "" {
			a.msg.StopSequence = e.Delta.StopSequence
		}
		mergeUsage(&a.msg.Usage, e.Usage)

	case MessageStop:
		for idx := range a.partial {
			a.closeBlock(idx)
		}
		a.done = true

	case Error:
		a.done = true
		return ErrorFromEvent("stream", e)
	}
	return nil
}

// Message returns the message accumulated so far.
func (a *Accumulator) Message() *Message {
	m := a.msg
	m.Content = append([]ContentBlock(nil), a.msg.Content...)
	return &m
}

// Started reports whether a message_start event has been applied.
func (a *Accumulator) Started() bool {
	return a.started
}

// Done reports whether a terminal event has been applied.
func (a *Accumulator) Done() bool {
	return a.done
}

// maxBlockGap bounds how far past the last known block an index may point.
const maxBlockGap = 16

// block returns the block at idx, growing Content as needed. Indexes that are
// negative or far beyond the known blocks yield nil and the event is dropped.
func (a *Accumulator) block(idx int) *ContentBlock {
	if idx < 0 || idx > len(a.msg.Content)+maxBlockGap {
		return nil
	}
	for len(a.msg.Content) <= idx {
		a.msg.Content = append(a.msg.Content, ContentBlock{})
	}
	return &a.msg.Content[idx]
}

func (a *Accumulator) applyDelta(idx int, d BlockDelta) {
	b := a.block(idx)
	if b == nil {
		return
	}
	switch d.Type {
	case "text_delta", "":
		if d.Text != "" && b.Type == "" {
			b.Type = "text"
		}
		b.Text += d.Text
	case "thinking_delta":
		b.Thinking += d.Thinking
	case "signature_delta":
		b.Signature += d.Signature
	case "input_json_delta":
		if a.partial == nil {
			a.partial = make(map[int]*strings.Builder)
		}
		sb, ok := a.partial[idx]
		if !ok {
			sb = &strings.Builder{}
			a.partial[idx] = sb
		}
		sb.WriteString(d.PartialJSON)
	case "citations_delta":
		if len(d.Citation) > 0 {
			b.Citations = append(b.Citations, d.Citation)
		}
	}
}

// closeBlock parses buffered tool input. Input that is not valid JSON is kept
// as a JSON string.
func (a *Accumulator) closeBlock(idx int) {
	sb, ok := a.partial[idx]
	if !ok {
		return
	}
	delete(a.partial, idx)
	raw := sb.String()
	if raw == "" {
		return
	}
	b := a.block(idx)
	if json.Valid([]byte(raw)) {
		b.Input = json.RawMessage(raw)
		return
	}
	quoted, _ := json.Marshal(raw)
	b.Input = quoted
}

// mergeUsage keeps the largest value seen for each counter; streaming usage
// payloads may be partial.
func mergeUsage(dst *Usage, src Usage) {
	dst.InputTokens = max(dst.InputTokens, src.InputTokens)
	dst.OutputTokens = max(dst.OutputTokens, src.OutputTokens)
	dst.CacheCreationInputTokens = max(dst.CacheCreationInputTokens, src.CacheCreationInputTokens)
	dst.CacheReadInputTokens = max(dst.CacheReadInputTokens, src.CacheReadInputTokens)
	if src.ServerToolUse != nil {
		if dst.ServerToolUse == nil {
			dst.ServerToolUse = &ServerToolUse{}
		}
		dst.ServerToolUse.WebSearchRequests = max(dst.ServerToolUse.WebSearchRequests, src.ServerToolUse.WebSearchRequests)
	}
	if src.ServiceTier != "" {
		dst.ServiceTier = src.ServiceTier
	}
}

// Collect drains s and returns the accumulated message.
// Blocks until the stream completes or ctx is done. The stream is closed on
// return.
func Collect(ctx context.Context, s *Stream) (*Message, error) {
	if s == nil {
		return nil, core.ErrStreamClosed
	}
	defer s.Close()

	var acc Accumulator
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return acc.Message(), nil
		}
		if err != nil {
			return nil, err
		}
		if _, isErr := ev.(Error); isErr {
			// The classified error is returned by the following Next.
			continue
		}
		if err := acc.Apply(ev); err != nil {
			return nil, err
		}
	}
}
