package stream

import "encoding/json"

// Event is one decoded server-sent event. The set of implementations is
// closed; Unknown and Malformed carry payloads this package cannot type.
type Event interface {
	// Type returns the wire event name, e.g. "content_block_delta".
	Type() string
	isEvent()
}

// Usage reports token consumption. Streaming usage may be partial.
type Usage struct {
	InputTokens              int            `json:"input_tokens"`
	OutputTokens             int            `json:"output_tokens"`
	CacheCreationInputTokens int            `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int            `json:"cache_read_input_tokens,omitempty"`
	ServerToolUse            *ServerToolUse `json:"server_tool_use,omitempty"`
	ServiceTier              string         `json:"service_tier,omitempty"`
}

// ServerToolUse counts server-side tool invocations.
type ServerToolUse struct {
	WebSearchRequests int `json:"web_search_requests"`
}

// ContentBlock is one block of message content.
type ContentBlock struct {
	Type      string            `json:"type"`
	Text      string            `json:"text,omitempty"`
	Thinking  string            `json:"thinking,omitempty"`
	Signature string            `json:"signature,omitempty"`
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Input     json.RawMessage   `json:"input,omitempty"`
	Citations []json.RawMessage `json:"citations,omitempty"`
}

// Message is the message envelope sent in message_start and produced by
// Accumulator.
type Message struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

// Text concatenates the text blocks of the message.
func (m *Message) Text() string {
	var out []byte
	for _, b := range m.Content {
		if b.Type == "text" {
			out = append(out, b.Text...)
		}
	}
	return string(out)
}

// BlockDelta is an incremental update to a content block.
type BlockDelta struct {
	Type        string          `json:"type,omitempty"`
	Text        string          `json:"text,omitempty"`
	PartialJSON string          `json:"partial_json,omitempty"`
	Thinking    string          `json:"thinking,omitempty"`
	Signature   string          `json:"signature,omitempty"`
	Citation    json.RawMessage `json:"citation,omitempty"`
}

// MessageDeltaBody carries top-level message changes.
type MessageDeltaBody struct {
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// MessageStart opens a message.
type MessageStart struct {
	Message Message
}

// MessageDelta updates the stop reason and usage.
type MessageDelta struct {
	Delta MessageDeltaBody
	Usage Usage
}

// MessageStop is the clean terminal event.
type MessageStop struct{}

// ContentBlockStart opens block Index.
type ContentBlockStart struct {
	Index        int
	ContentBlock ContentBlock
}

// ContentBlockDelta appends to block Index.
type ContentBlockDelta struct {
	Index int
	Delta BlockDelta
}

// ContentBlockStop closes block Index.
type ContentBlockStop struct {
	Index int
}

// Ping is a keep-alive.
type Ping struct{}

// Error is the error terminal event sent by the server mid-stream.
type Error struct {
	ErrorType string
	Message   string
	Raw       json.RawMessage
}

// Unknown is an event whose name is not recognised. The raw payload is kept.
type Unknown struct {
	Name string
	Data json.RawMessage
}

// Malformed is a recognised event whose payload failed to decode.
type Malformed struct {
	Name string
	Data []byte
	Err  error
}

func (MessageStart) Type() string      { return "message_start" }
func (MessageDelta) Type() string      { return "message_delta" }
func (MessageStop) Type() string       { return "message_stop" }
func (ContentBlockStart) Type() string { return "content_block_start" }
func (ContentBlockDelta) Type() string { return "content_block_delta" }
func (ContentBlockStop) Type() string  { return "content_block_stop" }
func (Ping) Type() string              { return "ping" }
func (Error) Type() string             { return "error" }
func (e Unknown) Type() string         { return e.Name }
func (e Malformed) Type() string       { return e.Name }

func (MessageStart) isEvent()      {}
func (MessageDelta) isEvent()      {}
func (MessageStop) isEvent()       {}
func (ContentBlockStart) isEvent() {}
func (ContentBlockDelta) isEvent() {}
func (ContentBlockStop) isEvent()  {}
func (Ping) isEvent()              {}
func (Error) isEvent()             {}
func (Unknown) isEvent()           {}
func (Malformed) isEvent()         {}

// IsTerminal reports whether ev ends the stream.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case MessageStop, *MessageStop, Error, *Error:
		return true
	default:
		return false
	}
}

// Wire payloads.

type messageStartWire struct {
	Message Message `json:"message"`
}

type messageDeltaWire struct {
	Delta MessageDeltaBody `json:"delta"`
	Usage Usage            `json:"usage"`
}

type blockStartWire struct {
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

type blockDeltaWire struct {
	Index int             `json:"index"`
	Delta json.RawMessage `json:"delta"`
}

type blockStopWire struct {
	Index int `json:"index"`
}

type errorWire struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type typeProbe struct {
	Type string `json:"type"`
}

// decodeEvent types a complete event. Decode failures yield Malformed and
// unrecognised names yield Unknown; it never returns nil.
func decodeEvent(name string, data []byte) Event {
	if name == "" || name == "message" {
		var probe typeProbe
		if json.Unmarshal(data, &probe) == nil && probe.Type != "" {
			name = probe.Type
		}
	}

	malformed := func(err error) Event {
		return Malformed{Name: name, Data: append([]byte(nil), data...), Err: err}
	}
	empty := len(data) == 0

	switch name {
	case "ping":
		return Ping{}

	case "message_stop":
		return MessageStop{}

	case "message_start":
		var w messageStartWire
		if err := json.Unmarshal(data, &w); err != nil {
			return malformed(err)
		}
		return MessageStart{Message: w.Message}

	case "message_delta":
		var w messageDeltaWire
		if err := json.Unmarshal(data, &w); err != nil {
			return malformed(err)
		}
		return MessageDelta{Delta: w.Delta, Usage: w.Usage}

	case "content_block_start":
		var w blockStartWire
		if err := json.Unmarshal(data, &w); err != nil {
			return malformed(err)
		}
		return ContentBlockStart{Index: w.Index, ContentBlock: w.ContentBlock}

	case "content_block_delta":
		var w blockDeltaWire
		if err := json.Unmarshal(data, &w); err != nil {
			return malformed(err)
		}
		// Accept both {"index":0,"delta":{...}} and a bare delta object.
		src, flat := []byte(w.Delta), false
		if len(src) == 0 || string(src) == "null" {
			src, flat = data, true
		}
		var d BlockDelta
		if err := json.Unmarshal(src, &d); err != nil {
			return malformed(err)
		}
		if flat && d.Type == "content_block_delta" {
			d.Type = ""
		}
		if flat && d.Type == "" && d.Text != "" {
			d.Type = "text_delta"
		}
		return ContentBlockDelta{Index: w.Index, Delta: d}

	case "content_block_stop":
		var w blockStopWire
		if !empty {
			if err := json.Unmarshal(data, &w); err != nil {
				return malformed(err)
			}
		}
		return ContentBlockStop{Index: w.Index}

	case "error":
		ev := Error{Raw: append(json.RawMessage(nil), data...)}
		if empty {
			return ev
		}
		var w errorWire
		if err := json.Unmarshal(data, &w); err != nil {
			return malformed(err)
		}
		ev.ErrorType = w.Error.Type
		ev.Message = w.Error.Message
		return ev

	default:
		return Unknown{Name: name, Data: append(json.RawMessage(nil), data...)}
	}
}
