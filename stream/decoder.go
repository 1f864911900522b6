package stream

import (
	"bytes"
	"strings"

	"github.com/petal-labs/anthropic-go/core"
)

// Decoder turns a byte stream in server-sent-event framing into typed events.
// Bytes may arrive split at arbitrary positions; feeding the same input in
// any chunking yields the same events.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte

	// current event
	name    string
	data    strings.Builder
	hasData bool

	lastID     string
	closed     bool
	bomChecked bool
}

var utf8BOM = []byte("\xEF\xBB\xBF")

// NewDecoder returns a decoder awaiting the first line.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes chunk and returns the events it completes, in order. After a
// terminal event has been returned, Feed returns nil and ignores input.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.closed {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	// A leading byte order mark is dropped once, even when split across chunks.
	if !d.bomChecked {
		if len(d.buf) < len(utf8BOM) && bytes.HasPrefix(utf8BOM, d.buf) {
			return nil
		}
		d.buf = bytes.TrimPrefix(d.buf, utf8BOM)
		d.bomChecked = true
	}

	var out []Event
	for !d.closed {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}

		if ev := d.processLine(line); ev != nil {
			out = append(out, ev)
			if IsTerminal(ev) {
				d.closed = true
				d.buf = nil
			}
		}
	}

	// Compact so a long stream does not pin a growing backing array.
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	} else if cap(d.buf) > 4*len(d.buf)+4096 {
		d.buf = append([]byte(nil), d.buf...)
	}
	return out
}

// Finish signals end of input. It returns nil when a terminal event was
// seen and an abrupt-termination error otherwise. Any partially buffered
// event is discarded.
func (d *Decoder) Finish() error {
	wasClosed := d.closed
	d.closed = true
	d.buf = nil
	d.reset()
	if wasClosed {
		return nil
	}
	return &core.ProviderError{
		Provider: "stream",
		Code:     "abrupt_termination",
		Message:  "event stream ended before a terminal event",
		Err:      core.ErrAbruptTermination,
	}
}

// Done reports whether a terminal event has been produced.
func (d *Decoder) Done() bool {
	return d.closed
}

// LastEventID returns the most recent id field seen.
func (d *Decoder) LastEventID() string {
	return d.lastID
}

func (d *Decoder) processLine(line []byte) Event {
	if len(line) == 0 {
		return d.dispatch()
	}
	if line[0] == ':' {
		return nil
	}

	field, value := line, []byte(nil)
	if i := bytes.IndexByte(line, ':'); i >= 0 {
		field = line[:i]
		value = line[i+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
	}

	switch string(field) {
	case "event":
		d.name = string(value)
	case "data":
		if d.hasData {
			d.data.WriteByte('\n')
		}
		d.data.Write(value)
		d.hasData = true
	case "id":
		if bytes.IndexByte(value, 0) < 0 {
			d.lastID = string(value)
		}
	case "retry":
		// Reconnection is not supported; the field is accepted and ignored.
	}
	return nil
}

func (d *Decoder) dispatch() Event {
	if d.name == "" && !d.hasData {
		return nil
	}
	name, data := d.name, d.data.String()
	d.reset()
	return decodeEvent(name, []byte(data))
}

func (d *Decoder) reset() {
	d.name = ""
	d.data.Reset()
	d.hasData = false
}
