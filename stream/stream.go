package stream

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/petal-labs/anthropic-go/core"
)

const defaultBufferSize = 4096

// Stream is a pull-based handle over a live event-stream body.
//
// Stream Rules:
//   - Next returns events in arrival order until a terminal event
//   - After MessageStop, Next returns io.EOF
//   - After an Error event, Next returns the classified *core.ProviderError
//   - If the body ends without a terminal event, Next returns an error
//     matching core.ErrAbruptTermination
//   - Malformed events are returned like any other; the stream continues
//   - The body is closed once the stream is finished or Close is called
//
// Next must not be called concurrently. Close may be called from any goroutine.
type Stream struct {
	body     io.ReadCloser
	dec      *Decoder
	chunks   chan chunk
	quit     chan struct{}
	pending  []Event
	provider string
	logger   *zap.Logger
	bufSize  int

	mu        sync.Mutex
	err       error // terminal condition; io.EOF on clean end
	closeOnce sync.Once
}

type chunk struct {
	data []byte
	err  error
}

// Option configures a Stream.
type Option func(*Stream)

// WithProvider sets the provider name used in stream errors.
func WithProvider(name string) Option {
	return func(s *Stream) {
		if name != "" {
			s.provider = name
		}
	}
}

// WithLogger sets the logger used to report malformed and unknown events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBufferSize sets the read size used by the background reader.
func WithBufferSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// New starts reading body in the background and returns a Stream over it.
// The Stream owns body.
func New(body io.ReadCloser, opts ...Option) *Stream {
	s := &Stream{
		body:     body,
		dec:      NewDecoder(),
		chunks:   make(chan chunk, 1),
		quit:     make(chan struct{}),
		provider: "stream",
		logger:   zap.NewNop(),
		bufSize:  defaultBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.read()
	return s
}

func (s *Stream) read() {
	defer close(s.chunks)
	for {
		buf := make([]byte, s.bufSize)
		n, err := s.body.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- chunk{data: buf[:n]}:
			case <-s.quit:
				return
			}
		}
		if err != nil {
			select {
			case s.chunks <- chunk{err: err}:
			case <-s.quit:
			}
			return
		}
	}
}

// Next returns the next event. Awaiting bytes is cancellable through ctx;
// cancellation closes the stream.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	for {
		if err := s.terminal(); err != nil {
			return nil, err
		}

		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			s.inspect(ev)
			return ev, nil
		}

		select {
		case <-ctx.Done():
			s.finish(ctx.Err())
			return nil, ctx.Err()

		case c, ok := <-s.chunks:
			switch {
			case !ok:
				// The reader stopped because the stream was closed.
				s.finish(core.ErrStreamClosed)
			case c.err == nil:
				s.pending = append(s.pending, s.dec.Feed(c.data)...)
			case errors.Is(c.err, io.EOF):
				if err := s.dec.Finish(); err != nil {
					var pe *core.ProviderError
					if errors.As(err, &pe) {
						pe.Provider = s.provider
					}
					s.finish(err)
				} else {
					s.finish(io.EOF)
				}
			default:
				s.finish(&core.ProviderError{
					Provider: s.provider,
					Code:     "stream_read_error",
					Message:  c.err.Error(),
					Err:      core.ErrNetwork,
				})
			}
		}
	}
}

// inspect records the effect of a delivered event on the stream state.
func (s *Stream) inspect(ev Event) {
	switch e := ev.(type) {
	case MessageStop:
		s.finish(io.EOF)
	case Error:
		s.logger.Warn("stream error event",
			zap.String("provider", s.provider),
			zap.String("error_type", e.ErrorType),
			zap.String("message", e.Message))
		s.finish(ErrorFromEvent(s.provider, e))
	case Malformed:
		s.logger.Debug("malformed stream event",
			zap.String("provider", s.provider),
			zap.String("event", e.Name),
			zap.Error(e.Err))
	case Unknown:
		s.logger.Debug("unknown stream event",
			zap.String("provider", s.provider),
			zap.String("event", e.Name))
	}
}

// ErrorFromEvent converts a stream error event into a classified error.
// Unrecognised error types are treated as server errors.
func ErrorFromEvent(provider string, ev Error) error {
	sentinel := core.SentinelForErrorType(ev.ErrorType)
	if sentinel == nil {
		sentinel = core.ErrServer
	}
	msg := ev.Message
	if msg == "" {
		msg = "stream error"
	}
	return &core.ProviderError{
		Provider: provider,
		Code:     ev.ErrorType,
		Message:  msg,
		Err:      sentinel,
	}
}

func (s *Stream) terminal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// finish records the first terminal condition and releases the body.
func (s *Stream) finish(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.release()
}

func (s *Stream) release() {
	s.closeOnce.Do(func() {
		close(s.quit)
		if err := s.body.Close(); err != nil {
			s.logger.Debug("closing stream body", zap.Error(err))
		}
	})
}

// Close stops the stream and closes the body. Subsequent calls to Next
// return core.ErrStreamClosed unless the stream had already finished.
func (s *Stream) Close() error {
	s.finish(core.ErrStreamClosed)
	return nil
}

// Err returns the error that ended the stream, or nil if it is still open or
// ended cleanly.
func (s *Stream) Err() error {
	err := s.terminal()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Events returns an iterator over the remaining events. Iteration stops after
// the terminal event; a failure is yielded once as a nil event with an error.
func (s *Stream) Events(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
