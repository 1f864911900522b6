package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DispatchFunc performs one physical attempt. attempt is 1-based. The
// executor owns the returned response body.
type DispatchFunc func(ctx context.Context, attempt int) (*http.Response, error)

// Classifier turns the outcome of one attempt into nil (success) or a
// classified error, normally a *ProviderError. status is 0 and header nil when
// err is a transport failure. For successful streaming attempts body is nil.
type Classifier func(status int, header http.Header, body []byte, err error) error

// Response is the outcome of a successful non-streaming call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   []Attempt
	Elapsed    time.Duration
}

// StreamResponse is an established stream. The caller must close Body.
type StreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Attempts   []Attempt
	Elapsed    time.Duration
}

// Executor drives logical calls through rate limiting, dispatch,
// classification and backoff. Executor is safe for concurrent use.
type Executor struct {
	provider  string
	limiter   *RateLimiter
	retry     RetryPolicy
	classify  Classifier
	table     StatusTable
	logger    *zap.Logger
	telemetry TelemetryHook
	newID     func() string

	mu    sync.Mutex
	stats RetryStats
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an Executor. Without options it retries with
// DefaultRetryPolicy, classifies with DefaultStatusTable and does no
// client-side rate limiting.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		provider:  "client",
		retry:     DefaultRetryPolicy(),
		logger:    zap.NewNop(),
		telemetry: NoopTelemetryHook{},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classify == nil {
		e.classify = StatusClassifier(e.provider, e.table)
	}
	return e
}

// WithProviderName sets the provider name used in errors and telemetry.
func WithProviderName(name string) ExecutorOption {
	return func(e *Executor) {
		if name != "" {
			e.provider = name
		}
	}
}

// WithRateLimiter enables client-side admission control.
func WithRateLimiter(l *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.limiter = l
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(r RetryPolicy) ExecutorOption {
	return func(e *Executor) {
		if r != nil {
			e.retry = r
		}
	}
}

// WithClassifier sets the attempt classifier.
func WithClassifier(c Classifier) ExecutorOption {
	return func(e *Executor) {
		if c != nil {
			e.classify = c
		}
	}
}

// WithStatusTable sets the table used by the default StatusClassifier.
// It has no effect when WithClassifier is also given.
func WithStatusTable(table StatusTable) ExecutorOption {
	return func(e *Executor) {
		e.table = table
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTelemetry sets the telemetry hook.
func WithTelemetry(h TelemetryHook) ExecutorOption {
	return func(e *Executor) {
		if h != nil {
			e.telemetry = h
		}
	}
}

// WithRequestIDFunc overrides how per-call request ids are generated.
func WithRequestIDFunc(fn func() string) ExecutorOption {
	return func(e *Executor) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// Stats returns a snapshot of retry statistics across all calls.
func (e *Executor) Stats() RetryStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ResetStats clears the retry statistics.
func (e *Executor) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = RetryStats{}
}

func (e *Executor) record(attempts []Attempt, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.TotalRequests++
	if err != nil {
		e.stats.FailedRequests++
	} else if len(attempts) == 1 {
		e.stats.SuccessfulFirstTry++
	}
	if retries := len(attempts) - 1; retries > 0 {
		e.stats.RetriedRequests++
		e.stats.TotalRetryAttempts += uint64(retries)
	}
	for _, a := range attempts {
		e.stats.TotalRetryDelay += a.Delay
	}
}

// RateLimiter returns the configured limiter, or nil.
func (e *Executor) RateLimiter() *RateLimiter {
	return e.limiter
}

type requestIDKey struct{}

// RequestIDFromContext returns the id of the logical call that ctx belongs to.
// Dispatch functions use it to tag every attempt of a call identically.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Do runs a non-streaming logical call. The response body of each attempt is
// read fully before classification.
func (e *Executor) Do(ctx context.Context, class string, dispatch DispatchFunc) (*Response, error) {
	out, err := e.run(ctx, class, false, dispatch)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: out.status,
		Header:     out.header,
		Body:       out.body,
		Attempts:   out.attempts,
		Elapsed:    out.elapsed,
	}, nil
}

// Open runs a streaming logical call. Retries only cover establishing the
// stream; once a successful status is received the live body is returned
// unread and is never retried by the executor.
func (e *Executor) Open(ctx context.Context, class string, dispatch DispatchFunc) (*StreamResponse, error) {
	out, err := e.run(ctx, class, true, dispatch)
	if err != nil {
		return nil, err
	}
	return &StreamResponse{
		StatusCode: out.status,
		Header:     out.header,
		Body:       out.stream,
		Attempts:   out.attempts,
		Elapsed:    out.elapsed,
	}, nil
}

type outcome struct {
	status   int
	header   http.Header
	body     []byte
	stream   io.ReadCloser
	attempts []Attempt
	elapsed  time.Duration
}

func (e *Executor) run(ctx context.Context, class string, streaming bool, dispatch DispatchFunc) (*outcome, error) {
	start := time.Now()
	reqID := RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = e.newID()
		ctx = context.WithValue(ctx, requestIDKey{}, reqID)
	}
	log := e.logger.With(
		zap.String("provider", e.provider),
		zap.String("class", class),
		zap.String("request_id", reqID),
	)

	e.telemetry.OnRequestStart(RequestStartEvent{
		Provider:  e.provider,
		Class:     class,
		RequestID: reqID,
		Streaming: streaming,
		Start:     start,
	})

	var budget time.Duration
	if b, ok := e.retry.(ElapsedBudget); ok {
		budget = b.MaxElapsed()
	}

	var attempts []Attempt
	finish := func(out *outcome, err error) (*outcome, error) {
		end := time.Now()
		e.telemetry.OnRequestEnd(RequestEndEvent{
			Provider:  e.provider,
			Class:     class,
			RequestID: reqID,
			Streaming: streaming,
			Start:     start,
			End:       end,
			Attempts:  len(attempts),
			Err:       err,
		})
		e.record(attempts, err)
		if err != nil {
			return nil, &CallError{Attempts: attempts, Elapsed: end.Sub(start), Err: err}
		}
		out.attempts = attempts
		out.elapsed = end.Sub(start)
		return out, nil
	}

	for n := 1; ; n++ {
		if e.limiter != nil {
			if err := e.limiter.AcquireClass(ctx, class); err != nil {
				log.Warn("call not admitted", zap.Int("attempt", n), zap.Error(err))
				return finish(nil, err)
			}
		}

		attemptStart := time.Now()
		out, cerr := e.attempt(ctx, streaming, n, dispatch)
		att := Attempt{
			Number:     n,
			StatusCode: out.status,
			Err:        cerr,
			Elapsed:    time.Since(attemptStart),
		}

		if cerr == nil {
			attempts = append(attempts, att)
			e.telemetry.OnAttempt(AttemptEvent{Provider: e.provider, Class: class, RequestID: reqID, Attempt: att})
			log.Debug("call succeeded", zap.Int("attempt", n), zap.Int("status", out.status))
			return finish(out, nil)
		}

		delay, retry := e.retry.NextDelay(n, cerr)
		overBudget := retry && budget > 0 && delay > budget-time.Since(start)
		if overBudget {
			retry = false
		}
		if retry {
			att.Delay = delay
		}
		attempts = append(attempts, att)
		e.telemetry.OnAttempt(AttemptEvent{Provider: e.provider, Class: class, RequestID: reqID, Attempt: att, Retrying: retry})

		if overBudget {
			log.Warn("retry budget exhausted",
				zap.Int("attempt", n),
				zap.Duration("budget", budget),
				zap.Duration("delay", delay),
				zap.Error(cerr))
			return finish(nil, cerr)
		}
		if !retry {
			log.Warn("giving up",
				zap.Int("attempt", n),
				zap.Int("status", out.status),
				zap.Stringer("kind", KindOf(cerr)),
				zap.Error(cerr))
			return finish(nil, cerr)
		}

		log.Debug("retrying",
			zap.Int("attempt", n),
			zap.Int("status", out.status),
			zap.Stringer("kind", KindOf(cerr)),
			zap.Duration("delay", delay),
			zap.Error(cerr))

		if err := sleep(ctx, delay); err != nil {
			return finish(nil, fmt.Errorf("retry wait after attempt %d: %w", n, err))
		}
	}
}

// attempt performs and classifies one dispatch. The returned outcome always
// carries the status, even on failure.
func (e *Executor) attempt(ctx context.Context, streaming bool, n int, dispatch DispatchFunc) (*outcome, error) {
	out := &outcome{}
	resp, err := dispatch(ctx, n)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		return out, e.classify(0, nil, nil, err)
	}

	out.status = resp.StatusCode
	out.header = resp.Header
	info := ParseRateLimitHeaders(resp.Header)
	if e.limiter != nil {
		e.limiter.Observe(info)
	}

	if streaming && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if cerr := e.classify(resp.StatusCode, resp.Header, nil, nil); cerr != nil {
			resp.Body.Close()
			return out, annotate(cerr, resp.Header, info)
		}
		out.stream = resp.Body
		return out, nil
	}

	body, rerr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if rerr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		return out, e.classify(0, nil, nil, rerr)
	}
	out.body = body

	if cerr := e.classify(resp.StatusCode, resp.Header, body, nil); cerr != nil {
		return out, annotate(cerr, resp.Header, info)
	}
	return out, nil
}

// annotate fills request id and retry hint from headers when the classifier
// left them empty.
func annotate(err error, header http.Header, info RateLimitInfo) error {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return err
	}
	if pe.RequestID == "" && header != nil {
		pe.RequestID = header.Get("request-id")
	}
	if pe.RetryAfter == 0 && pe.Kind() == KindRateLimited {
		pe.RetryAfter = info.RecommendedDelay()
	}
	return err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StatusClassifier returns a Classifier that treats 2xx as success and maps
// every other status through table. Transport errors are KindTransport.
func StatusClassifier(provider string, table StatusTable) Classifier {
	if table == nil {
		table = DefaultStatusTable
	}
	return func(status int, header http.Header, body []byte, err error) error {
		if err != nil {
			return TransportError(provider, err)
		}
		if status >= 200 && status < 300 {
			return nil
		}
		kind := table.Kind(status)
		sentinel := kind.Sentinel()
		if status == http.StatusNotFound && kind == KindClient {
			sentinel = ErrNotFound
		}
		msg := strings.TrimSpace(string(body))
		if msg == "" || len(msg) > 512 {
			msg = http.StatusText(status)
		}
		pe := &ProviderError{
			Provider: provider,
			Status:   status,
			Code:     kind.String(),
			Message:  msg,
			Err:      sentinel,
		}
		if header != nil {
			pe.RequestID = header.Get("request-id")
		}
		return pe
	}
}

// TransportError classifies a dispatch or body read failure, including
// per-attempt timeouts. Cancellation of the caller's context is handled by
// the executor before classification.
func TransportError(provider string, err error) error {
	return &ProviderError{
		Provider: provider,
		Code:     "transport_error",
		Message:  err.Error(),
		Err:      ErrNetwork,
	}
}
