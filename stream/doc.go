// Package stream decodes server-sent event streams from the Messages API.
//
// Decoder is the incremental parser: it accepts bytes split at arbitrary
// positions and produces typed events. Stream wraps a live response body
// with a cancellable pull API, and Collect folds a stream into a Message.
//
// A stream ends in exactly one of three ways: a message_stop event (clean),
// an error event (classified *core.ProviderError), or end of input without
// either (core.ErrAbruptTermination). Malformed individual events never end
// a stream.
package stream
