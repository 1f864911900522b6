package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/petal-labs/anthropic-go/core"
)

// Exit codes
const (
	ExitSuccess    = 0
	ExitValidation = 1
	ExitProvider   = 2
	ExitNetwork    = 3
)

// handleError reports err on stderr and maps it to an exit code.
func (a *App) handleError(err error) error {
	var provErr *core.ProviderError
	errors.As(err, &provErr)

	if a.jsonOutput {
		a.outputErrorJSON(err, provErr)
	} else {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		if provErr != nil && provErr.RequestID != "" {
			fmt.Fprintf(a.stderr, "  Provider: %s, Request ID: %s\n", provErr.Provider, provErr.RequestID)
		}
	}

	switch {
	case errors.Is(err, core.ErrModelRequired), errors.Is(err, core.ErrNoMessages),
		errors.Is(err, core.ErrMissingCredentials):
		return reported(ExitValidation, err)
	case provErr != nil && provErr.Status == 0 && core.KindOf(err) == core.KindClient:
		// Rejected before any request was sent.
		return reported(ExitValidation, err)
	case core.KindOf(err) == core.KindTransport, core.KindOf(err) == core.KindAbruptTermination:
		return reported(ExitNetwork, err)
	}
	return reported(ExitProvider, err)
}

func (a *App) outputJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *App) outputErrorJSON(err error, provErr *core.ProviderError) {
	detail := map[string]any{
		"kind":     core.KindOf(err).String(),
		"message":  err.Error(),
		"attempts": len(core.AttemptsOf(err)),
	}
	if provErr != nil {
		detail["type"] = provErr.Code
		detail["message"] = provErr.Message
		detail["provider"] = provErr.Provider
		detail["request_id"] = provErr.RequestID
		if provErr.Status != 0 {
			detail["status"] = provErr.Status
		}
	}

	enc := json.NewEncoder(a.stderr)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"error": detail})
}

// exitError wraps an error with an exit code.
type exitError struct {
	code     int
	err      error
	reported bool // already written to stderr
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func (e *exitError) ExitCode() int {
	return e.code
}

func exitWithCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func reported(code int, err error) error {
	return &exitError{code: code, err: err, reported: true}
}
