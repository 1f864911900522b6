// Package normalize provides shared provider error normalization helpers.
package normalize

import (
	"encoding/json"
	"net/http"

	"github.com/petal-labs/anthropic-go/core"
)

// Envelope is the error detail carried by API error bodies:
// {"type":"error","error":{"type":"...","message":"..."}}
type Envelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type envelopeResponse struct {
	Error Envelope `json:"error"`
}

// ParseEnvelope extracts the error detail from body. Bodies that are not
// JSON or carry no error object yield a zero Envelope.
func ParseEnvelope(body []byte) Envelope {
	var resp envelopeResponse
	if len(body) == 0 || json.Unmarshal(body, &resp) != nil {
		return Envelope{}
	}
	return resp.Error
}

// NetworkError wraps transport failures as provider-specific network errors.
func NetworkError(provider string, err error) error {
	return &core.ProviderError{
		Provider: provider,
		Code:     "transport_error",
		Message:  err.Error(),
		Err:      core.ErrNetwork,
	}
}

// DecodeError wraps decode/parsing failures as provider-specific decode errors.
func DecodeError(provider string, err error) error {
	return &core.ProviderError{
		Provider: provider,
		Code:     "decode_error",
		Message:  err.Error(),
		Err:      core.ErrDecode,
	}
}

// ProviderError constructs a normalized ProviderError.
// If message is empty, HTTP status text is used.
// If sentinel is nil, default status-based mapping is applied.
func ProviderError(provider string, status int, requestID, code, message string, sentinel error) error {
	if message == "" {
		message = http.StatusText(status)
	}
	if sentinel == nil {
		sentinel = SentinelForStatus(status)
	}
	return &core.ProviderError{
		Provider:  provider,
		Status:    status,
		RequestID: requestID,
		Code:      code,
		Message:   message,
		Err:       sentinel,
	}
}

// SentinelForStatus maps an HTTP status code to a core sentinel error using
// core.DefaultStatusTable.
func SentinelForStatus(status int) error {
	return SentinelForStatusWithOverrides(status, nil, nil)
}

// SentinelForStatusWithOverrides maps an HTTP status code to a core sentinel
// error through table (core.DefaultStatusTable when nil), then applies any
// exact status overrides from the provided map. Statuses that classify as
// unknown yield nil.
func SentinelForStatusWithOverrides(status int, table core.StatusTable, overrides map[int]error) error {
	if override, ok := overrides[status]; ok && override != nil {
		if table == nil {
			return override
		}
		if _, custom := table[status]; !custom {
			return override
		}
	}
	if table == nil {
		table = core.DefaultStatusTable
	}
	return table.Kind(status).Sentinel()
}
