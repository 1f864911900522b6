package core

// Secret holds an API key. The value is never exposed through String,
// GoString, JSON or text marshaling, so a Secret can be logged or dumped
// with a config struct safely.
//
//	key := NewSecret("sk-ant-abc123")
//	fmt.Println(key)   // [REDACTED]
//	key.Hint()         // ...c123
//	key.Expose()       // sk-ant-abc123
//
// Secret implements encoding.TextUnmarshaler so it can be loaded directly
// from YAML files and environment variables.
type Secret struct {
	value string
}

const redacted = "[REDACTED]"

// NewSecret creates a new Secret from a string value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer.
func (s Secret) GoString() string {
	return "core.Secret{" + redacted + "}"
}

// MarshalJSON returns a redacted JSON string.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// MarshalText returns a redacted text representation.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// UnmarshalText stores text as the secret value.
func (s *Secret) UnmarshalText(text []byte) error {
	s.value = string(text)
	return nil
}

// Expose returns the actual secret value. Only use it where the value is
// sent, e.g. the x-api-key header.
func (s Secret) Expose() string {
	return s.value
}

// Hint returns the last four characters prefixed with "...", for telling
// keys apart in diagnostics. Short keys are fully masked.
func (s Secret) Hint() string {
	if len(s.value) < 12 {
		return "..."
	}
	return "..." + s.value[len(s.value)-4:]
}

// IsEmpty returns true if the secret value is empty.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}
