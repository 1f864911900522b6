// Package keystore stores named API keys in an encrypted file so the CLI
// does not need them in shell history or plain config.
package keystore

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/petal-labs/anthropic-go/core"
)

// Keystore defines the interface for secure key storage.
type Keystore interface {
	// Set stores a key-value pair.
	Set(name string, value core.Secret) error
	// Get retrieves a value by name. Returns *ErrKeyNotFound if absent.
	Get(name string) (core.Secret, error)
	// Delete removes a key by name.
	Delete(name string) error
	// List returns all stored key names, sorted.
	List() ([]string, error)
}

// ErrKeyNotFound is returned when a requested key does not exist.
type ErrKeyNotFound struct {
	Name string
}

func (e *ErrKeyNotFound) Error() string {
	return "key not found: " + e.Name
}

// IsNotFound reports whether err is an *ErrKeyNotFound.
func IsNotFound(err error) bool {
	var nf *ErrKeyNotFound
	return errors.As(err, &nf)
}

// DefaultKeystorePath returns the default keystore file path.
// - macOS/Linux: ~/.anthropic-go/keys.enc
// - Windows: %USERPROFILE%\.anthropic-go\keys.enc
func DefaultKeystorePath() string {
	var homeDir string

	if runtime.GOOS == "windows" {
		homeDir = os.Getenv("USERPROFILE")
	} else {
		homeDir = os.Getenv("HOME")
	}

	if homeDir == "" {
		return "keys.enc"
	}

	return filepath.Join(homeDir, ".anthropic-go", "keys.enc")
}

// NewKeystore opens the default keystore with the default master key source.
func NewKeystore() (Keystore, error) {
	return NewFileKeystore(DefaultKeystorePath(), DefaultMasterKey())
}
