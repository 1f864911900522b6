package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/petal-labs/anthropic-go/core"
)

// File layout: magic | version | salt | nonce | AES-256-GCM(JSON map).
// The header is authenticated as additional data.
const (
	magic       = "AGKS"
	fileVersion = byte(0x01)
	saltLength  = 16
	nonceLength = 12
	headerLen   = len(magic) + 1 + saltLength + nonceLength
)

// Argon2id parameters (OWASP recommended)
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// ErrCorrupt is returned when the keystore file cannot be decrypted.
var ErrCorrupt = errors.New("keystore: file is corrupt or the master key is wrong")

// MasterKeySource supplies the secret the file key is derived from.
type MasterKeySource interface {
	MasterKey() ([]byte, error)
}

// MasterKeyFunc adapts a function to MasterKeySource.
type MasterKeyFunc func() ([]byte, error)

// MasterKey implements MasterKeySource.
func (f MasterKeyFunc) MasterKey() ([]byte, error) { return f() }

// MasterKeyEnvVar overrides the machine-derived master key.
const MasterKeyEnvVar = "ANTHROPIC_GO_MASTER_KEY"

// DefaultMasterKey reads MasterKeyEnvVar, falling back to material derived
// from the host and user name. The fallback only keeps keys out of plain
// text; set the variable on shared machines.
func DefaultMasterKey() MasterKeySource {
	return MasterKeyFunc(func() ([]byte, error) {
		if v := os.Getenv(MasterKeyEnvVar); v != "" {
			return []byte(v), nil
		}
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		user := os.Getenv("USER")
		if user == "" {
			user = os.Getenv("USERNAME")
		}
		return []byte(host + ":" + user + ":anthropic-go-keystore"), nil
	})
}

// FileKeystore implements Keystore using a single encrypted file.
type FileKeystore struct {
	path      string
	masterKey []byte
	mu        sync.RWMutex
}

// NewFileKeystore creates a keystore at path. The file is created on the
// first Set.
func NewFileKeystore(path string, source MasterKeySource) (*FileKeystore, error) {
	key, err := source.MasterKey()
	if err != nil {
		return nil, fmt.Errorf("keystore: master key: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("keystore: empty master key")
	}
	return &FileKeystore{path: path, masterKey: key}, nil
}

// Set stores a key-value pair.
func (f *FileKeystore) Set(name string, value core.Secret) error {
	if value.IsEmpty() {
		return errors.New("keystore: empty value")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	data[name] = value.Expose()
	return f.save(data)
}

// Get retrieves a value by name.
func (f *FileKeystore) Get(name string) (core.Secret, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := f.load()
	if err != nil {
		return core.Secret{}, err
	}
	value, ok := data[name]
	if !ok {
		return core.Secret{}, &ErrKeyNotFound{Name: name}
	}
	return core.NewSecret(value), nil
}

// Delete removes a key by name.
func (f *FileKeystore) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := data[name]; !ok {
		return &ErrKeyNotFound{Name: name}
	}
	delete(data, name)
	return f.save(data)
}

// List returns all stored key names.
func (f *FileKeystore) List() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := f.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (f *FileKeystore) load() (map[string]string, error) {
	data := make(map[string]string)

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(raw) == 0) {
		return data, nil
	}
	if err != nil {
		return nil, err
	}

	plaintext, err := f.open(raw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, ErrCorrupt
	}
	return data, nil
}

func (f *FileKeystore) save(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	plaintext, err := json.Marshal(data)
	if err != nil {
		return err
	}
	sealed, err := f.seal(plaintext)
	if err != nil {
		return err
	}

	// Write then rename so a crash never leaves a truncated file.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileKeystore) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(f.masterKey, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (f *FileKeystore) seal(plaintext []byte) ([]byte, error) {
	header := make([]byte, headerLen)
	copy(header, magic)
	header[len(magic)] = fileVersion
	salt := header[len(magic)+1 : len(magic)+1+saltLength]
	nonce := header[len(magic)+1+saltLength:]
	if _, err := io.ReadFull(rand.Reader, header[len(magic)+1:]); err != nil {
		return nil, err
	}

	gcm, err := f.aead(salt)
	if err != nil {
		return nil, err
	}
	return append(header, gcm.Seal(nil, nonce, plaintext, header)...), nil
}

func (f *FileKeystore) open(raw []byte) ([]byte, error) {
	if len(raw) < headerLen || string(raw[:len(magic)]) != magic {
		return nil, ErrCorrupt
	}
	if raw[len(magic)] != fileVersion {
		return nil, fmt.Errorf("keystore: unsupported file version %d", raw[len(magic)])
	}
	header := raw[:headerLen]
	salt := header[len(magic)+1 : len(magic)+1+saltLength]
	nonce := header[len(magic)+1+saltLength:]

	gcm, err := f.aead(salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, raw[headerLen:], header)
	if err != nil {
		return nil, ErrCorrupt
	}
	return plaintext, nil
}

var _ Keystore = (*FileKeystore)(nil)
