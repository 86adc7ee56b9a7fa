package crypto

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// Keyring provides secure key storage abstraction
type Keyring interface {
	GetKey() (string, error)
	SetKey(password string) error
	DeleteKey() error
	IsAvailable() bool
}

const (
	ServiceName = "billsink"
	KeyName     = "db-encryption-key"

	// EnvKey overrides the OS keyring, for servers and CI where none exists.
	EnvKey = "BILLSINK_DB_KEY"
)

// ErrKeyNotFound is returned when neither the environment nor the OS keyring
// holds a key.
var ErrKeyNotFound = errors.New("encryption key not found")

// NewKeyring returns a keyring that reads BILLSINK_DB_KEY first and falls
// back to the OS keyring (Keychain, Secret Service, Credential Manager).
func NewKeyring() Keyring {
	return &chainKeyring{}
}

type chainKeyring struct{}

func (k *chainKeyring) GetKey() (string, error) {
	if key := os.Getenv(EnvKey); key != "" {
		return key, nil
	}

	key, err := keyring.Get(ServiceName, KeyName)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("failed to retrieve key from keyring: %w", err)
	}
	if key == "" {
		return "", ErrKeyNotFound
	}
	return key, nil
}

// SetKey stores the key in the OS keyring
func (k *chainKeyring) SetKey(password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}
	if err := keyring.Set(ServiceName, KeyName, password); err != nil {
		return fmt.Errorf("failed to store key in keyring (set %s instead): %w", EnvKey, err)
	}
	return nil
}

func (k *chainKeyring) DeleteKey() error {
	err := keyring.Delete(ServiceName, KeyName)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete key from keyring: %w", err)
	}
	return nil
}

// IsAvailable reports whether a key can be stored or read
func (k *chainKeyring) IsAvailable() bool {
	if os.Getenv(EnvKey) != "" {
		return true
	}
	testKey := "__billsink_availability_test__"
	if err := keyring.Set(ServiceName, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(ServiceName, testKey)
	return true
}
