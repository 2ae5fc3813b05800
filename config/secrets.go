package config

import (
	"fmt"

	"github.com/99designs/keyring"
)

// Secrets looks up a stored credential.
type Secrets interface {
	Get(service, key string) (string, error)
}

// OSKeyring reads credentials from the platform keyring: Keychain on macOS,
// Secret Service on Linux, Credential Manager on Windows, or pass.
type OSKeyring struct{}

// Get returns the secret stored under key for service.
func (OSKeyring) Get(service, key string) (string, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
		},
		KeychainTrustApplication: true,
	})
	if err != nil {
		return "", fmt.Errorf("opening keyring: %w", err)
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}
