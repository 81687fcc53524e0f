package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const keychainService = "pagebuilder"

// KeychainStore implements Store on the macOS Keychain via the `security`
// CLI tool.
type KeychainStore struct {
	service string
}

func NewKeychainStore() *KeychainStore {
	return &KeychainStore{service: keychainService}
}

// Set stores value under key, replacing any existing entry.
func (k *KeychainStore) Set(key string, value []byte) error {
	cmd := exec.Command("security", "add-generic-password",
		"-a", key,
		"-s", k.service,
		"-w", string(value),
		"-U",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("keychain set: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (k *KeychainStore) Get(key string) ([]byte, error) {
	cmd := exec.Command("security", "find-generic-password",
		"-a", key,
		"-s", k.service,
		"-w",
	)
	out, err := cmd.Output()
	if err != nil {
		// security exits 44 when the item does not exist
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

// Delete removes the secret. Deleting a missing key is not an error.
func (k *KeychainStore) Delete(key string) error {
	cmd := exec.Command("security", "delete-generic-password",
		"-a", key,
		"-s", k.service,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return nil
		}
		return fmt.Errorf("keychain delete: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}
