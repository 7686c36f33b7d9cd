package keyring

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/habitcoach/internal/constants"
)

var (
	// ErrNotFound is returned when no secret is stored under the name
	ErrNotFound = errors.New("secret not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
	// ErrUnknownSecret is returned for names outside Names
	ErrUnknownSecret = errors.New("unknown secret name")
)

// Names lists the secrets habitcoach keeps in the OS keyring.
var Names = []string{
	constants.KeyringPostgresDSN,
	constants.KeyringLLMAPIKey,
	constants.KeyringFirebaseAuth,
}

// Known reports whether name is one of Names.
func Known(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// Get retrieves the secret stored under name.
// Returns ErrNotFound if nothing is stored.
func Get(name string) (string, error) {
	if !Known(name) {
		return "", fmt.Errorf("%w: %s", ErrUnknownSecret, name)
	}
	v, err := keyring.Get(constants.AppName, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return v, nil
}

// Set stores value under name.
func Set(name, value string) error {
	if !Known(name) {
		return fmt.Errorf("%w: %s", ErrUnknownSecret, name)
	}
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if err := keyring.Set(constants.AppName, name, value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", name, err)
	}
	return nil
}

// Delete removes the secret stored under name.
func Delete(name string) error {
	if !Known(name) {
		return fmt.Errorf("%w: %s", ErrUnknownSecret, name)
	}
	if err := keyring.Delete(constants.AppName, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", name, err)
	}
	return nil
}

// Resolve returns the environment variable env when set, otherwise the
// keyring secret name. It returns "" with a nil error when neither holds a
// value, and only fails when the keyring itself is unusable.
func Resolve(env, name string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	v, err := Get(name)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// IsAvailable checks if the OS keyring is available on the current system.
// This is a best-effort check and may not catch all failure scenarios.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
