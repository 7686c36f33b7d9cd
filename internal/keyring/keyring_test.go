package keyring

import (
	"errors"
	"testing"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/habitcoach/internal/constants"
)

func TestSetAndGet(t *testing.T) {
	gokeyring.MockInit()

	for _, name := range Names {
		if err := Set(name, "secret-"+name); err != nil {
			t.Fatalf("Set(%s) failed: %v", name, err)
		}
		got, err := Get(name)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", name, err)
		}
		if got != "secret-"+name {
			t.Errorf("Get(%s) = %q", name, got)
		}
	}
}

func TestSetEmpty(t *testing.T) {
	gokeyring.MockInit()

	if err := Set(constants.KeyringLLMAPIKey, ""); err == nil {
		t.Error("Set with empty value should return an error")
	}
}

func TestUnknownName(t *testing.T) {
	gokeyring.MockInit()

	if _, err := Get("nope"); !errors.Is(err, ErrUnknownSecret) {
		t.Errorf("Get error = %v, want ErrUnknownSecret", err)
	}
	if err := Set("nope", "x"); !errors.Is(err, ErrUnknownSecret) {
		t.Errorf("Set error = %v, want ErrUnknownSecret", err)
	}
	if err := Delete("nope"); !errors.Is(err, ErrUnknownSecret) {
		t.Errorf("Delete error = %v, want ErrUnknownSecret", err)
	}
}

func TestDelete(t *testing.T) {
	gokeyring.MockInit()

	if err := Set(constants.KeyringPostgresDSN, "postgres://u@localhost/db"); err != nil {
		t.Fatal(err)
	}
	if err := Delete(constants.KeyringPostgresDSN); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := Get(constants.KeyringPostgresDSN); err != ErrNotFound {
		t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
	}
	if err := Delete(constants.KeyringPostgresDSN); err != ErrNotFound {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestResolve(t *testing.T) {
	gokeyring.MockInit()
	_ = Delete(constants.KeyringLLMAPIKey)

	t.Setenv(constants.EnvLLMAPIKey, "")
	got, err := Resolve(constants.EnvLLMAPIKey, constants.KeyringLLMAPIKey)
	if err != nil || got != "" {
		t.Errorf("Resolve with nothing set = %q, %v", got, err)
	}

	if err := Set(constants.KeyringLLMAPIKey, "from-keyring"); err != nil {
		t.Fatal(err)
	}
	got, _ = Resolve(constants.EnvLLMAPIKey, constants.KeyringLLMAPIKey)
	if got != "from-keyring" {
		t.Errorf("Resolve = %q, want keyring value", got)
	}

	t.Setenv(constants.EnvLLMAPIKey, "from-env")
	got, _ = Resolve(constants.EnvLLMAPIKey, constants.KeyringLLMAPIKey)
	if got != "from-env" {
		t.Errorf("Resolve = %q, want env value", got)
	}
}

func TestIsAvailable(t *testing.T) {
	gokeyring.MockInit()

	if !IsAvailable() {
		t.Error("IsAvailable() = false, want true in mock mode")
	}
}
