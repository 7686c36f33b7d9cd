package cli

import (
	"os"
	"strings"
	"testing"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/habitcoach/internal/config"
	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/logger"
)

func TestNewCoach(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		baseURL string
		want    string
		warning bool
	}{
		{name: "no key", want: "rules"},
		{name: "llm configured", key: "sk-test", baseURL: "https://api.together.xyz/v1", want: "together>rules"},
		{name: "broken base url", key: "sk-test", baseURL: "://missing-scheme", want: "rules", warning: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gokeyring.MockInit()
			t.Setenv(constants.EnvLLMAPIKey, tt.key)
			if err := logger.Init(logger.Config{ConfigDir: t.TempDir()}); err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { logger.Logger = nil })

			cfg := config.Default()
			cfg.LLMBaseURL = tt.baseURL

			if got := newCoach(cfg, nil).Name(); got != tt.want {
				t.Errorf("coach = %q, want %q", got, tt.want)
			}
			data, err := os.ReadFile(logger.Path())
			if err != nil && !os.IsNotExist(err) {
				t.Fatal(err)
			}
			if logged := strings.Contains(string(data), "LLM coach disabled"); logged != tt.warning {
				t.Errorf("warning logged = %v, want %v:\n%s", logged, tt.warning, data)
			}
		})
	}
}
