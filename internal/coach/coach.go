// Package coach answers free-form questions about the user's habits. The
// caller supplies a HabitContext snapshot with every message; backends keep
// no state between calls.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	apperr "github.com/julianstephens/habitcoach/internal/errors"
	"github.com/julianstephens/habitcoach/internal/logger"
	"github.com/julianstephens/habitcoach/internal/metrics"
	"github.com/julianstephens/habitcoach/internal/models"
)

// ErrUnavailable is returned when no backend produced a reply.
var ErrUnavailable = errors.New("coach unavailable")

// Backend sends one message with the habit context and returns the reply.
type Backend interface {
	Name() string
	SendMessage(ctx context.Context, hc models.HabitContext, message string) (string, error)
}

func validateMessage(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", apperr.NewValidation("message", "must not be empty")
	}
	return message, nil
}

// Fallback tries each backend in order and returns the first reply.
type Fallback struct {
	backends []Backend
	metrics  *metrics.Metrics
	log      *log.Logger
}

// NewFallback chains backends. m may be nil.
func NewFallback(m *metrics.Metrics, backends ...Backend) *Fallback {
	return &Fallback{backends: backends, metrics: m, log: logger.Component("coach")}
}

func (f *Fallback) Name() string {
	names := make([]string, 0, len(f.backends))
	for _, b := range f.backends {
		names = append(names, b.Name())
	}
	return strings.Join(names, ">")
}

func (f *Fallback) SendMessage(ctx context.Context, hc models.HabitContext, message string) (string, error) {
	message, err := validateMessage(message)
	if err != nil {
		return "", err
	}

	var errs []error
	for _, b := range f.backends {
		reply, err := b.SendMessage(ctx, hc, message)
		f.metrics.Coach(b.Name(), err)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		f.log.Warn("coach backend failed, falling back", "backend", b.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
	}
	return "", fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}
