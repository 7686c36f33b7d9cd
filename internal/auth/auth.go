// Package auth supplies the id of the signed-in owner. Sign-in itself
// happens elsewhere; this package only turns stored credentials into an
// owner id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/julianstephens/habitcoach/internal/logger"
)

// ErrSignedOut is returned when no owner can be determined.
var ErrSignedOut = errors.New("not signed in")

// Provider returns the current owner id.
type Provider interface {
	CurrentOwner(ctx context.Context) (string, error)
}

// Static always returns the same owner. It backs the local backends.
type Static string

func (s Static) CurrentOwner(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrSignedOut
	}
	return string(s), nil
}

// TokenVerifier checks a Firebase ID token. *fbauth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// TokenSource returns the raw ID token to verify.
type TokenSource func() (string, error)

// Firebase derives the owner from a verified Firebase ID token. The owner
// id is the token's UID.
type Firebase struct {
	verifier TokenVerifier
	token    TokenSource
}

// FirebaseConfig selects the Firebase project.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// NewFirebase builds a provider backed by the Firebase Admin SDK.
func NewFirebase(ctx context.Context, cfg FirebaseConfig, token TokenSource) (*Firebase, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth: %w", err)
	}
	return NewFirebaseWithVerifier(client, token), nil
}

// NewFirebaseWithVerifier builds a provider around an existing verifier.
func NewFirebaseWithVerifier(v TokenVerifier, token TokenSource) *Firebase {
	return &Firebase{verifier: v, token: token}
}

func (f *Firebase) CurrentOwner(ctx context.Context) (string, error) {
	raw, err := f.token()
	if err != nil {
		return "", fmt.Errorf("failed to read id token: %w", err)
	}
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return "", ErrSignedOut
	}
	tok, err := f.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		logger.Component("auth").Warn("id token rejected", "error", err)
		return "", fmt.Errorf("%w: invalid id token: %v", ErrSignedOut, err)
	}
	if tok.UID == "" {
		return "", fmt.Errorf("%w: token has no uid", ErrSignedOut)
	}
	return tok.UID, nil
}

// A private key for context that only this package can access.
var ownerCtxKey = &contextKey{"owner"}

type contextKey struct {
	name string
}

// WithOwner returns a copy of ctx carrying ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerCtxKey, ownerID)
}

// ForContext returns the owner stored by WithOwner, or "".
func ForContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerCtxKey).(string)
	return owner
}
