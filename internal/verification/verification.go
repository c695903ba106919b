// Package verification issues and checks short-lived email sign-in codes.
// The Provider port keeps the delivery/storage strategy swappable without
// touching the HTTP handlers.
package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/mailer"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

// ErrSendRateLimited is returned by SendCode when the per-address send
// quota is exhausted.
var ErrSendRateLimited = errors.New("verification: too many codes sent to this address")

// Provider sends verification codes and checks submitted ones.
type Provider interface {
	// SendCode generates a fresh code for the email and delivers it. The
	// callbackURL, when non-empty, is embedded as a magic link carrying the
	// code.
	SendCode(ctx context.Context, email, callbackURL string) error

	// VerifyCode checks a submitted code. With consume false the code stays
	// usable, so callers can pre-check before committing to a sign-in.
	VerifyCode(ctx context.Context, email, code string, consume bool) (bool, error)
}

// NewProvider selects the configured provider implementation.
func NewProvider(globalConfig *conf.GlobalConfiguration, db *storage.Connection, m mailer.Mailer) (Provider, error) {
	switch globalConfig.Verification.Provider {
	case "store":
		return NewStoreProvider(globalConfig, db, m), nil
	case "memory":
		return NewMemoryProvider(globalConfig), nil
	default:
		return nil, fmt.Errorf("unknown verification provider %q", globalConfig.Verification.Provider)
	}
}
