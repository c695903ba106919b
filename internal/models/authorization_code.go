package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/F3-Nation/f3-nation-auth/internal/crypto"
	"github.com/F3-Nation/f3-nation-auth/internal/security"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

// AuthorizationCode is a one-time credential linking a completed /authorize
// round trip to the token exchange that redeems it.
type AuthorizationCode struct {
	ID   uuid.UUID `json:"-" db:"id"`
	Code string    `json:"-" db:"code"`

	ClientID    string `json:"client_id" db:"client_id"`
	UserID      string `json:"user_id" db:"user_id"`
	RedirectURI string `json:"redirect_uri" db:"redirect_uri"`
	Scopes      string `json:"scopes" db:"scopes"`

	CodeChallenge       *string `json:"-" db:"code_challenge"`
	CodeChallengeMethod *string `json:"-" db:"code_challenge_method"`

	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (AuthorizationCode) TableName() string {
	return "oauth_authorization_codes"
}

func (a *AuthorizationCode) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// GetScopes returns the granted scopes as a slice
func (a *AuthorizationCode) GetScopes() []string {
	if a.Scopes == "" {
		return []string{}
	}
	return strings.Split(a.Scopes, " ")
}

// HasPKCE reports whether the authorization request pinned a code challenge.
func (a *AuthorizationCode) HasPKCE() bool {
	return a.CodeChallenge != nil && *a.CodeChallenge != ""
}

// NewAuthorizationCode mints a code for a completed authorization.
// challenge and method are empty for non-PKCE requests.
func NewAuthorizationCode(client *OAuthClient, userID, redirectURI string, scopes []string, challenge, method string, expiryDuration time.Duration) (*AuthorizationCode, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "error generating unique id")
	}

	authCode := &AuthorizationCode{
		ID:          id,
		Code:        crypto.SecureToken(32),
		ClientID:    client.ID,
		UserID:      userID,
		RedirectURI: redirectURI,
		Scopes:      strings.Join(scopes, " "),
		ExpiresAt:   time.Now().Add(expiryDuration),
	}

	if challenge != "" {
		if _, err := ParseCodeChallengeMethod(method); err != nil {
			return nil, err
		}
		authCode.CodeChallenge = &challenge
		authCode.CodeChallengeMethod = &method
	}

	return authCode, nil
}

// ParseCodeChallengeMethod normalizes a code_challenge_method parameter.
func ParseCodeChallengeMethod(method string) (string, error) {
	switch strings.ToLower(method) {
	case "s256":
		return "s256", nil
	case "plain":
		return "plain", nil
	}
	return "", fmt.Errorf("unsupported code_challenge_method %q", method)
}

// CreateAuthorizationCode persists a freshly minted code, sweeping expired
// codes in the same transaction so the table cannot grow unbounded.
func CreateAuthorizationCode(conn *storage.Connection, authCode *AuthorizationCode) error {
	return conn.Transaction(func(tx *storage.Connection) error {
		if err := tx.RawQuery(
			fmt.Sprintf("DELETE FROM %q WHERE expires_at < now()", authCode.TableName())).Exec(); err != nil {
			return errors.Wrap(err, "error cleaning up expired authorization codes")
		}

		authCode.CreatedAt = time.Now()
		return errors.Wrap(tx.Create(authCode), "error creating authorization code")
	})
}

// RedeemAuthorizationCode atomically exchanges a code. The row is locked for
// the duration of the transaction so concurrent redemptions serialize and
// exactly one wins. PKCE is verified before the row is deleted; a failed
// verifier leaves the code intact for a retry with the right one.
func RedeemAuthorizationCode(conn *storage.Connection, code, clientID, redirectURI, codeVerifier string) (*AuthorizationCode, error) {
	authCode := &AuthorizationCode{}

	err := conn.Transaction(func(tx *storage.Connection) error {
		if err := tx.RawQuery(
			fmt.Sprintf("SELECT * FROM %q WHERE code = ? LIMIT 1 FOR UPDATE", authCode.TableName()),
			code).First(authCode); err != nil {
			if errors.Cause(err) == sql.ErrNoRows {
				return AuthorizationCodeNotFoundError{}
			}
			return errors.Wrap(err, "error finding authorization code")
		}

		// an expired code is useless to everyone; sweep it on sight,
		// committing the delete even though the redemption fails
		if authCode.IsExpired() {
			if err := tx.Destroy(authCode); err != nil {
				return errors.Wrap(err, "error deleting expired authorization code")
			}
			return storage.NewCommitWithError(AuthorizationCodeNotFoundError{})
		}

		if authCode.ClientID != clientID || authCode.RedirectURI != redirectURI {
			return AuthorizationCodeNotFoundError{}
		}

		if authCode.HasPKCE() {
			if codeVerifier == "" {
				return InvalidCodeVerifierError{Message: "code verifier is required for this authorization code"}
			}
			if err := security.VerifyPKCEChallenge(*authCode.CodeChallenge, *authCode.CodeChallengeMethod, codeVerifier); err != nil {
				return InvalidCodeVerifierError{Message: err.Error()}
			}
		} else if codeVerifier != "" {
			return InvalidCodeVerifierError{Message: "code verifier was provided but no code challenge was registered"}
		}

		return errors.Wrap(tx.Destroy(authCode), "error consuming authorization code")
	})
	if err != nil {
		return nil, err
	}

	return authCode, nil
}
