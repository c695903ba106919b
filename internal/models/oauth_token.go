package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/F3-Nation/f3-nation-auth/internal/crypto"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

// AccessToken is an opaque bearer credential for the userinfo endpoint.
type AccessToken struct {
	ID    uuid.UUID `json:"-" db:"id"`
	Token string    `json:"-" db:"token"`

	ClientID string `json:"client_id" db:"client_id"`
	UserID   string `json:"user_id" db:"user_id"`
	Scopes   string `json:"scopes" db:"scopes"`

	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (AccessToken) TableName() string {
	return "oauth_access_tokens"
}

func (t *AccessToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// GetScopes returns the granted scopes as a slice
func (t *AccessToken) GetScopes() []string {
	if t.Scopes == "" {
		return []string{}
	}
	return strings.Split(t.Scopes, " ")
}

// HasScope reports whether the token was granted the named scope.
func (t *AccessToken) HasScope(scope string) bool {
	for _, s := range t.GetScopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// RefreshToken pairs with exactly one access token and is rotated on use.
type RefreshToken struct {
	ID    uuid.UUID `json:"-" db:"id"`
	Token string    `json:"-" db:"token"`

	// AccessToken is the opaque token string of the paired access token.
	AccessToken string `json:"-" db:"access_token"`
	ClientID    string `json:"client_id" db:"client_id"`
	UserID      string `json:"user_id" db:"user_id"`

	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (RefreshToken) TableName() string {
	return "oauth_refresh_tokens"
}

func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// TokenPair is what a successful grant hands back to the token endpoint.
type TokenPair struct {
	AccessToken  *AccessToken
	RefreshToken *RefreshToken
}

// GrantTokenPair mints a linked access and refresh token within one
// transaction, sweeping expired tokens while it holds the connection.
func GrantTokenPair(conn *storage.Connection, clientID, userID string, scopes []string, accessExp, refreshExp time.Duration) (*TokenPair, error) {
	pair := &TokenPair{}

	err := conn.Transaction(func(tx *storage.Connection) error {
		if err := cleanupExpiredTokens(tx); err != nil {
			return err
		}
		var terr error
		pair, terr = grantTokenPair(tx, clientID, userID, scopes, accessExp, refreshExp)
		return terr
	})
	if err != nil {
		return nil, err
	}

	return pair, nil
}

func grantTokenPair(tx *storage.Connection, clientID, userID string, scopes []string, accessExp, refreshExp time.Duration) (*TokenPair, error) {
	accessID, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "error generating unique id")
	}
	refreshID, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "error generating unique id")
	}

	now := time.Now()
	accessToken := &AccessToken{
		ID:        accessID,
		Token:     crypto.SecureToken(32),
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    strings.Join(scopes, " "),
		ExpiresAt: now.Add(accessExp),
		CreatedAt: now,
	}
	refreshToken := &RefreshToken{
		ID:          refreshID,
		Token:       crypto.SecureToken(32),
		AccessToken: accessToken.Token,
		ClientID:    clientID,
		UserID:      userID,
		ExpiresAt:   now.Add(refreshExp),
		CreatedAt:   now,
	}

	if err := tx.Create(accessToken); err != nil {
		return nil, errors.Wrap(err, "error creating access token")
	}
	if err := tx.Create(refreshToken); err != nil {
		return nil, errors.Wrap(err, "error creating refresh token")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// FindAccessToken looks up a live access token by its opaque value.
func FindAccessToken(tx *storage.Connection, token string) (*AccessToken, error) {
	accessToken := &AccessToken{}
	if err := tx.Q().Where("token = ?", token).First(accessToken); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, AccessTokenNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding access token")
	}
	if accessToken.IsExpired() {
		return nil, AccessTokenNotFoundError{}
	}
	return accessToken, nil
}

// RotateRefreshToken atomically swaps a refresh token for a new token pair.
// The old pair is deleted inside the same transaction that mints the new
// one, so a replayed refresh token can never produce a second pair.
func RotateRefreshToken(conn *storage.Connection, token, clientID string, accessExp, refreshExp time.Duration) (*TokenPair, error) {
	pair := &TokenPair{}

	err := conn.Transaction(func(tx *storage.Connection) error {
		refreshToken := &RefreshToken{}
		if err := tx.RawQuery(
			fmt.Sprintf("SELECT * FROM %q WHERE token = ? LIMIT 1 FOR UPDATE", refreshToken.TableName()),
			token).First(refreshToken); err != nil {
			if errors.Cause(err) == sql.ErrNoRows {
				return RefreshTokenNotFoundError{}
			}
			return errors.Wrap(err, "error finding refresh token")
		}

		if refreshToken.ClientID != clientID {
			return RefreshTokenNotFoundError{}
		}

		if refreshToken.IsExpired() {
			if err := tx.Destroy(refreshToken); err != nil {
				return errors.Wrap(err, "error deleting expired refresh token")
			}
			return storage.NewCommitWithError(RefreshTokenNotFoundError{})
		}

		// scopes carry over from the paired access token
		accessToken := &AccessToken{}
		if err := tx.Q().Where("token = ?", refreshToken.AccessToken).First(accessToken); err != nil {
			if errors.Cause(err) == sql.ErrNoRows {
				// the pair is broken; the refresh token is useless
				if terr := tx.Destroy(refreshToken); terr != nil {
					return errors.Wrap(terr, "error deleting orphaned refresh token")
				}
				return storage.NewCommitWithError(RefreshTokenNotFoundError{})
			}
			return errors.Wrap(err, "error finding paired access token")
		}

		if err := tx.Destroy(refreshToken); err != nil {
			return errors.Wrap(err, "error revoking refresh token")
		}
		if err := tx.Destroy(accessToken); err != nil {
			return errors.Wrap(err, "error revoking access token")
		}

		var terr error
		pair, terr = grantTokenPair(tx, refreshToken.ClientID, refreshToken.UserID, accessToken.GetScopes(), accessExp, refreshExp)
		return terr
	})
	if err != nil {
		return nil, err
	}

	return pair, nil
}

func cleanupExpiredTokens(tx *storage.Connection) error {
	if err := tx.RawQuery(
		fmt.Sprintf("DELETE FROM %q WHERE expires_at < now()", RefreshToken{}.TableName())).Exec(); err != nil {
		return errors.Wrap(err, "error cleaning up expired refresh tokens")
	}
	// an expired access token row must survive while a refresh token still
	// references it, since rotation reads scopes from the pair
	if err := tx.RawQuery(
		fmt.Sprintf("DELETE FROM %q WHERE expires_at < now() AND token NOT IN (SELECT access_token FROM %q)",
			AccessToken{}.TableName(), RefreshToken{}.TableName())).Exec(); err != nil {
		return errors.Wrap(err, "error cleaning up expired access tokens")
	}
	return nil
}
