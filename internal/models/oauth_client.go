package models

import (
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gobuffalo/pop/v6"
	"github.com/pkg/errors"

	"github.com/F3-Nation/f3-nation-auth/internal/crypto"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

// OAuthClient is a registered client application. Clients without a secret
// hash are public and must use PKCE; clients with one are confidential.
type OAuthClient struct {
	ID               string `json:"client_id" db:"id"`
	Name             string `json:"name" db:"name"`
	ClientSecretHash string `json:"-" db:"client_secret_hash"`

	RedirectURIs string `json:"-" db:"redirect_uris"`
	// AllowedOrigin is reflected into CORS headers for browser clients.
	AllowedOrigin string `json:"allowed_origin,omitempty" db:"allowed_origin"`
	Scopes        string `json:"scopes" db:"scopes"`
	IsActive      bool   `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (OAuthClient) TableName() string {
	return "oauth_clients"
}

func (c *OAuthClient) BeforeSave(tx *pop.Connection) error {
	c.UpdatedAt = time.Now()
	return nil
}

// Validate performs basic validation on the OAuth client
func (c *OAuthClient) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}

	if c.Name == "" {
		return fmt.Errorf("name is required")
	}

	if c.RedirectURIs == "" {
		return fmt.Errorf("at least one redirect_uri is required")
	}

	for _, uri := range c.GetRedirectURIs() {
		if err := validateRedirectURI(uri); err != nil {
			return InvalidRedirectURIError{URI: uri, Reason: err.Error()}
		}
	}

	return nil
}

// GetRedirectURIs returns the redirect URIs as a slice
func (c *OAuthClient) GetRedirectURIs() []string {
	if c.RedirectURIs == "" {
		return []string{}
	}
	return strings.Split(c.RedirectURIs, ",")
}

// SetRedirectURIs sets the redirect URIs from a slice
func (c *OAuthClient) SetRedirectURIs(uris []string) {
	c.RedirectURIs = strings.Join(uris, ",")
}

// GetScopes returns the granted scopes as a slice
func (c *OAuthClient) GetScopes() []string {
	if c.Scopes == "" {
		return []string{}
	}
	return strings.Split(c.Scopes, " ")
}

// SetScopes sets the granted scopes from a slice
func (c *OAuthClient) SetScopes(scopes []string) {
	c.Scopes = strings.Join(scopes, " ")
}

// IsPublic returns true if the client authenticates with PKCE only
func (c *OAuthClient) IsPublic() bool {
	return c.ClientSecretHash == ""
}

// ValidateRedirectURI reports whether uri exactly matches one of the
// client's registered redirect URIs. No prefix or pattern matching.
func (c *OAuthClient) ValidateRedirectURI(uri string) bool {
	for _, registered := range c.GetRedirectURIs() {
		if strings.TrimSpace(registered) == uri {
			return true
		}
	}
	return false
}

// ValidateScopes reports whether every requested scope was granted to the
// client at registration time.
func (c *OAuthClient) ValidateScopes(requested []string) bool {
	granted := make(map[string]bool)
	for _, scope := range c.GetScopes() {
		granted[scope] = true
	}
	for _, scope := range requested {
		if !granted[scope] {
			return false
		}
	}
	return true
}

// ValidateClientSecret checks a plaintext secret in constant time.
func (c *OAuthClient) ValidateClientSecret(secret string) bool {
	if c.ClientSecretHash == "" {
		return false
	}
	return crypto.SecureEquals(HashClientSecret(secret), c.ClientSecretHash)
}

// HashClientSecret returns the stored form of a client secret.
func HashClientSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateClientCredentials mints a client id and plaintext secret. The
// secret is shown once at registration and only its hash is kept.
func GenerateClientCredentials() (clientID, clientSecret string) {
	return crypto.SecureToken(16), crypto.SecureToken(32)
}

// validateRedirectURI validates a single redirect URI
func validateRedirectURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("redirect URI cannot be empty")
	}

	parsedURL, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid URL format: %v", err)
	}

	if parsedURL.Scheme == "" {
		return fmt.Errorf("redirect URI must be absolute (include scheme)")
	}

	if parsedURL.Fragment != "" {
		return fmt.Errorf("redirect URI must not contain fragment")
	}

	// Allow localhost for development, otherwise require HTTPS
	if parsedURL.Scheme == "http" {
		if parsedURL.Hostname() != "localhost" && parsedURL.Hostname() != "127.0.0.1" {
			return fmt.Errorf("redirect URI must use HTTPS except for localhost")
		}
	} else if parsedURL.Scheme != "https" {
		return fmt.Errorf("redirect URI must use HTTPS or HTTP for localhost")
	}

	return nil
}

type InvalidRedirectURIError struct {
	URI    string
	Reason string
}

func (e InvalidRedirectURIError) Error() string {
	return fmt.Sprintf("invalid redirect URI %q: %s", e.URI, e.Reason)
}

// FindOAuthClientByID finds an active OAuth client by ID. Deactivated
// clients are indistinguishable from missing ones.
func FindOAuthClientByID(tx *storage.Connection, id string) (*OAuthClient, error) {
	client := &OAuthClient{}
	if err := tx.Q().Where("id = ? AND is_active = true", id).First(client); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, OAuthClientNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding OAuth client")
	}
	return client, nil
}

// AuthenticateOAuthClient authenticates a client for the token endpoint.
// Public clients present no secret; confidential clients must present the
// right one. Every failure mode collapses into not-found so callers leak
// nothing about which part failed.
func AuthenticateOAuthClient(tx *storage.Connection, clientID, clientSecret string) (*OAuthClient, error) {
	client, err := FindOAuthClientByID(tx, clientID)
	if err != nil {
		return nil, err
	}

	if client.IsPublic() {
		if clientSecret != "" {
			return nil, OAuthClientNotFoundError{}
		}
		return client, nil
	}

	if !client.ValidateClientSecret(clientSecret) {
		return nil, OAuthClientNotFoundError{}
	}
	return client, nil
}

// FindClientOrigins returns the distinct origins registered by active
// clients, for reflection into CORS headers.
func FindClientOrigins(tx *storage.Connection) ([]string, error) {
	clients := []OAuthClient{}
	if err := tx.Q().Where("allowed_origin != '' AND is_active = true").All(&clients); err != nil {
		return nil, errors.Wrap(err, "error loading client origins")
	}

	seen := make(map[string]bool)
	var origins []string
	for _, client := range clients {
		if !seen[client.AllowedOrigin] {
			seen[client.AllowedOrigin] = true
			origins = append(origins, client.AllowedOrigin)
		}
	}
	return origins, nil
}

// RegisterOAuthClient creates a new OAuth client in the database
func RegisterOAuthClient(tx *storage.Connection, client *OAuthClient) error {
	if err := client.Validate(); err != nil {
		return err
	}

	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now

	return errors.Wrap(tx.Create(client), "error registering OAuth client")
}
