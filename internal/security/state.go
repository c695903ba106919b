package security

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/F3-Nation/f3-nation-auth/internal/crypto"
)

// AuthorizationState is the opaque blob round-tripped through the OAuth
// state parameter. It binds a CSRF token minted at /authorize to the
// eventual callback, and optionally carries the client and the post-login
// return target. The blob is not signed; tampering is caught because the
// CSRF token must match the value stored server side.
type AuthorizationState struct {
	CSRFToken string `json:"csrfToken"`
	ClientID  string `json:"clientId,omitempty"`
	ReturnTo  string `json:"returnTo,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// GenerateCSRFToken mints the random token embedded in a new state blob.
func GenerateCSRFToken() string {
	return crypto.SecureToken(16)
}

// NewAuthorizationState builds a state blob stamped with the current time.
func NewAuthorizationState(clientID, returnTo string) *AuthorizationState {
	return &AuthorizationState{
		CSRFToken: GenerateCSRFToken(),
		ClientID:  clientID,
		ReturnTo:  returnTo,
		Timestamp: time.Now().UnixMilli(),
	}
}

// EncodeState serializes a state blob to unpadded base64url JSON.
func EncodeState(state *AuthorizationState) string {
	b, err := json.Marshal(state)
	if err != nil {
		panic(err) // the struct has no unmarshalable fields
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeState parses a state blob. Any malformed input fails closed, as does
// a structurally valid blob missing its CSRF token.
func DecodeState(encoded string) (*AuthorizationState, error) {
	if encoded == "" {
		return nil, errors.New("state parameter is empty")
	}
	// accept padded input from clients that round-trip through std encoders
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		if b, err = base64.URLEncoding.DecodeString(encoded); err != nil {
			return nil, errors.New("state parameter is not valid base64url")
		}
	}

	var state AuthorizationState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, errors.New("state parameter is not valid JSON")
	}
	if state.CSRFToken == "" {
		return nil, errors.New("state parameter is missing its CSRF token")
	}
	return &state, nil
}
