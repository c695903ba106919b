package api

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/F3-Nation/f3-nation-auth/internal/api/apierrors"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
	"github.com/F3-Nation/f3-nation-auth/internal/observability"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

// TokenParams are the form parameters of the token endpoint.
type TokenParams struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
}

// AccessTokenResponse is the OAuth token endpoint success body.
type AccessTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope,omitempty"`
}

func readTokenParams(r *http.Request) (*TokenParams, error) {
	if err := r.ParseForm(); err != nil {
		return nil, oauthError(apierrors.OAuthErrorInvalidRequest, "Could not parse request body").WithInternalError(err)
	}

	params := &TokenParams{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
	}

	// client_secret_basic: credentials in the Authorization header take
	// precedence over the form body
	if username, password, ok := r.BasicAuth(); ok {
		params.ClientID = username
		params.ClientSecret = password
	}

	return params, nil
}

// Token is the OAuth2 token endpoint, handling the authorization_code and
// refresh_token grants.
func (a *API) Token(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	params, err := readTokenParams(r)
	if err != nil {
		return err
	}

	if params.GrantType == "" || params.ClientID == "" {
		return oauthError(apierrors.OAuthErrorInvalidRequest, "Missing required parameters")
	}
	observability.LogEntrySetField(r, "grant_type", params.GrantType)

	db := a.db.WithContext(r.Context())

	client, err := models.AuthenticateOAuthClient(db, params.ClientID, params.ClientSecret)
	if err != nil {
		if models.IsNotFoundError(err) {
			return oauthError(apierrors.OAuthErrorInvalidClient, "Invalid client credentials").WithStatus(http.StatusUnauthorized)
		}
		return internalServerError("Database error authenticating OAuth client").WithInternalError(err)
	}

	switch params.GrantType {
	case "authorization_code":
		return a.tokenAuthorizationCodeGrant(w, r, db, client, params)
	case "refresh_token":
		return a.tokenRefreshGrant(w, r, db, client, params)
	default:
		return oauthError(apierrors.OAuthErrorUnsupportedGrantType, "Grant type not supported")
	}
}

func (a *API) tokenAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request, db *storage.Connection, client *models.OAuthClient, params *TokenParams) error {
	if params.Code == "" || params.RedirectURI == "" {
		return oauthError(apierrors.OAuthErrorInvalidRequest, "Missing code or redirect_uri")
	}

	authCode, err := models.RedeemAuthorizationCode(db, params.Code, client.ID, params.RedirectURI, params.CodeVerifier)
	if err != nil {
		cause := errors.Cause(err)
		if models.IsNotFoundError(cause) {
			return oauthError(apierrors.OAuthErrorInvalidGrant, "Invalid authorization code")
		}
		if models.IsInvalidCodeVerifierError(cause) {
			return oauthError(apierrors.OAuthErrorInvalidGrant, "Invalid code verifier")
		}
		return internalServerError("Database error redeeming authorization code").WithInternalError(err)
	}

	scopes := authCode.GetScopes()
	pair, err := models.GrantTokenPair(db, client.ID, authCode.UserID, scopes, a.config.OAuth.AccessTokenExp, a.config.OAuth.RefreshTokenExp)
	if err != nil {
		observability.GetLogEntry(r).WithError(err).Error("failed to issue token pair")
		return oauthError(apierrors.OAuthErrorServerError, "Internal server error")
	}

	return sendJSON(w, http.StatusOK, AccessTokenResponse{
		AccessToken:  pair.AccessToken.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int(a.config.OAuth.AccessTokenExp.Seconds()),
		RefreshToken: pair.RefreshToken.Token,
		Scope:        strings.Join(scopes, " "),
	})
}

func (a *API) tokenRefreshGrant(w http.ResponseWriter, r *http.Request, db *storage.Connection, client *models.OAuthClient, params *TokenParams) error {
	if params.RefreshToken == "" {
		return oauthError(apierrors.OAuthErrorInvalidRequest, "Missing refresh_token")
	}

	pair, err := models.RotateRefreshToken(db, params.RefreshToken, client.ID, a.config.OAuth.AccessTokenExp, a.config.OAuth.RefreshTokenExp)
	if err != nil {
		if models.IsNotFoundError(errors.Cause(err)) {
			return oauthError(apierrors.OAuthErrorInvalidGrant, "Invalid refresh token")
		}
		return internalServerError("Database error rotating refresh token").WithInternalError(err)
	}

	return sendJSON(w, http.StatusOK, AccessTokenResponse{
		AccessToken:  pair.AccessToken.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int(a.config.OAuth.AccessTokenExp.Seconds()),
		RefreshToken: pair.RefreshToken.Token,
	})
}
