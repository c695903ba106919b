package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/F3-Nation/f3-nation-auth/internal/api/apierrors"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
	"github.com/F3-Nation/f3-nation-auth/internal/observability"
	"github.com/F3-Nation/f3-nation-auth/internal/security"
)

// AuthorizeParams are the query parameters of the authorize endpoint.
type AuthorizeParams struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

func readAuthorizeParams(r *http.Request) *AuthorizeParams {
	q := r.URL.Query()
	return &AuthorizeParams{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
}

func (p *AuthorizeParams) requestedScopes(defaults []string) []string {
	if p.Scope == "" {
		return defaults
	}
	return strings.Fields(p.Scope)
}

// Authorize implements the authorization-code grant entry point. Errors
// before the redirect_uri has been validated are answered with JSON; once
// the target is known safe, errors redirect back to the client.
func (a *API) Authorize(w http.ResponseWriter, r *http.Request) error {
	params := readAuthorizeParams(r)
	config := a.config

	if params.ResponseType == "" || params.ClientID == "" || params.RedirectURI == "" {
		return oauthError(apierrors.OAuthErrorInvalidRequest, "Missing required parameters")
	}

	if params.ResponseType != "code" {
		return oauthError(apierrors.OAuthErrorUnsupportedResponseType, "Only authorization code flow is supported")
	}

	db := a.db.WithContext(r.Context())
	client, err := models.FindOAuthClientByID(db, params.ClientID)
	if err != nil {
		if models.IsNotFoundError(err) {
			return oauthError(apierrors.OAuthErrorInvalidClient, "Invalid client_id")
		}
		return internalServerError("Database error finding OAuth client").WithInternalError(err)
	}

	// Redirecting to an unvalidated URI is the vulnerability this guards
	// against, so failures up to here never redirect.
	if !client.ValidateRedirectURI(params.RedirectURI) {
		return oauthError(apierrors.OAuthErrorInvalidRequest, "Invalid redirect_uri")
	}

	// From here on params.RedirectURI is the safe redirect target for every
	// error path.
	redirectTarget, err := url.Parse(params.RedirectURI)
	if err != nil {
		return oauthError(apierrors.OAuthErrorInvalidRequest, "Invalid redirect_uri")
	}

	scopes := params.requestedScopes(config.OAuth.DefaultScopes)
	if !client.ValidateScopes(scopes) {
		return a.redirectAuthorizeError(w, r, redirectTarget, params.State, apierrors.OAuthErrorInvalidScope, "Invalid scope requested")
	}

	user := a.maybeUser(r)
	if user == nil {
		return a.redirectToAuthUI(w, r, config.OAuth.LoginPath, params, true)
	}

	if !a.isOnboarded(user) {
		return a.redirectToAuthUI(w, r, config.OAuth.OnboardingPath, params, false)
	}

	if params.State != "" {
		if _, serr := security.DecodeState(params.State); serr != nil {
			observability.GetLogEntry(r).WithError(serr).Info("invalid authorization state parameter")
			return a.redirectAuthorizeError(w, r, redirectTarget, "", apierrors.OAuthErrorInvalidRequest, "Invalid state parameter")
		}
	}

	authCode, err := models.NewAuthorizationCode(client, user.ID, params.RedirectURI, scopes, params.CodeChallenge, params.CodeChallengeMethod, config.OAuth.AuthorizationCodeExp)
	if err != nil {
		return a.redirectAuthorizeError(w, r, redirectTarget, params.State, apierrors.OAuthErrorInvalidRequest, err.Error())
	}
	if err := models.CreateAuthorizationCode(db, authCode); err != nil {
		observability.GetLogEntry(r).WithError(err).Error("failed to create authorization code")
		return a.redirectAuthorizeError(w, r, redirectTarget, params.State, apierrors.OAuthErrorServerError, "Internal server error")
	}

	q := redirectTarget.Query()
	q.Set("code", authCode.Code)
	if params.State != "" {
		q.Set("state", params.State)
	}
	redirectTarget.RawQuery = q.Encode()

	http.Redirect(w, r, redirectTarget.String(), http.StatusFound)
	return nil
}

func (a *API) isOnboarded(user *models.User) bool {
	return user.OnboardingCompleted && user.F3Name != nil && *user.F3Name != "" && user.HospitalName != nil && *user.HospitalName != ""
}

func (a *API) redirectAuthorizeError(w http.ResponseWriter, r *http.Request, target *url.URL, state, errCode, description string) error {
	// copy so repeated error paths never accumulate parameters
	errorURL := *target
	q := errorURL.Query()
	q.Set("error", errCode)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	errorURL.RawQuery = q.Encode()

	http.Redirect(w, r, errorURL.String(), http.StatusFound)
	return nil
}

// redirectToAuthUI sends the resource owner to the login or onboarding page,
// with a callback URL that reproduces this authorize request parameter for
// parameter.
func (a *API) redirectToAuthUI(w http.ResponseWriter, r *http.Request, path string, params *AuthorizeParams, withState bool) error {
	config := a.config

	uiURL, err := url.Parse(config.SiteURL)
	if err != nil {
		return internalServerError("Invalid site URL").WithInternalError(err)
	}
	uiURL.Path = path

	callback, err := url.Parse(config.API.ExternalURL)
	if err != nil {
		return internalServerError("Invalid API external URL").WithInternalError(err)
	}
	callback.Path = r.URL.Path
	callback.RawQuery = r.URL.Query().Encode()

	q := uiURL.Query()
	q.Set("callbackUrl", callback.String())
	if withState {
		state := params.State
		if state == "" {
			state = security.EncodeState(security.NewAuthorizationState(params.ClientID, params.RedirectURI))
		}
		q.Set("state", state)
	}
	uiURL.RawQuery = q.Encode()

	// cross-origin client redirects carry explicit CORS headers so browser
	// initiated flows are not blocked
	if origin := r.Header.Get("Origin"); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}

	http.Redirect(w, r, uiURL.String(), http.StatusFound)
	return nil
}
