package api

import (
	"net/http"
	"strings"
)

// OpenIDConfigurationResponse is the OIDC discovery document. Field names
// are protocol constants, clients match on them byte for byte.
type OpenIDConfigurationResponse struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// OpenIDConfiguration serves the static discovery document.
func (a *API) OpenIDConfiguration(w http.ResponseWriter, r *http.Request) error {
	baseURL := strings.TrimSuffix(a.config.API.ExternalURL, "/")

	w.Header().Set("Cache-Control", "public, max-age=3600")

	return sendJSON(w, http.StatusOK, OpenIDConfigurationResponse{
		Issuer:                            a.config.JWT.Issuer,
		AuthorizationEndpoint:             baseURL + "/authorize",
		TokenEndpoint:                     baseURL + "/token",
		UserinfoEndpoint:                  baseURL + "/userinfo",
		JWKSURI:                           baseURL + "/.well-known/jwks.json",
		ScopesSupported:                   []string{"openid", "profile", "email"},
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "client_secret_basic"},
		CodeChallengeMethodsSupported:     []string{"S256", "plain"},
		ClaimsSupported:                   []string{"sub", "name", "email", "email_verified", "picture"},
	})
}
