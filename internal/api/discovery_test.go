package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
)

func TestOpenIDConfiguration(t *testing.T) {
	config, err := conf.LoadGlobal(apiTestConfig)
	require.NoError(t, err)

	api := &API{config: config, version: apiTestVersion}

	req := httptest.NewRequest(http.MethodGet, "http://localhost/.well-known/openid_configuration", nil)
	w := httptest.NewRecorder()
	require.NoError(t, api.OpenIDConfiguration(w, req))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))

	base := config.API.ExternalURL
	assert.Equal(t, config.JWT.Issuer, doc["issuer"])
	assert.Equal(t, base+"/authorize", doc["authorization_endpoint"])
	assert.Equal(t, base+"/token", doc["token_endpoint"])
	assert.Equal(t, base+"/userinfo", doc["userinfo_endpoint"])
	assert.Equal(t, base+"/.well-known/jwks.json", doc["jwks_uri"])

	// protocol constants OIDC clients match on byte for byte
	assert.ElementsMatch(t, []interface{}{"openid", "profile", "email"}, doc["scopes_supported"])
	assert.Equal(t, []interface{}{"code"}, doc["response_types_supported"])
	assert.ElementsMatch(t, []interface{}{"authorization_code", "refresh_token"}, doc["grant_types_supported"])
	assert.ElementsMatch(t, []interface{}{"S256", "plain"}, doc["code_challenge_methods_supported"])
	assert.ElementsMatch(t, []interface{}{"client_secret_post", "client_secret_basic"}, doc["token_endpoint_auth_methods_supported"])
	assert.ElementsMatch(t, []interface{}{"sub", "name", "email", "email_verified", "picture"}, doc["claims_supported"])
}
