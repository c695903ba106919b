package api

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

const tokenTestClientSecret = "correct-horse-battery-staple"

type TokenTestSuite struct {
	suite.Suite
	API    *API
	Config *conf.GlobalConfiguration
	Conn   *storage.Connection

	Client *models.OAuthClient
	User   *models.User
}

func TestToken(t *testing.T) {
	api, config, conn := setupAPIForTest(t)
	ts := &TokenTestSuite{API: api, Config: config, Conn: conn}
	suite.Run(t, ts)
}

func (ts *TokenTestSuite) SetupTest() {
	require.NoError(ts.T(), models.TruncateAll(ts.Conn))
	ts.Client = createAPITestClient(ts.T(), ts.Conn, tokenTestClientSecret)
	ts.User = createAPITestUser(ts.T(), ts.Conn, "slider@example.com", true)
}

func (ts *TokenTestSuite) issueCode(challenge, method string) *models.AuthorizationCode {
	authCode, err := models.NewAuthorizationCode(ts.Client, ts.User.ID,
		"https://app.example.com/callback", []string{"openid", "profile", "email"},
		challenge, method, 5*time.Minute)
	require.NoError(ts.T(), err)
	require.NoError(ts.T(), models.CreateAuthorizationCode(ts.Conn, authCode))
	return authCode
}

func (ts *TokenTestSuite) tokenRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "http://localhost/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (ts *TokenTestSuite) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.API.handler.ServeHTTP(w, req)
	return w
}

func (ts *TokenTestSuite) codeGrantForm(code string) url.Values {
	return url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {"https://app.example.com/callback"},
		"client_id":     {ts.Client.ID},
		"client_secret": {tokenTestClientSecret},
	}
}

func (ts *TokenTestSuite) decodeTokens(w *httptest.ResponseRecorder) AccessTokenResponse {
	var resp AccessTokenResponse
	require.NoError(ts.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (ts *TokenTestSuite) TestCodeExchange() {
	authCode := ts.issueCode("", "")

	w := ts.serve(ts.tokenRequest(ts.codeGrantForm(authCode.Code)))

	require.Equal(ts.T(), http.StatusOK, w.Code)
	assert.Equal(ts.T(), "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(ts.T(), "no-cache", w.Header().Get("Pragma"))

	resp := ts.decodeTokens(w)
	assert.Equal(ts.T(), "Bearer", resp.TokenType)
	assert.Equal(ts.T(), "openid profile email", resp.Scope)
	assert.Equal(ts.T(), int(ts.Config.OAuth.AccessTokenExp.Seconds()), resp.ExpiresIn)
	require.NotEmpty(ts.T(), resp.AccessToken)
	require.NotEmpty(ts.T(), resp.RefreshToken)

	token, err := models.FindAccessToken(ts.Conn, resp.AccessToken)
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), ts.User.ID, token.UserID)
}

func (ts *TokenTestSuite) TestCodeIsSingleUse() {
	authCode := ts.issueCode("", "")

	w := ts.serve(ts.tokenRequest(ts.codeGrantForm(authCode.Code)))
	require.Equal(ts.T(), http.StatusOK, w.Code)

	w = ts.serve(ts.tokenRequest(ts.codeGrantForm(authCode.Code)))
	assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
	assert.Equal(ts.T(), "invalid_grant", decodeOAuthErrorBody(ts.T(), w)["error"])
}

func (ts *TokenTestSuite) TestRedirectURIMustMatch() {
	authCode := ts.issueCode("", "")

	form := ts.codeGrantForm(authCode.Code)
	form.Set("redirect_uri", "https://app.example.com/other")
	w := ts.serve(ts.tokenRequest(form))

	assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
	assert.Equal(ts.T(), "invalid_grant", decodeOAuthErrorBody(ts.T(), w)["error"])
}

func (ts *TokenTestSuite) TestPKCE() {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	hashed := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hashed[:])

	ts.Run("wrong verifier rejected, code survives", func() {
		authCode := ts.issueCode(challenge, "s256")

		form := ts.codeGrantForm(authCode.Code)
		form.Set("code_verifier", "not-the-verifier")
		w := ts.serve(ts.tokenRequest(form))

		assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
		assert.Equal(ts.T(), "invalid_grant", decodeOAuthErrorBody(ts.T(), w)["error"])

		form.Set("code_verifier", verifier)
		w = ts.serve(ts.tokenRequest(form))
		assert.Equal(ts.T(), http.StatusOK, w.Code)
	})

	ts.Run("missing verifier rejected", func() {
		authCode := ts.issueCode(challenge, "s256")

		w := ts.serve(ts.tokenRequest(ts.codeGrantForm(authCode.Code)))
		assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
		assert.Equal(ts.T(), "invalid_grant", decodeOAuthErrorBody(ts.T(), w)["error"])
	})

	ts.Run("verifier without challenge rejected", func() {
		authCode := ts.issueCode("", "")

		form := ts.codeGrantForm(authCode.Code)
		form.Set("code_verifier", verifier)
		w := ts.serve(ts.tokenRequest(form))
		assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
	})
}

func (ts *TokenTestSuite) TestRefreshRotation() {
	authCode := ts.issueCode("", "")
	first := ts.decodeTokens(ts.serve(ts.tokenRequest(ts.codeGrantForm(authCode.Code))))

	refreshForm := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {ts.Client.ID},
		"client_secret": {tokenTestClientSecret},
	}
	w := ts.serve(ts.tokenRequest(refreshForm))
	require.Equal(ts.T(), http.StatusOK, w.Code)

	second := ts.decodeTokens(w)
	assert.Empty(ts.T(), second.Scope, "refresh grant does not echo scope")
	assert.NotEqual(ts.T(), first.AccessToken, second.AccessToken)
	assert.NotEqual(ts.T(), first.RefreshToken, second.RefreshToken)

	// rotation revokes the previous pair
	_, err := models.FindAccessToken(ts.Conn, first.AccessToken)
	assert.True(ts.T(), models.IsNotFoundError(err))

	w = ts.serve(ts.tokenRequest(refreshForm))
	assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
	assert.Equal(ts.T(), "invalid_grant", decodeOAuthErrorBody(ts.T(), w)["error"])
}

func (ts *TokenTestSuite) TestClientAuthentication() {
	ts.Run("wrong secret", func() {
		authCode := ts.issueCode("", "")
		form := ts.codeGrantForm(authCode.Code)
		form.Set("client_secret", "wrong")

		w := ts.serve(ts.tokenRequest(form))
		assert.Equal(ts.T(), http.StatusUnauthorized, w.Code)
		assert.Equal(ts.T(), "invalid_client", decodeOAuthErrorBody(ts.T(), w)["error"])
	})

	ts.Run("client_secret_basic", func() {
		authCode := ts.issueCode("", "")
		form := ts.codeGrantForm(authCode.Code)
		form.Del("client_id")
		form.Del("client_secret")

		req := ts.tokenRequest(form)
		req.SetBasicAuth(ts.Client.ID, tokenTestClientSecret)
		w := ts.serve(req)
		assert.Equal(ts.T(), http.StatusOK, w.Code)
	})

	ts.Run("header overrides form credentials", func() {
		authCode := ts.issueCode("", "")
		form := ts.codeGrantForm(authCode.Code)
		form.Set("client_secret", "wrong")

		req := ts.tokenRequest(form)
		req.SetBasicAuth(ts.Client.ID, tokenTestClientSecret)
		w := ts.serve(req)
		assert.Equal(ts.T(), http.StatusOK, w.Code)
	})
}

func (ts *TokenTestSuite) TestUnsupportedGrantType() {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {ts.Client.ID},
		"client_secret": {tokenTestClientSecret},
	}
	w := ts.serve(ts.tokenRequest(form))

	assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
	assert.Equal(ts.T(), "unsupported_grant_type", decodeOAuthErrorBody(ts.T(), w)["error"])
}

func (ts *TokenTestSuite) TestMissingParams() {
	w := ts.serve(ts.tokenRequest(url.Values{}))

	assert.Equal(ts.T(), http.StatusBadRequest, w.Code)
	assert.Equal(ts.T(), "invalid_request", decodeOAuthErrorBody(ts.T(), w)["error"])
}
