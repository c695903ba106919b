package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

func TestOAuthClientValidate(t *testing.T) {
	valid := &OAuthClient{ID: "abc", Name: "App"}
	valid.SetRedirectURIs([]string{"https://app.example.com/callback"})
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*OAuthClient)
	}{
		{"missing id", func(c *OAuthClient) { c.ID = "" }},
		{"missing name", func(c *OAuthClient) { c.Name = "" }},
		{"no redirect uris", func(c *OAuthClient) { c.RedirectURIs = "" }},
		{"relative redirect uri", func(c *OAuthClient) { c.RedirectURIs = "/callback" }},
		{"fragment in redirect uri", func(c *OAuthClient) { c.RedirectURIs = "https://app.example.com/cb#frag" }},
		{"plain http on non-localhost", func(c *OAuthClient) { c.RedirectURIs = "http://app.example.com/cb" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &OAuthClient{ID: "abc", Name: "App"}
			client.SetRedirectURIs([]string{"https://app.example.com/callback"})
			tc.mutate(client)
			assert.Error(t, client.Validate())
		})
	}

	t.Run("http localhost is allowed", func(t *testing.T) {
		client := &OAuthClient{ID: "abc", Name: "App"}
		client.SetRedirectURIs([]string{"http://localhost:3000/callback", "http://127.0.0.1:3000/callback"})
		assert.NoError(t, client.Validate())
	})
}

func TestOAuthClientRedirectURIs(t *testing.T) {
	client := &OAuthClient{}
	client.SetRedirectURIs([]string{"https://a.example.com/cb", "https://b.example.com/cb"})

	assert.True(t, client.ValidateRedirectURI("https://a.example.com/cb"))
	assert.False(t, client.ValidateRedirectURI("https://a.example.com/cb/extra"))
	assert.False(t, client.ValidateRedirectURI("https://a.example.com"))
	assert.False(t, client.ValidateRedirectURI(""))
}

func TestOAuthClientScopes(t *testing.T) {
	client := &OAuthClient{}
	client.SetScopes([]string{"openid", "profile", "email"})

	assert.True(t, client.ValidateScopes([]string{"openid"}))
	assert.True(t, client.ValidateScopes([]string{"openid", "email"}))
	assert.True(t, client.ValidateScopes(nil))
	assert.False(t, client.ValidateScopes([]string{"openid", "admin"}))
}

func TestOAuthClientSecret(t *testing.T) {
	id, secret := GenerateClientCredentials()
	assert.NotEmpty(t, id)
	assert.NotEmpty(t, secret)

	client := &OAuthClient{ClientSecretHash: HashClientSecret(secret)}
	assert.False(t, client.IsPublic())
	assert.True(t, client.ValidateClientSecret(secret))
	assert.False(t, client.ValidateClientSecret("wrong"))
	assert.False(t, client.ValidateClientSecret(""))

	public := &OAuthClient{}
	assert.True(t, public.IsPublic())
	assert.False(t, public.ValidateClientSecret(""))
}

type OAuthClientTestSuite struct {
	suite.Suite
	db     *storage.Connection
	config *conf.GlobalConfiguration
}

func (ts *OAuthClientTestSuite) SetupTest() {
	require.NoError(ts.T(), TruncateAll(ts.db))
}

func TestOAuthClientDB(t *testing.T) {
	conn, globalConfig := connectTestDB(t)

	ts := &OAuthClientTestSuite{
		db:     conn,
		config: globalConfig,
	}
	defer ts.db.Close()

	suite.Run(t, ts)
}

func (ts *OAuthClientTestSuite) TestFindByID() {
	client := createTestClient(ts.T(), ts.db, "")

	found, err := FindOAuthClientByID(ts.db, client.ID)
	require.NoError(ts.T(), err)
	require.Equal(ts.T(), client.ID, found.ID)

	_, err = FindOAuthClientByID(ts.db, "nope")
	require.True(ts.T(), IsNotFoundError(err))
}

func (ts *OAuthClientTestSuite) TestInactiveClientIsInvisible() {
	client := createTestClient(ts.T(), ts.db, "")
	client.IsActive = false
	require.NoError(ts.T(), ts.db.Update(client))

	_, err := FindOAuthClientByID(ts.db, client.ID)
	require.True(ts.T(), IsNotFoundError(err))
}

func (ts *OAuthClientTestSuite) TestAuthenticate() {
	confidential := createTestClient(ts.T(), ts.db, "s3cret")
	public := createTestClient(ts.T(), ts.db, "")

	_, err := AuthenticateOAuthClient(ts.db, confidential.ID, "s3cret")
	require.NoError(ts.T(), err)

	_, err = AuthenticateOAuthClient(ts.db, confidential.ID, "wrong")
	require.True(ts.T(), IsNotFoundError(err))

	_, err = AuthenticateOAuthClient(ts.db, confidential.ID, "")
	require.True(ts.T(), IsNotFoundError(err))

	_, err = AuthenticateOAuthClient(ts.db, public.ID, "")
	require.NoError(ts.T(), err)

	// a public client presenting a secret is suspicious; reject it
	_, err = AuthenticateOAuthClient(ts.db, public.ID, "anything")
	require.True(ts.T(), IsNotFoundError(err))
}

func (ts *OAuthClientTestSuite) TestFindClientOrigins() {
	first := createTestClient(ts.T(), ts.db, "")
	first.AllowedOrigin = "https://app.example.com"
	require.NoError(ts.T(), ts.db.Update(first))

	second := createTestClient(ts.T(), ts.db, "")
	second.AllowedOrigin = "https://app.example.com"
	require.NoError(ts.T(), ts.db.Update(second))

	inactive := createTestClient(ts.T(), ts.db, "")
	inactive.AllowedOrigin = "https://retired.example.com"
	inactive.IsActive = false
	require.NoError(ts.T(), ts.db.Update(inactive))

	// a client without an origin contributes nothing
	createTestClient(ts.T(), ts.db, "")

	origins, err := FindClientOrigins(ts.db)
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), []string{"https://app.example.com"}, origins)
}
