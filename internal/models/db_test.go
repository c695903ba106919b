package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/crypto"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
	"github.com/F3-Nation/f3-nation-auth/internal/storage/test"
)

const modelsTestConfig = "../../hack/test.env"

// connectTestDB loads the test configuration and dials the test database,
// skipping the caller when no database is reachable so the pure-logic tests
// in this package still run everywhere.
func connectTestDB(t *testing.T) (*storage.Connection, *conf.GlobalConfiguration) {
	t.Helper()

	globalConfig, err := conf.LoadGlobal(modelsTestConfig)
	require.NoError(t, err)

	conn, err := test.SetupDBConnection(globalConfig)
	if err != nil {
		t.Skipf("test database is not available: %v", err)
	}

	return conn, globalConfig
}

func createTestUser(t *testing.T, conn *storage.Connection, id, email string) *User {
	t.Helper()

	name := "Test User"
	user := &User{
		ID:    id,
		Name:  &name,
		Email: email,
	}
	require.NoError(t, conn.Create(user))
	return user
}

func createTestClient(t *testing.T, conn *storage.Connection, secret string) *OAuthClient {
	t.Helper()

	client := &OAuthClient{
		ID:       "client-" + crypto.SecureToken(8),
		Name:     "Test App",
		IsActive: true,
	}
	client.SetRedirectURIs([]string{"https://app.example.com/callback"})
	client.SetScopes([]string{"openid", "profile", "email"})
	if secret != "" {
		client.ClientSecretHash = HashClientSecret(secret)
	}
	require.NoError(t, RegisterOAuthClient(conn, client))
	return client
}
