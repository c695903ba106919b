package cmd

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/F3-Nation/f3-nation-auth/internal/models"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

var (
	clientName          string
	clientRedirectURIs  []string
	clientScopes        string
	clientAllowedOrigin string
	clientPublic        bool
)

func adminCmd() *cobra.Command {
	adminCmd := &cobra.Command{
		Use: "admin",
	}

	clientsCmd := &cobra.Command{
		Use: "clients",
	}
	clientsCmd.AddCommand(&adminCreateClientCmd)

	adminCreateClientCmd.Flags().StringVar(&clientName, "name", "", "Human readable client name")
	adminCreateClientCmd.Flags().StringArrayVar(&clientRedirectURIs, "redirect-uri", nil, "Registered redirect URI (repeatable)")
	adminCreateClientCmd.Flags().StringVar(&clientScopes, "scopes", "openid,profile,email", "Comma separated scopes the client may request")
	adminCreateClientCmd.Flags().StringVar(&clientAllowedOrigin, "allowed-origin", "", "Origin allowed for browser calls")
	adminCreateClientCmd.Flags().BoolVar(&clientPublic, "public", false, "Create a public client (no secret, PKCE required)")

	adminCmd.AddCommand(clientsCmd)
	return adminCmd
}

var adminCreateClientCmd = cobra.Command{
	Use: "create",
	Run: func(cmd *cobra.Command, args []string) {
		adminCreateClient()
	},
}

func adminCreateClient() {
	config := loadGlobalConfig()

	if clientName == "" || len(clientRedirectURIs) == 0 {
		logrus.Fatal("Both --name and at least one --redirect-uri are required")
	}

	db, err := storage.Dial(config)
	if err != nil {
		logrus.Fatalf("Error opening database: %+v", err)
	}
	defer db.Close()

	clientID, clientSecret := models.GenerateClientCredentials()

	client := &models.OAuthClient{
		ID:            clientID,
		Name:          clientName,
		AllowedOrigin: clientAllowedOrigin,
		IsActive:      true,
	}
	client.SetRedirectURIs(clientRedirectURIs)
	client.SetScopes(strings.Split(clientScopes, ","))

	if !clientPublic {
		client.ClientSecretHash = models.HashClientSecret(clientSecret)
	}

	if err := models.RegisterOAuthClient(db, client); err != nil {
		logrus.Fatalf("Error registering OAuth client: %+v", err)
	}

	fmt.Printf("client_id: %s\n", clientID)
	if clientPublic {
		fmt.Println("client_secret: (public client, none)")
	} else {
		// the hash is what gets stored; this is the only time the secret is
		// visible
		fmt.Printf("client_secret: %s\n", clientSecret)
	}
}
