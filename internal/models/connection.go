package models

import (
	"github.com/gobuffalo/pop/v6"

	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

// TruncateAll deletes all data from the database tables this service
// manages. Not intended for use outside of tests.
func TruncateAll(conn *storage.Connection) error {
	return conn.Transaction(func(tx *storage.Connection) error {
		tables := []string{
			(&pop.Model{Value: User{}}).TableName(),
			(&pop.Model{Value: OAuthClient{}}).TableName(),
			(&pop.Model{Value: AuthorizationCode{}}).TableName(),
			(&pop.Model{Value: AccessToken{}}).TableName(),
			(&pop.Model{Value: RefreshToken{}}).TableName(),
			(&pop.Model{Value: EmailCode{}}).TableName(),
			(&pop.Model{Value: EmailChangeRequest{}}).TableName(),
		}

		for _, tableName := range tables {
			if err := tx.RawQuery("DELETE FROM " + tableName + " CASCADE").Exec(); err != nil {
				return err
			}
		}

		return nil
	})
}
