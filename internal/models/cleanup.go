package models

import (
	"fmt"
	"sync/atomic"

	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

// Cleanup removes stale rows piecemeal. There is no background scheduler;
// the API calls Clean on a sample of requests, so each invocation must be
// quick and must never contend with live transactions.
type Cleanup struct {
	cleanupStatements []string

	// cleanupNext holds an atomically incrementing value that determines which of
	// the cleanupStatements will be run next.
	cleanupNext uint32
}

func NewCleanup() *Cleanup {
	tableAuthorizationCodes := AuthorizationCode{}.TableName()
	tableAccessTokens := AccessToken{}.TableName()
	tableRefreshTokens := RefreshToken{}.TableName()
	tableEmailCodes := EmailCode{}.TableName()
	tableEmailChanges := EmailChangeRequest{}.TableName()

	c := &Cleanup{}

	// These statements intentionally use SELECT ... FOR UPDATE SKIP LOCKED
	// as this makes sure that only rows that are not being used in another
	// transaction are deleted. These deletes are thus very quick and
	// efficient, as they don't wait on other transactions.
	c.cleanupStatements = append(c.cleanupStatements,
		fmt.Sprintf("delete from %q where id in (select id from %q where expires_at < now() limit 100 for update skip locked);", tableAuthorizationCodes, tableAuthorizationCodes),
		fmt.Sprintf("delete from %q where id in (select id from %q where expires_at < now() limit 100 for update skip locked);", tableRefreshTokens, tableRefreshTokens),
		fmt.Sprintf("delete from %q where id in (select id from %q where expires_at < now() and token not in (select access_token from %q) limit 100 for update skip locked);", tableAccessTokens, tableAccessTokens, tableRefreshTokens),
		fmt.Sprintf("delete from %q where id in (select id from %q where consumed_at is not null or expires_at < now() limit 100 for update skip locked);", tableEmailCodes, tableEmailCodes),
		fmt.Sprintf("delete from %q where id in (select id from %q where completed_at is null and expires_at < now() limit 100 for update skip locked);", tableEmailChanges, tableEmailChanges),
		// completed requests stay around a month as an audit trail
		fmt.Sprintf("delete from %q where id in (select id from %q where completed_at < now() - interval '30 days' limit 100 for update skip locked);", tableEmailChanges, tableEmailChanges),
	)

	return c
}

// Clean runs the next statement in the rotation and reports affected rows.
func (c *Cleanup) Clean(db *storage.Connection) (int, error) {
	affectedRows := 0

	if err := db.Transaction(func(tx *storage.Connection) error {
		nextIndex := atomic.AddUint32(&c.cleanupNext, 1) % uint32(len(c.cleanupStatements))
		statement := c.cleanupStatements[nextIndex]

		count, terr := tx.RawQuery(statement).ExecWithCount()
		if terr != nil {
			return terr
		}

		affectedRows += count

		return nil
	}); err != nil {
		return affectedRows, err
	}

	return affectedRows, nil
}
