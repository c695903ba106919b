package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/F3-Nation/f3-nation-auth/internal/crypto"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

// EmailCode is a stored six digit sign-in verification code. Only the hash
// of the code survives; the plaintext goes out in the email and nowhere
// else. At most one unconsumed code exists per address.
type EmailCode struct {
	ID       uuid.UUID `json:"-" db:"id"`
	Email    string    `json:"email" db:"email"`
	CodeHash string    `json:"-" db:"code_hash"`

	ExpiresAt    time.Time  `json:"expires_at" db:"expires_at"`
	ConsumedAt   *time.Time `json:"consumed_at" db:"consumed_at"`
	AttemptCount int        `json:"attempt_count" db:"attempt_count"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

func (EmailCode) TableName() string {
	return "email_mfa_codes"
}

func (c *EmailCode) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

func (c *EmailCode) IsConsumed() bool {
	return c.ConsumedAt != nil
}

// CreateEmailCode stores the hash of a freshly generated code. Any earlier
// unconsumed code for the address is removed first, and globally expired
// rows are swept in the same transaction.
func CreateEmailCode(conn *storage.Connection, email string, expiryDuration time.Duration) (*EmailCode, string, error) {
	code, err := crypto.GenerateOtp()
	if err != nil {
		return nil, "", err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, "", errors.Wrap(err, "error generating unique id")
	}

	email = strings.ToLower(email)
	emailCode := &EmailCode{
		ID:        id,
		Email:     email,
		CodeHash:  crypto.GenerateCodeHash(email, code),
		ExpiresAt: time.Now().Add(expiryDuration),
		CreatedAt: time.Now(),
	}

	err = conn.Transaction(func(tx *storage.Connection) error {
		if terr := tx.RawQuery(
			fmt.Sprintf("DELETE FROM %q WHERE expires_at < now()", emailCode.TableName())).Exec(); terr != nil {
			return errors.Wrap(terr, "error cleaning up expired email codes")
		}
		if terr := tx.RawQuery(
			fmt.Sprintf("DELETE FROM %q WHERE email = ? AND consumed_at IS NULL", emailCode.TableName()),
			email).Exec(); terr != nil {
			return errors.Wrap(terr, "error removing superseded email codes")
		}
		return errors.Wrap(tx.Create(emailCode), "error creating email code")
	})
	if err != nil {
		return nil, "", err
	}

	return emailCode, code, nil
}

// VerifyEmailCode checks a submitted code against the latest unconsumed row
// for the address. When consume is false a match leaves the row usable, so
// a caller can test validity before committing to the flow that burns it.
//
// An expired row is marked consumed on sight so it can never resurrect. A
// mismatch bumps the attempt counter; once the counter reaches maxAttempts
// the row stops matching anything.
func VerifyEmailCode(conn *storage.Connection, email, code string, consume bool, maxAttempts int) (bool, error) {
	email = strings.ToLower(email)
	valid := false

	err := conn.Transaction(func(tx *storage.Connection) error {
		emailCode := &EmailCode{}
		if terr := tx.RawQuery(
			fmt.Sprintf("SELECT * FROM %q WHERE email = ? AND consumed_at IS NULL ORDER BY created_at DESC LIMIT 1 FOR UPDATE", emailCode.TableName()),
			email).First(emailCode); terr != nil {
			if errors.Cause(terr) == sql.ErrNoRows {
				return nil
			}
			return errors.Wrap(terr, "error finding email code")
		}

		now := time.Now()

		if emailCode.IsExpired() {
			emailCode.ConsumedAt = &now
			return errors.Wrap(tx.UpdateColumns(emailCode, "consumed_at"),
				"error retiring expired email code")
		}

		if emailCode.AttemptCount >= maxAttempts {
			return nil
		}

		if !crypto.SecureEquals(crypto.GenerateCodeHash(email, code), emailCode.CodeHash) {
			emailCode.AttemptCount++
			return errors.Wrap(tx.UpdateColumns(emailCode, "attempt_count"),
				"error recording failed email code attempt")
		}

		valid = true
		if consume {
			emailCode.ConsumedAt = &now
			return errors.Wrap(tx.UpdateColumns(emailCode, "consumed_at"),
				"error consuming email code")
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return valid, nil
}
