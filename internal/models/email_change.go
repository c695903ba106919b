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

// EmailChangeSide names one half of the dual confirmation.
type EmailChangeSide string

const (
	EmailChangeSideOld EmailChangeSide = "old"
	EmailChangeSideNew EmailChangeSide = "new"
)

// Error codes surfaced to clients of the email change workflow. These are
// stable API identifiers, not prose.
const (
	EmailChangeErrorNotFound    = "NOT_FOUND"
	EmailChangeErrorExpired     = "EXPIRED"
	EmailChangeErrorMaxAttempts = "MAX_ATTEMPTS"
	EmailChangeErrorInvalidCode = "INVALID_CODE"
	EmailChangeErrorEmailInUse  = "EMAIL_IN_USE"
)

// EmailChangeRequest tracks a dual-sided account email change. Both the
// current and the prospective address receive an independent code; the
// account flips only once both sides have proven control.
type EmailChangeRequest struct {
	ID     uuid.UUID `json:"id" db:"id"`
	UserID string    `json:"user_id" db:"user_id"`

	CurrentEmail string `json:"current_email" db:"current_email"`
	NewEmail     string `json:"new_email" db:"new_email"`

	OldCodeHash      string     `json:"-" db:"old_code_hash"`
	NewCodeHash      string     `json:"-" db:"new_code_hash"`
	OldEmailVerified bool       `json:"old_email_verified" db:"old_email_verified"`
	NewEmailVerified bool       `json:"new_email_verified" db:"new_email_verified"`
	OldVerifiedAt    *time.Time `json:"old_verified_at" db:"old_verified_at"`
	NewVerifiedAt    *time.Time `json:"new_verified_at" db:"new_verified_at"`
	OldAttemptCount  int        `json:"-" db:"old_attempt_count"`
	NewAttemptCount  int        `json:"-" db:"new_attempt_count"`

	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

func (EmailChangeRequest) TableName() string {
	return "email_change_requests"
}

func (r *EmailChangeRequest) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

func (r *EmailChangeRequest) IsComplete() bool {
	return r.CompletedAt != nil
}

// EmailChangeVerifyResult reports the outcome of verifying one side.
type EmailChangeVerifyResult struct {
	Success          bool   `json:"success"`
	OldEmailVerified bool   `json:"oldEmailVerified"`
	NewEmailVerified bool   `json:"newEmailVerified"`
	Complete         bool   `json:"complete"`
	ErrorCode        string `json:"error,omitempty"`
	Message          string `json:"message,omitempty"`
}

// EmailChangeCodes carries the plaintext codes for dispatch. They are never
// persisted.
type EmailChangeCodes struct {
	OldCode string
	NewCode string
}

// CreateEmailChangeRequest starts a change from the user's current address
// to newEmail. A prior unfinished request is discarded so a user only ever
// has one in flight, and globally expired requests are swept along the way.
// Preconditions (address syntax, uniqueness, rate limits) are the caller's
// business.
func CreateEmailChangeRequest(conn *storage.Connection, user *User, newEmail string, expiryDuration time.Duration) (*EmailChangeRequest, *EmailChangeCodes, error) {
	oldCode, err := crypto.GenerateOtp()
	if err != nil {
		return nil, nil, err
	}
	newCode, err := crypto.GenerateOtp()
	if err != nil {
		return nil, nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, nil, errors.Wrap(err, "error generating unique id")
	}

	currentEmail := strings.ToLower(user.Email)
	newEmail = strings.ToLower(newEmail)

	request := &EmailChangeRequest{
		ID:           id,
		UserID:       user.ID,
		CurrentEmail: currentEmail,
		NewEmail:     newEmail,
		OldCodeHash:  crypto.GenerateCodeHash(currentEmail, oldCode),
		NewCodeHash:  crypto.GenerateCodeHash(newEmail, newCode),
		ExpiresAt:    time.Now().Add(expiryDuration),
		CreatedAt:    time.Now(),
	}

	err = conn.Transaction(func(tx *storage.Connection) error {
		if terr := tx.RawQuery(
			fmt.Sprintf("DELETE FROM %q WHERE expires_at < now() AND completed_at IS NULL", request.TableName())).Exec(); terr != nil {
			return errors.Wrap(terr, "error cleaning up expired email change requests")
		}
		if terr := tx.RawQuery(
			fmt.Sprintf("DELETE FROM %q WHERE user_id = ? AND completed_at IS NULL", request.TableName()),
			user.ID).Exec(); terr != nil {
			return errors.Wrap(terr, "error discarding prior email change request")
		}
		return errors.Wrap(tx.Create(request), "error creating email change request")
	})
	if err != nil {
		return nil, nil, err
	}

	return request, &EmailChangeCodes{OldCode: oldCode, NewCode: newCode}, nil
}

// GetPendingEmailChange returns the user's latest unfinished, unexpired
// request.
func GetPendingEmailChange(tx *storage.Connection, userID string) (*EmailChangeRequest, error) {
	request := &EmailChangeRequest{}
	if err := tx.Q().
		Where("user_id = ? AND completed_at IS NULL AND expires_at > now()", userID).
		Order("created_at desc").
		First(request); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, EmailChangeNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding email change request")
	}
	return request, nil
}

// CountRecentEmailChangeRequests counts requests a user started since the
// given time, completed or not. Feeds the initiation rate limit.
func CountRecentEmailChangeRequests(tx *storage.Connection, userID string, since time.Time) (int, error) {
	count, err := tx.Q().
		Where("user_id = ? AND created_at > ?", userID, since).
		Count(&EmailChangeRequest{})
	if err != nil {
		return 0, errors.Wrap(err, "error counting email change requests")
	}
	return count, nil
}

// VerifyEmailChangeSide runs one side of the confirmation state machine for
// the request owned by userID. Attempt counters and verified flags always
// commit, even when the overall outcome is a failure, so retries see the
// machine's true state. When the submitted code completes the second side,
// the account email flips inside the same transaction.
func VerifyEmailChangeSide(conn *storage.Connection, requestID uuid.UUID, userID string, side EmailChangeSide, code string, maxAttempts int) (*EmailChangeVerifyResult, error) {
	result := &EmailChangeVerifyResult{}

	err := conn.Transaction(func(tx *storage.Connection) error {
		request := &EmailChangeRequest{}
		if terr := tx.RawQuery(
			fmt.Sprintf("SELECT * FROM %q WHERE id = ? AND user_id = ? AND completed_at IS NULL LIMIT 1 FOR UPDATE", request.TableName()),
			requestID, userID).First(request); terr != nil {
			if errors.Cause(terr) == sql.ErrNoRows {
				result.ErrorCode = EmailChangeErrorNotFound
				result.Message = "No pending email change request"
				return nil
			}
			return errors.Wrap(terr, "error finding email change request")
		}

		result.OldEmailVerified = request.OldEmailVerified
		result.NewEmailVerified = request.NewEmailVerified

		if request.IsExpired() {
			result.ErrorCode = EmailChangeErrorExpired
			result.Message = "Email change request has expired"
			return nil
		}

		sideVerified, email, codeHash, attempts := request.sideState(side)

		// re-verifying an already confirmed side is a no-op success; it
		// also retries completion in case the first attempt hit a taken
		// address that has since freed up
		if !sideVerified {
			if attempts >= maxAttempts {
				result.ErrorCode = EmailChangeErrorMaxAttempts
				result.Message = "Too many failed attempts"
				return nil
			}

			if !crypto.SecureEquals(crypto.GenerateCodeHash(email, code), codeHash) {
				request.bumpAttempts(side)
				result.ErrorCode = EmailChangeErrorInvalidCode
				result.Message = "Invalid verification code"
				return errors.Wrap(
					tx.UpdateColumns(request, "old_attempt_count", "new_attempt_count"),
					"error recording failed email change attempt")
			}

			request.markVerified(side)
			if terr := tx.UpdateColumns(request,
				"old_email_verified", "new_email_verified",
				"old_verified_at", "new_verified_at"); terr != nil {
				return errors.Wrap(terr, "error recording email change verification")
			}

			result.OldEmailVerified = request.OldEmailVerified
			result.NewEmailVerified = request.NewEmailVerified
		}

		result.Success = true

		if request.OldEmailVerified && request.NewEmailVerified {
			return completeEmailChange(tx, request, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// completeEmailChange flips the account email once both sides are verified.
// The uniqueness of the new address is re-checked here because another
// account may have claimed it while the request was pending; in that case
// the verified flags stand but the request stays incomplete.
func completeEmailChange(tx *storage.Connection, request *EmailChangeRequest, result *EmailChangeVerifyResult) error {
	taken, err := IsEmailTaken(tx, request.NewEmail, request.UserID)
	if err != nil {
		return err
	}
	if taken {
		result.Success = false
		result.ErrorCode = EmailChangeErrorEmailInUse
		result.Message = "The new email address is already in use"
		return nil
	}

	user, err := FindUserByID(tx, request.UserID)
	if err != nil {
		return err
	}

	now := time.Now()
	user.Email = request.NewEmail
	user.EmailVerifiedAt = &now
	if err := tx.UpdateOnly(user, "email", "email_verified"); err != nil {
		return errors.Wrap(err, "error updating account email")
	}

	request.CompletedAt = &now
	if err := tx.UpdateColumns(request, "completed_at"); err != nil {
		return errors.Wrap(err, "error completing email change request")
	}

	result.Complete = true
	return nil
}

// ResendEmailChangeCodes regenerates codes for the targeted, still
// unverified sides and resets their attempt counters. Verified sides are
// left untouched. The returned codes are empty for sides that were not
// regenerated.
func ResendEmailChangeCodes(conn *storage.Connection, request *EmailChangeRequest, resendOld, resendNew bool) (*EmailChangeCodes, error) {
	codes := &EmailChangeCodes{}

	err := conn.Transaction(func(tx *storage.Connection) error {
		cols := []string{}

		if resendOld && !request.OldEmailVerified {
			code, terr := crypto.GenerateOtp()
			if terr != nil {
				return terr
			}
			codes.OldCode = code
			request.OldCodeHash = crypto.GenerateCodeHash(request.CurrentEmail, code)
			request.OldAttemptCount = 0
			cols = append(cols, "old_code_hash", "old_attempt_count")
		}

		if resendNew && !request.NewEmailVerified {
			code, terr := crypto.GenerateOtp()
			if terr != nil {
				return terr
			}
			codes.NewCode = code
			request.NewCodeHash = crypto.GenerateCodeHash(request.NewEmail, code)
			request.NewAttemptCount = 0
			cols = append(cols, "new_code_hash", "new_attempt_count")
		}

		if len(cols) == 0 {
			return nil
		}
		return errors.Wrap(tx.UpdateColumns(request, cols...),
			"error storing regenerated email change codes")
	})
	if err != nil {
		return nil, err
	}

	return codes, nil
}

// FindEmailChangeRequest loads an unfinished request by id, scoped to its
// owner.
func FindEmailChangeRequest(tx *storage.Connection, requestID uuid.UUID, userID string) (*EmailChangeRequest, error) {
	request := &EmailChangeRequest{}
	if err := tx.Q().
		Where("id = ? AND user_id = ? AND completed_at IS NULL", requestID, userID).
		First(request); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, EmailChangeNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding email change request")
	}
	return request, nil
}

// CancelEmailChange discards an unfinished request owned by userID.
func CancelEmailChange(conn *storage.Connection, requestID uuid.UUID, userID string) error {
	return conn.Transaction(func(tx *storage.Connection) error {
		request, err := FindEmailChangeRequest(tx, requestID, userID)
		if err != nil {
			return err
		}
		return errors.Wrap(tx.Destroy(request), "error cancelling email change request")
	})
}

func (r *EmailChangeRequest) sideState(side EmailChangeSide) (verified bool, email, codeHash string, attempts int) {
	if side == EmailChangeSideOld {
		return r.OldEmailVerified, r.CurrentEmail, r.OldCodeHash, r.OldAttemptCount
	}
	return r.NewEmailVerified, r.NewEmail, r.NewCodeHash, r.NewAttemptCount
}

func (r *EmailChangeRequest) bumpAttempts(side EmailChangeSide) {
	if side == EmailChangeSideOld {
		r.OldAttemptCount++
	} else {
		r.NewAttemptCount++
	}
}

func (r *EmailChangeRequest) markVerified(side EmailChangeSide) {
	now := time.Now()
	if side == EmailChangeSideOld {
		r.OldEmailVerified = true
		r.OldVerifiedAt = &now
	} else {
		r.NewEmailVerified = true
		r.NewVerifiedAt = &now
	}
}
