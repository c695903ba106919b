package models

import (
	"database/sql"
	"strings"
	"time"

	"github.com/gobuffalo/pop/v6"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

// User is the resource owner. Accounts are created by the web frontend; this
// service reads them for claims and updates them when an email change
// completes.
type User struct {
	ID    string  `json:"id" db:"id"`
	Name  *string `json:"name" db:"name"`
	Email string  `json:"email" db:"email"`
	// EmailVerifiedAt is set once the address has been proven via a
	// verification code.
	EmailVerifiedAt *time.Time `json:"email_verified_at" db:"email_verified"`
	Picture         *string    `json:"picture" db:"image"`

	F3Name              *string `json:"f3_name" db:"f3_name"`
	HospitalName        *string `json:"hospital_name" db:"hospital_name"`
	OnboardingCompleted bool    `json:"onboarding_completed" db:"onboarding_completed"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeSave(tx *pop.Connection) error {
	u.UpdatedAt = time.Now()
	return nil
}

// IsEmailVerified reports whether the user's current address was verified.
func (u *User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// DisplayName prefers the F3 name over the given name.
func (u *User) DisplayName() string {
	if u.F3Name != nil && *u.F3Name != "" {
		return *u.F3Name
	}
	if u.Name != nil {
		return *u.Name
	}
	return ""
}

// FindUserByID finds a user matching the provided ID.
func FindUserByID(tx *storage.Connection, id string) (*User, error) {
	user := &User{}
	if err := tx.Q().Where("id = ?", id).First(user); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, UserNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding user")
	}
	return user, nil
}

// FindUserByEmail finds a user with the matching email, case-insensitively.
func FindUserByEmail(tx *storage.Connection, email string) (*User, error) {
	user := &User{}
	if err := tx.Q().Where("lower(email) = ?", strings.ToLower(email)).First(user); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, UserNotFoundError{}
		}
		return nil, errors.Wrap(err, "error finding user")
	}
	return user, nil
}

// FindOrCreateUserByEmail returns the account for a verified address,
// creating one on first sign-in. Either way email_verified is stamped,
// since the caller has just proven control of the address.
func FindOrCreateUserByEmail(conn *storage.Connection, email string) (*User, error) {
	email = strings.ToLower(email)

	var user *User
	err := conn.Transaction(func(tx *storage.Connection) error {
		existing, terr := FindUserByEmail(tx, email)
		if terr == nil {
			now := time.Now()
			existing.EmailVerifiedAt = &now
			if terr := tx.UpdateOnly(existing, "email_verified"); terr != nil {
				return errors.Wrap(terr, "error updating user verification")
			}
			user = existing
			return nil
		}
		if !IsNotFoundError(terr) {
			return terr
		}

		// New accounts start with the address local part as the F3 name and
		// finish onboarding later.
		f3Name := email
		if at := strings.Index(email, "@"); at > 0 {
			f3Name = email[:at]
		}
		now := time.Now()
		created := &User{
			ID:              uuid.Must(uuid.NewV4()).String(),
			Name:            &f3Name,
			F3Name:          &f3Name,
			Email:           email,
			EmailVerifiedAt: &now,
			CreatedAt:       now,
		}
		if terr := tx.Create(created); terr != nil {
			return errors.Wrap(terr, "error creating user")
		}
		user = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// IsEmailTaken reports whether another account already uses the address.
func IsEmailTaken(tx *storage.Connection, email, excludeUserID string) (bool, error) {
	count, err := tx.Q().
		Where("lower(email) = ? AND id != ?", strings.ToLower(email), excludeUserID).
		Count(&User{})
	if err != nil {
		return false, errors.Wrap(err, "error checking email uniqueness")
	}
	return count > 0, nil
}
