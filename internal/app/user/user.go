/*
Package user contains core data structures and logic related to user accounts.

It defines the representation of a registered chat participant (the User struct),
used for passing user information both internally and to clients, along with the
input normalization applied at signup and profile updates.
*/
package user

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"dmchat/internal/pkg/errs"
)

const (
	// MinPasswordLength is the minimum accepted password length at signup.
	MinPasswordLength = 6

	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72

	// MaxFullNameLength bounds the display name, in runes.
	MaxFullNameLength = 64

	// MaxBioLength bounds the profile bio, in runes.
	MaxBioLength = 500
)

// User represents a registered chat participant.
// Fields use JSON tags for serialization in HTTP responses and WebSocket messages.
type User struct {

	// ID is the unique identifier for the user (UUID).
	ID string `json:"id"`

	// FullName is the display name of the user.
	FullName string `json:"fullName"`

	// Email is the login identifier, stored lowercased and trimmed.
	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the password; never serialized.
	PasswordHash string `json:"-"`

	// Bio is a short free-form description shown on the profile.
	Bio string `json:"bio"`

	// ProfilePic is the public URL of the avatar image; empty when unset.
	ProfilePic string `json:"profilePic"`

	CreatedAt time.Time `json:"createdAt"`
}

// ProfileUpdate carries optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	FullName *string
	Bio      *string
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateSignup normalizes and checks the signup input, returning the cleaned values.
func ValidateSignup(fullName, email, password, bio string) (string, string, string, *errs.CustomError) {
	fullName = strings.TrimSpace(fullName)
	email = NormalizeEmail(email)
	bio = strings.TrimSpace(bio)

	if fullName == "" || email == "" || password == "" || bio == "" {
		return "", "", "", errs.NewError(errs.ErrMissingDetails)
	}

	if err := validateFullName(fullName); err != nil {
		return "", "", "", err
	}
	if err := validateBio(bio); err != nil {
		return "", "", "", err
	}

	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", "", "", errs.NewError(errs.ErrInvalidEmail)
	}

	if len(password) < MinPasswordLength || len(password) > MaxPasswordBytes {
		return "", "", "", errs.NewError(errs.ErrInvalidPassword, MinPasswordLength, MaxPasswordBytes)
	}

	return fullName, email, bio, nil
}

// Normalize trims the provided fields and rejects an update that changes nothing.
func (u *ProfileUpdate) Normalize() *errs.CustomError {
	if u.FullName != nil {
		trimmed := strings.TrimSpace(*u.FullName)
		if trimmed == "" {
			u.FullName = nil
		} else if err := validateFullName(trimmed); err != nil {
			return err
		} else {
			u.FullName = &trimmed
		}
	}

	if u.Bio != nil {
		trimmed := strings.TrimSpace(*u.Bio)
		if err := validateBio(trimmed); err != nil {
			return err
		}
		u.Bio = &trimmed
	}

	if u.FullName == nil && u.Bio == nil {
		return errs.NewError(errs.ErrNothingToUpdate)
	}
	return nil
}

func validateFullName(name string) *errs.CustomError {
	if utf8.RuneCountInString(name) > MaxFullNameLength {
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}

func validateBio(bio string) *errs.CustomError {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}
