package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// User is the registrant record. The registration stage is implied by the
// verification flags; OTP is non-nil only while a verification step is pending.
type User struct {
	ID            string       `json:"id"`
	Role          string       `json:"role,omitempty" validate:"required,oneof=customer service_provider"`
	FirstName     string       `json:"firstName,omitempty" validate:"required" label:"first name"`
	MiddleName    string       `json:"middleName,omitempty"`
	LastName      string       `json:"lastName,omitempty" validate:"required" label:"last name"`
	DateOfBirth   string       `json:"dateOfBirth,omitempty" validate:"required" label:"date of birth"`
	Gender        string       `json:"gender,omitempty" validate:"required,oneof=male female"`
	IsLegalToWork *bool        `json:"isLegalToWork,omitempty" validate:"required" label:"legal to work status"`
	PhoneNumber   string       `json:"phoneNumber"`
	Email         string       `json:"email,omitempty" validate:"required,email"`
	PasswordHash  string       `json:"-" validate:"required" label:"password"`
	Address       Address      `json:"address"`
	Verification  Verification `json:"verification"`

	IsPhoneVerified   bool `json:"isPhoneVerified"`
	IsEmailVerified   bool `json:"isEmailVerified"`
	IsProfileComplete bool `json:"isProfileComplete"`

	OTP *OTP `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Address struct {
	Country         string `json:"country,omitempty" validate:"required"`
	State           string `json:"state,omitempty" validate:"required"`
	LocalGovernment string `json:"localGovernment,omitempty" validate:"required" label:"local government"`
	CurrentAddress  string `json:"currentAddress,omitempty" validate:"required" label:"current address"`
}

type Verification struct {
	IdentityType   string `json:"identityType,omitempty" validate:"required,oneof=NIN international_passport drivers_license" label:"identity type"`
	IdentityNumber string `json:"identityNumber,omitempty" validate:"required" label:"identity number"`
	SelfieURL      string `json:"selfiePath,omitempty" validate:"required" label:"selfie"`
}

// OTP is a pending one-time code.
type OTP struct {
	Code      string
	ExpiresAt time.Time
}

// Expired reports whether the code can no longer be redeemed at now.
func (o OTP) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// PublicUser is the projection returned to clients after login or profile
// completion.
type PublicUser struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

// Public strips credentials and pending codes from the record.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		PhoneNumber: u.PhoneNumber,
		Email:       u.Email,
		Role:        u.Role,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
	}
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidationError lists every field that failed record validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, ", ")
}

// Validate checks the record as a completed profile.
func (u User) Validate() error {
	if problems := describe(validate.Struct(u), nil); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ProfileProblems lists problems with the user-supplied profile fields,
// leaving out the password hash and selfie URL, which are derived.
func (u User) ProfileProblems() []string {
	return describe(validate.Struct(u), func(fe validator.FieldError) bool {
		return fe.StructNamespace() == "User.PasswordHash" || fe.StructNamespace() == "User.Verification.SelfieURL"
	})
}
