package storage

import (
	"context"
	"errors"

	"github.com/hongminglow/onboard-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// Patch is an unvalidated partial update applied during the OTP steps.
// Nil/false fields are left untouched; flags only ever move to true.
type Patch struct {
	Email             *string
	OTP               *models.OTP
	ClearOTP          bool
	MarkPhoneVerified bool
	MarkEmailVerified bool
}

// UserStore captures persistence operations needed by the registration flow.
//
// UpdatePartial writes without record validation. SaveProfile validates the
// full record, persists every profile field and marks the profile complete.
type UserStore interface {
	UpsertPhoneOTP(ctx context.Context, phoneNumber string, otp models.OTP) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByPhone(ctx context.Context, phoneNumber string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	UpdatePartial(ctx context.Context, id string, patch Patch) error
	SaveProfile(ctx context.Context, user models.User) (models.User, error)
}
