package dto

import (
	"strings"

	"github.com/hongminglow/onboard-be/internal/http/respond"
	"github.com/hongminglow/onboard-be/internal/models"
)

type PhoneRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type PhoneOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

// UserRef accepts the user id under either key.
type UserRef struct {
	UserID     string `json:"userId"`
	Identifier string `json:"identifier"`
}

func (u UserRef) ID() string {
	if id := strings.TrimSpace(u.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(u.Identifier)
}

type EmailRequest struct {
	UserRef
	Email string `json:"email"`
}

type EmailOTPRequest struct {
	UserRef
	OTP string `json:"otp"`
}

type LoginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type PhoneInitiatedResponse struct {
	respond.Envelope
	OTP string `json:"otp,omitempty"`
}

type PhoneVerifiedResponse struct {
	respond.Envelope
	UserID string `json:"userId"`
}

type SessionResponse struct {
	respond.Envelope
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}
