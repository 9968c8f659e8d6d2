package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hongminglow/onboard-be/internal/http/respond"
	"github.com/hongminglow/onboard-be/internal/media"
	"github.com/hongminglow/onboard-be/internal/models"
	"github.com/hongminglow/onboard-be/internal/models/dto"
	"github.com/hongminglow/onboard-be/internal/registration"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = media.MaxSelfieBytes + 1<<20
)

// AuthHandler owns the registration steps and login.
type AuthHandler struct {
	svc       *registration.Service
	exposeOTP bool
	log       *zap.Logger
}

// NewAuthHandler constructs the handler. exposeOTP controls whether the phone
// code is echoed back in the initiate response.
func NewAuthHandler(svc *registration.Service, exposeOTP bool, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{svc: svc, exposeOTP: exposeOTP, log: log}
}

// Register attaches auth routes to the router.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/initiate-phone-verification", h.handleInitiatePhone)
	r.Post("/verify-phone-otp", h.handleVerifyPhone)
	r.Post("/initiate-email-verification", h.handleInitiateEmail)
	r.Post("/verify-email-otp", h.handleVerifyEmail)
	r.Post("/complete-profile", h.handleCompleteProfile)
	r.Post("/login", h.handleLogin)
}

func (h *AuthHandler) handleInitiatePhone(w http.ResponseWriter, r *http.Request) {
	var req dto.PhoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	challenge, err := h.svc.InitiatePhoneVerification(r.Context(), req.PhoneNumber)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := dto.PhoneInitiatedResponse{Envelope: respond.OK("OTP sent successfully")}
	if h.exposeOTP {
		resp.OTP = challenge.Code
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) handleVerifyPhone(w http.ResponseWriter, r *http.Request) {
	var req dto.PhoneOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.svc.VerifyPhoneOTP(r.Context(), req.PhoneNumber, req.OTP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.PhoneVerifiedResponse{
		Envelope: respond.OK("Phone verified successfully"),
		UserID:   user.ID,
	})
}

func (h *AuthHandler) handleInitiateEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.InitiateEmailVerification(r.Context(), req.ID(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK("OTP sent to email successfully"))
}

func (h *AuthHandler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.VerifyEmailOTP(r.Context(), req.ID(), req.OTP); err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK("Email verified successfully"))
}

func (h *AuthHandler) handleCompleteProfile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(media.MaxSelfieBytes); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			respond.Error(w, http.StatusBadRequest, "failed to parse form data", err.Error())
			return
		}
		if err := r.ParseForm(); err != nil {
			respond.Error(w, http.StatusBadRequest, "failed to parse form data", err.Error())
			return
		}
	}

	var selfie io.Reader
	file, header, err := r.FormFile("selfie")
	switch {
	case err == nil:
		defer file.Close()
		if header.Size > media.MaxSelfieBytes {
			respond.Error(w, http.StatusBadRequest, "Selfie must be at most 5MB", "")
			return
		}
		selfie = file
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		respond.Error(w, http.StatusBadRequest, "failed to read selfie", err.Error())
		return
	}

	in := registration.ProfileInput{
		UserID:        formValue(r, "userId", "identifier"),
		Role:          formValue(r, "role"),
		FirstName:     formValue(r, "firstName"),
		MiddleName:    formValue(r, "middleName"),
		LastName:      formValue(r, "lastName"),
		DateOfBirth:   formValue(r, "dateOfBirth"),
		Gender:        formValue(r, "gender"),
		Password:      r.FormValue("password"),
		IsLegalToWork: formBool(r, "isLegalToWork"),
		Address: models.Address{
			Country:         formValue(r, "address[country]", "country"),
			State:           formValue(r, "address[state]", "state"),
			LocalGovernment: formValue(r, "address[localGovernment]", "localGovernment"),
			CurrentAddress:  formValue(r, "address[currentAddress]", "currentAddress"),
		},
		IdentityType:   formValue(r, "verification[identityType]", "identityType"),
		IdentityNumber: formValue(r, "verification[identityNumber]", "identityNumber"),
	}

	session, err := h.svc.CompleteProfile(r.Context(), in, selfie)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.SessionResponse{
		Envelope: respond.OK("Profile completed successfully"),
		Token:    session.Token,
		User:     session.User,
	})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.svc.Login(r.Context(), registration.Credentials{
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, dto.SessionResponse{
		Envelope: respond.OK("Login successful"),
		Token:    session.Token,
		User:     session.User,
	})
}

func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var flowErr *registration.Error
	if !errors.As(err, &flowErr) {
		h.log.Error("unclassified error", zap.String("path", r.URL.Path), zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "internal server error", "")
		return
	}

	status := statusFor(flowErr.Kind)
	detail := ""
	switch flowErr.Kind {
	case registration.KindUpstream:
		if flowErr.Err != nil {
			detail = flowErr.Err.Error()
		}
		h.log.Error("upstream failure", zap.String("path", r.URL.Path), zap.Error(err))
	case registration.KindInternal:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	default:
		h.log.Debug("request rejected", zap.String("path", r.URL.Path), zap.Stringer("kind", flowErr.Kind))
	}
	respond.Error(w, status, flowErr.Message, detail)
}

func statusFor(kind registration.Kind) int {
	switch kind {
	case registration.KindValidation, registration.KindInvalidOTP, registration.KindOTPExpired:
		return http.StatusBadRequest
	case registration.KindInvalidCredentials:
		return http.StatusUnauthorized
	case registration.KindPrecondition:
		return http.StatusForbidden
	case registration.KindNotFound:
		return http.StatusNotFound
	case registration.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload", "")
		return false
	}
	return true
}

func formValue(r *http.Request, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(r.FormValue(key)); v != "" {
			return v
		}
	}
	return ""
}

func formBool(r *http.Request, key string) *bool {
	b, err := strconv.ParseBool(strings.TrimSpace(r.FormValue(key)))
	if err != nil {
		return nil
	}
	return &b
}
