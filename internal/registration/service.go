package registration

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/onboard-be/internal/auth"
	"github.com/hongminglow/onboard-be/internal/media"
	"github.com/hongminglow/onboard-be/internal/models"
	"github.com/hongminglow/onboard-be/internal/storage"
)

const (
	minPasswordLength = 8
	// bcrypt rejects longer inputs.
	maxPasswordBytes = 72
)

// Mailer delivers email verification codes.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string, ttl time.Duration) error
}

// ImageUploader stores a selfie and returns its public URL. Rejected images
// are reported with media.ErrInvalidImage.
type ImageUploader interface {
	UploadSelfie(ctx context.Context, userID string, r io.Reader) (string, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Generate(user models.User) (string, error)
}

// Options tunes the OTP protocol.
type Options struct {
	// OTPCode is handed out to every registrant.
	OTPCode string
	OTPTTL  time.Duration
	Now     func() time.Time
}

// Service runs the registration flow and password login against the store.
type Service struct {
	store  storage.UserStore
	mailer Mailer
	images ImageUploader
	tokens TokenIssuer
	otp    string
	otpTTL time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// NewService wires the collaborators together.
func NewService(store storage.UserStore, mailer Mailer, images ImageUploader, tokens TokenIssuer, opts Options, log *zap.Logger) *Service {
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:  store,
		mailer: mailer,
		images: images,
		tokens: tokens,
		otp:    opts.OTPCode,
		otpTTL: opts.OTPTTL,
		now:    opts.Now,
		log:    log,
	}
}

// PhoneChallenge is the pending phone verification created for a number.
type PhoneChallenge struct {
	UserID    string
	Code      string
	ExpiresAt time.Time
}

// ProfileInput carries the fields submitted at profile completion.
type ProfileInput struct {
	UserID         string
	Role           string
	FirstName      string
	MiddleName     string
	LastName       string
	DateOfBirth    string
	Gender         string
	Password       string
	IsLegalToWork  *bool
	Address        models.Address
	IdentityType   string
	IdentityNumber string
}

// Credentials identify a user by phone number or email.
type Credentials struct {
	PhoneNumber string
	Email       string
	Password    string
}

// Session is returned after profile completion and login.
type Session struct {
	Token string
	User  models.PublicUser
}

// InitiatePhoneVerification creates or refreshes the record for phoneNumber
// with a pending code.
func (s *Service) InitiatePhoneVerification(ctx context.Context, phoneNumber string) (PhoneChallenge, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return PhoneChallenge{}, fail(KindValidation, "Phone number is required")
	}

	otp := s.newOTP()
	user, err := s.store.UpsertPhoneOTP(ctx, phoneNumber, otp)
	if err != nil {
		return PhoneChallenge{}, wrap(KindInternal, "Server error during phone verification", err)
	}

	s.log.Info("phone verification initiated", zap.String("user_id", user.ID), zap.Time("expires_at", otp.ExpiresAt))
	return PhoneChallenge{UserID: user.ID, Code: otp.Code, ExpiresAt: otp.ExpiresAt}, nil
}

// VerifyPhoneOTP redeems the pending code for phoneNumber.
func (s *Service) VerifyPhoneOTP(ctx context.Context, phoneNumber, code string) (models.User, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" || strings.TrimSpace(code) == "" {
		return models.User{}, fail(KindValidation, "Phone number and OTP are required")
	}

	user, err := s.store.FindByPhone(ctx, phoneNumber)
	if err != nil {
		return models.User{}, lookupError(err, "Server error during OTP verification")
	}
	if err := s.checkOTP(user, code); err != nil {
		return models.User{}, err
	}

	patch := storage.Patch{MarkPhoneVerified: true, ClearOTP: true}
	if err := s.store.UpdatePartial(ctx, user.ID, patch); err != nil {
		return models.User{}, lookupError(err, "Server error during OTP verification")
	}
	user.IsPhoneVerified = true
	user.OTP = nil

	s.log.Info("phone verified", zap.String("user_id", user.ID))
	return user, nil
}

// InitiateEmailVerification mails a code to email and records both on the
// user. Nothing is persisted when the mail cannot be sent.
func (s *Service) InitiateEmailVerification(ctx context.Context, userID, email string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fail(KindValidation, "User ID is required to initiate email verification.")
	}
	email = models.NormalizeEmail(email)
	if email == "" {
		return fail(KindValidation, "Email is required to initiate email verification.")
	}
	if !models.ValidEmail(email) {
		return fail(KindValidation, "Email address is invalid.")
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return lookupError(err, "Failed to send OTP email")
	}
	if !user.IsPhoneVerified {
		return fail(KindPrecondition, "Phone number must be verified before initiating email verification.")
	}
	owner, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil && owner.ID != user.ID:
		return fail(KindConflict, "Email already registered")
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return wrap(KindInternal, "Failed to send OTP email", err)
	}

	otp := s.newOTP()
	if err := s.mailer.SendOTP(ctx, email, otp.Code, s.otpTTL); err != nil {
		s.log.Error("send otp email", zap.String("user_id", user.ID), zap.Error(err))
		return wrap(KindUpstream, "Failed to send OTP email", err)
	}

	patch := storage.Patch{Email: &email, OTP: &otp}
	if err := s.store.UpdatePartial(ctx, user.ID, patch); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fail(KindConflict, "Email already registered")
		}
		return lookupError(err, "Failed to send OTP email")
	}

	s.log.Info("email verification initiated", zap.String("user_id", user.ID))
	return nil
}

// VerifyEmailOTP redeems the pending email code for userID.
func (s *Service) VerifyEmailOTP(ctx context.Context, userID, code string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fail(KindValidation, "User ID is required to verify email OTP.")
	}
	if strings.TrimSpace(code) == "" {
		return fail(KindValidation, "OTP is required")
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return lookupError(err, "Server error during email verification")
	}
	if !user.IsPhoneVerified || user.Email == "" {
		return fail(KindPrecondition, "Initiate email verification before verifying the email OTP.")
	}
	if err := s.checkOTP(user, code); err != nil {
		return err
	}

	patch := storage.Patch{MarkEmailVerified: true, ClearOTP: true}
	if err := s.store.UpdatePartial(ctx, user.ID, patch); err != nil {
		return lookupError(err, "Server error during email verification")
	}

	s.log.Info("email verified", zap.String("user_id", user.ID))
	return nil
}

// CompleteProfile stores the profile of a fully verified user, uploads the
// selfie and issues a session token.
func (s *Service) CompleteProfile(ctx context.Context, in ProfileInput, selfie io.Reader) (Session, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return Session{}, fail(KindValidation, "User ID is required to complete profile.")
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return Session{}, lookupError(err, "Profile completion failed")
	}
	if !user.IsPhoneVerified || !user.IsEmailVerified {
		return Session{}, fail(KindPrecondition, "Complete verification first")
	}

	candidate := applyProfile(user, in)
	problems := candidate.ProfileProblems()
	switch {
	case in.Password == "":
		problems = append(problems, "password is required")
	case len(in.Password) < minPasswordLength:
		problems = append(problems, "password must be at least 8 characters")
	case len(in.Password) > maxPasswordBytes:
		problems = append(problems, "password must be at most 72 bytes")
	}
	if selfie == nil {
		problems = append(problems, "selfie is required")
	}
	if len(problems) > 0 {
		return Session{}, validationError(&models.ValidationError{Problems: problems})
	}

	url, err := s.images.UploadSelfie(ctx, user.ID, selfie)
	if err != nil {
		if errors.Is(err, media.ErrInvalidImage) {
			return Session{}, wrap(KindValidation, "Selfie upload rejected", err)
		}
		s.log.Error("upload selfie", zap.String("user_id", user.ID), zap.Error(err))
		return Session{}, wrap(KindUpstream, "Profile completion failed", err)
	}
	candidate.Verification.SelfieURL = url

	candidate.PasswordHash, err = auth.HashPassword(in.Password)
	if err != nil {
		return Session{}, wrap(KindInternal, "Profile completion failed", err)
	}

	saved, err := s.store.SaveProfile(ctx, candidate)
	if err != nil {
		var verr *models.ValidationError
		switch {
		case errors.As(err, &verr):
			return Session{}, validationError(verr)
		case errors.Is(err, storage.ErrAlreadyExists):
			return Session{}, fail(KindConflict, "Email already registered")
		default:
			return Session{}, lookupError(err, "Profile completion failed")
		}
	}

	token, err := s.tokens.Generate(saved)
	if err != nil {
		return Session{}, wrap(KindInternal, "Profile completion failed", err)
	}

	s.log.Info("profile completed", zap.String("user_id", saved.ID), zap.String("role", saved.Role))
	return Session{Token: token, User: saved.Public()}, nil
}

// Login authenticates by phone number (preferred) or email. Unknown
// identifiers and wrong passwords produce the same error.
func (s *Service) Login(ctx context.Context, creds Credentials) (Session, error) {
	phone := strings.TrimSpace(creds.PhoneNumber)
	email := models.NormalizeEmail(creds.Email)
	if (phone == "" && email == "") || creds.Password == "" {
		return Session{}, fail(KindValidation, "Either phone number or email, and password are required")
	}

	var (
		user models.User
		err  error
	)
	if phone != "" {
		user, err = s.store.FindByPhone(ctx, phone)
	} else {
		user, err = s.store.FindByEmail(ctx, email)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, fail(KindInvalidCredentials, msgInvalidCredentials)
		}
		return Session{}, wrap(KindInternal, "Server error during login", err)
	}
	if !user.IsProfileComplete {
		return Session{}, fail(KindPrecondition, "Please complete your profile setup first")
	}
	if !auth.CheckPassword(user.PasswordHash, creds.Password) {
		return Session{}, fail(KindInvalidCredentials, msgInvalidCredentials)
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return Session{}, wrap(KindInternal, "Server error during login", err)
	}

	s.log.Info("login succeeded", zap.String("user_id", user.ID))
	return Session{Token: token, User: user.Public()}, nil
}

func (s *Service) newOTP() models.OTP {
	return models.OTP{Code: s.otp, ExpiresAt: s.now().Add(s.otpTTL)}
}

func (s *Service) checkOTP(user models.User, code string) error {
	if user.OTP == nil || subtle.ConstantTimeCompare([]byte(user.OTP.Code), []byte(strings.TrimSpace(code))) != 1 {
		return fail(KindInvalidOTP, msgInvalidOTP)
	}
	if user.OTP.Expired(s.now()) {
		return fail(KindOTPExpired, msgOTPExpired)
	}
	return nil
}

func applyProfile(user models.User, in ProfileInput) models.User {
	user.Role = strings.TrimSpace(in.Role)
	user.FirstName = strings.TrimSpace(in.FirstName)
	user.MiddleName = strings.TrimSpace(in.MiddleName)
	user.LastName = strings.TrimSpace(in.LastName)
	user.DateOfBirth = strings.TrimSpace(in.DateOfBirth)
	user.Gender = strings.ToLower(strings.TrimSpace(in.Gender))
	user.IsLegalToWork = in.IsLegalToWork
	user.Address = models.Address{
		Country:         strings.TrimSpace(in.Address.Country),
		State:           strings.TrimSpace(in.Address.State),
		LocalGovernment: strings.TrimSpace(in.Address.LocalGovernment),
		CurrentAddress:  strings.TrimSpace(in.Address.CurrentAddress),
	}
	user.Verification = models.Verification{
		IdentityType:   strings.TrimSpace(in.IdentityType),
		IdentityNumber: strings.TrimSpace(in.IdentityNumber),
	}
	return user
}

func lookupError(err error, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fail(KindNotFound, msgUserNotFound)
	}
	return wrap(KindInternal, message, err)
}

func validationError(verr *models.ValidationError) error {
	return &Error{Kind: KindValidation, Message: "Validation failed: " + verr.Error(), Err: verr}
}
