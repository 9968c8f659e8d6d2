package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/onboard-be/internal/auth"
	"github.com/hongminglow/onboard-be/internal/media"
	"github.com/hongminglow/onboard-be/internal/models"
	"github.com/hongminglow/onboard-be/internal/storage/storagetest"
)

const (
	testOTP   = "123456"
	testPhone = "+2348000000001"
	testEmail = "ada@example.com"
)

type sentMail struct {
	to   string
	code string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendOTP(_ context.Context, to, code string, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, code: code})
	return nil
}

type fakeUploader struct {
	calls int
	err   error
}

func (u *fakeUploader) UploadSelfie(_ context.Context, userID string, r io.Reader) (string, error) {
	u.calls++
	if u.err != nil {
		return "", u.err
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://cdn.example.com/user_selfies/%s.jpg", userID), nil
}

type harness struct {
	svc      *Service
	store    *storagetest.MemoryStore
	mailer   *fakeMailer
	uploader *fakeUploader
	tokens   *auth.TokenManager
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    storagetest.NewMemoryStore(),
		mailer:   &fakeMailer{},
		uploader: &fakeUploader{},
		tokens:   auth.NewTokenManager("test-secret", "onboard-test", 24*time.Hour),
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(h.store, h.mailer, h.uploader, h.tokens, Options{
		OTPCode: testOTP,
		OTPTTL:  10 * time.Minute,
		Now:     func() time.Time { return h.now },
	}, nil)
	return h
}

func (h *harness) verifiedUser(t *testing.T) models.User {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)
	user, err := h.svc.VerifyPhoneOTP(ctx, testPhone, testOTP)
	require.NoError(t, err)
	require.NoError(t, h.svc.InitiateEmailVerification(ctx, user.ID, testEmail))
	require.NoError(t, h.svc.VerifyEmailOTP(ctx, user.ID, testOTP))
	return user
}

func profileFor(userID string) ProfileInput {
	legal := true
	return ProfileInput{
		UserID:      userID,
		Role:        models.RoleServiceProvider,
		FirstName:   "Ada",
		LastName:    "Obi",
		DateOfBirth: "1994-03-12",
		Gender:      "female",
		Password:    "s3cret-pass",
		Address: models.Address{
			Country:         "Nigeria",
			State:           "Lagos",
			LocalGovernment: "Ikeja",
			CurrentAddress:  "12 Allen Avenue",
		},
		IdentityType:   models.IdentityPassport,
		IdentityNumber: "A01234567",
		IsLegalToWork:  &legal,
	}
}

func selfie() io.Reader { return strings.NewReader("fake image bytes") }

func TestInitiatePhoneVerificationIsIdempotentPerPhone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)
	h.now = h.now.Add(time.Minute)
	second, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, 1, h.store.Len())
	assert.Equal(t, testOTP, second.Code)
	assert.Equal(t, h.now.Add(10*time.Minute), second.ExpiresAt)

	stored, err := h.store.FindByPhone(ctx, testPhone)
	require.NoError(t, err)
	require.NotNil(t, stored.OTP)
	assert.Equal(t, second.ExpiresAt, stored.OTP.ExpiresAt)
}

func TestInitiatePhoneVerificationRequiresPhone(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.InitiatePhoneVerification(context.Background(), "  ")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestVerifyPhoneOTP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)

	_, err = h.svc.VerifyPhoneOTP(ctx, "+2348000000999", testOTP)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = h.svc.VerifyPhoneOTP(ctx, testPhone, "654321")
	assert.Equal(t, KindInvalidOTP, KindOf(err))

	user, err := h.svc.VerifyPhoneOTP(ctx, testPhone, testOTP)
	require.NoError(t, err)
	assert.True(t, user.IsPhoneVerified)

	stored, err := h.store.FindByPhone(ctx, testPhone)
	require.NoError(t, err)
	assert.True(t, stored.IsPhoneVerified)
	assert.Nil(t, stored.OTP)

	_, err = h.svc.VerifyPhoneOTP(ctx, testPhone, testOTP)
	assert.Equal(t, KindInvalidOTP, KindOf(err), "a redeemed code must not verify twice")
}

func TestVerifyPhoneOTPExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)

	h.now = h.now.Add(10*time.Minute + time.Second)
	_, err = h.svc.VerifyPhoneOTP(ctx, testPhone, testOTP)
	assert.Equal(t, KindOTPExpired, KindOf(err))

	stored, err := h.store.FindByPhone(ctx, testPhone)
	require.NoError(t, err)
	assert.False(t, stored.IsPhoneVerified)
	assert.NotNil(t, stored.OTP)
}

func TestInitiateEmailVerificationRequiresVerifiedPhone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	challenge, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)

	err = h.svc.InitiateEmailVerification(ctx, challenge.UserID, testEmail)
	assert.Equal(t, KindPrecondition, KindOf(err))
	assert.Empty(t, h.mailer.sent)

	err = h.svc.InitiateEmailVerification(ctx, "a9c1a0aa-0000-4000-8000-000000000000", testEmail)
	assert.Equal(t, KindNotFound, KindOf(err))

	err = h.svc.InitiateEmailVerification(ctx, challenge.UserID, "not-an-email")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestInitiateEmailVerificationSendsAndPersists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)
	user, err := h.svc.VerifyPhoneOTP(ctx, testPhone, testOTP)
	require.NoError(t, err)

	require.NoError(t, h.svc.InitiateEmailVerification(ctx, user.ID, " Ada@Example.com "))
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, sentMail{to: testEmail, code: testOTP}, h.mailer.sent[0])

	stored, err := h.store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, testEmail, stored.Email)
	require.NotNil(t, stored.OTP)
	assert.Equal(t, h.now.Add(10*time.Minute), stored.OTP.ExpiresAt)
}

func TestInitiateEmailVerificationMailFailurePersistsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)
	user, err := h.svc.VerifyPhoneOTP(ctx, testPhone, testOTP)
	require.NoError(t, err)

	h.mailer.err = errors.New("535 authentication failed")
	err = h.svc.InitiateEmailVerification(ctx, user.ID, testEmail)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.ErrorContains(t, err, "535 authentication failed")

	stored, err := h.store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Email)
	assert.Nil(t, stored.OTP)
}

func TestInitiateEmailVerificationRejectsTakenEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.Put(models.User{PhoneNumber: "+2348000000002", Email: testEmail})
	_, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)
	user, err := h.svc.VerifyPhoneOTP(ctx, testPhone, testOTP)
	require.NoError(t, err)

	err = h.svc.InitiateEmailVerification(ctx, user.ID, testEmail)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Empty(t, h.mailer.sent)
}

func TestVerifyEmailOTP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)
	user, err := h.svc.VerifyPhoneOTP(ctx, testPhone, testOTP)
	require.NoError(t, err)

	err = h.svc.VerifyEmailOTP(ctx, user.ID, testOTP)
	assert.Equal(t, KindPrecondition, KindOf(err), "no email step initiated yet")

	require.NoError(t, h.svc.InitiateEmailVerification(ctx, user.ID, testEmail))

	err = h.svc.VerifyEmailOTP(ctx, user.ID, "000000")
	assert.Equal(t, KindInvalidOTP, KindOf(err))

	require.NoError(t, h.svc.VerifyEmailOTP(ctx, user.ID, testOTP))
	stored, err := h.store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEmailVerified)
	assert.Nil(t, stored.OTP)

	err = h.svc.VerifyEmailOTP(ctx, user.ID, testOTP)
	assert.Equal(t, KindInvalidOTP, KindOf(err))
}

func TestVerifyEmailOTPExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.InitiatePhoneVerification(ctx, testPhone)
	require.NoError(t, err)
	user, err := h.svc.VerifyPhoneOTP(ctx, testPhone, testOTP)
	require.NoError(t, err)
	require.NoError(t, h.svc.InitiateEmailVerification(ctx, user.ID, testEmail))

	h.now = h.now.Add(11 * time.Minute)
	err = h.svc.VerifyEmailOTP(ctx, user.ID, testOTP)
	assert.Equal(t, KindOTPExpired, KindOf(err))
}

func TestCompleteProfileRequiresBothVerifications(t *testing.T) {
	legal := false
	cases := []struct {
		name          string
		phoneVerified bool
		emailVerified bool
		input         func(id string) ProfileInput
	}{
		{"nothing verified, valid input", false, false, profileFor},
		{"phone only, valid input", true, false, profileFor},
		{"email only, valid input", false, true, profileFor},
		{"phone only, empty input", true, false, func(id string) ProfileInput { return ProfileInput{UserID: id} }},
		{"nothing verified, bad enums", false, false, func(id string) ProfileInput {
			return ProfileInput{UserID: id, Role: "admin", Gender: "x", IsLegalToWork: &legal}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			user := h.store.Put(models.User{
				PhoneNumber:     testPhone,
				Email:           testEmail,
				IsPhoneVerified: tc.phoneVerified,
				IsEmailVerified: tc.emailVerified,
			})

			_, err := h.svc.CompleteProfile(context.Background(), tc.input(user.ID), selfie())
			assert.Equal(t, KindPrecondition, KindOf(err))
			assert.Zero(t, h.uploader.calls)

			stored, err := h.store.FindByID(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Empty(t, stored.PasswordHash)
			assert.False(t, stored.IsProfileComplete)
		})
	}
}

func TestCompleteProfileValidatesBeforeUpload(t *testing.T) {
	h := newHarness(t)
	user := h.verifiedUser(t)

	in := profileFor(user.ID)
	in.Password = "short"
	in.Address.State = ""
	_, err := h.svc.CompleteProfile(context.Background(), in, nil)
	require.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "password must be at least 8 characters")
	assert.Contains(t, err.Error(), "state is required")
	assert.Contains(t, err.Error(), "selfie is required")
	assert.Zero(t, h.uploader.calls)
}

func TestCompleteProfileRejectsOverlongPassword(t *testing.T) {
	h := newHarness(t)
	user := h.verifiedUser(t)

	in := profileFor(user.ID)
	in.Password = strings.Repeat("a", 73)
	_, err := h.svc.CompleteProfile(context.Background(), in, selfie())
	require.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "password must be at most 72 bytes")
	assert.Zero(t, h.uploader.calls)

	stored, err := h.store.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsProfileComplete)
}

func TestCompleteProfileAcceptsSeventyTwoBytePassword(t *testing.T) {
	h := newHarness(t)
	user := h.verifiedUser(t)

	in := profileFor(user.ID)
	in.Password = strings.Repeat("a", 72)
	_, err := h.svc.CompleteProfile(context.Background(), in, selfie())
	require.NoError(t, err)
	assert.Equal(t, 1, h.uploader.calls)
}

func TestCompleteProfileRejectedImage(t *testing.T) {
	h := newHarness(t)
	user := h.verifiedUser(t)
	h.uploader.err = fmt.Errorf("%w: selfie must be a jpg, jpeg, png or gif image", media.ErrInvalidImage)

	_, err := h.svc.CompleteProfile(context.Background(), profileFor(user.ID), selfie())
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCompleteProfileUploadFailure(t *testing.T) {
	h := newHarness(t)
	user := h.verifiedUser(t)
	h.uploader.err = errors.New("bucket unavailable")

	_, err := h.svc.CompleteProfile(context.Background(), profileFor(user.ID), selfie())
	assert.Equal(t, KindUpstream, KindOf(err))

	stored, err := h.store.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsProfileComplete)
}

func TestCompleteProfileAndLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.verifiedUser(t)

	session, err := h.svc.CompleteProfile(ctx, profileFor(user.ID), selfie())
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	assert.Equal(t, models.PublicUser{
		ID:          user.ID,
		PhoneNumber: testPhone,
		Email:       testEmail,
		Role:        models.RoleServiceProvider,
		FirstName:   "Ada",
		LastName:    "Obi",
	}, session.User)

	claims, err := h.tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleServiceProvider, claims.Role)

	stored, err := h.store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsProfileComplete)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "s3cret-pass"))
	assert.Equal(t, "https://cdn.example.com/user_selfies/"+user.ID+".jpg", stored.Verification.SelfieURL)

	byPhone, err := h.svc.Login(ctx, Credentials{PhoneNumber: testPhone, Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, byPhone.Token)
	assert.Equal(t, user.ID, byPhone.User.ID)

	byEmail, err := h.svc.Login(ctx, Credentials{Email: "ADA@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.User.ID)
}

func TestLoginDoesNotRevealWhichCredentialFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.verifiedUser(t)
	_, err := h.svc.CompleteProfile(ctx, profileFor(user.ID), selfie())
	require.NoError(t, err)

	_, unknown := h.svc.Login(ctx, Credentials{PhoneNumber: "+2348000000777", Password: "s3cret-pass"})
	_, wrong := h.svc.Login(ctx, Credentials{PhoneNumber: testPhone, Password: "not-the-password"})

	require.Error(t, unknown)
	require.Error(t, wrong)
	assert.Equal(t, KindInvalidCredentials, KindOf(unknown))
	assert.Equal(t, KindOf(unknown), KindOf(wrong))
	assert.Equal(t, unknown.Error(), wrong.Error())
}

func TestLoginRequiresCompletedProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifiedUser(t)

	_, err := h.svc.Login(ctx, Credentials{PhoneNumber: testPhone, Password: "whatever-pass"})
	assert.Equal(t, KindPrecondition, KindOf(err))

	_, err = h.svc.Login(ctx, Credentials{Password: "whatever-pass"})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = h.svc.Login(ctx, Credentials{Email: testEmail})
	assert.Equal(t, KindValidation, KindOf(err))
}
