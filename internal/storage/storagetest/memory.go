// Package storagetest provides an in-memory storage.UserStore for tests.
package storagetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hongminglow/onboard-be/internal/models"
	"github.com/hongminglow/onboard-be/internal/storage"
)

var _ storage.UserStore = (*MemoryStore)(nil)

// MemoryStore keeps users in a map and enforces the same uniqueness rules as
// the Postgres store.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]models.User
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]models.User), now: time.Now}
}

// Put inserts or replaces a record directly, bypassing every rule.
func (m *MemoryStore) Put(user models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	m.users[user.ID] = clone(user)
	return clone(user)
}

// Len reports how many records are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *MemoryStore) UpsertPhoneOTP(_ context.Context, phoneNumber string, otp models.OTP) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, u := range m.users {
		if u.PhoneNumber == phoneNumber {
			u.OTP = &otp
			u.UpdatedAt = now
			m.users[id] = u
			return clone(u), nil
		}
	}
	u := models.User{
		ID:          uuid.NewString(),
		PhoneNumber: phoneNumber,
		OTP:         &otp,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.users[u.ID] = u
	return clone(u), nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return clone(u), nil
}

func (m *MemoryStore) FindByPhone(_ context.Context, phoneNumber string) (models.User, error) {
	return m.findBy(func(u models.User) bool { return u.PhoneNumber == phoneNumber })
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	email = models.NormalizeEmail(email)
	return m.findBy(func(u models.User) bool { return u.Email != "" && u.Email == email })
}

func (m *MemoryStore) UpdatePartial(_ context.Context, id string, patch storage.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	if patch.Email != nil {
		email := models.NormalizeEmail(*patch.Email)
		if m.emailTaken(id, email) {
			return storage.ErrAlreadyExists
		}
		u.Email = email
	}
	switch {
	case patch.ClearOTP:
		u.OTP = nil
	case patch.OTP != nil:
		otp := *patch.OTP
		u.OTP = &otp
	}
	if patch.MarkPhoneVerified {
		u.IsPhoneVerified = true
	}
	if patch.MarkEmailVerified {
		u.IsEmailVerified = true
	}
	u.UpdatedAt = m.now()
	m.users[id] = u
	return nil
}

func (m *MemoryStore) SaveProfile(_ context.Context, user models.User) (models.User, error) {
	if err := user.Validate(); err != nil {
		return models.User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.users[user.ID]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	email := models.NormalizeEmail(user.Email)
	if m.emailTaken(user.ID, email) {
		return models.User{}, storage.ErrAlreadyExists
	}

	current.Role = user.Role
	current.FirstName = user.FirstName
	current.MiddleName = user.MiddleName
	current.LastName = user.LastName
	current.DateOfBirth = user.DateOfBirth
	current.Gender = user.Gender
	current.IsLegalToWork = user.IsLegalToWork
	current.Email = email
	current.PasswordHash = user.PasswordHash
	current.Address = user.Address
	current.Verification = user.Verification
	current.IsProfileComplete = true
	current.UpdatedAt = m.now()
	m.users[user.ID] = current
	return clone(current), nil
}

func (m *MemoryStore) findBy(match func(models.User) bool) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func (m *MemoryStore) emailTaken(id, email string) bool {
	for otherID, other := range m.users {
		if otherID != id && other.Email != "" && other.Email == email {
			return true
		}
	}
	return false
}

func clone(u models.User) models.User {
	if u.OTP != nil {
		otp := *u.OTP
		u.OTP = &otp
	}
	if u.IsLegalToWork != nil {
		legal := *u.IsLegalToWork
		u.IsLegalToWork = &legal
	}
	return u
}
