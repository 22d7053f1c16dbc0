package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storedash/backend/internal/domain"
	"storedash/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, ok := s.users[user.Username]; ok {
		return store.ErrConflict
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

const testSecret = "test-secret-key-0123456789abcdef"

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: domain.RoleAdmin, Active: true, CreatedAt: time.Now().UTC()},
		},
	}

	manager := NewAuthManager(context.Background(), testSecret, time.Hour, users, zap.NewNop())
	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	stored, err := users.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEqual(t, "admin123", stored[0].Password)
	assert.True(t, strings.HasPrefix(stored[0].Password, "$2"))
	assert.GreaterOrEqual(t, users.updates, 1)
}

func TestEnsureAccountStoresPasswordHash(t *testing.T) {
	users := &userStoreStub{}
	manager := NewAuthManager(context.Background(), testSecret, time.Hour, users, zap.NewNop())

	created, err := manager.EnsureAccount(context.Background(), "Manager", "pass1234", domain.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, created)

	stored := users.users["manager"]
	assert.True(t, strings.HasPrefix(stored.Password, "$2"))
	assert.Equal(t, domain.RoleAdmin, stored.Role)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "manager", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, resp.Role)

	created, err = manager.EnsureAccount(context.Background(), "manager", "another-pass", domain.RoleStaff)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureAccountValidation(t *testing.T) {
	manager := NewAuthManager(context.Background(), testSecret, time.Hour, nil, nil)

	_, err := manager.EnsureAccount(context.Background(), "abc", "pass1234", domain.RoleStaff)
	assert.Error(t, err)
	_, err = manager.EnsureAccount(context.Background(), "someone", "12345", domain.RoleStaff)
	assert.Error(t, err)
	_, err = manager.EnsureAccount(context.Background(), "someone", "pass1234", "owner")
	assert.Error(t, err)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"former": {Username: "former", Password: "secret99", Role: domain.RoleStaff, Active: false},
		},
	}
	manager := NewAuthManager(context.Background(), testSecret, time.Hour, users, zap.NewNop())

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "former", Password: "secret99"})
	assert.ErrorIs(t, err, ErrInactiveAccount)
	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "nobody", Password: "secret99"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseToken(t *testing.T) {
	manager := NewAuthManager(context.Background(), testSecret, time.Hour, nil, nil)

	token, err := manager.sign("admin", domain.RoleAdmin, time.Now().Add(time.Minute))
	require.NoError(t, err)
	actor, err := manager.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Username: "admin", Role: domain.RoleAdmin}, actor)

	expired, err := manager.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = manager.ParseToken(expired)
	assert.Error(t, err)

	other := NewAuthManager(context.Background(), "another-secret-0123456789abcdef!", time.Hour, nil, nil)
	forged, err := other.sign("admin", domain.RoleAdmin, time.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = manager.ParseToken(forged)
	assert.Error(t, err)

	unknownRole, err := manager.sign("admin", "owner", time.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = manager.ParseToken(unknownRole)
	assert.Error(t, err)

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{"sub": "admin", "role": "admin"})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = manager.ParseToken(unsigned)
	assert.Error(t, err)
}
