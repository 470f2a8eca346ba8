package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"backend/internal/auth"
	"backend/internal/model"
	"backend/pkg/apperr"
)

type authFixture struct {
	svc   AuthService
	users UserService
	store *store
	clock *time.Time
}

func newAuthFixture(t *testing.T, rotate bool) *authFixture {
	t.Helper()
	s := newStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now

	userRepo := &stubUserRepo{s: s}
	auditRepo := &stubAuditRepo{s: s}
	manager := auth.NewManager(auth.ManagerConfig{
		Secret:        []byte("test-secret"),
		RotateRefresh: rotate,
		Now:           func() time.Time { return *clock },
	})
	users := NewUserService(userRepo, auditRepo, zap.NewNop())
	svc := NewAuthService(userRepo, manager, users, auditRepo, zap.NewNop())
	return &authFixture{svc: svc, users: users, store: s, clock: clock}
}

func registerUser(t *testing.T, f *authFixture) *UserResponse {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterRequest{
		Username:  "Alice",
		Email:     "Alice@Example.com",
		Password:  "correct-horse-battery",
		FirstName: "Alice",
	})
	require.NoError(t, err)
	return res
}

func TestRegisterNormalizesAndHashes(t *testing.T) {
	f := newAuthFixture(t, false)
	res := registerUser(t, f)

	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, "alice@example.com", res.Email)
	assert.True(t, res.IsActive)

	var stored *model.User
	for _, u := range f.store.users {
		stored = u
	}
	require.NotNil(t, stored)
	assert.NotEqual(t, "correct-horse-battery", stored.PasswordHash)
	assert.True(t, stored.CheckPassword("correct-horse-battery"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t, false)
	registerUser(t, f)

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Username:  "alice2",
		Email:     "alice@example.com",
		Password:  "correct-horse-battery",
		FirstName: "Alice",
	})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t, false)
	registerUser(t, f)

	res, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "ALICE@example.com",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, "alice", res.User.Username)
}

// Unknown email, wrong password, and deactivated account all answer
// with the identical failure.
func TestLoginFailuresAreUniform(t *testing.T) {
	f := newAuthFixture(t, false)
	registerUser(t, f)

	_, unknownErr := f.svc.Login(context.Background(), LoginRequest{
		Email: "nobody@example.com", Password: "whatever-long",
	})
	_, wrongErr := f.svc.Login(context.Background(), LoginRequest{
		Email: "alice@example.com", Password: "wrong-password",
	})

	for _, u := range f.store.users {
		u.IsActive = false
	}
	_, inactiveErr := f.svc.Login(context.Background(), LoginRequest{
		Email: "alice@example.com", Password: "correct-horse-battery",
	})

	for _, err := range []error{unknownErr, wrongErr, inactiveErr} {
		require.Error(t, err)
		assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
		assert.Equal(t, "invalid email or password", apperr.From(err).Message)
		assert.Equal(t, apperr.CodeInvalidLogin, apperr.From(err).Code)
	}
}

func TestRefreshWithoutRotationKeepsOldToken(t *testing.T) {
	f := newAuthFixture(t, false)
	registerUser(t, f)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "correct-horse-battery"})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	assert.NoError(t, err, "without rotation the refresh token stays usable")
}

func TestRefreshWithRotationRevokesOldToken(t *testing.T) {
	f := newAuthFixture(t, true)
	registerUser(t, f)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "correct-horse-battery"})
	require.NoError(t, err)

	pair, err := f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)

	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTokenInvalid, apperr.From(err).Code)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err, "the replacement token works")
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t, false)
	registerUser(t, f)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "correct-horse-battery"})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, login.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestRefreshExpired(t *testing.T) {
	f := newAuthFixture(t, false)
	registerUser(t, f)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "correct-horse-battery"})
	require.NoError(t, err)

	*f.clock = f.clock.Add(31 * 24 * time.Hour)
	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTokenExpired, apperr.From(err).Code)
}

func TestRefreshAfterUserDeleted(t *testing.T) {
	f := newAuthFixture(t, false)
	registerUser(t, f)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "correct-horse-battery"})
	require.NoError(t, err)

	for id := range f.store.users {
		delete(f.store.users, id)
	}

	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTokenInvalid, apperr.From(err).Code)
}

func TestLoginAndLogoutAreAudited(t *testing.T) {
	f := newAuthFixture(t, false)
	registerUser(t, f)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "correct-horse-battery"})
	require.NoError(t, err)

	actions := make([]string, 0, len(f.store.audits))
	for _, entry := range f.store.audits {
		actions = append(actions, entry.Action)
	}
	assert.Contains(t, actions, model.ActionRegisterUser)
	assert.Contains(t, actions, model.ActionLogin)
}
