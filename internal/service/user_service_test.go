package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"backend/pkg/apperr"
)

func newTestUserService(t *testing.T) (UserService, *store) {
	t.Helper()
	s := newStore()
	svc := NewUserService(&stubUserRepo{s: s}, &stubAuditRepo{s: s}, zap.NewNop())
	return svc, s
}

func createUser(t *testing.T, svc UserService, username, email string) *UserResponse {
	t.Helper()
	res, err := svc.CreateUser(context.Background(), nil, CreateUserRequest{
		Username:  username,
		Email:     email,
		Password:  "long-enough-password",
		FirstName: "Test",
	})
	require.NoError(t, err)
	return res
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	svc, _ := newTestUserService(t)
	createUser(t, svc, "dana", "dana@example.com")

	_, err := svc.CreateUser(context.Background(), nil, CreateUserRequest{
		Username:  "DANA",
		Email:     "other@example.com",
		Password:  "long-enough-password",
		FirstName: "Test",
	})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err), "usernames are compared case-insensitively")
}

func TestUpdateUserEmailConflict(t *testing.T) {
	svc, _ := newTestUserService(t)
	createUser(t, svc, "dana", "dana@example.com")
	second := createUser(t, svc, "erin", "erin@example.com")

	id, err := uuid.Parse(second.ID)
	require.NoError(t, err)

	_, err = svc.UpdateUser(context.Background(), nil, id, UpdateUserRequest{Email: "dana@example.com"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestUpdateUserDeactivation(t *testing.T) {
	svc, _ := newTestUserService(t)
	created := createUser(t, svc, "dana", "dana@example.com")
	id, err := uuid.Parse(created.ID)
	require.NoError(t, err)

	inactive := false
	res, err := svc.UpdateUser(context.Background(), nil, id, UpdateUserRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, res.IsActive)

	// omitting the flag leaves the state alone
	res, err = svc.UpdateUser(context.Background(), nil, id, UpdateUserRequest{Bio: "hello"})
	require.NoError(t, err)
	assert.False(t, res.IsActive)
	assert.Equal(t, "hello", res.Bio)
}

func TestDeleteUser(t *testing.T) {
	svc, _ := newTestUserService(t)
	created := createUser(t, svc, "dana", "dana@example.com")
	id, err := uuid.Parse(created.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(context.Background(), nil, id))

	_, err = svc.GetUserByID(context.Background(), id)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	err = svc.DeleteUser(context.Background(), nil, id)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetUserUnknown(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.GetUserByID(context.Background(), uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
