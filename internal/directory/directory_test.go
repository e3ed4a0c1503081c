package directory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pribylovaa/emenu-auth/internal/storage"
	"github.com/pribylovaa/emenu-auth/internal/storage/memory"
	"github.com/pribylovaa/emenu-auth/mocks"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newDir(t *testing.T) *Directory {
	t.Helper()
	return New(memory.New(), WithCost(bcrypt.MinCost))
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	d := newDir(t)

	u, err := d.Register(ctx, "  alice ", "secret")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Login)
	require.NotEqual(t, "secret", u.PasswordHash)

	id, err := d.Authenticate(ctx, "alice", "secret")
	require.NoError(t, err)
	require.Equal(t, u.ID, id.UserID)
	require.Equal(t, "alice", id.Login)
}

func TestAuthenticate_GenericFailure(t *testing.T) {
	ctx := context.Background()
	d := newDir(t)

	_, err := d.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	tests := []struct {
		name, login, password string
	}{
		{"wrong_password", "alice", "nope"},
		{"unknown_login", "bob", "secret"},
		{"empty_login", "", "secret"},
		{"empty_password", "alice", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Authenticate(ctx, tt.login, tt.password)
			require.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestAuthenticate_StorageError(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	d := New(st, WithCost(bcrypt.MinCost))

	boom := errors.New("db down")
	st.EXPECT().UserByLogin(gomock.Any(), "alice").Return(nil, boom)

	_, err := d.Authenticate(context.Background(), "alice", "secret")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	d := newDir(t)

	_, err := d.Register(ctx, "", "secret")
	require.ErrorIs(t, err, ErrInvalidLogin)

	_, err = d.Register(ctx, strings.Repeat("x", maxLoginLen+1), "secret")
	require.ErrorIs(t, err, ErrInvalidLogin)

	_, err = d.Register(ctx, "alice", "")
	require.ErrorIs(t, err, ErrInvalidPassword)

	_, err = d.Register(ctx, "alice", strings.Repeat("p", maxPasswordLen+1))
	require.ErrorIs(t, err, ErrInvalidPassword)

	_, err = d.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = d.Register(ctx, "alice", "other")
	require.ErrorIs(t, err, ErrLoginTaken)
}

func TestUserByIDExistsRemove(t *testing.T) {
	ctx := context.Background()
	d := newDir(t)

	u, err := d.Register(ctx, "alice", "secret")
	require.NoError(t, err)

	id, err := d.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", id.Login)

	ok, err := d.Exists(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, d.Remove(ctx, "alice"))

	_, err = d.UserByID(ctx, u.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	ok, err = d.Exists(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, d.Remove(ctx, "alice"), storage.ErrNotFound)
}
