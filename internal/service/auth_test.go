package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pribylovaa/emenu-auth/internal/config"
	"github.com/pribylovaa/emenu-auth/internal/directory"
	"github.com/pribylovaa/emenu-auth/internal/metrics"
	"github.com/pribylovaa/emenu-auth/internal/models"
	"github.com/pribylovaa/emenu-auth/internal/storage/memory"
	"github.com/pribylovaa/emenu-auth/internal/token"
	"github.com/pribylovaa/emenu-auth/internal/tokenstore"
	"github.com/pribylovaa/emenu-auth/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "unit-secret",
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
}

type fixture struct {
	svc   *Service
	clk   *fakeClock
	codec *token.Codec
	store *tokenstore.Store
	dir   *directory.Directory
	user  *models.User
}

func newFixture(t *testing.T, cfg config.AuthConfig) *fixture {
	t.Helper()

	clk := &fakeClock{t: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	st := memory.New()
	codec := token.NewCodec(cfg.JWTSecret, token.WithClock(clk.Now))
	store := tokenstore.New(st, "pepper", tokenstore.WithClock(clk.Now))
	dir := directory.New(st, directory.WithCost(bcrypt.MinCost))

	u, err := dir.Register(context.Background(), "alice", "secret")
	require.NoError(t, err)

	return &fixture{
		svc:   New(codec, store, dir, cfg),
		clk:   clk,
		codec: codec,
		store: store,
		dir:   dir,
		user:  u,
	}
}

func TestLogin_OK(t *testing.T) {
	f := newFixture(t, testCfg())

	pair, err := f.svc.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, int64(1800), pair.ExpiresIn)
	require.Equal(t, f.clk.Now().Add(30*time.Minute), pair.AccessExpiresAt)

	claims, err := f.codec.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, models.TokenAccess, claims.Type)
	require.Equal(t, f.user.ID, claims.UserID)
	require.WithinDuration(t, f.clk.Now().Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)

	claims, err = f.codec.Verify(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, models.TokenRefresh, claims.Type)
	require.WithinDuration(t, f.clk.Now().Add(7*24*time.Hour), claims.ExpiresAt.Time, time.Second)

	uid, err := f.store.Validate(context.Background(), pair.AccessToken, models.TokenAccess)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, uid)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t, testCfg())

	for _, tc := range []struct{ login, password string }{
		{"alice", "wrong"},
		{"bob", "secret"},
		{"", ""},
	} {
		_, err := f.svc.Login(context.Background(), tc.login, tc.password)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
}

func TestLogin_StorageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	cfg := testCfg()

	dir := directory.New(memory.New(), directory.WithCost(bcrypt.MinCost))
	_, err := dir.Register(context.Background(), "alice", "secret")
	require.NoError(t, err)

	svc := New(token.NewCodec(cfg.JWTSecret), tokenstore.New(st, ""), dir, cfg)

	boom := errors.New("db down")
	st.EXPECT().SaveToken(gomock.Any(), gomock.Any()).Return(boom)

	_, err = svc.Login(context.Background(), "alice", "secret")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

// login → refresh → logout: новый access отличается от первого, после
// logout исходный access-токен отклоняется.
func TestScenario_LoginRefreshLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testCfg())

	pair, err := f.svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, refreshed.AccessToken)
	require.Equal(t, pair.RefreshToken, refreshed.RefreshToken)
	require.Equal(t, int64(1800), refreshed.ExpiresIn)

	// Старый access-токен продолжает работать после refresh.
	_, err = f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.AccessToken))

	_, err = f.svc.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.store.Validate(ctx, pair.AccessToken, models.TokenAccess)
	require.ErrorIs(t, err, tokenstore.ErrTokenNotFound)

	// Сессия отозвана целиком.
	_, err = f.svc.Authenticate(ctx, refreshed.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidOrExpiredRefreshToken)
}

func TestRefresh_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testCfg())

	pair, err := f.svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	f.clk.Advance(7*24*time.Hour - time.Second)
	_, err = f.store.Validate(ctx, pair.RefreshToken, models.TokenRefresh)
	require.NoError(t, err)

	f.clk.Advance(time.Second)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidOrExpiredRefreshToken)
}

func TestRefresh_ExtendsRefreshExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testCfg())

	pair, err := f.svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	f.clk.Advance(6 * 24 * time.Hour)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// Исходный срок прошёл, но новая запись продлила refresh-токен.
	f.clk.Advance(2 * 24 * time.Hour)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testCfg())

	pair, err := f.svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, "")
	require.ErrorIs(t, err, ErrInvalidOrExpiredRefreshToken)

	_, err = f.svc.Refresh(ctx, "garbage")
	require.ErrorIs(t, err, ErrInvalidOrExpiredRefreshToken)

	// access-токен не принимается как refresh.
	_, err = f.svc.Refresh(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidOrExpiredRefreshToken)

	require.NoError(t, f.dir.Remove(ctx, "alice"))
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidOrExpiredRefreshToken)
}

func TestLogout_IdempotentAndMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testCfg())

	pair, err := f.svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.AccessToken))
	require.NoError(t, f.svc.Logout(ctx, pair.AccessToken))
	require.NoError(t, f.svc.Logout(ctx, "never-issued"))

	require.ErrorIs(t, f.svc.Logout(ctx, ""), ErrMissingToken)

	_, err = f.store.Validate(ctx, pair.AccessToken, models.TokenAccess)
	require.ErrorIs(t, err, tokenstore.ErrTokenNotFound)
}

func TestAuthenticate_Failures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testCfg())

	pair, err := f.svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	id, err := f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, id.UserID)
	require.Equal(t, "alice", id.Login)

	_, err = f.svc.Authenticate(ctx, "garbage")
	require.ErrorIs(t, err, ErrMalformedToken)

	_, err = f.svc.Authenticate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Подписано чужим секретом.
	forged, _, err := token.NewCodec("other", token.WithClock(f.clk.Now)).Sign(f.user.ID, models.TokenAccess, time.Minute)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, forged)
	require.ErrorIs(t, err, ErrMalformedToken)

	// Верный секрет, но токен не выдавался через TokenStore.
	minted, _, err := f.codec.Sign(f.user.ID, models.TokenAccess, time.Minute)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, minted)
	require.ErrorIs(t, err, ErrInvalidToken)

	f.clk.Advance(30 * time.Minute)
	_, err = f.svc.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestAuthenticate_UserRemoved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testCfg())

	pair, err := f.svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	require.NoError(t, f.dir.Remove(ctx, "alice"))

	_, err = f.svc.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_JWTOnly(t *testing.T) {
	ctx := context.Background()
	cfg := testCfg()
	cfg.JWTOnly = true
	f := newFixture(t, cfg)

	pair, err := f.svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, pair.AccessToken))

	// Без сверки с TokenStore отозванный токен живёт до exp.
	_, err = f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	f.clk.Advance(30 * time.Minute)
	_, err = f.svc.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestService_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testCfg())

	reg := prometheus.NewRegistry()
	f.svc.SetMetrics(metrics.New(reg))

	_, err := f.svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "alice", "bad")
	require.Error(t, err)
	_, err = f.svc.Authenticate(ctx, "garbage")
	require.Error(t, err)

	n, err := testutil.GatherAndCount(reg, "emenu_auth_events_total")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
