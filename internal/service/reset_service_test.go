package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-telemed/internal/event"
	"go-telemed/internal/metrics"
	"go-telemed/internal/model"
)

type resetFixture struct {
	*fixture
	now   time.Time
	reset *ResetService
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()

	rf := &resetFixture{fixture: newFixture(t), now: t0}
	rf.reset = NewResetService(rf.users, rf.hasher, time.Hour,
		"http://localhost:5173/#/reset-password", rf.bus, metrics.NewNoop(),
		WithResetClock(func() time.Time { return rf.now }))
	return rf
}

func TestRequestReset_UnknownAddressIsSuccessShaped(t *testing.T) {
	rf := newResetFixture(t)
	rf.signup(t, "alice", "s3cretpass")

	req, err := rf.reset.RequestReset(context.Background(), "nobody@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, ResetRequest{}, req)

	known, err := rf.reset.RequestReset(context.Background(), "alice@example.com", "")
	require.NoError(t, err)
	assert.NotEmpty(t, known.Token)
}

func TestRequestReset_StoresDigestOnly(t *testing.T) {
	rf := newResetFixture(t)
	rf.signup(t, "alice", "s3cretpass")
	ctx := context.Background()

	req, err := rf.reset.RequestReset(ctx, " ALICE@example.com ", "")
	require.NoError(t, err)

	assert.Len(t, req.Token, 43, "32 random bytes, base64url without padding")
	assert.NotContains(t, req.Token, "=")
	assert.True(t, strings.HasSuffix(req.Link, "?token="+req.Token))
	assert.True(t, t0.Add(time.Hour).Equal(req.ExpiresAt))

	user, err := rf.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user.ResetTokenHash)
	assert.NotEqual(t, req.Token, *user.ResetTokenHash)
	assert.Equal(t, digest(req.Token), *user.ResetTokenHash)
}

func TestRequestReset_TokensAreUnique(t *testing.T) {
	rf := newResetFixture(t)
	rf.signup(t, "alice", "s3cretpass")

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		req, err := rf.reset.RequestReset(context.Background(), "alice@example.com", "")
		require.NoError(t, err)
		assert.False(t, seen[req.Token])
		seen[req.Token] = true
	}
}

func TestRequestReset_RandomSourceFailure(t *testing.T) {
	rf := newResetFixture(t)
	rf.signup(t, "alice", "s3cretpass")
	broken := NewResetService(rf.users, rf.hasher, time.Hour, "", nil, nil,
		WithResetRandom(bytes.NewReader(nil)))

	_, err := broken.RequestReset(context.Background(), "alice@example.com", "")
	assert.Error(t, err)
}

func TestRedeemReset(t *testing.T) {
	rf := newResetFixture(t)
	rf.signup(t, "alice", "s3cretpass")
	ctx := context.Background()

	req, err := rf.reset.RequestReset(ctx, "alice@example.com", "")
	require.NoError(t, err)

	rf.now = t0.Add(59 * time.Minute)
	require.NoError(t, rf.reset.RedeemReset(ctx, req.Token, "brand-new-pass", ""))

	_, err = rf.auth.Login(ctx, "alice", "s3cretpass", "")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
	_, err = rf.auth.Login(ctx, "alice", "brand-new-pass", "")
	assert.NoError(t, err)

	user, err := rf.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, user.ResetTokenHash)
	assert.Nil(t, user.ResetTokenExpiry)

	err = rf.reset.RedeemReset(ctx, req.Token, "another-pass", "")
	assert.ErrorIs(t, err, model.ErrResetTokenNotFound, "tokens are single use")
}

func TestRedeemReset_Expired(t *testing.T) {
	rf := newResetFixture(t)
	rf.signup(t, "alice", "s3cretpass")
	ctx := context.Background()

	req, err := rf.reset.RequestReset(ctx, "alice@example.com", "")
	require.NoError(t, err)

	for _, at := range []time.Time{t0.Add(time.Hour), t0.Add(61 * time.Minute)} {
		rf.now = at
		err = rf.reset.RedeemReset(ctx, req.Token, "brand-new-pass", "")
		assert.ErrorIs(t, err, model.ErrResetTokenExpired)
	}

	_, err = rf.users.FindByResetTokenHash(ctx, digest(req.Token))
	assert.NoError(t, err, "an expired token is left in place")

	_, err = rf.auth.Login(ctx, "alice", "s3cretpass", "")
	assert.NoError(t, err, "password unchanged")
}

func TestRedeemReset_Rejections(t *testing.T) {
	rf := newResetFixture(t)
	rf.signup(t, "alice", "s3cretpass")
	ctx := context.Background()

	first, err := rf.reset.RequestReset(ctx, "alice@example.com", "")
	require.NoError(t, err)
	second, err := rf.reset.RequestReset(ctx, "alice@example.com", "")
	require.NoError(t, err)

	assert.ErrorIs(t, rf.reset.RedeemReset(ctx, "", "brand-new-pass", ""), model.ErrResetTokenNotFound)
	assert.ErrorIs(t, rf.reset.RedeemReset(ctx, "never-issued", "brand-new-pass", ""), model.ErrResetTokenNotFound)
	assert.ErrorIs(t, rf.reset.RedeemReset(ctx, first.Token, "brand-new-pass", ""), model.ErrResetTokenNotFound,
		"a newer request replaces the older token")

	err = rf.reset.RedeemReset(ctx, second.Token, "short", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrResetTokenNotFound))

	assert.NoError(t, rf.reset.RedeemReset(ctx, second.Token, "brand-new-pass", ""))
}

func TestRedeemReset_ConcurrentRedemptionSucceedsOnce(t *testing.T) {
	rf := newResetFixture(t)
	rf.signup(t, "alice", "s3cretpass")
	ctx := context.Background()

	req, err := rf.reset.RequestReset(ctx, "alice@example.com", "")
	require.NoError(t, err)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := rf.reset.RedeemReset(ctx, req.Token, "brand-new-pass", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, model.ErrResetTokenNotFound):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, rejected)
}

func TestRequestReset_PublishesLink(t *testing.T) {
	rf := newResetFixture(t)
	rf.signup(t, "alice", "s3cretpass")
	events, unsubscribe := rf.bus.Subscribe()
	defer unsubscribe()

	req, err := rf.reset.RequestReset(context.Background(), "alice@example.com", "10.0.0.9")
	require.NoError(t, err)

	select {
	case e := <-events:
		require.Equal(t, event.TypePasswordResetRequest, e.Type)
		link, ok := e.Payload.(event.ResetLink)
		require.True(t, ok)
		assert.Equal(t, req.Link, link.Link)
		assert.Equal(t, "alice@example.com", link.Email)
		assert.NotContains(t, e.Detail, req.Token)
	case <-time.After(time.Second):
		t.Fatal("reset event not published")
	}
}
