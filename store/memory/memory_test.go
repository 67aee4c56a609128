package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/otp"
	"github.com/alebarre/credauth/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	c := &credential.Credential{Handle: "ana@example.com", PasswordHash: "h1", Roles: []credential.Role{credential.RoleAdmin}}
	require.NoError(t, s.Credentials.Create(ctx, c))
	assert.NotEmpty(t, c.ID)
	assert.ErrorIs(t, s.Credentials.Create(ctx, &credential.Credential{Handle: "ana@example.com"}), credential.ErrExists)

	got, err := s.Credentials.FindByHandle(ctx, "ana@example.com")
	require.NoError(t, err)
	got.Roles[0] = credential.RoleUser
	again, _ := s.Credentials.FindByHandle(ctx, "ana@example.com")
	assert.Equal(t, credential.RoleAdmin, again.Roles[0], "returned credentials must not alias stored state")

	n, err := s.Credentials.CountWithRole(ctx, credential.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Credentials.Delete(ctx, "ana@example.com"))
	_, err = s.Credentials.FindByHandle(ctx, "ana@example.com")
	assert.ErrorIs(t, err, credential.ErrNotFound)
	assert.ErrorIs(t, s.Credentials.Save(ctx, c), credential.ErrNotFound)
}

func TestAdminGuardConcurrentDeletes(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore(nil)
	for _, h := range []string{"root", "ops"} {
		require.NoError(t, s.Create(ctx, &credential.Credential{Handle: h, Roles: []credential.Role{credential.RoleAdmin}}))
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, h := range []string{"root", "ops"} {
		wg.Add(1)
		go func(h string) {
			defer wg.Done()
			errs <- s.DeleteUnlessLastAdmin(ctx, h)
		}(h)
	}
	wg.Wait()
	close(errs)

	var ok, refused int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, credential.ErrLastAdmin):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, refused)
	n, err := s.CountWithRole(ctx, credential.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAdminGuardRolesAndSeed(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore(nil)
	at := time.Unix(1_700_000_000, 0).UTC()

	created, err := s.CreateFirstAdmin(ctx, &credential.Credential{Handle: "root", Roles: []credential.Role{credential.RoleAdmin}})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.CreateFirstAdmin(ctx, &credential.Credential{Handle: "other", Roles: []credential.Role{credential.RoleAdmin}})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.ReplaceRolesUnlessLastAdmin(ctx, "root", []credential.Role{credential.RoleUser}, at)
	assert.ErrorIs(t, err, credential.ErrLastAdmin)
	assert.ErrorIs(t, s.DeleteUnlessLastAdmin(ctx, "root"), credential.ErrLastAdmin)

	require.NoError(t, s.Create(ctx, &credential.Credential{Handle: "ana", Roles: []credential.Role{credential.RoleUser}}))
	got, err := s.ReplaceRolesUnlessLastAdmin(ctx, "ana", []credential.Role{credential.RoleAdmin}, at)
	require.NoError(t, err)
	assert.Equal(t, at, got.UpdatedAt)
	got, err = s.ReplaceRolesUnlessLastAdmin(ctx, "root", []credential.Role{credential.RoleUser}, at)
	require.NoError(t, err)
	assert.Equal(t, []credential.Role{credential.RoleUser}, got.Roles)

	_, err = s.ReplaceRolesUnlessLastAdmin(ctx, "ghost", []credential.Role{credential.RoleUser}, at)
	assert.ErrorIs(t, err, credential.ErrNotFound)
}

func TestTargetedWrites(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore(nil)
	at := time.Unix(1_700_000_000, 0).UTC()
	require.NoError(t, s.Create(ctx, &credential.Credential{Handle: "ana", PasswordHash: "old", Enabled: true}))

	changed, err := s.SetEnabled(ctx, "ana", false, at)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.SetEnabled(ctx, "ana", false, at)
	require.NoError(t, err)
	assert.False(t, changed)

	swapped, err := s.SwapPasswordHash(ctx, "ana", "stale", "new", at)
	require.NoError(t, err)
	assert.False(t, swapped)
	swapped, err = s.SwapPasswordHash(ctx, "ana", "old", "new", at)
	require.NoError(t, err)
	assert.True(t, swapped)

	c, err := s.FindByHandle(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, "new", c.PasswordHash)
	assert.False(t, c.Enabled)
}

func TestReplacePasswordKeepsHistoryBounded(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Credentials.Create(ctx, &credential.Credential{Handle: "ana", PasswordHash: "h0"}))

	at := time.Unix(1_700_000_000, 0).UTC()
	for i := 1; i <= 7; i++ {
		at = at.Add(time.Minute)
		require.NoError(t, s.Credentials.ReplacePassword(ctx, "ana", "h"+string(rune('0'+i)), 5, at))
	}

	c, err := s.Credentials.FindByHandle(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, "h7", c.PasswordHash)

	recent, err := s.History.Recent(ctx, "ana", 10)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "h6", recent[0].Hash)
	assert.Equal(t, "h2", recent[4].Hash)
}

func TestSessionStoreRotateIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	now := time.Now()
	require.NoError(t, s.Create(ctx, &session.Token{ID: "1", Principal: "ana", Hash: "cur", ExpiresAt: now.Add(time.Hour)}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := &session.Token{ID: "n", Principal: "ana", Hash: "next-" + string(rune('a'+i)), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
			err := s.Rotate(ctx, "cur", next)
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, session.ErrAlreadyRotated)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSessionStoreRevokeAllAndPurge(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	now := time.Now()
	require.NoError(t, s.Create(ctx, &session.Token{Principal: "ana", Hash: "a1", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.Create(ctx, &session.Token{Principal: "ana", Hash: "a2", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, s.Create(ctx, &session.Token{Principal: "bruno", Hash: "b1", ExpiresAt: now.Add(time.Hour)}))

	n, err := s.RevokeAll(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	flipped, err := s.Revoke(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, flipped)

	b, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, b.Revoked)

	deleted, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	_, err = s.Get(ctx, "a2")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCodeStoreReplaceAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewCodeStore()
	now := time.Now()

	require.NoError(t, s.Replace(ctx, &otp.Record{ID: "1", Address: "a", Purpose: otp.PurposeReset, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, s.Replace(ctx, &otp.Record{ID: "2", Address: "a", Purpose: otp.PurposeReset, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}))

	latest, err := s.Latest(ctx, "a", otp.PurposeReset)
	require.NoError(t, err)
	assert.Equal(t, "2", latest.ID)

	_, err = s.Latest(ctx, "a", otp.PurposeSignup)
	assert.ErrorIs(t, err, otp.ErrNotFound)

	boom := errors.New("mismatch")
	err = s.Update(ctx, "a", otp.PurposeReset, func(r *otp.Record) error {
		r.Attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	latest, _ = s.Latest(ctx, "a", otp.PurposeReset)
	assert.Equal(t, 1, latest.Attempts, "attempts persist even when fn fails")

	require.NoError(t, s.Update(ctx, "a", otp.PurposeReset, func(r *otp.Record) error {
		r.Used = true
		return nil
	}))
	assert.ErrorIs(t, s.Update(ctx, "a", otp.PurposeReset, func(*otp.Record) error { return nil }), otp.ErrNotFound)

	n, err := s.DeleteExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
