package auth

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T, duration time.Duration) *TokenService {
	t.Helper()
	svc, err := NewTokenService(strings.Repeat("ab", 32), duration)
	require.NoError(t, err)
	return svc
}

func TestNewTokenService_RejectsBadKeys(t *testing.T) {
	_, err := NewTokenService("abcd", time.Hour)
	assert.Error(t, err)

	_, err = NewTokenService(strings.Repeat("zz", 32), time.Hour)
	assert.Error(t, err)
}

func TestAPIToken_RoundTrip(t *testing.T) {
	svc := newTestTokenService(t, time.Hour)

	token, err := svc.GenerateAPIToken("ops")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v4.local."))

	claims, err := svc.VerifyAPIToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, tokenIssuer, claims.Issuer)
	assert.True(t, strings.HasPrefix(claims.TokenID, "token-"))
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.Expiration, time.Minute)
}

func TestAPIToken_Expired(t *testing.T) {
	svc := newTestTokenService(t, time.Minute)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := svc.GenerateAPIToken("ops")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.VerifyAPIToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAPIToken_WrongKey(t *testing.T) {
	token, err := newTestTokenService(t, time.Hour).GenerateAPIToken("ops")
	require.NoError(t, err)

	other, err := NewTokenService(strings.Repeat("cd", 32), time.Hour)
	require.NoError(t, err)
	_, err = other.VerifyAPIToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = other.VerifyAPIToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoadOrGenerateKey(t *testing.T) {
	dir := t.TempDir()

	key, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, key, keyLength)

	info, err := os.Stat(filepath.Join(dir, keyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, key, again, "existing key is reused")

	_, err = NewTokenService(hex.EncodeToString(key), time.Hour)
	assert.NoError(t, err)
}

func TestLoadOrGenerateKey_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte("short"), 0o600))

	_, err := LoadOrGenerateKey(dir)
	assert.Error(t, err)
}
