package auth

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeToken(t *testing.T, claims Claims) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".signature"
}

func TestDecodeClaims(t *testing.T) {
	t.Parallel()
	token := makeToken(t, Claims{UserID: "u1", Username: "alice", Email: "a@b.c", Expiry: 42})

	claims, err := DecodeClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "a@b.c", claims.Email)
	assert.Equal(t, int64(42), claims.Expiry)
}

func TestDecodeClaimsRejectsMalformedTokens(t *testing.T) {
	t.Parallel()
	for _, token := range []string{"", "one.two", "a.!!!.c", "a." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".c"} {
		_, err := DecodeClaims(token)
		assert.Error(t, err, "token %q", token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	a := Load(filepath.Join(t.TempDir(), "absent"))
	assert.False(t, a.LoggedIn())
	assert.Empty(t, a.Token())
	assert.Empty(t, a.UserID())
	assert.Nil(t, a.Claims())
}

func TestLoadInvalidFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))

	a := Load(path)
	assert.False(t, a.LoggedIn())
}

func TestSetTokenPersists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "credentials")
	token := makeToken(t, Claims{UserID: "u1", Username: "alice", Expiry: time.Now().Add(time.Hour).Unix()})

	a := Load(path)
	require.NoError(t, a.SetToken(token))
	assert.True(t, a.LoggedIn())
	assert.Equal(t, "u1", a.UserID())

	// A fresh load picks the session back up.
	reloaded := Load(path)
	assert.True(t, reloaded.LoggedIn())
	assert.Equal(t, token, reloaded.Token())
}

func TestSetTokenRejectsGarbage(t *testing.T) {
	t.Parallel()
	a := Load(filepath.Join(t.TempDir(), "credentials"))
	assert.Error(t, a.SetToken("not a token"))
	assert.False(t, a.LoggedIn())
}

func TestExpiredToken(t *testing.T) {
	t.Parallel()
	token := makeToken(t, Claims{UserID: "u1", Expiry: time.Now().Add(-time.Hour).Unix()})
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, os.WriteFile(path, []byte(token), 0600))

	a := Load(path)
	assert.False(t, a.LoggedIn())
	assert.Empty(t, a.UserID())
	// The raw token is still held so the backend can reject it itself.
	assert.Equal(t, token, a.Token())
}

func TestLogout(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "credentials")
	token := makeToken(t, Claims{UserID: "u1", Expiry: time.Now().Add(time.Hour).Unix()})

	a := Load(path)
	require.NoError(t, a.SetToken(token))
	require.NoError(t, a.Logout())

	assert.False(t, a.LoggedIn())
	assert.Empty(t, a.Token())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Logging out twice is fine.
	require.NoError(t, a.Logout())
}
