package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserTokenRoundTrip(t *testing.T) {
	tokens, err := NewUserTokens("test-signing-key")
	require.NoError(t, err)

	pair, err := tokens.Issue("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	sub, err := tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	sub, err = tokens.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestUserTokenAudiencesDoNotCross(t *testing.T) {
	tokens, err := NewUserTokens("test-signing-key")
	require.NoError(t, err)

	pair, err := tokens.Issue("user-1")
	require.NoError(t, err)

	_, err = tokens.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "a refresh token must not pass as an access token")

	_, err = tokens.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserTokenWrongKeyRejected(t *testing.T) {
	mint, err := NewUserTokens("key-a")
	require.NoError(t, err)
	check, err := NewUserTokens("key-b")
	require.NoError(t, err)

	pair, err := mint.Issue("user-1")
	require.NoError(t, err)

	_, err = check.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRunnerTokenRoundTrip(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	token, err := SignRunnerToken(key, "eu-1")
	require.NoError(t, err)

	site, err := VerifyRunnerToken(&key.PublicKey, token)
	require.NoError(t, err)
	assert.Equal(t, "eu-1", site)
}

func TestRunnerTokenRejectsBadSiteSlug(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	token, err := SignRunnerToken(key, "bad site")
	require.NoError(t, err)

	_, err = VerifyRunnerToken(&key.PublicKey, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRunnerTokenRejectsForeignKey(t *testing.T) {
	keyA, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	keyB, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	token, err := SignRunnerToken(keyA, "eu-1")
	require.NoError(t, err)

	_, err = VerifyRunnerToken(&keyB.PublicKey, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidSiteSlug(t *testing.T) {
	assert.True(t, ValidSiteSlug("eu-1"))
	assert.True(t, ValidSiteSlug("us-west-2"))
	assert.False(t, ValidSiteSlug("EU-1"))
	assert.False(t, ValidSiteSlug("eu_1"))
	assert.False(t, ValidSiteSlug(""))
	assert.False(t, ValidSiteSlug("@controller"))
}
