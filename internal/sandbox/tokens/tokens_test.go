package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veriflow/pkg/domain-errors"
)

func TestMintAndValidateAuthToken(t *testing.T) {
	signer := NewSigner("test-signing-key", "sandboxd")

	token, err := signer.MintAuthToken("user-1", "pk_test_1", time.Hour)
	require.NoError(t, err)

	claims, err := signer.ValidateAuthToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "pk_test_1", claims.TenantPublicKey)
	assert.Equal(t, KindAuth, claims.Kind)
}

func TestValidationTokenRejectedAsAuth(t *testing.T) {
	signer := NewSigner("test-signing-key", "sandboxd")

	token, err := signer.MintValidationToken("user-1", "pk_test_1", time.Hour)
	require.NoError(t, err)

	_, err = signer.ValidateAuthToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestExpiredTokenRejected(t *testing.T) {
	signer := NewSigner("test-signing-key", "sandboxd")

	token, err := signer.MintAuthToken("user-1", "pk_test_1", -time.Minute)
	require.NoError(t, err)

	_, err = signer.ValidateAuthToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestWrongKeyRejected(t *testing.T) {
	token, err := NewSigner("key-a", "sandboxd").MintAuthToken("user-1", "pk_test_1", time.Hour)
	require.NoError(t, err)

	_, err = NewSigner("key-b", "sandboxd").ValidateAuthToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
