package cryptutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrips(t *testing.T) {
	box, err := NewBox("test-master-secret", "bank_account")
	require.NoError(t, err)

	encrypted, err := box.Encrypt("1234567")
	require.NoError(t, err)
	assert.NotEqual(t, "1234567", encrypted)

	decrypted, err := box.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "1234567", decrypted)
}

func TestEncrypt_EmptyStringRoundTripsToEmpty(t *testing.T) {
	box, err := NewBox("test-master-secret", "bank_account")
	require.NoError(t, err)

	encrypted, err := box.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", encrypted)

	decrypted, err := box.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "", decrypted)
}

func TestDifferentInfoStringsDeriveDifferentKeys(t *testing.T) {
	bankBox, err := NewBox("test-master-secret", "bank_account")
	require.NoError(t, err)
	slipBox, err := NewBox("test-master-secret", "withholding_slip")
	require.NoError(t, err)

	encrypted, err := bankBox.Encrypt("secret-value")
	require.NoError(t, err)

	_, err = slipBox.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestDecrypt_RejectsTruncatedCiphertext(t *testing.T) {
	box, err := NewBox("test-master-secret", "bank_account")
	require.NoError(t, err)

	_, err = box.Decrypt("c2hvcnQ")
	assert.Error(t, err)
}
