package dns

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTSIGKey(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("supersecret"))

	t.Run("name and secret, default algorithm", func(t *testing.T) {
		key, err := ParseTSIGKey("mykey:" + secret)
		require.NoError(t, err)
		assert.Equal(t, "mykey", key.Name)
		assert.Equal(t, AlgHMACMD5, key.Algorithm)
		assert.Equal(t, []byte("supersecret"), key.Secret)
	})

	t.Run("explicit algorithm", func(t *testing.T) {
		key, err := ParseTSIGKey("hmac-sha256:mykey:" + secret)
		require.NoError(t, err)
		assert.Equal(t, AlgHMACSHA256, key.Algorithm)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		_, err := ParseTSIGKey("hmac-sha512:mykey:" + secret)
		assert.ErrorIs(t, err, ErrDNSError)
	})

	t.Run("invalid spec", func(t *testing.T) {
		_, err := ParseTSIGKey("justonepart")
		assert.ErrorIs(t, err, ErrDNSError)
	})

	t.Run("invalid base64 secret", func(t *testing.T) {
		_, err := ParseTSIGKey("mykey:not-valid-base64!!!")
		assert.ErrorIs(t, err, ErrDNSError)
	})
}

func TestSignTSIG(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("supersecret"))
	key, err := ParseTSIGKey("mykey:" + secret)
	require.NoError(t, err)

	_, msg, err := BuildQuery("example.com", uint16(TypeA), 1)
	require.NoError(t, err)

	signed, err := SignTSIG(msg, key, 1700000000)
	require.NoError(t, err)
	assert.Greater(t, len(signed), len(msg))

	arCount := uint16(signed[10])<<8 | uint16(signed[11])
	assert.Equal(t, uint16(1), arCount)

	// Signing twice with the same inputs must be deterministic.
	signedAgain, err := SignTSIG(msg, key, 1700000000)
	require.NoError(t, err)
	assert.Equal(t, signed, signedAgain)

	// A different secret must produce a different signature.
	otherSecret := base64.StdEncoding.EncodeToString([]byte("othersecret"))
	otherKey, err := ParseTSIGKey("mykey:" + otherSecret)
	require.NoError(t, err)
	signedOther, err := SignTSIG(msg, otherKey, 1700000000)
	require.NoError(t, err)
	assert.NotEqual(t, signed, signedOther)
}

func TestSignTSIGShortMessage(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("supersecret"))
	key, err := ParseTSIGKey("mykey:" + secret)
	require.NoError(t, err)

	_, err = SignTSIG([]byte{1, 2, 3}, key, 1700000000)
	assert.ErrorIs(t, err, ErrDNSError)
}
