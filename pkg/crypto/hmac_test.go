package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSignKnownVector(t *testing.T) {
	// RFC 4231 test case 2
	sig := HMACSign([]byte("Jefe"), []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", sig)
}

func TestHMACVerify(t *testing.T) {
	key := []byte("sink-secret")
	body := []byte(`{"version":"v1","event":"alert.notification"}`)
	sig := HMACSign(key, body)

	ok, err := HMACVerify(key, body, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = HMACVerify([]byte("other"), body, sig)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = HMACVerify(key, body, "not-hex")
	assert.Error(t, err)
}

func TestSignatureHeader(t *testing.T) {
	h := NewHMACHasher([]byte("sink-secret"))
	body := []byte(`{"alerts":[]}`)

	header := h.SignatureHeader(body)
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, header)

	ok, err := h.VerifySignatureHeader(body, header)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifySignatureHeader([]byte(`{"alerts":[1]}`), header)
	require.NoError(t, err)
	assert.False(t, ok)

	h512 := NewHMACHasher([]byte("sink-secret"), WithHashAlgorithm(SHA512))
	assert.Regexp(t, `^sha512=[0-9a-f]{128}$`, h512.SignatureHeader(body))
	_, err = h512.VerifySignatureHeader(body, header)
	assert.Error(t, err)

	_, err = h.VerifySignatureHeader(body, "garbage")
	assert.Error(t, err)
}
