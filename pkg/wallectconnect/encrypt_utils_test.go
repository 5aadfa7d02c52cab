package wallectconnect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAes256RoundTrip(t *testing.T) {
	key, err := GenerateRandomBytes(KeySize)
	require.NoError(t, err)
	iv, err := GenerateRandomBytes(IVSize)
	require.NoError(t, err)

	for _, msg := range []string{"", "x", strings.Repeat("a", 16), `{"id":1,"jsonrpc":"2.0","method":"wc_sessionRequest"}`} {
		cipher, err := Aes256Encrypt([]byte(msg), key, iv)
		require.NoError(t, err)
		assert.Zero(t, len(cipher)%16)
		plain, err := Aes256Decrypt(cipher, key, iv)
		require.NoError(t, err)
		assert.Equal(t, msg, string(plain))
	}
}

func TestAes256DecryptWrongKey(t *testing.T) {
	key, _ := GenerateRandomBytes(KeySize)
	other, _ := GenerateRandomBytes(KeySize)
	iv, _ := GenerateRandomBytes(IVSize)
	cipher, err := Aes256Encrypt([]byte("secret payload"), key, iv)
	require.NoError(t, err)
	plain, err := Aes256Decrypt(cipher, other, iv)
	if err == nil {
		assert.NotEqual(t, "secret payload", string(plain))
	}
}

func TestHmac(t *testing.T) {
	mac := HmacSha256([]byte("data"), []byte("key"))
	assert.True(t, VerifyHmacSha256([]byte("data"), []byte("key"), mac))
	assert.False(t, VerifyHmacSha256([]byte("data!"), []byte("key"), mac))
}

func TestURLs(t *testing.T) {
	assert.Equal(t, "wss://a.bridge.walletconnect.org?protocol=wc&version=1&env=wallet-shell",
		GetWebSocketUrl("https://a.bridge.walletconnect.org", "wc", "1"))
	assert.Equal(t, "ws://127.0.0.1:80?protocol=wc&version=1&env=wallet-shell",
		GetWebSocketUrl("http://127.0.0.1:80", "wc", "1"))
	assert.True(t, strings.HasPrefix(RandomBridgeURL(), "https://"))
	assert.Equal(t, "wc:topic@1?bridge=https%3A%2F%2Fb.example&key=0aff",
		PairingURI("topic", "https://b.example", []byte{0x0a, 0xff}))
}
