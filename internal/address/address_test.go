package address

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-shell/pkg/errors"
)

func TestRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	a, err := FromPublicKey(DefaultHRP, pub)
	require.NoError(t, err)
	s := a.Bech32()
	assert.Equal(t, "erd1", s[:4])
	assert.Len(t, s, 62)

	b, err := FromBech32(s)
	require.NoError(t, err)
	assert.Equal(t, DefaultHRP, b.Hrp())
	assert.Equal(t, []byte(pub), []byte(b.PublicKey()))
	assert.Equal(t, a.Hex(), b.Hex())
}

func TestKnownAddress(t *testing.T) {
	// alice from the devnet test wallets
	a, err := FromBech32("erd1qyu5wthldzr8wx5c9ucg8kjagg0jfs53s8nr3zpz3hypefsdd8ssycr6th")
	require.NoError(t, err)
	assert.Equal(t, "0139472eff6886771a982f3083da5d421f24c29181e63888228dc81ca60d69e1", a.Hex())
}

func TestInvalid(t *testing.T) {
	for _, s := range []string{"", "erd1", "not-an-address", "erd1qyu5wthldzr8wx5c9ucg8kjagg0jfs53s8nr3zpz3hypefsdd8ssycr6tx"} {
		_, err := FromBech32(s)
		assert.True(t, errors.Is(err, ErrInvalidAddress), s)
	}
	_, err := FromPublicKey(DefaultHRP, []byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrInvalidAddress))
	assert.Equal(t, "", Address{}.Bech32())
}
