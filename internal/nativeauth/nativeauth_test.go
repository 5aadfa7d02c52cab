package nativeauth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-shell/internal/address"
	"moff.io/wallet-shell/pkg/errors"
)

type stubBlocks struct {
	hash      string
	timestamp int64
	err       error
	shard     *uint32
}

func (s *stubBlocks) GetLatestBlockHash(_ context.Context, shard *uint32) (string, error) {
	s.shard = shard
	return s.hash, s.err
}

func (s *stubBlocks) GetBlockTimestamp(_ context.Context, hash string) (int64, error) {
	if hash != s.hash {
		return 0, io.ErrUnexpectedEOF
	}
	return s.timestamp, s.err
}

type wallet struct {
	key  ed25519.PrivateKey
	addr string
}

func newWallet(t *testing.T) wallet {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	a, err := address.FromPublicKey(address.DefaultHRP, pub)
	require.NoError(t, err)
	return wallet{key: key, addr: a.Bech32()}
}

func (w wallet) sign(token string) string {
	return hex.EncodeToString(SignMessage(w.key, []byte(w.addr+token)))
}

var issuedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Client, *Server, *stubBlocks) {
	blocks := &stubBlocks{hash: "b7e3f0c1", timestamp: issuedAt.Unix()}
	shard := uint32(2)
	c := NewClient(ClientConfig{Origin: "Mx.NET.WinForms", ExpirySeconds: 14400, BlockHashShard: &shard}, blocks)
	s := NewServer(ServerConfig{AcceptedOrigins: []string{"Mx.NET.WinForms"}, MaxExpirySeconds: 86400}, blocks)
	s.now = func() time.Time { return issuedAt.Add(time.Minute) }
	return c, s, blocks
}

func TestGenerateToken(t *testing.T) {
	c, _, blocks := setup(t)
	token, err := c.GenerateToken(context.Background())
	require.NoError(t, err)
	parts := strings.Split(token, ".")
	require.Len(t, parts, 4)
	assert.Equal(t, "TXguTkVULldpbkZvcm1z", parts[0])
	assert.Equal(t, "b7e3f0c1", parts[1])
	assert.Equal(t, "14400", parts[2])
	assert.Equal(t, "e30", parts[3])
	require.NotNil(t, blocks.shard)
	assert.EqualValues(t, 2, *blocks.shard)
}

func TestGenerateTokenBlockFailure(t *testing.T) {
	c := NewClient(ClientConfig{Origin: "o"}, &stubBlocks{err: io.ErrClosedPipe})
	_, err := c.GenerateToken(context.Background())
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
}

func TestValidateRoundTrip(t *testing.T) {
	c, s, _ := setup(t)
	w := newWallet(t)
	token, err := c.GenerateToken(context.Background())
	require.NoError(t, err)

	res, err := s.Validate(context.Background(), c.GetAccessToken(w.addr, token, w.sign(token)))
	require.NoError(t, err)
	assert.Equal(t, w.addr, res.Address)
	assert.Equal(t, "Mx.NET.WinForms", res.Origin)
	assert.EqualValues(t, 14400, res.TTL)
	assert.Equal(t, issuedAt.Unix()+14400, res.Expires)
}

func TestValidateLegacySignature(t *testing.T) {
	c, s, _ := setup(t)
	w := newWallet(t)
	token, _ := c.GenerateToken(context.Background())
	sig := hex.EncodeToString(SignMessage(w.key, []byte(w.addr+token+"{}")))
	access := c.GetAccessToken(w.addr, token, sig)

	_, err := s.Validate(context.Background(), access)
	require.NoError(t, err)

	s.conf.SkipLegacyValidation = true
	_, err = s.Validate(context.Background(), access)
	assert.True(t, IsValidationError(err))
}

func TestValidateRejects(t *testing.T) {
	c, s, _ := setup(t)
	w, other := newWallet(t), newWallet(t)
	token, _ := c.GenerateToken(context.Background())

	cases := map[string]string{
		"parts":     "a.b",
		"signature": c.GetAccessToken(w.addr, token, other.sign(token)),
		"address":   c.GetAccessToken("erd1nope", token, w.sign(token)),
		"hex":       c.GetAccessToken(w.addr, token, "zz"),
	}
	foreign := strings.Join([]string{encodeValue("https://evil.example"), "b7e3f0c1", "14400", "e30"}, ".")
	cases["origin"] = c.GetAccessToken(w.addr, foreign, w.sign(foreign))
	long := strings.Join([]string{encodeValue("Mx.NET.WinForms"), "b7e3f0c1", "999999", "e30"}, ".")
	cases["ttl"] = c.GetAccessToken(w.addr, long, w.sign(long))

	for name, access := range cases {
		_, err := s.Validate(context.Background(), access)
		assert.True(t, IsValidationError(err), name)
	}
}

func TestValidateExpired(t *testing.T) {
	c, s, _ := setup(t)
	w := newWallet(t)
	token, _ := c.GenerateToken(context.Background())
	s.now = func() time.Time { return issuedAt.Add(5 * time.Hour) }
	_, err := s.Validate(context.Background(), c.GetAccessToken(w.addr, token, w.sign(token)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateUnknownBlockIsNotValidationError(t *testing.T) {
	c, s, _ := setup(t)
	w := newWallet(t)
	token := strings.Join([]string{encodeValue("Mx.NET.WinForms"), "unknown", "60", "e30"}, ".")
	_, err := s.Validate(context.Background(), c.GetAccessToken(w.addr, token, w.sign(token)))
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}
