package account

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-shell/internal/address"
	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/pkg/errors"
)

type stubFetcher struct {
	state *State
	err   error
	calls int
}

func (s *stubFetcher) GetAccount(_ context.Context, _ address.Address) (*State, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.state
	return &cp, nil
}

func newAddr(t *testing.T) address.Address {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	a, err := address.FromPublicKey(address.DefaultHRP, pub)
	require.NoError(t, err)
	return a
}

func balance(t *testing.T, s string) transaction.Amount {
	a, err := transaction.EGLD(s)
	require.NoError(t, err)
	return a
}

func TestLoadAndSnapshot(t *testing.T) {
	addr := newAddr(t)
	f := &stubFetcher{state: &State{Nonce: 5, Balance: balance(t, "2.5")}}
	a, err := Load(context.Background(), f, addr)
	require.NoError(t, err)
	s := a.Snapshot()
	assert.Equal(t, addr.Bech32(), s.Address)
	assert.EqualValues(t, 5, s.Nonce)
	assert.Equal(t, "2.5", s.Balance)
	assert.Zero(t, s.Pending)
}

func TestReserveKeepsNonceAheadOfChain(t *testing.T) {
	f := &stubFetcher{state: &State{Nonce: 10, Balance: transaction.Zero()}}
	a := From(newAddr(t), f.state)

	first := a.Reserve(3)
	assert.EqualValues(t, 10, first)
	assert.EqualValues(t, 13, a.Nonce())
	assert.Equal(t, []uint64{10, 11, 12}, a.Pending())

	// chain confirmed one of them
	f.state.Nonce = 11
	require.NoError(t, a.Sync(context.Background(), f))
	assert.EqualValues(t, 13, a.Nonce())
	assert.Equal(t, []uint64{11, 12}, a.Pending())

	// chain caught up
	f.state.Nonce = 13
	require.NoError(t, a.Sync(context.Background(), f))
	assert.EqualValues(t, 13, a.Nonce())
	assert.Empty(t, a.Pending())
}

func TestPendingExpiresWithoutChainProgress(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	f := &stubFetcher{state: &State{Nonce: 5, Balance: transaction.Zero()}}
	a := From(newAddr(t), f.state)
	a.now = func() time.Time { return clock }

	a.Reserve(3)
	clock = clock.Add(PendingTTL / 2)
	require.NoError(t, a.Sync(context.Background(), f))
	assert.EqualValues(t, 8, a.Nonce())

	// chain moved, the timer restarts
	f.state.Nonce = 6
	clock = clock.Add(PendingTTL / 2)
	require.NoError(t, a.Sync(context.Background(), f))
	assert.EqualValues(t, 8, a.Nonce())
	assert.Equal(t, []uint64{6, 7}, a.Pending())

	clock = clock.Add(PendingTTL + time.Second)
	require.NoError(t, a.Sync(context.Background(), f))
	assert.EqualValues(t, 6, a.Nonce())
	assert.Empty(t, a.Pending())

	assert.EqualValues(t, 6, a.Reserve(1))
}

func TestReleaseRollsBackTail(t *testing.T) {
	a := From(newAddr(t), &State{Nonce: 4, Balance: transaction.Zero()})
	a.IncrementNonce()
	batch := a.Reserve(3)
	assert.EqualValues(t, 5, batch)
	a.Release(5, 6, 7)
	assert.EqualValues(t, 5, a.Nonce())
	assert.Equal(t, []uint64{4}, a.Pending())

	a.Release(4)
	assert.EqualValues(t, 4, a.Nonce())
	assert.Empty(t, a.Pending())

	// releasing below the confirmed nonce never moves it
	a.Release(1)
	assert.EqualValues(t, 4, a.Nonce())
}

func TestSyncError(t *testing.T) {
	a := From(newAddr(t), &State{Nonce: 1, Balance: transaction.Zero()})
	err := a.Sync(context.Background(), &stubFetcher{err: io.ErrUnexpectedEOF})
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.EqualValues(t, 1, a.Nonce())
}
