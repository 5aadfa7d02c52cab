package account

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"
	"moff.io/wallet-shell/internal/address"
	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/pkg/errors"
)

// State is the on-chain account state as reported by the provider.
type State struct {
	Nonce   uint64
	Balance transaction.Amount
}

// Fetcher 查询链上账户状态
type Fetcher interface {
	GetAccount(ctx context.Context, addr address.Address) (*State, error)
}

// PendingTTL is how long pending nonces survive without the chain nonce moving. Past it the
// transactions are taken as dropped from the mempool and their nonces are reused.
const PendingTTL = 2 * time.Minute

// Account 本地账户快照：地址、nonce、余额，以及已提交但未确认的nonce
//
// nonce 始终等于最近一次同步的链上nonce加上连续的待确认交易数。
type Account struct {
	mu         sync.Mutex
	address    address.Address
	confirmed  uint64
	nonce      uint64
	balance    transaction.Amount
	pending    *treeset.Set
	progressAt time.Time
	now        func() time.Time
}

// From builds a snapshot from a freshly fetched state.
func From(addr address.Address, state *State) *Account {
	a := &Account{
		address: addr,
		pending: treeset.NewWith(utils.UInt64Comparator),
		now:     time.Now,
	}
	a.apply(state)
	return a
}

// Load fetches the state for addr and wraps it.
func Load(ctx context.Context, f Fetcher, addr address.Address) (*Account, error) {
	state, err := f.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	return From(addr, state), nil
}

func (a *Account) Address() address.Address {
	return a.address
}

func (a *Account) Nonce() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nonce
}

func (a *Account) Balance() transaction.Amount {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Sync re-reads the chain state. Pending nonces below the confirmed nonce are dropped, the rest
// keep the local nonce ahead of the chain until PendingTTL passes with no chain progress.
func (a *Account) Sync(ctx context.Context, f Fetcher) error {
	state, err := f.GetAccount(ctx, a.address)
	if err != nil {
		return errors.Wrapf(err, "sync account %s", a.address)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apply(state)
	return nil
}

func (a *Account) apply(state *State) {
	if state == nil {
		state = &State{Balance: transaction.Zero()}
	}
	now := a.now()
	if a.pending.Empty() || state.Nonce > a.confirmed {
		a.progressAt = now
	}
	a.confirmed = state.Nonce
	a.balance = state.Balance
	for _, v := range a.pending.Values() {
		if v.(uint64) < state.Nonce {
			a.pending.Remove(v)
		}
	}
	// 链上nonce长时间不变，待确认交易已被丢弃
	if !a.pending.Empty() && now.Sub(a.progressAt) > PendingTTL {
		a.pending.Clear()
		a.progressAt = now
	}
	a.nonce = state.Nonce
	if !a.pending.Empty() {
		if top := a.pending.Values()[a.pending.Size()-1].(uint64); top+1 > a.nonce {
			a.nonce = top + 1
		}
	}
}

// IncrementNonce marks the current nonce as queued and moves to the next one.
func (a *Account) IncrementNonce() {
	a.Reserve(1)
}

// Reserve hands out n consecutive nonces and marks them pending.
func (a *Account) Reserve(n int) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending.Empty() {
		a.progressAt = a.now()
	}
	first := a.nonce
	for i := 0; i < n; i++ {
		a.pending.Add(a.nonce)
		a.nonce++
	}
	return first
}

// Release gives back nonces whose transactions never reached the network. The local nonce rolls
// back over any released tail so no gap is left behind.
func (a *Account) Release(nonces ...uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	released := make(map[uint64]bool, len(nonces))
	for _, n := range nonces {
		a.pending.Remove(n)
		released[n] = true
	}
	for a.nonce > a.confirmed && released[a.nonce-1] {
		a.nonce--
	}
}

// Pending lists queued nonces in ascending order.
func (a *Account) Pending() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]uint64, 0, a.pending.Size())
	for _, v := range a.pending.Values() {
		out = append(out, v.(uint64))
	}
	return out
}

// Snapshot is an immutable copy for status reporting.
type Snapshot struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
	Balance string `json:"balance"`
	Pending int    `json:"pending"`
}

func (a *Account) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Address: a.address.Bech32(),
		Nonce:   a.nonce,
		Balance: a.balance.EGLDString(),
		Pending: a.pending.Size(),
	}
}
