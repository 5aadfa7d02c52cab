package shell

import (
	"context"

	"moff.io/wallet-shell/internal/account"
	"moff.io/wallet-shell/internal/nativeauth"
	"moff.io/wallet-shell/internal/network"
	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/pkg/errors"
)

// State 会话状态机: Disconnected -> Connecting -> Connected -> Disconnected
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var (
	ErrBusy             = errors.New("another wallet action is in progress")
	ErrAlreadyConnected = errors.New("wallet already connected")
	ErrNotConnected     = errors.New("wallet not connected")
	// ErrSessionChanged 操作进行中会话被断开或替换，结果被丢弃
	ErrSessionChanged   = errors.New("wallet session changed during the action")
	ErrInvalidBatchSize = errors.New("invalid batch size")
)

// TokenIssuer native auth 客户端
type TokenIssuer interface {
	GenerateToken(ctx context.Context) (string, error)
	GetAccessToken(address, token, signature string) string
}

// TokenValidator native auth 服务端校验
type TokenValidator interface {
	Validate(ctx context.Context, accessToken string) (*nativeauth.Result, error)
}

// Provider 网络配置、账户查询与交易提交
type Provider interface {
	account.Fetcher
	GetNetworkConfig(ctx context.Context) (*network.Config, error)
	SendTransaction(ctx context.Context, tx *transaction.Transaction) (string, error)
	SendTransactions(ctx context.Context, txs []*transaction.Transaction) ([]string, error)
}

// Journal persists logins and accepted transactions. Optional.
type Journal interface {
	RecordLogin(ctx context.Context, res *nativeauth.Result) error
	RecordSent(ctx context.Context, batchID string, txs []*transaction.Transaction, hashes []string) error
}

// Notifier receives lifecycle and transfer notifications. Optional.
type Notifier interface {
	Notify(n Notification)
}

type Option func(*Shell)

func WithJournal(j Journal) Option {
	return func(s *Shell) {
		s.journal = j
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Shell) {
		s.notifier = n
	}
}

// WithBatchSize sets the number of transfers SendBatch builds when no count is given.
func WithBatchSize(n int) Option {
	return func(s *Shell) {
		if n > 0 {
			s.batchSize = n
		}
	}
}
