package walletconnect

import (
	"context"

	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/pkg/errors"
)

var (
	// ErrRejected 用户在钱包中拒绝了会话或签名
	ErrRejected = errors.New("wallet rejected the request")
	// ErrTimeout 等待钱包确认超时
	ErrTimeout = errors.New("wallet approval timed out")
	// ErrNotConnected 没有已建立的会话
	ErrNotConnected = errors.New("wallet not connected")
	// ErrBusy 已有进行中的连接流程
	ErrBusy = errors.New("wallet connection already in progress")

	errSessionClosed = errors.New("session closed")
)

// BridgeError is a transport failure between the client and the bridge.
type BridgeError struct {
	Op  string
	Err error
}

func (e *BridgeError) Error() string {
	return "wallet connect bridge " + e.Op + ": " + e.Err.Error()
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// Client wallet connect v1 bridge 客户端
// 交互流程见文档：https://docs.walletconnect.com/tech-spec#establishing-connection
type Client interface {

	// PairingURI 生成新的握手topic与密钥，返回用于展示二维码的uri
	PairingURI() (string, error)

	// QRCode 返回当前 PairingURI 的PNG二维码
	QRCode() ([]byte, error)

	// Connect 在展示二维码后等待钱包建立会话。authToken 不为空时请求钱包签名登录token，
	// 返回的 Login.Signature 即为签名结果。
	// 用户拒绝返回 ErrRejected，超时返回 ErrTimeout。
	Connect(ctx context.Context, authToken string) (*Login, error)

	// Resume 恢复持久化的会话，不存在或已过期时返回false
	Resume(ctx context.Context) (*Login, bool, error)

	Sign(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error)

	// SignBatch 请求钱包一次确认签名多笔交易
	SignBatch(ctx context.Context, txs []*transaction.Transaction) ([]*transaction.Transaction, error)

	// Disconnect 断开会话，未连接时直接返回
	Disconnect(ctx context.Context) error

	// Events 会话生命周期事件：connected、disconnected、expired
	Events() <-chan Event
}

// DisplayQRCodeFn 展示二维码的函数
type DisplayQRCodeFn func(uri string, png []byte) error

// EventType of a session lifecycle notification.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventExpired      EventType = "expired"
)

type Event struct {
	Type    EventType
	Address string
	// Remote is true when the wallet or the bridge ended the session.
	Remote bool
}

// Login is the outcome of an approved session.
type Login struct {
	Address   string
	Signature string
	ChainID   string
}
