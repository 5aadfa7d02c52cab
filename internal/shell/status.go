package shell

import (
	"moff.io/wallet-shell/internal/account"
	"moff.io/wallet-shell/internal/nativeauth"
	"moff.io/wallet-shell/internal/provider"
	"moff.io/wallet-shell/internal/walletconnect"
	"moff.io/wallet-shell/pkg/errors"
)

// Kind 错误分类，仅用于展示，不触发任何恢复
type Kind int

const (
	KindUnclassified Kind = iota
	KindAuthorization
	KindRemoteAPI
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindRemoteAPI:
		return "remote_api"
	}
	return "unclassified"
}

// Classify maps err onto the three recognized failure kinds.
func Classify(err error) Kind {
	var bridgeErr *walletconnect.BridgeError
	switch {
	case err == nil:
		return KindUnclassified
	case errors.Is(err, walletconnect.ErrRejected),
		errors.Is(err, walletconnect.ErrTimeout),
		nativeauth.IsValidationError(err):
		return KindAuthorization
	case provider.IsAPIError(err), errors.As(err, &bridgeErr):
		return KindRemoteAPI
	}
	return KindUnclassified
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

const (
	msgLooking         = "Looking for wallet connection..."
	msgConnectWith     = "Connect with xPortal App"
	msgWaiting         = "Waiting for wallet connection..."
	msgConnected       = "Wallet connected"
	msgDisconnected    = "Wallet disconnected"
	msgExpired         = "Wallet session expired"
	msgNotApproved     = "Wallet connection was not approved"
	msgTransactionSent = "Transaction sent to network"
	msgBatchSent       = "Transactions sent to network"
)

// StatusMessage renders err the way it is shown to the user.
func StatusMessage(err error) (string, Level) {
	switch Classify(err) {
	case KindAuthorization:
		return "Wallet Exception: " + err.Error(), LevelWarning
	case KindRemoteAPI:
		return "API Exception: " + err.Error(), LevelError
	}
	return "Exception: " + err.Error(), LevelError
}

func connectFailureMessage(err error) (string, Level) {
	if errors.Is(err, walletconnect.ErrRejected) || errors.Is(err, walletconnect.ErrTimeout) {
		return msgNotApproved, LevelWarning
	}
	return StatusMessage(err)
}

// Status is a point-in-time view of the shell.
type Status struct {
	State      State             `json:"state"`
	Address    string            `json:"address,omitempty"`
	ChainID    string            `json:"chainId,omitempty"`
	Account    *account.Snapshot `json:"account,omitempty"`
	PairingURI string            `json:"pairingUri,omitempty"`
	Message    string            `json:"message"`
	Level      Level             `json:"level"`
}

type NotificationType string

const (
	NotifyConnected    NotificationType = "connected"
	NotifyDisconnected NotificationType = "disconnected"
	NotifyExpired      NotificationType = "expired"
	NotifySent         NotificationType = "sent"
	NotifyFailed       NotificationType = "failed"
)

type Notification struct {
	Type      NotificationType `json:"type"`
	Address   string           `json:"address,omitempty"`
	ChainID   string           `json:"chainId,omitempty"`
	BatchID   string           `json:"batchId,omitempty"`
	Hashes    []string         `json:"hashes,omitempty"`
	Kind      string           `json:"kind,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp int64            `json:"timestamp"`
}
