package transaction

import (
	"fmt"

	"moff.io/wallet-shell/internal/address"
	"moff.io/wallet-shell/internal/network"
	"moff.io/wallet-shell/pkg/errors"
)

// Transaction 提交至网关的交易结构，签名由钱包完成后回填
type Transaction struct {
	Nonce     uint64 `json:"nonce"`
	Value     string `json:"value"`
	Receiver  string `json:"receiver"`
	Sender    string `json:"sender"`
	GasPrice  uint64 `json:"gasPrice"`
	GasLimit  uint64 `json:"gasLimit"`
	Data      []byte `json:"data,omitempty"`
	Signature string `json:"signature,omitempty"`
	ChainID   string `json:"chainID"`
	Version   uint32 `json:"version"`
}

func (tx *Transaction) Signed() bool {
	return tx.Signature != ""
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("nonce=%d %s -> %s value=%s", tx.Nonce, tx.Sender, tx.Receiver, tx.Value)
}

var ErrMissingNetworkConfig = errors.New("network config not loaded")

// EGLDTransfer builds an unsigned value transfer from sender at nonce.
func EGLDTransfer(cfg *network.Config, sender address.Address, nonce uint64, receiver address.Address, amount Amount, data string) (*Transaction, error) {
	if cfg == nil {
		return nil, ErrMissingNetworkConfig
	}
	if sender.IsZero() || receiver.IsZero() {
		return nil, errors.Wrap(address.ErrInvalidAddress, "sender and receiver are required")
	}
	tx := &Transaction{
		Nonce:    nonce,
		Value:    amount.String(),
		Receiver: receiver.Bech32(),
		Sender:   sender.Bech32(),
		GasPrice: cfg.MinGasPrice,
		GasLimit: cfg.GasLimitFor(len(data)),
		ChainID:  cfg.ChainID,
		Version:  cfg.MinTransactionVersion,
	}
	if data != "" {
		tx.Data = []byte(data)
	}
	return tx, nil
}

// Transfer is one leg of a batch.
type Transfer struct {
	Receiver address.Address
	Amount   Amount
	Data     string
}

// BuildBatch builds transfers with consecutive nonces starting at firstNonce, in order.
func BuildBatch(cfg *network.Config, sender address.Address, firstNonce uint64, transfers []Transfer) ([]*Transaction, error) {
	txs := make([]*Transaction, 0, len(transfers))
	for i, t := range transfers {
		tx, err := EGLDTransfer(cfg, sender, firstNonce+uint64(i), t.Receiver, t.Amount, t.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "build transfer %d", i+1)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
