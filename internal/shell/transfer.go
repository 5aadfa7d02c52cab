package shell

import (
	"context"
	"fmt"

	"moff.io/wallet-shell/internal/address"
	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

const maxBatchSize = 100

// SentTransaction is one transaction accepted by the network.
type SentTransaction struct {
	Hash     string `json:"hash"`
	Nonce    uint64 `json:"nonce"`
	Receiver string `json:"receiver"`
	Value    string `json:"value"`
	Data     string `json:"data,omitempty"`
}

// Receipt lists what a send or batch put on the network, in submission order.
type Receipt struct {
	BatchID      string             `json:"batchId"`
	Transactions []*SentTransaction `json:"transactions"`
}

// Send transfers amount EGLD to receiver in a single signed transaction.
func (s *Shell) Send(ctx context.Context, receiver, amount string) (*Receipt, error) {
	return s.transfer(ctx, receiver, amount, 0)
}

// SendBatch builds count transfers with consecutive nonces, has the wallet sign them at once and
// submits them together. A failed batch reports nothing as sent. count 0 uses the configured size.
func (s *Shell) SendBatch(ctx context.Context, receiver, amount string, count int) (*Receipt, error) {
	if count == 0 {
		count = s.batchSize
	}
	if count < 1 || count > maxBatchSize {
		return nil, errors.Wrapf(ErrInvalidBatchSize, "%d", count)
	}
	return s.transfer(ctx, receiver, amount, count)
}

// transfer sends one plain transaction when count is 0, otherwise a batch of count.
func (s *Shell) transfer(ctx context.Context, receiver, amount string, count int) (receipt *Receipt, err error) {
	if !s.busy.CAS(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	sess, err := s.current()
	if err != nil {
		return nil, err
	}
	to, err := address.FromBech32(receiver)
	if err != nil {
		return nil, err
	}
	value, err := transaction.EGLD(amount)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.failTransfer(sess.epoch, err)
		}
	}()

	acct := sess.account
	if err := acct.Sync(ctx, s.provider); err != nil {
		return nil, err
	}

	n := count
	if n == 0 {
		n = 1
	}
	transfers := make([]transaction.Transfer, 0, n)
	for i := 0; i < n; i++ {
		data := fmt.Sprintf("Tx %d", i+1)
		if count == 0 {
			data = "SEND " + amount
		}
		transfers = append(transfers, transaction.Transfer{Receiver: to, Amount: value, Data: data})
	}
	first := acct.Reserve(n)
	nonces := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		nonces = append(nonces, first+uint64(i))
	}
	sent := false
	defer func() {
		if !sent {
			acct.Release(nonces...)
		}
	}()

	txs, err := transaction.BuildBatch(sess.network, acct.Address(), first, transfers)
	if err != nil {
		return nil, err
	}
	signed, err := s.sign(ctx, txs, count == 0)
	if err != nil {
		return nil, err
	}
	if !s.isCurrent(sess.epoch) {
		return nil, ErrSessionChanged
	}
	hashes, err := s.submit(ctx, signed, count == 0)
	if err != nil {
		return nil, err
	}
	sent = true

	receipt = &Receipt{BatchID: s.ids.Generate().String()}
	for i, tx := range signed {
		receipt.Transactions = append(receipt.Transactions, &SentTransaction{
			Hash:     hashes[i],
			Nonce:    tx.Nonce,
			Receiver: tx.Receiver,
			Value:    tx.Value,
			Data:     string(tx.Data),
		})
	}
	if s.journal != nil {
		if err := s.journal.RecordSent(ctx, receipt.BatchID, signed, hashes); err != nil {
			log.Warnf("record batch %v:%v", receipt.BatchID, err)
		}
	}

	message := msgTransactionSent
	if count > 0 {
		message = msgBatchSent
	}
	s.mu.Lock()
	if s.epoch == sess.epoch {
		s.setMessageLocked(message, LevelSuccess)
	}
	s.mu.Unlock()
	log.Infof("batch %v: %d transaction(s) from %v accepted, nonces %v..%v",
		receipt.BatchID, len(hashes), acct.Address(), first, first+uint64(n-1))
	s.notify(Notification{
		Type:    NotifySent,
		Address: acct.Address().Bech32(),
		ChainID: sess.network.ChainID,
		BatchID: receipt.BatchID,
		Hashes:  hashes,
	})
	return receipt, nil
}

func (s *Shell) sign(ctx context.Context, txs []*transaction.Transaction, single bool) ([]*transaction.Transaction, error) {
	if single {
		signed, err := s.wallet.Sign(ctx, txs[0])
		if err != nil {
			return nil, err
		}
		return []*transaction.Transaction{signed}, nil
	}
	return s.wallet.SignBatch(ctx, txs)
}

func (s *Shell) submit(ctx context.Context, txs []*transaction.Transaction, single bool) ([]string, error) {
	if single {
		hash, err := s.provider.SendTransaction(ctx, txs[0])
		if err != nil {
			return nil, err
		}
		return []string{hash}, nil
	}
	hashes, err := s.provider.SendTransactions(ctx, txs)
	if err != nil {
		return nil, err
	}
	if len(hashes) != len(txs) {
		return nil, errors.Errorf("network accepted %d of %d transactions", len(hashes), len(txs))
	}
	return hashes, nil
}

func (s *Shell) failTransfer(epoch uint64, err error) {
	message, level := StatusMessage(err)
	s.mu.Lock()
	if s.epoch == epoch {
		s.setMessageLocked(message, level)
	}
	s.mu.Unlock()
	log.Warnf("transfer failed:%v", err)
	s.notify(Notification{Type: NotifyFailed, Kind: Classify(err).String(), Message: err.Error()})
}
