package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"moff.io/wallet-shell/internal/nativeauth"
	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

// SentTransaction 已被网关接受的交易
type SentTransaction struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	Hash      string `gorm:"type:varchar(64);uniqueIndex" json:"hash"`
	BatchID   string `gorm:"type:varchar(32);index" json:"batchId"`
	Sender    string `gorm:"type:varchar(100);index" json:"sender"`
	Receiver  string `gorm:"type:varchar(100)" json:"receiver"`
	Nonce     uint64 `gorm:"type:int8" json:"nonce"`
	Value     string `gorm:"type:varchar(80)" json:"value"`
	Data      string `gorm:"type:text" json:"data,omitempty"`
	ChainID   string `gorm:"type:varchar(16)" json:"chainId"`
	CreatedAt int64  `gorm:"type:int8" json:"createdAt"`
}

// Login 通过native auth校验的登录
type Login struct {
	ID          int64    `gorm:"primaryKey"`
	Address     string   `gorm:"type:varchar(100);index"`
	Origin      string   `gorm:"type:varchar(255)"`
	BlockHash   string   `gorm:"type:varchar(64)"`
	TTL         int64    `gorm:"type:int8"`
	ExpiresAt   int64    `gorm:"type:int8"`
	ExtraInfo   JSONBMap `gorm:"type:jsonb"`
	ConnectedAt int64    `gorm:"type:int8"`
}

// Journal records logins and sent transactions.
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

func (j *Journal) RecordLogin(ctx context.Context, res *nativeauth.Result) error {
	extra := JSONBMap{}
	for k, v := range res.ExtraInfo {
		extra[k] = v
	}
	login := &Login{
		Address:     res.Address,
		Origin:      res.Origin,
		BlockHash:   res.BlockHash,
		TTL:         res.TTL,
		ExpiresAt:   res.Expires,
		ExtraInfo:   extra,
		ConnectedAt: j.now().UnixMilli(),
	}
	err := j.db.WithContext(ctx).Create(login).Error
	return errors.WrapAndReport(err, "create login")
}

// RecordSent stores one row per accepted transaction, hashes[i] belonging to txs[i].
func (j *Journal) RecordSent(ctx context.Context, batchID string, txs []*transaction.Transaction, hashes []string) error {
	if len(txs) != len(hashes) {
		return errors.Errorf("%d transactions but %d hashes", len(txs), len(hashes))
	}
	now := j.now().UnixMilli()
	rows := make([]*SentTransaction, 0, len(txs))
	for i, tx := range txs {
		rows = append(rows, &SentTransaction{
			Hash:      hashes[i],
			BatchID:   batchID,
			Sender:    tx.Sender,
			Receiver:  tx.Receiver,
			Nonce:     tx.Nonce,
			Value:     tx.Value,
			Data:      string(tx.Data),
			ChainID:   tx.ChainID,
			CreatedAt: now,
		})
	}
	err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if IsDuplicateKeyErr(err) {
		log.Warnf("transactions of batch %v already recorded", batchID)
		return nil
	}
	return errors.WrapAndReport(err, "create sent transactions")
}

// ListSent returns the latest transactions of sender, newest first.
func (j *Journal) ListSent(ctx context.Context, sender string, limit int) ([]*SentTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var rows []*SentTransaction
	q := j.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if sender != "" {
		q = q.Where("sender = ?", sender)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.WrapAndReport(err, "query sent transactions")
	}
	return rows, nil
}
