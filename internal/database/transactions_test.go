package database

import (
	"context"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"moff.io/wallet-shell/internal/nativeauth"
	"moff.io/wallet-shell/internal/transaction"
	"moff.io/wallet-shell/pkg/errors"
)

func newJournal(t *testing.T) *Journal {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return NewJournal(db)
}

func batch(n int) []*transaction.Transaction {
	txs := make([]*transaction.Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, &transaction.Transaction{
			Nonce:    uint64(10 + i),
			Value:    "1000",
			Sender:   "erd1sender",
			Receiver: "erd1receiver",
			Data:     []byte("Tx"),
			ChainID:  "D",
		})
	}
	return txs
}

func TestRecordSent(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	require.NoError(t, j.RecordSent(ctx, "b1", batch(3), []string{"h1", "h2", "h3"}))

	rows, err := j.ListSent(ctx, "erd1sender", 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "h3", rows[0].Hash)
	assert.EqualValues(t, 12, rows[0].Nonce)
	assert.Equal(t, "b1", rows[2].BatchID)

	none, err := j.ListSent(ctx, "erd1other", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordSentTwice(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	require.NoError(t, j.RecordSent(ctx, "b1", batch(2), []string{"h1", "h2"}))
	require.NoError(t, j.RecordSent(ctx, "b1", batch(2), []string{"h1", "h2"}))

	rows, err := j.ListSent(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: sent_transactions.hash")))
}

func TestRecordSentMismatch(t *testing.T) {
	j := newJournal(t)
	assert.Error(t, j.RecordSent(context.Background(), "b", batch(2), []string{"h"}))
}

func TestRecordLogin(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	require.NoError(t, j.RecordLogin(ctx, &nativeauth.Result{
		Address:   "erd1sender",
		Origin:    "wallet-shell",
		TTL:       60,
		Expires:   100,
		ExtraInfo: map[string]string{"timestamp": "1"},
	}))
	var login Login
	require.NoError(t, j.db.First(&login).Error)
	assert.Equal(t, "erd1sender", login.Address)
	assert.Equal(t, "1", login.ExtraInfo["timestamp"])
}
