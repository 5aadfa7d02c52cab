package database

import (
	"strings"

	"github.com/jackc/pgconn"
	"moff.io/wallet-shell/pkg/errors"
)

const (
	// postgres unique_violation
	uniqueViolationCode   = "23505"
	duplicateKeyErrString = "duplicate key"
	sqliteUniqueErrString = "UNIQUE constraint failed"
)

// IsDuplicateKeyErr 返回是否为唯一键冲突错误
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	msg := err.Error()
	return strings.Contains(msg, duplicateKeyErrString) || strings.Contains(msg, sqliteUniqueErrString)
}
