package database

import (
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"moff.io/wallet-shell/internal/config"
	"moff.io/wallet-shell/pkg/errors"
	"moff.io/wallet-shell/pkg/log"
)

const tablePrefix = "wallet_shell."

var Postgres *gorm.DB

// Init 连接postgres并迁移日志表
func Init(conf *config.DBCredential) (*gorm.DB, error) {
	cli, err := gorm.Open(postgres.Open(conf.Dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: tablePrefix,
		},
	})
	if err != nil {
		return nil, errors.WrapAndReport(err, "connect to pg")
	}
	db, err := cli.DB()
	if err != nil {
		return nil, errors.WrapAndReport(err, "get pg conn")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.WrapAndReport(err, "ping to pg")
	}
	log.Info("Connected to postgres...")

	if err := cli.Exec("CREATE SCHEMA IF NOT EXISTS " + strings.TrimSuffix(tablePrefix, ".")).Error; err != nil {
		return nil, errors.WrapAndReport(err, "create schema")
	}
	if err := Migrate(cli); err != nil {
		return nil, err
	}
	Postgres = cli
	return cli, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&SentTransaction{},
		&Login{},
	)
	return errors.WrapAndReport(err, "autoMigrate tables")
}

func Close() {
	if Postgres == nil {
		return
	}
	if db, err := Postgres.DB(); err == nil {
		db.Close()
	}
	Postgres = nil
}
