package db

import (
	"fmt"

	"github.com/COAOX/timeline_wars/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	DSN string `json:"dsn" env:"TW_DATABASE_DSN"`
}

type db struct {
	db *gorm.DB
}

type Client struct {
	DB *gorm.DB

	Battle *battle
	Player *player
	Payout *payout
}

func NewClient(cfg Config) (*Client, error) {
	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := gdb.AutoMigrate(&model.Player{}, &model.Battle{}, &model.Payout{}, &model.LedgerEntry{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return newClient(gdb), nil
}

func newClient(gdb *gorm.DB) *Client {
	d := &db{db: gdb}
	return &Client{
		DB:     gdb,
		Battle: (*battle)(d),
		Player: (*player)(d),
		Payout: (*payout)(d),
	}
}
