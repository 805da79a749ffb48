package db

import (
	"context"

	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ economy.Ledger = (*Ledger)(nil)

// Ledger keeps token balances in the players table. New players start with the opening balance.
type Ledger struct {
	db      *gorm.DB
	opening int64
}

func (c *Client) Ledger(opening int64) *Ledger {
	return &Ledger{db: c.DB, opening: opening}
}

func (l *Ledger) ensure(tx *gorm.DB, user string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Player{PlayerID: user, Balance: l.opening}).Error
}

func (l *Ledger) balance(tx *gorm.DB, user string) (int64, error) {
	var p model.Player
	err := tx.Select("balance").First(&p, "player_id = ?", user).Error
	return p.Balance, err
}

func (l *Ledger) record(tx *gorm.DB, user string, kind economy.TxKind, amount int64, memo string) (int64, error) {
	bal, err := l.balance(tx, user)
	if err != nil {
		return 0, err
	}
	err = tx.Create(&model.LedgerEntry{PlayerID: user, Kind: string(kind), Amount: amount, Memo: memo, BalanceAfter: bal}).Error
	return bal, err
}

// Debit takes amount only if the whole amount is covered; the check and the update are one statement.
func (l *Ledger) Debit(ctx context.Context, user string, amount int64, memo string) (int64, error) {
	var bal int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.ensure(tx, user); err != nil {
			return err
		}
		res := tx.Model(&model.Player{}).
			Where("player_id = ? AND balance >= ?", user, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			cur, err := l.balance(tx, user)
			if err != nil {
				return err
			}
			bal = cur
			return &economy.InsufficientFundsError{User: user, Need: amount, Balance: cur}
		}
		var err error
		bal, err = l.record(tx, user, economy.TxSpend, amount, memo)
		return err
	})
	return bal, err
}

func (l *Ledger) Credit(ctx context.Context, user string, amount int64, memo string) (int64, error) {
	var bal int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"balance": gorm.Expr("players.balance + ?", amount)}),
		}).Create(&model.Player{PlayerID: user, Balance: l.opening + amount}).Error
		if err != nil {
			return err
		}
		bal, err = l.record(tx, user, economy.TxEarn, amount, memo)
		return err
	})
	return bal, err
}

func (l *Ledger) Balance(ctx context.Context, user string) (int64, error) {
	tx := l.db.WithContext(ctx)
	if err := l.ensure(tx, user); err != nil {
		return 0, err
	}
	return l.balance(tx, user)
}
