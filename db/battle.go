package db

import (
	"github.com/COAOX/timeline_wars/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type battle db

// Save inserts or replaces the archived battle and its payouts.
func (b *battle) Save(m *model.Battle) error {
	return b.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "battle_id"}},
			UpdateAll: true,
		}).Omit("Payouts").Create(m).Error
		if err != nil {
			return err
		}
		if err := tx.Where("battle_id = ?", m.BattleID).Delete(&model.Payout{}).Error; err != nil {
			return err
		}
		if len(m.Payouts) == 0 {
			return nil
		}
		return tx.Create(&m.Payouts).Error
	})
}

func (b *battle) Get(battleID string) (*model.Battle, error) {
	var m model.Battle
	err := b.db.Preload(clause.Associations).First(&m, "battle_id = ?", battleID).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (b *battle) GetLastWinner() (*model.Battle, error) {
	var m model.Battle
	res := b.db.Where("status = ?", "ended").Order(clause.OrderByColumn{Column: clause.Column{Name: "end_time"}, Desc: true}).Limit(1).Find(&m)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

type payout db

func (p *payout) ListByPlayer(playerID string, limit int) ([]model.Payout, error) {
	var payouts []model.Payout
	err := p.db.Where("player_id = ?", playerID).Order("created_at DESC").Limit(limit).Find(&payouts).Error
	return payouts, err
}
