package db

import (
	"github.com/COAOX/timeline_wars/model"
	"gorm.io/gorm"
)

type player db

func (p *player) Get(playerID string) (model.Player, error) {
	var player model.Player
	err := p.db.First(&player, "player_id = ?", playerID).Error
	return player, err
}

func (p *player) IncreaseScore(playerIDs []string) error {
	if len(playerIDs) == 0 {
		return nil
	}
	return p.db.Model(&model.Player{}).Where("player_id IN ?", playerIDs).Update("score", gorm.Expr("score + ?", 1)).Error
}

// Top lists players by score, highest first.
func (p *player) Top(limit int) ([]model.Player, error) {
	var players []model.Player
	err := p.db.Order("score DESC").Order("player_id").Limit(limit).Find(&players).Error
	return players, err
}
