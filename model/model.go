package model

import (
	"time"

	"gorm.io/gorm"
)

type Player struct {
	PlayerID  string `gorm:"primaryKey" json:"player_id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Balance   int64  `json:"balance"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Battle is the archived record of a battle.
type Battle struct {
	gorm.Model
	BattleID    string    `gorm:"uniqueIndex" json:"battle_id"`
	Topic       string    `json:"topic"`
	Description string    `json:"description"`
	FactionA    string    `json:"faction_a"`
	FactionB    string    `json:"faction_b"`
	Status      string    `json:"status"`
	Rounds      int       `json:"rounds"`
	Winner      string    `json:"winner"`
	VotesA      int       `json:"votes_a"`
	VotesB      int       `json:"votes_b"`
	PowerA      float64   `json:"power_a"`
	PowerB      float64   `json:"power_b"`
	PoolTotal   int64     `json:"pool_total"`
	WinnerShare int64     `json:"winner_share"`
	LoserShare  int64     `json:"loser_share"`
	SystemFee   int64     `json:"system_fee"`
	Burned      int64     `json:"burned"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	// Snapshot is the JSON encoded terminal state.
	Snapshot string   `gorm:"type:text" json:"-"`
	Payouts  []Payout `gorm:"foreignKey:BattleID;references:BattleID" json:"payouts"`
}

type Payout struct {
	gorm.Model
	BattleID string `gorm:"index" json:"battle_id"`
	PlayerID string `gorm:"index" json:"player_id"`
	Amount   int64  `json:"amount"`
	Winner   bool   `json:"winner"`
}

type LedgerEntry struct {
	gorm.Model
	PlayerID     string `gorm:"index" json:"player_id"`
	Kind         string `json:"kind"`
	Amount       int64  `json:"amount"`
	Memo         string `json:"memo"`
	BalanceAfter int64  `json:"balance_after"`
}
