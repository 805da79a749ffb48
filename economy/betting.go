package economy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	MinBet           = 10
	MaxBet           = 1000
	HouseEdgePercent = 5

	// odds are kept in hundredths
	minOddsCents   = 101
	emptySideCents = 1000
	evenOddsCents  = 200
)

var (
	ErrBetAmount     = errors.New("bet amount out of range")
	ErrBetSide       = errors.New("bet side must be A or B")
	ErrBettingClosed = errors.New("betting closed")
)

type BetStatus string

const (
	BetOpen     BetStatus = "open"
	BetWon      BetStatus = "won"
	BetLost     BetStatus = "lost"
	BetRefunded BetStatus = "refunded"
)

// Bet is one wager on a side of a battle. Odds are locked when it is placed.
type Bet struct {
	ID       string    `json:"id"`
	User     string    `json:"user"`
	BattleID string    `json:"battle_id"`
	Side     string    `json:"side"`
	Amount   int64     `json:"amount"`
	Odds     float64   `json:"odds"`
	PlacedAt time.Time `json:"placed_at"`
	Status   BetStatus `json:"status"`
	Payout   int64     `json:"payout"`

	cents int64
	seq   int64
}

// Odds is the betting state of one battle.
type Odds struct {
	A       float64 `json:"a"`
	B       float64 `json:"b"`
	BetsOnA int64   `json:"bets_on_a"`
	BetsOnB int64   `json:"bets_on_b"`
	Total   int64   `json:"total"`
	Bets    int     `json:"bets"`
	Settled bool    `json:"settled"`
	Winner  string  `json:"winner,omitempty"`
	PaidOut int64   `json:"paid_out,omitempty"`
}

// CalculateOdds prices each side as the pool less the house edge over that side's stake,
// rounded to hundredths and never below 1.01. An empty side pays 10x; an empty pool pays 2x.
func CalculateOdds(betsOnA, betsOnB int64) (float64, float64) {
	a, b := oddsCents(betsOnA, betsOnB)
	return float64(a) / 100, float64(b) / 100
}

func oddsCents(betsOnA, betsOnB int64) (int64, int64) {
	total := betsOnA + betsOnB
	if total <= 0 {
		return evenOddsCents, evenOddsCents
	}
	side := func(stake int64) int64 {
		if stake <= 0 {
			return emptySideCents
		}
		// round half up of (100-edge) * total / stake
		c := mulDiv(2*(100-HouseEdgePercent), total, stake)
		c = (c + 1) / 2
		if c < minOddsCents {
			return minOddsCents
		}
		return c
	}
	return side(betsOnA), side(betsOnB)
}

type betPool struct {
	betsOnA int64
	betsOnB int64
	bets    []*Bet
	settled bool
	winner  string
	paidOut int64
}

// Book holds the betting pool of every battle.
type Book struct {
	mu    sync.Mutex
	now   func() time.Time
	pools map[string]*betPool
	seq   int64
}

func NewBook(now func() time.Time) *Book {
	return &Book{now: now, pools: map[string]*betPool{}}
}

func (k *Book) pool(battleID string) *betPool {
	p, ok := k.pools[battleID]
	if !ok {
		p = &betPool{}
		k.pools[battleID] = p
	}
	return p
}

func (k *Book) Odds(battleID string) Odds {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.pools[battleID]
	if !ok {
		return Odds{A: evenOddsCents / 100, B: evenOddsCents / 100}
	}
	a, b := CalculateOdds(p.betsOnA, p.betsOnB)
	return Odds{
		A:       a,
		B:       b,
		BetsOnA: p.betsOnA,
		BetsOnB: p.betsOnB,
		Total:   p.betsOnA + p.betsOnB,
		Bets:    len(p.bets),
		Settled: p.settled,
		Winner:  p.winner,
		PaidOut: p.paidOut,
	}
}

// Place records a bet at the current odds of its side. The stake must already be debited.
func (k *Book) Place(battleID, user, side string, amount int64) (Bet, error) {
	if amount < MinBet || amount > MaxBet {
		return Bet{}, fmt.Errorf("%w: %d not within %d..%d", ErrBetAmount, amount, MinBet, MaxBet)
	}
	if side != "A" && side != "B" {
		return Bet{}, fmt.Errorf("%w: %q", ErrBetSide, side)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	p := k.pool(battleID)
	if p.settled {
		return Bet{}, fmt.Errorf("%w: battle %s is settled", ErrBettingClosed, battleID)
	}
	a, b := oddsCents(p.betsOnA, p.betsOnB)
	bet := &Bet{
		ID:       uuid.NewString(),
		User:     user,
		BattleID: battleID,
		Side:     side,
		Amount:   amount,
		PlacedAt: k.now(),
		Status:   BetOpen,
		cents:    a,
		seq:      k.seq,
	}
	k.seq++
	if side == "A" {
		p.betsOnA += amount
	} else {
		bet.cents = b
		p.betsOnB += amount
	}
	bet.Odds = float64(bet.cents) / 100
	p.bets = append(p.bets, bet)
	return *bet, nil
}

// Settle closes the battle's pool and prices every bet. Winning bets pay amount times their
// locked odds, floored. An empty winner is a draw and refunds every stake. Only the first
// call returns bets.
func (k *Book) Settle(battleID, winner string) []Bet {
	k.mu.Lock()
	defer k.mu.Unlock()
	p := k.pool(battleID)
	if p.settled {
		return nil
	}
	p.settled = true
	p.winner = winner
	ret := make([]Bet, 0, len(p.bets))
	for _, bet := range p.bets {
		switch {
		case winner == "":
			bet.Status = BetRefunded
			bet.Payout = bet.Amount
		case bet.Side == winner:
			bet.Status = BetWon
			bet.Payout = mulDiv(bet.Amount, bet.cents, 100)
		default:
			bet.Status = BetLost
		}
		p.paidOut += bet.Payout
		ret = append(ret, *bet)
	}
	return ret
}

func (k *Book) Bets(battleID string) []Bet {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.pools[battleID]
	if !ok {
		return []Bet{}
	}
	ret := make([]Bet, 0, len(p.bets))
	for _, bet := range p.bets {
		ret = append(ret, *bet)
	}
	return ret
}

// History returns the user's bets across battles, newest first.
func (k *Book) History(user string) []Bet {
	k.mu.Lock()
	defer k.mu.Unlock()
	ret := []Bet{}
	for _, p := range k.pools {
		for _, bet := range p.bets {
			if bet.User == user {
				ret = append(ret, *bet)
			}
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].seq > ret[j].seq })
	return ret
}
