package economy

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
)

func TestPower(t *testing.T) {
	assert.Equal(t, float64(GenesisPower), Power(PowerInput{Role: RoleGenesis, BackedAmount: 900, MintCost: 10}))
	assert.Equal(t, 255.0, Power(PowerInput{Role: RoleUserSubmitted, RelevanceScore: 80, StyleMatchScore: 70, MintCost: 100, BackedAmount: 80}))
	assert.Equal(t, 150.0, Power(PowerInput{Role: RoleRogueAgent, RelevanceScore: 50, StyleMatchScore: 50, MintCost: 100}))
}

func TestDominance(t *testing.T) {
	a, b := Dominance(0, 0)
	assert.Equal(t, 50.0, a)
	assert.Equal(t, 50.0, b)
	a, b = Dominance(300, 100)
	assert.Equal(t, 75.0, a)
	assert.Equal(t, 25.0, b)
}

func TestEntropy(t *testing.T) {
	minted := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, Entropy(minted, minted, 0))
	assert.Equal(t, 6, Entropy(minted, minted.Add(73*time.Hour), 0))
	assert.Equal(t, 26, Entropy(minted, minted.Add(73*time.Hour), DefaultAcceleration))
	assert.Equal(t, MaxEntropy, Entropy(minted, minted.Add(400*24*time.Hour), 0))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("")
	assert.T(t, ok)
	assert.Equal(t, RoleUserSubmitted, r)
	_, ok = ParseRole("ADMIN")
	assert.T(t, !ok)
}

func TestSplitPoolSumsToTotal(t *testing.T) {
	assert.Equal(t, Pool{}, SplitPool(0))
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		total := rnd.Int63n(1 << 40)
		p := SplitPool(total)
		assert.Equal(t, total, p.WinnerShare+p.LoserShare+p.SystemFee)
		assert.T(t, p.SystemFee >= 0)
	}
	p := SplitPool(1000)
	assert.Equal(t, Pool{Total: 1000, WinnerShare: 700, LoserShare: 250, SystemFee: 50}, p)
}

func TestDistribute(t *testing.T) {
	payouts, dust := Distribute(700, []Contribution{{"carol", 100}, {"alice", 150}, {"bob", 50}}, true)
	assert.Equal(t, []Payout{
		{User: "alice", Amount: 350, Winner: true},
		{User: "bob", Amount: 116, Winner: true},
		{User: "carol", Amount: 233, Winner: true},
	}, payouts)
	assert.Equal(t, int64(1), dust)

	payouts, dust = Distribute(250, nil, false)
	assert.Equal(t, 0, len(payouts))
	assert.Equal(t, int64(250), dust)

	payouts, dust = Distribute(0, []Contribution{{"alice", 10}}, false)
	assert.Equal(t, 0, len(payouts))
	assert.Equal(t, int64(0), dust)
}

func TestMemoryLedgerDebitInsufficient(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(100)
	l.Set("u1", 50)

	_, err := l.Debit(ctx, "u1", 100, "mint")
	assert.T(t, errors.Is(err, ErrInsufficientFunds))
	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(50), bal)
	assert.Equal(t, 0, len(l.Transactions("u1")))

	bal, err = l.Debit(ctx, "u1", 30, "mint")
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(20), bal)
	bal, _ = l.Credit(ctx, "u1", 5, "refund")
	assert.Equal(t, int64(25), bal)

	txs := l.Transactions("u1")
	assert.Equal(t, 2, len(txs))
	assert.Equal(t, TxEarn, txs[1].Kind)
	assert.Equal(t, int64(25), txs[1].BalanceAfter)
}

func TestMemoryLedgerConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(100)
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, "u1", 10, "spam"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, ok)
	bal, _ := l.Balance(ctx, "u1")
	assert.Equal(t, int64(0), bal)
}

func TestTreasury(t *testing.T) {
	tr := NewTreasury(0)
	assert.T(t, !tr.Withdraw(100))
	tr.Deposit(150)
	assert.T(t, tr.Withdraw(100))
	assert.Equal(t, TreasuryState{Balance: 50, TotalEarned: 150, TotalSpent: 100}, tr.State())
}

func TestCalculateOdds(t *testing.T) {
	a, b := CalculateOdds(0, 0)
	assert.Equal(t, 2.0, a)
	assert.Equal(t, 2.0, b)

	a, b = CalculateOdds(100, 0)
	assert.Equal(t, 1.01, a)
	assert.Equal(t, 10.0, b)

	a, b = CalculateOdds(100, 300)
	assert.Equal(t, 3.8, a)
	assert.Equal(t, 1.27, b)
}

func TestBookLocksOddsAndSettles(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	k := NewBook(func() time.Time { return at })

	_, err := k.Place("b1", "u1", "A", 9)
	assert.T(t, errors.Is(err, ErrBetAmount))
	_, err = k.Place("b1", "u1", "A", 1001)
	assert.T(t, errors.Is(err, ErrBetAmount))
	_, err = k.Place("b1", "u1", "C", 100)
	assert.T(t, errors.Is(err, ErrBetSide))

	first, err := k.Place("b1", "u1", "A", 100)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2.0, first.Odds)
	second, _ := k.Place("b1", "u2", "B", 300)
	assert.Equal(t, 10.0, second.Odds)
	k.Place("b2", "u1", "B", 50)

	o := k.Odds("b1")
	assert.Equal(t, 3.8, o.A)
	assert.Equal(t, 1.27, o.B)
	assert.Equal(t, int64(400), o.Total)
	assert.Equal(t, 2, o.Bets)

	settled := k.Settle("b1", "A")
	assert.Equal(t, 2, len(settled))
	assert.Equal(t, BetWon, settled[0].Status)
	assert.Equal(t, int64(200), settled[0].Payout)
	assert.Equal(t, BetLost, settled[1].Status)
	assert.Equal(t, int64(0), settled[1].Payout)
	assert.Equal(t, 0, len(k.Settle("b1", "B")))
	assert.Equal(t, int64(200), k.Odds("b1").PaidOut)

	_, err = k.Place("b1", "u3", "A", 100)
	assert.T(t, errors.Is(err, ErrBettingClosed))

	h := k.History("u1")
	assert.Equal(t, 2, len(h))
	assert.Equal(t, "b2", h[0].BattleID)
	assert.Equal(t, BetOpen, h[0].Status)
	assert.Equal(t, BetWon, h[1].Status)
	assert.Equal(t, 0, len(k.History("nobody")))
}

func TestBookDrawRefunds(t *testing.T) {
	k := NewBook(time.Now)
	k.Place("b1", "u1", "A", 10)
	k.Place("b1", "u2", "B", 1000)
	for _, bet := range k.Settle("b1", "") {
		assert.Equal(t, BetRefunded, bet.Status)
		assert.Equal(t, bet.Amount, bet.Payout)
	}
	assert.Equal(t, int64(1010), k.Odds("b1").PaidOut)
}
