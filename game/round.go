package game

import (
	"context"
	"fmt"
	"time"

	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/event"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	rogueDominance = 70
	rogueCost      = 100
	rogueScore     = 50
)

type outcome struct {
	result   RoundResult
	snapshot Snapshot
	closed   bool
	ended    bool
}

// run is the battle's round timer and the only caller of advance.
func (b *Battle) run(ctx context.Context) {
	clock := b.store.Clock
	for {
		b.mu.Lock()
		round, deadline := b.round, b.deadline
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-clock.Until(deadline):
		}
		if b.tick(round) {
			return
		}
	}
}

// tick closes round if it is still the open one and reports whether the timer is done.
func (b *Battle) tick(round int) bool {
	out, stop := b.advance(round)
	b.publish(out)
	return stop
}

func (b *Battle) advance(round int) (out outcome, stop bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			b.haltLocked(fmt.Sprintf("round %d: %v", round, r))
			out, stop = outcome{}, true
		}
	}()
	if b.halted || b.stopped || b.status != StatusActive {
		return outcome{}, true
	}
	if b.round != round {
		return outcome{}, false
	}

	now := b.store.Clock.Now()
	res := b.closeRoundLocked(now)
	if b.round < b.totalRounds {
		b.round++
		b.roundStartedAt = now
		b.deadline = now.Add(b.roundDuration)
		b.spawnRogueLocked(now)
	} else {
		b.finishLocked(now)
	}
	if err := b.checkLocked(); err != nil {
		b.haltLocked(err.Error())
		return outcome{}, true
	}
	out = outcome{result: res, snapshot: b.snapshotLocked(), closed: true, ended: b.status == StatusEnded}
	if out.ended {
		b.final = &out.snapshot
	}
	return out, out.ended
}

// end closes the open round and ends the battle. On an ended battle it returns the
// terminal snapshot again and reports first as false.
func (b *Battle) end() (out outcome, first bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == StatusEnded && b.final != nil {
		return outcome{snapshot: *b.final}, false, nil
	}
	if err := b.checkMutable("end", StatusActive); err != nil {
		return outcome{}, false, err
	}
	now := b.store.Clock.Now()
	res := b.closeRoundLocked(now)
	b.finishLocked(now)
	if err := b.checkLocked(); err != nil {
		b.haltLocked(err.Error())
		return outcome{}, false, fail(ErrHalted, "battle %s halted: %s", b.ID, err)
	}
	out = outcome{result: res, snapshot: b.snapshotLocked(), closed: true, ended: true}
	b.final = &out.snapshot
	return out, true, nil
}

func (b *Battle) publish(out outcome) {
	if b.hooks == nil {
		return
	}
	if out.closed {
		b.hooks.roundClosed(b, out.snapshot, out.result)
	}
	if out.ended {
		b.hooks.ended(b, out.snapshot)
	}
}

func (b *Battle) closeRoundLocked(now time.Time) RoundResult {
	res := RoundResult{
		Round:     b.round,
		StartedAt: b.roundStartedAt,
		EndedAt:   now,
	}
	for _, f := range b.votes[b.round] {
		if f == FactionA {
			res.VotesA++
		} else {
			res.VotesB++
		}
	}
	res.PowerA, res.PowerB, res.Modifiers = b.effectivePowerLocked()

	switch {
	case res.VotesA != res.VotesB:
		res.Winner = FactionA
		if res.VotesB > res.VotesA {
			res.Winner = FactionB
		}
	case res.PowerA != res.PowerB:
		res.Winner = FactionA
		if res.PowerB > res.PowerA {
			res.Winner = FactionB
		}
	}
	switch res.Winner {
	case FactionA:
		b.score.RoundsWonA++
	case FactionB:
		b.score.RoundsWonB++
	}
	b.results = append(b.results, res)
	zap.L().Info("round closed", zap.String("battle_id", b.ID), zap.Int("round", res.Round),
		zap.Int("votes_a", res.VotesA), zap.Int("votes_b", res.VotesB),
		zap.Float64("power_a", res.PowerA), zap.Float64("power_b", res.PowerB),
		zap.Stringer("winner", res.Winner), zap.Strings("modifiers", res.Modifiers))
	return res
}

// finishLocked decides the winner (total votes, then base faction power, then A)
// and settles the reward pool and the bets.
func (b *Battle) finishLocked(now time.Time) {
	winner, decided := b.winnerLocked()

	total := int64(0)
	for _, a := range b.assets {
		total += a.MintCost + a.BackedAmount
	}
	r := &Rewards{}
	if b.store.Events.IsActive(b.ID, event.MarketCrash) {
		r.Burned = total / 2
		total -= r.Burned
	}
	r.Pool = economy.SplitPool(total)

	winPayouts, winDust := economy.Distribute(r.WinnerShare, b.contributionsLocked(winner), true)
	losePayouts, loseDust := economy.Distribute(r.LoserShare, b.contributionsLocked(winner.Opponent()), false)
	r.Payouts = append(winPayouts, losePayouts...)
	r.Treasury = r.SystemFee + winDust + loseDust
	b.store.Treasury.Deposit(r.Treasury)

	paid := make(map[string]int64, len(r.Payouts))
	for _, p := range r.Payouts {
		paid[p.User] += p.Amount
	}
	for _, a := range b.assets {
		if a.Faction == winner {
			a.Status = AssetCanonical
		} else {
			a.Status = AssetParadox
		}
		a.Reward = paid[a.Owner]
	}

	side := ""
	if decided {
		side = winner.String()
	}
	r.Bets = b.store.Bets.Settle(b.ID, side)

	b.winner = winner
	b.rewards = r
	b.status = StatusEnded
	b.endedAt = now
	if b.cancel != nil {
		b.cancel()
	}
	close(b.done)
	zap.L().Info("battle ended", zap.String("battle_id", b.ID), zap.Stringer("winner", winner),
		zap.Int64("pool", r.Total), zap.Int64("burned", r.Burned), zap.Int("payouts", len(r.Payouts)),
		zap.Int("bets", len(r.Bets)))
}

// winnerLocked ranks the sides by total votes, then by base power without round modifiers.
// A battle tied on both goes to A and is reported as undecided.
func (b *Battle) winnerLocked() (FactionID, bool) {
	switch {
	case b.score.VotesA != b.score.VotesB:
		if b.score.VotesB > b.score.VotesA {
			return FactionB, true
		}
		return FactionA, true
	case b.factions[0].Power() != b.factions[1].Power():
		if b.factions[1].Power() > b.factions[0].Power() {
			return FactionB, true
		}
		return FactionA, true
	}
	return FactionA, false
}

// contributionsLocked sums, per user, the mint cost of their assets and their backing on one side.
func (b *Battle) contributionsLocked(f FactionID) []economy.Contribution {
	stakes := map[string]int64{}
	var order []string
	add := func(user string, amount int64) {
		if systemOwned(user) || amount <= 0 {
			return
		}
		if _, ok := stakes[user]; !ok {
			order = append(order, user)
		}
		stakes[user] += amount
	}
	for _, a := range b.factions[f.index()].Assets {
		add(a.Owner, a.MintCost)
		for _, bk := range a.Backers {
			add(bk.User, bk.Amount)
		}
	}
	ret := make([]economy.Contribution, 0, len(order))
	for _, u := range order {
		ret = append(ret, economy.Contribution{User: u, Amount: stakes[u]})
	}
	return ret
}

// spawnRogueLocked funds a rogue agent for the weaker side of a lopsided battle.
func (b *Battle) spawnRogueLocked(now time.Time) {
	domA, domB := b.dominance()
	weak := FactionNone
	switch {
	case domA > rogueDominance:
		weak = FactionB
	case domB > rogueDominance:
		weak = FactionA
	}
	if weak == FactionNone || !b.store.Treasury.Withdraw(rogueCost) {
		return
	}
	a := &Asset{
		ID:              uuid.NewString(),
		Owner:           RogueAgentOwner,
		Faction:         weak,
		Role:            economy.RoleRogueAgent,
		RelevanceScore:  rogueScore,
		StyleMatchScore: rogueScore,
		MintCost:        rogueCost,
		Media:           Media{Prompt: b.factions[weak.index()].Info.Theme},
	}
	b.addAssetLocked(a, now)
	zap.L().Info("rogue agent spawned", zap.String("battle_id", b.ID), zap.Int("round", b.round),
		zap.Stringer("faction", weak), zap.Float64("dominance_a", domA))
}

func (b *Battle) checkLocked() error {
	if b.round < 1 || b.round > b.totalRounds {
		return fmt.Errorf("round %d outside 1..%d", b.round, b.totalRounds)
	}
	completed := b.round - 1
	if b.status == StatusEnded {
		completed = b.round
	}
	if len(b.results) != completed {
		return fmt.Errorf("%d round results for %d completed rounds", len(b.results), completed)
	}
	if (b.status == StatusEnded) != (b.winner != FactionNone) {
		return fmt.Errorf("winner %q with status %s", b.winner, b.status)
	}
	return nil
}
