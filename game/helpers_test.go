package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/COAOX/timeline_wars/economy"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	hold    bool
	waiters []waiter
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Until never fires while hold is set, so a test can look at a round past its deadline.
func (c *fakeClock) Until(t time.Time) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if c.hold {
		return ch
	}
	if !c.now.Before(t) {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{at: t, ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !c.now.Before(w.at) {
			w.ch <- c.now
		} else {
			pending = append(pending, w)
		}
	}
	c.waiters = pending
}

type recorder struct {
	started chan Snapshot
	rounds  chan RoundResult
	ended   chan Snapshot
}

func newRecorder() *recorder {
	return &recorder{
		started: make(chan Snapshot, 32),
		rounds:  make(chan RoundResult, 32),
		ended:   make(chan Snapshot, 32),
	}
}

func (r *recorder) BattleStarted(s Snapshot)              { r.started <- s }
func (r *recorder) RoundClosed(s Snapshot, rr RoundResult) { r.rounds <- rr }
func (r *recorder) BattleEnded(s Snapshot)                { r.ended <- s }

func (r *recorder) round(t *testing.T) RoundResult {
	t.Helper()
	select {
	case rr := <-r.rounds:
		return rr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a round to close")
	}
	return RoundResult{}
}

func (r *recorder) end(t *testing.T) Snapshot {
	t.Helper()
	select {
	case s := <-r.ended:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the battle to end")
	}
	return Snapshot{}
}

type fixture struct {
	engine *Engine
	clock  *fakeClock
	ledger *economy.MemoryLedger
	rec    *recorder
}

func newFixture(t *testing.T, opts ...StoreOption) *fixture {
	clock := newFakeClock()
	ledger := economy.NewMemoryLedger(1000)
	opts = append([]StoreOption{WithClock(clock), WithSeed(1)}, opts...)
	rec := newRecorder()
	e := NewEngine(NewStore(ledger, opts...), Settings{RoundDuration: time.Second}, rec)
	t.Cleanup(e.Close)
	return &fixture{engine: e, clock: clock, ledger: ledger, rec: rec}
}

func (f *fixture) create(t *testing.T, rounds int) string {
	t.Helper()
	s, err := f.engine.Create(CreateRequest{
		Topic:       "Did the printing press end the dark ages?",
		FactionA:    FactionInfo{Name: "Renaissance", Theme: "light"},
		FactionB:    FactionInfo{Name: "Eternal Night", Theme: "shadow"},
		TotalRounds: rounds,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s.ID
}

func (f *fixture) startBattle(t *testing.T, rounds int) string {
	t.Helper()
	id := f.create(t, rounds)
	if _, err := f.engine.Start(id); err != nil {
		t.Fatal(err)
	}
	<-f.rec.started
	return id
}

func (f *fixture) mint(t *testing.T, id, user string, fac FactionID, cost int64) AssetSnapshot {
	t.Helper()
	a, err := f.engine.MintAsset(context.Background(), MintRequest{
		BattleID: id,
		User:     user,
		Faction:  fac,
		MintCost: cost,
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func (f *fixture) balance(user string) int64 {
	bal, _ := f.ledger.Balance(context.Background(), user)
	return bal
}

func (f *fixture) battle(t *testing.T, id string) *Battle {
	t.Helper()
	b, ok := f.engine.Store().Registry.Get(id)
	if !ok {
		t.Fatalf("battle %s not registered", id)
	}
	return b
}
