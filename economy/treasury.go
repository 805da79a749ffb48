package economy

import "sync"

// Treasury collects system fees and undistributed rewards and funds rogue agents.
type Treasury struct {
	mu          sync.Mutex
	balance     int64
	totalEarned int64
	totalSpent  int64
}

type TreasuryState struct {
	Balance     int64 `json:"balance"`
	TotalEarned int64 `json:"total_earned"`
	TotalSpent  int64 `json:"total_spent"`
}

func NewTreasury(balance int64) *Treasury {
	return &Treasury{balance: balance, totalEarned: balance}
}

func (t *Treasury) Deposit(amount int64) {
	if amount <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balance += amount
	t.totalEarned += amount
}

// Withdraw takes amount only when the whole amount is available.
func (t *Treasury) Withdraw(amount int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if amount <= 0 || t.balance < amount {
		return false
	}
	t.balance -= amount
	t.totalSpent += amount
	return true
}

func (t *Treasury) State() TreasuryState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TreasuryState{Balance: t.balance, TotalEarned: t.totalEarned, TotalSpent: t.totalSpent}
}
