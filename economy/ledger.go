package economy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger is the token balance book kept outside the engine.
type Ledger interface {
	Debit(ctx context.Context, user string, amount int64, memo string) (int64, error)
	Credit(ctx context.Context, user string, amount int64, memo string) (int64, error)
	Balance(ctx context.Context, user string) (int64, error)
}

type InsufficientFundsError struct {
	User    string
	Need    int64
	Balance int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: %s has %d tokens, needs %d", e.User, e.Balance, e.Need)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

type TxKind string

const (
	TxEarn  TxKind = "earn"
	TxSpend TxKind = "spend"
)

type Transaction struct {
	ID           string    `json:"id"`
	Kind         TxKind    `json:"kind"`
	Amount       int64     `json:"amount"`
	Memo         string    `json:"memo"`
	At           time.Time `json:"at"`
	BalanceAfter int64     `json:"balance_after"`
}

const maxTransactions = 50

type account struct {
	balance      int64
	totalEarned  int64
	totalSpent   int64
	transactions []Transaction
}

// MemoryLedger keeps balances in process. New users start with the opening balance.
type MemoryLedger struct {
	mu       sync.Mutex
	opening  int64
	accounts map[string]*account
	now      func() time.Time
}

func NewMemoryLedger(opening int64) *MemoryLedger {
	return &MemoryLedger{
		opening:  opening,
		accounts: map[string]*account{},
		now:      time.Now,
	}
}

// Set overwrites a user's balance.
func (l *MemoryLedger) Set(user string, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.get(user).balance = balance
}

func (l *MemoryLedger) Debit(_ context.Context, user string, amount int64, memo string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("debit: negative amount %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.get(user)
	if a.balance < amount {
		return a.balance, &InsufficientFundsError{User: user, Need: amount, Balance: a.balance}
	}
	a.balance -= amount
	a.totalSpent += amount
	l.record(a, TxSpend, amount, memo)
	return a.balance, nil
}

func (l *MemoryLedger) Credit(_ context.Context, user string, amount int64, memo string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("credit: negative amount %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.get(user)
	a.balance += amount
	a.totalEarned += amount
	l.record(a, TxEarn, amount, memo)
	return a.balance, nil
}

func (l *MemoryLedger) Balance(_ context.Context, user string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(user).balance, nil
}

func (l *MemoryLedger) Transactions(user string) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[user]
	if !ok {
		return nil
	}
	return append([]Transaction(nil), a.transactions...)
}

func (l *MemoryLedger) get(user string) *account {
	a, ok := l.accounts[user]
	if !ok {
		a = &account{balance: l.opening, totalEarned: l.opening}
		l.accounts[user] = a
	}
	return a
}

func (l *MemoryLedger) record(a *account, kind TxKind, amount int64, memo string) {
	a.transactions = append(a.transactions, Transaction{
		ID:           uuid.NewString(),
		Kind:         kind,
		Amount:       amount,
		Memo:         memo,
		At:           l.now(),
		BalanceAfter: a.balance,
	})
	if len(a.transactions) > maxTransactions {
		a.transactions = a.transactions[len(a.transactions)-maxTransactions:]
	}
}
