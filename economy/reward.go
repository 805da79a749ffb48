package economy

import (
	"fmt"
	"math/bits"
	"sort"
)

const (
	WinnerSharePercent = 70
	LoserSharePercent  = 25
	SystemFeePercent   = 5
)

func init() {
	if sum := WinnerSharePercent + LoserSharePercent + SystemFeePercent; sum != 100 {
		panic(fmt.Sprintf("economy: reward split sums to %d%%, want 100%%", sum))
	}
}

type Pool struct {
	Total       int64 `json:"total"`
	WinnerShare int64 `json:"winner_share"`
	LoserShare  int64 `json:"loser_share"`
	SystemFee   int64 `json:"system_fee"`
}

// SplitPool floors the winner and loser shares and gives the remainder to the fee,
// so the three parts always add up to total.
func SplitPool(total int64) Pool {
	if total <= 0 {
		return Pool{}
	}
	p := Pool{
		Total:       total,
		WinnerShare: mulDiv(total, WinnerSharePercent, 100),
		LoserShare:  mulDiv(total, LoserSharePercent, 100),
	}
	p.SystemFee = total - p.WinnerShare - p.LoserShare
	return p
}

type Contribution struct {
	User   string
	Amount int64
}

type Payout struct {
	User   string `json:"user"`
	Amount int64  `json:"amount"`
	Winner bool   `json:"winner"`
}

// Distribute splits share pro-rata over the contributions. Each payout is floored; what is left
// over is returned as dust. A share with nobody to pay is returned whole as dust.
func Distribute(share int64, contributions []Contribution, winner bool) ([]Payout, int64) {
	var total int64
	for _, c := range contributions {
		if c.Amount > 0 {
			total += c.Amount
		}
	}
	if share <= 0 {
		return nil, 0
	}
	if total == 0 {
		return nil, share
	}

	payouts := make([]Payout, 0, len(contributions))
	paid := int64(0)
	for _, c := range contributions {
		if c.Amount <= 0 {
			continue
		}
		amount := mulDiv(share, c.Amount, total)
		paid += amount
		payouts = append(payouts, Payout{User: c.User, Amount: amount, Winner: winner})
	}
	sort.SliceStable(payouts, func(i, j int) bool { return payouts[i].User < payouts[j].User })
	return payouts, share - paid
}

// mulDiv computes a*b/c without overflowing the intermediate product. All inputs are non-negative
// and a*b/c must fit in an int64.
func mulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(c))
	return int64(q)
}
