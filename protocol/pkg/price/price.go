// Package price implements the deterministic entry pricing rules: the
// per-entry fixed-point escalation curve and the four-way revenue split.
// Everything here is pure integer arithmetic so that any re-execution, on any
// platform, reproduces the same values bit for bit.
package price

import "math/bits"

// Escalation rate of 0.78% per entry, expressed as the fixed-point ratio
// 10078/10000. The multiplier is applied once per recorded entry with floor
// division after every step, matching the on-chain u128 loop.
const (
	escalationNum = 10078
	escalationDen = 10000
)

// Revenue split rates in percent. The staking bucket is not listed: it takes
// whatever remains after the other three, so the four shares always sum to
// the entry amount exactly.
const (
	PoolRatePct    = 60
	OpsRatePct     = 20
	BuybackRatePct = 10
)

// Required returns the minimum accepted entry amount for a bounty with the
// given base price after totalEntries paid entries this cycle.
//
// Required(base, 0) == base exactly. Each subsequent entry multiplies the
// price by 10078/10000 with floor division. Instead of overflowing, the
// price saturates at MaxUint64; draining events reset totalEntries so the
// curve restarts from the base price.
func Required(basePrice uint64, totalEntries uint64) uint64 {
	p := basePrice
	for i := uint64(0); i < totalEntries; i++ {
		hi, lo := bits.Mul64(p, escalationNum)
		if hi >= escalationDen {
			// The next multiplier step would exceed 64 bits.
			return ^uint64(0)
		}
		p, _ = bits.Div64(hi, lo, escalationDen)
	}
	return p
}

// Split is the deterministic four-way division of one entry amount.
type Split struct {
	Pool    uint64 `json:"pool"`
	Ops     uint64 `json:"ops"`
	Buyback uint64 `json:"buyback"`
	Staking uint64 `json:"staking"`
}

// Total returns the sum of the four shares, which equals the original amount
// by construction.
func (s Split) Total() uint64 {
	return s.Pool + s.Ops + s.Buyback + s.Staking
}

// SplitEntry divides amount 60/20/10/10 across pool, operations, buyback and
// staking. The first three shares round down; the staking share absorbs the
// remainder so no value is lost or created.
func SplitEntry(amount uint64) Split {
	pool := PctOf(amount, PoolRatePct)
	ops := PctOf(amount, OpsRatePct)
	buyback := PctOf(amount, BuybackRatePct)
	return Split{
		Pool:    pool,
		Ops:     ops,
		Buyback: buyback,
		Staking: amount - pool - ops - buyback,
	}
}

// PctOf computes amount*pct/100 (floor) without intermediate overflow, for
// pct <= 100. The escape fallback's last-participant share and the recovery
// limit use this same rounding.
func PctOf(amount uint64, pct uint64) uint64 {
	hi, lo := bits.Mul64(amount, pct)
	q, _ := bits.Div64(hi, lo, 100)
	return q
}
