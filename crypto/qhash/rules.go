package qhash

import "slices"

// OverrideRule forces the output to all 0xFF once Activation has passed and
// at least Num/Den of the encoded expectation bytes are zero.
type OverrideRule struct {
	Activation uint32 // Unix time the rule becomes active
	Num        int
	Den        int
}

// MinZeroes returns the zero-byte threshold for total encoded bytes.
func (r OverrideRule) MinZeroes(total int) int {
	return total * r.Num / r.Den
}

// Applies reports whether the rule fires.
func (r OverrideRule) Applies(zeroes, total int, time uint32) bool {
	return time >= r.Activation && zeroes >= r.MinZeroes(total)
}

// Successive tightenings against degenerate, mostly-zero expectation vectors.
var defaultOverrideRules = []OverrideRule{
	{Activation: 1753105444, Num: 4, Den: 4},
	{Activation: 1753305380, Num: 3, Den: 4},
	{Activation: 1754220531, Num: 1, Den: 4},
}

// DefaultOverrideRules returns a copy of the mainnet rule table.
func DefaultOverrideRules() []OverrideRule {
	return slices.Clone(defaultOverrideRules)
}

// matchOverride returns the first rule that fires, if any.
func matchOverride(rules []OverrideRule, zeroes, total int, time uint32) (OverrideRule, bool) {
	for _, r := range rules {
		if r.Applies(zeroes, total, time) {
			return r, true
		}
	}
	return OverrideRule{}, false
}
