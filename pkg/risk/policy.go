// Package risk carries the margin/position-sizing policy shared by the
// ledger and matching engine, in the same load-with-fallback shape as the
// teacher's risk policy loader (libs/risk/policy.go): a versioned JSON
// file when present, otherwise a conservative in-memory default.
package risk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Policy holds the leverage and risk limits loaded for the ledger (§4.7
// supplemental). Only MaxLeverage sizes margin reservations, through
// MarginRequired; nothing in the repository reads MaxRiskPerTrade or
// MaxPositionValue.
type Policy struct {
	MaxLeverage      float64 `json:"max_leverage"`
	MaxRiskPerTrade  float64 `json:"max_risk_per_trade"`
	MaxPositionValue float64 `json:"max_position_value"`

	LoadedFrom string    `json:"-"`
	LoadedAt   time.Time `json:"-"`
	Version    string    `json:"-"`
}

// DefaultPolicy is conservative: 1:1 leverage (full margin reserved on
// every fill), a 2% per-trade risk figure and a 1,000,000 position-value
// cap, mirroring a cash-account profile.
func DefaultPolicy() Policy {
	return Policy{
		MaxLeverage:      1.0,
		MaxRiskPerTrade:  0.02,
		MaxPositionValue: 1_000_000,
		LoadedFrom:       "default",
		Version:          "default",
	}
}

// LoadPolicy reads a JSON policy file, falling back to DefaultPolicy when
// path is empty or the file does not exist.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultPolicy(), nil
	}
	if err != nil {
		return Policy{}, fmt.Errorf("risk: read policy: %w", err)
	}
	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("risk: parse policy: %w", err)
	}
	if p.MaxLeverage <= 0 {
		p.MaxLeverage = 1.0
	}
	sum := sha256.Sum256(raw)
	p.Version = hex.EncodeToString(sum[:])[:12]
	p.LoadedFrom = path
	p.LoadedAt = time.Now()
	return p, nil
}

// MarginRequired implements the §4.7 supplemental margin formula:
// (quantity * price) / MaxLeverage.
func (p Policy) MarginRequired(quantity, price float64) float64 {
	return (quantity * price) / p.MaxLeverage
}
