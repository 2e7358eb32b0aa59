// Package settings exposes the user risk-limit collaborator. The
// authoritative store lives outside this core; the trade pipeline only
// ever reads limits, fetched fresh per operation.
package settings

import (
	"context"
	"sync"

	"github.com/cryptopilot/trade-core/internal/risk"
)

// LimitsProvider serves per-user risk limits and the set of users the
// position monitor should sweep.
type LimitsProvider interface {
	// Limits returns the user's risk limits, or conservative defaults
	// when nothing is stored.
	Limits(ctx context.Context, userID string) (risk.RiskLimits, error)

	// AutoTradeUsers lists users who opted into automatic position
	// management.
	AutoTradeUsers(ctx context.Context) ([]string, error)
}

// StaticProvider is an in-memory LimitsProvider for wiring, paper
// trading and tests.
type StaticProvider struct {
	mu     sync.RWMutex
	limits map[string]risk.RiskLimits
}

var _ LimitsProvider = (*StaticProvider)(nil)

// NewStaticProvider creates an empty provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{limits: make(map[string]risk.RiskLimits)}
}

// Set installs limits for a user.
func (p *StaticProvider) Set(limits risk.RiskLimits) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limits[limits.UserID] = limits
}

// Limits returns stored limits or defaults.
func (p *StaticProvider) Limits(_ context.Context, userID string) (risk.RiskLimits, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if l, ok := p.limits[userID]; ok {
		return l, nil
	}
	return risk.DefaultLimits(userID), nil
}

// AutoTradeUsers lists users whose stored limits enable auto-trading.
func (p *StaticProvider) AutoTradeUsers(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var users []string
	for id, l := range p.limits {
		if l.AutoTradeEnabled {
			users = append(users, id)
		}
	}
	return users, nil
}
