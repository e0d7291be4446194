package alert

import (
	"context"
	"log"
	"time"

	"ppewatch/internal/violation"
)

// DefaultCooldown is how long a fingerprint suppresses repeat alerts.
const DefaultCooldown = 5 * time.Minute

const defaultStoreTimeout = 2 * time.Second

// Gate decides whether a violation should produce a notification right
// now. When the store itself fails the gate fails open: a duplicate alert
// is preferable to a silently dropped one.
type Gate struct {
	store    Store
	cooldown time.Duration
	timeout  time.Duration
}

// NewGate creates a gate over the given store. A non-positive cooldown
// falls back to the default.
func NewGate(store Store, cooldown time.Duration) *Gate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{store: store, cooldown: cooldown, timeout: defaultStoreTimeout}
}

// ShouldAlert reports whether this violation's fingerprint is outside its
// cooldown window, claiming the window as a side effect.
func (g *Gate) ShouldAlert(ctx context.Context, e violation.Event) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	claimed, err := g.store.SetIfAbsent(ctx, Fingerprint(e), g.cooldown)
	if err != nil {
		log.Printf("[Alert] Fingerprint store error, alerting anyway: %v", err)
		return true
	}
	return claimed
}
