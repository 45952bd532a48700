package keyshared

import (
	"fmt"

	"github.com/cognitree/pulsar/internal/config"
)

// NewFromConfig builds the StickyKeySelector variant named by cfg, the
// construction path spec.md §6 describes cfg.KeySharedMode as choosing:
// AutoSplit yields AutoSplitRange; Sticky yields ConsistentHash when
// cfg.UseConsistentHashing is set (with cfg.ConsistentHashingReplicaPoints
// virtual points per consumer), or Exclusive when it is not, for
// subscriptions whose consumers claim their own hash ranges through
// Dispatcher.AddConsumerWithRanges instead of relying on membership.
func NewFromConfig(cfg config.Options) (Selector, error) {
	switch cfg.KeySharedMode {
	case config.AutoSplit:
		return NewAutoSplitRange(), nil
	case config.Sticky:
		if cfg.UseConsistentHashing {
			return NewConsistentHash(cfg.ConsistentHashingReplicaPoints), nil
		}
		return NewExclusive(), nil
	default:
		return nil, fmt.Errorf("keyshared: unknown key-shared mode %v", cfg.KeySharedMode)
	}
}
