package manager

import (
	"fmt"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/budget"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/hebbian"
	"github.com/danielpatrickdp/association-learning/go-learner/internal/judgment"
)

// #region cache-config

// CacheConfig controls the read-side cache in front of the store.
type CacheConfig struct {
	Enabled bool
	// Size is the maximum number of cached read results.
	Size int64
	// RefreshInterval forces a store re-read every Nth cache access so a hot
	// key cannot serve a stale strength forever.
	RefreshInterval int64
}

// DefaultCacheConfig returns the stock read-cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:         true,
		Size:            100,
		RefreshInterval: 50,
	}
}

// #endregion cache-config

// #region config

// Config aggregates everything the Manager needs. Zero values are not
// usable; start from DefaultConfig and override.
type Config struct {
	Learning   hebbian.Config
	Quarantine assoc.QuarantinePolicy
	Budget     budget.Config
	Safety     judgment.SafetyConfig
	Cache      CacheConfig

	// Health-report thresholds.
	StagingDriftThreshold int     // staging count above this warns of a backlog
	PromotionRateFloor    float64 // resolved-record promotion rate below this warns
	StagingStalenessDays  int     // oldest staging record older than this warns
}

// DefaultConfig returns the stock manager configuration.
func DefaultConfig() Config {
	return Config{
		Learning:              hebbian.DefaultConfig(),
		Quarantine:            assoc.DefaultQuarantinePolicy(),
		Budget:                budget.DefaultConfig(),
		Safety:                judgment.DefaultSafetyConfig(),
		Cache:                 DefaultCacheConfig(),
		StagingDriftThreshold: 500,
		PromotionRateFloor:    0.05,
		StagingStalenessDays:  14,
	}
}

// Validate rejects configurations that would corrupt learning silently.
func (c Config) Validate() error {
	for name, rate := range map[string]float64{
		"vocab":   c.Learning.VocabRate,
		"dims":    c.Learning.DimensionRate,
		"seq":     c.Learning.SequenceRate,
		"penalty": c.Learning.SiblingPenaltyRate,
	} {
		if rate <= 0 || rate > 1 {
			return fmt.Errorf("config: %s learning rate %f outside (0,1]", name, rate)
		}
	}
	if c.Learning.DecayWindowDays <= 0 {
		return fmt.Errorf("config: decay window %.0f days must be positive", c.Learning.DecayWindowDays)
	}
	if c.Quarantine.MinObservations < 1 {
		return fmt.Errorf("config: quarantine min observations %d must be at least 1", c.Quarantine.MinObservations)
	}
	if c.Quarantine.ExpirationDays <= c.Quarantine.MinDaysSpan {
		return fmt.Errorf("config: expiration %d days must exceed the %d-day quarantine span",
			c.Quarantine.ExpirationDays, c.Quarantine.MinDaysSpan)
	}
	if c.Budget.MaxWrites < 1 || c.Budget.MaxLookups < 1 || c.Budget.MaxQueries < 1 {
		return fmt.Errorf("config: budget ceilings must be at least 1")
	}
	if c.Cache.Enabled && (c.Cache.Size < 1 || c.Cache.RefreshInterval < 1) {
		return fmt.Errorf("config: cache size and refresh interval must be positive when enabled")
	}
	return nil
}

// #endregion config
