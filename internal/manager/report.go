package manager

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/association-learning/go-learner/internal/assoc"
)

// #region report-types

// NamespaceCounts is the lifecycle breakdown for one namespace.
type NamespaceCounts struct {
	Staging   int `json:"staging"`
	Permanent int `json:"permanent"`
	Expired   int `json:"expired"`
}

// PromotionSummary is one recently promoted association.
type PromotionSummary struct {
	Namespace  assoc.Namespace `json:"namespace"`
	Key        string          `json:"key"`
	Strength   float64         `json:"strength"`
	PromotedAt time.Time       `json:"promoted_at"`
}

// LearningReport is the interpretable health snapshot of the whole layer.
type LearningReport struct {
	GeneratedAt      time.Time                           `json:"generated_at"`
	Namespaces       map[assoc.Namespace]NamespaceCounts `json:"namespaces"`
	StagingCount     int                                 `json:"staging_count"`
	PermanentCount   int                                 `json:"permanent_count"`
	ExpiredCount     int                                 `json:"expired_count"`
	PromotionRate    float64                             `json:"promotion_rate"`
	RecentPromotions []PromotionSummary                  `json:"recent_promotions"`
	TurnsProcessed   int                                 `json:"turns_processed"`
	TurnsSkipped     int                                 `json:"turns_skipped"`
	Warnings         []string                            `json:"warnings,omitempty"`
}

// #endregion report-types

// #region health-summary

// Resolved records below this count make the promotion rate too noisy to
// warn on.
const minResolvedForRateWarning = 20

// GetLearningReport builds the learning report: per-namespace lifecycle
// counts, the promotion rate over resolved records, the latest promotions,
// and drift warnings.
func (m *Manager) GetLearningReport() (LearningReport, error) {
	report := LearningReport{
		GeneratedAt: time.Now().UTC(),
		Namespaces:  make(map[assoc.Namespace]NamespaceCounts, len(assoc.AllNamespaces())),
	}

	m.mu.Lock()
	report.TurnsProcessed = m.turnsProcessed
	report.TurnsSkipped = m.turnsSkipped
	m.mu.Unlock()

	for _, ns := range assoc.AllNamespaces() {
		counts, err := m.store.CountByStatus(ns)
		if err != nil {
			return report, fmt.Errorf("count %s: %w", ns, err)
		}
		nc := NamespaceCounts{
			Staging:   counts[assoc.StatusStaging],
			Permanent: counts[assoc.StatusPermanent],
			Expired:   counts[assoc.StatusExpired],
		}
		report.Namespaces[ns] = nc
		report.StagingCount += nc.Staging
		report.PermanentCount += nc.Permanent
		report.ExpiredCount += nc.Expired
	}

	resolved := report.PermanentCount + report.ExpiredCount
	if resolved > 0 {
		report.PromotionRate = float64(report.PermanentCount) / float64(resolved)
	}

	recent, err := m.store.RecentPromotions(10)
	if err != nil {
		return report, fmt.Errorf("recent promotions: %w", err)
	}
	for _, r := range recent {
		report.RecentPromotions = append(report.RecentPromotions, PromotionSummary{
			Namespace:  r.Namespace,
			Key:        r.Key.String(),
			Strength:   r.Strength,
			PromotedAt: r.PromotedAt,
		})
	}

	report.Warnings = m.warnings(report)
	return report, nil
}

// GetHealthSummary is the operator-facing name for the same report.
func (m *Manager) GetHealthSummary() (LearningReport, error) {
	return m.GetLearningReport()
}

// warnings derives drift signals from the report counts.
func (m *Manager) warnings(report LearningReport) []string {
	var warnings []string
	if report.StagingCount > m.config.StagingDriftThreshold {
		warnings = append(warnings, fmt.Sprintf(
			"staging backlog: %d records exceeds threshold %d",
			report.StagingCount, m.config.StagingDriftThreshold))
	}
	resolved := report.PermanentCount + report.ExpiredCount
	if resolved >= minResolvedForRateWarning && report.PromotionRate < m.config.PromotionRateFloor {
		warnings = append(warnings, fmt.Sprintf(
			"promotion rate %.3f below floor %.3f over %d resolved records",
			report.PromotionRate, m.config.PromotionRateFloor, resolved))
	}
	cutoff := report.GeneratedAt.AddDate(0, 0, -m.config.StagingStalenessDays)
	for _, ns := range assoc.AllNamespaces() {
		oldest, found, err := m.store.OldestStagingFirstSeen(ns)
		if err != nil || !found {
			continue
		}
		if oldest.Before(cutoff) {
			warnings = append(warnings, fmt.Sprintf(
				"%s: oldest staging record first seen %s, older than %d days",
				ns, oldest.Format(time.RFC3339), m.config.StagingStalenessDays))
		}
	}
	return warnings
}

// #endregion health-summary
