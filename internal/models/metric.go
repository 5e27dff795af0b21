package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceMetric is the daily snapshot for one primary service.
type ServiceMetric struct {
	ID                  string          `json:"id"`
	Service             Service         `json:"service"`
	Date                time.Time       `json:"date"`
	TotalConversations  int             `json:"total_conversations"`
	ResolvedCount       int             `json:"resolved_count"`
	AbandonedCount      int             `json:"abandoned_count"`
	PreviousPeriodTotal int             `json:"previous_period_total"`
	GrowthRate          float64         `json:"growth_rate"`
	AverageSatisfaction float64         `json:"average_satisfaction"`
	AverageFrustration  float64         `json:"average_frustration"`
	PositiveCount       int             `json:"positive_count"`
	NeutralCount        int             `json:"neutral_count"`
	NegativeCount       int             `json:"negative_count"`
	FrustratedCount     int             `json:"frustrated_count"`
	UserProfiles        map[string]int  `json:"user_profiles"`
	Funnel              map[string]int  `json:"funnel"`
	TopQuestions        []string        `json:"top_questions"`
	TopProblems         []string        `json:"top_problems"`
	TopOpportunities    []string        `json:"top_opportunities"`
	EconomicImpact      decimal.Decimal `json:"economic_impact"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (m *ServiceMetric) ResolutionRate() float64 {
	if m.TotalConversations == 0 {
		return 0
	}
	return float64(m.ResolvedCount) / float64(m.TotalConversations)
}

func (m *ServiceMetric) AbandonmentRate() float64 {
	if m.TotalConversations == 0 {
		return 0
	}
	return float64(m.AbandonedCount) / float64(m.TotalConversations)
}

// Day truncates t to midnight UTC, the key under which snapshots are stored.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
