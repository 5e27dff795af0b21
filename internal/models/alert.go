package models

import "time"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityUrgent   Severity = "urgent"
	SeverityMonitor  Severity = "monitor"
)

type AlertType string

const (
	AlertFrustration     AlertType = "frustration"
	AlertChurnRisk       AlertType = "churn_risk"
	AlertHighAbandonment AlertType = "high_abandonment"
	AlertOpportunity     AlertType = "opportunity"
)

type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	return s == AlertActive || s == AlertAcknowledged || s == AlertResolved
}

type Alert struct {
	ID             string      `json:"id"`
	Severity       Severity    `json:"severity"`
	Type           AlertType   `json:"type"`
	ConversationID *string     `json:"conversation_id,omitempty"`
	Service        *Service    `json:"service,omitempty"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Recommendation string      `json:"recommendation"`
	AffectedCount  int         `json:"affected_count"`
	ImpactScore    float64     `json:"impact_score"`
	Status         AlertStatus `json:"status"`
	DetectedAt     time.Time   `json:"detected_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
}
