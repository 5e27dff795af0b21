package alerts

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/xaenox/chat-metrics/internal/models"
)

const (
	criticalFrustration = 9.0
	urgentFrustration   = 7.0
	abandonmentUrgent   = 0.30
	abandonmentCritical = 0.50
)

type rule struct {
	name string
	eval func(in input) []*models.Alert
}

type input struct {
	analyses []*models.Analysis
	metrics  []*models.ServiceMetric
	now      time.Time
}

var rules = []rule{
	{name: "conversation_frustration", eval: conversationFrustration},
	{name: "churn_risk", eval: churnRisk},
	{name: "high_abandonment", eval: highAbandonment},
	{name: "service_frustration", eval: serviceFrustration},
	{name: "opportunity", eval: opportunities},
}

// RuleError reports a rule that failed while the others kept running.
type RuleError struct {
	Rule string
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Evaluate runs every rule over the analyses and metrics. It does not touch
// the store; alerts come back active and stamped with now.
func Evaluate(analyses []*models.Analysis, metrics []*models.ServiceMetric, now time.Time) ([]*models.Alert, []error) {
	in := input{analyses: analyses, metrics: metrics, now: now}

	var out []*models.Alert
	var errs []error
	for _, r := range rules {
		produced, err := runRule(r, in)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, produced...)
	}
	return out, errs
}

func runRule(r rule, in input) (produced []*models.Alert, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			produced = nil
			err = &RuleError{Rule: r.name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	return r.eval(in), nil
}

func newAlert(in input, severity models.Severity, kind models.AlertType) *models.Alert {
	return &models.Alert{
		Severity:   severity,
		Type:       kind,
		Status:     models.AlertActive,
		DetectedAt: in.now,
	}
}

func forConversation(a *models.Alert, analysis *models.Analysis) *models.Alert {
	id := analysis.ConversationID
	service := analysis.PrimaryService
	a.ConversationID = &id
	a.Service = &service
	a.AffectedCount = 1
	return a
}

func forService(a *models.Alert, service models.Service) *models.Alert {
	a.Service = &service
	return a
}

func ticketOf(a *models.Analysis) string {
	if a.TicketID != "" {
		return a.TicketID
	}
	return a.ConversationID
}

func conversationFrustration(in input) []*models.Alert {
	var out []*models.Alert
	for _, a := range in.analyses {
		switch {
		case a.FrustrationLevel >= criticalFrustration:
			alert := forConversation(newAlert(in, models.SeverityCritical, models.AlertFrustration), a)
			alert.Title = "Cidadão extremamente frustrado"
			alert.Description = fmt.Sprintf("Conversa %s com nível de frustração %s/10",
				ticketOf(a), strconv.FormatFloat(a.FrustrationLevel, 'f', -1, 64))
			alert.Recommendation = "Contato humano imediato recomendado"
			alert.ImpactScore = 10
			out = append(out, alert)
		case a.FrustrationLevel >= urgentFrustration:
			alert := forConversation(newAlert(in, models.SeverityUrgent, models.AlertFrustration), a)
			alert.Title = "Alta frustração detectada"
			alert.Description = fmt.Sprintf("Conversa %s com frustração elevada", ticketOf(a))
			alert.Recommendation = "Revisar processo de atendimento para este tipo de solicitação"
			alert.ImpactScore = 7
			out = append(out, alert)
		}
	}
	return out
}

func churnRisk(in input) []*models.Alert {
	var out []*models.Alert
	for _, a := range in.analyses {
		if a.WasResolved || a.Sentiment != models.SentimentFrustrated {
			continue
		}
		alert := forConversation(newAlert(in, models.SeverityUrgent, models.AlertChurnRisk), a)
		alert.Title = "Risco de abandono do canal"
		alert.Description = "Cidadão frustrado não teve problema resolvido"
		alert.Recommendation = fmt.Sprintf("Implementar melhorias no fluxo de %s", a.PrimaryService)
		alert.ImpactScore = 8
		out = append(out, alert)
	}
	return out
}

func highAbandonment(in input) []*models.Alert {
	var out []*models.Alert
	for _, m := range in.metrics {
		rate := m.AbandonmentRate()
		if rate <= abandonmentUrgent {
			continue
		}
		severity := models.SeverityUrgent
		if rate > abandonmentCritical {
			severity = models.SeverityCritical
		}
		alert := forService(newAlert(in, severity, models.AlertHighAbandonment), m.Service)
		alert.Title = fmt.Sprintf("Alta taxa de abandono em %s", m.Service)
		alert.Description = fmt.Sprintf("%d%% das conversas foram abandonadas", int(math.Round(rate*100)))
		alert.Recommendation = "Revisar fluxo de atendimento e identificar pontos de fricção"
		alert.AffectedCount = m.AbandonedCount
		alert.ImpactScore = rate * 10
		out = append(out, alert)
	}
	return out
}

func serviceFrustration(in input) []*models.Alert {
	var out []*models.Alert
	for _, m := range in.metrics {
		if m.FrustratedCount <= m.PositiveCount {
			continue
		}
		alert := forService(newAlert(in, models.SeverityUrgent, models.AlertFrustration), m.Service)
		alert.Title = fmt.Sprintf("Alto nível de frustração em %s", m.Service)
		alert.Description = fmt.Sprintf("%d usuários frustrados vs %d satisfeitos", m.FrustratedCount, m.PositiveCount)
		alert.Recommendation = "Melhorar clareza das respostas e tempo de resolução"
		alert.AffectedCount = m.FrustratedCount
		alert.ImpactScore = 8
		out = append(out, alert)
	}
	return out
}

func opportunities(in input) []*models.Alert {
	var out []*models.Alert
	for _, m := range in.metrics {
		if len(m.TopOpportunities) == 0 {
			continue
		}
		alert := forService(newAlert(in, models.SeverityMonitor, models.AlertOpportunity), m.Service)
		alert.Title = fmt.Sprintf("Oportunidades identificadas em %s", m.Service)
		alert.Description = m.TopOpportunities[0]
		alert.Recommendation = "Avaliar implementação de melhorias sugeridas"
		alert.AffectedCount = m.TotalConversations
		alert.ImpactScore = 5
		out = append(out, alert)
	}
	return out
}
