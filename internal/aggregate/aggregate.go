package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xaenox/chat-metrics/internal/models"
)

const DefaultTopK = 5

// Costs are per-interaction costs used for the savings estimate.
type Costs struct {
	Human decimal.Decimal
	Bot   decimal.Decimal
}

func DefaultCosts() Costs {
	return Costs{
		Human: decimal.RequireFromString("12.50"),
		Bot:   decimal.RequireFromString("0.35"),
	}
}

type Options struct {
	TopK  int
	Costs Costs
}

// satisfactionWeights scores each sentiment on a 0-5 scale.
var satisfactionWeights = map[models.Sentiment]float64{
	models.SentimentPositive:   5,
	models.SentimentNeutral:    3,
	models.SentimentNegative:   1,
	models.SentimentFrustrated: 0,
}

type accumulator struct {
	metric        *models.ServiceMetric
	frustration   float64
	questions     *frequency
	problems      *frequency
	opportunities *frequency
}

// Compute builds one metric per primary service, in the order services are
// first seen. Date, growth and ids are left for the caller.
func Compute(analyses []*models.Analysis, opts Options) []*models.ServiceMetric {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	var order []models.Service
	groups := make(map[models.Service]*accumulator)

	for _, a := range analyses {
		acc, ok := groups[a.PrimaryService]
		if !ok {
			acc = &accumulator{
				metric: &models.ServiceMetric{
					Service:      a.PrimaryService,
					UserProfiles: emptyHistogram(models.UserProfiles),
					Funnel:       emptyHistogram(models.FunnelStages),
				},
				questions:     newFrequency(),
				problems:      newFrequency(),
				opportunities: newFrequency(),
			}
			groups[a.PrimaryService] = acc
			order = append(order, a.PrimaryService)
		}
		acc.add(a)
	}

	metrics := make([]*models.ServiceMetric, 0, len(order))
	for _, service := range order {
		metrics = append(metrics, groups[service].finish(opts))
	}
	return metrics
}

func (acc *accumulator) add(a *models.Analysis) {
	m := acc.metric
	m.TotalConversations++
	if a.WasResolved {
		m.ResolvedCount++
	}

	switch a.Sentiment {
	case models.SentimentPositive:
		m.PositiveCount++
	case models.SentimentNeutral:
		m.NeutralCount++
	case models.SentimentNegative:
		m.NegativeCount++
	case models.SentimentFrustrated:
		m.FrustratedCount++
	}
	if a.UserProfile.Valid() {
		m.UserProfiles[string(a.UserProfile)]++
	}
	if a.FunnelStage.Valid() {
		m.Funnel[string(a.FunnelStage)]++
	}

	acc.frustration += a.FrustrationLevel
	acc.questions.add(a.KeyPhrases...)
	acc.opportunities.add(a.Opportunities...)
	if !a.WasResolved && a.AbandonmentReason != nil {
		acc.problems.add(*a.AbandonmentReason)
	}
}

func (acc *accumulator) finish(opts Options) *models.ServiceMetric {
	m := acc.metric
	m.AbandonedCount = m.TotalConversations - m.ResolvedCount

	if m.TotalConversations > 0 {
		total := float64(m.TotalConversations)
		score := float64(m.PositiveCount)*satisfactionWeights[models.SentimentPositive] +
			float64(m.NeutralCount)*satisfactionWeights[models.SentimentNeutral] +
			float64(m.NegativeCount)*satisfactionWeights[models.SentimentNegative] +
			float64(m.FrustratedCount)*satisfactionWeights[models.SentimentFrustrated]
		m.AverageSatisfaction = score / total
		m.AverageFrustration = acc.frustration / total
	}

	m.TopQuestions = acc.questions.top(opts.TopK)
	m.TopProblems = acc.problems.top(opts.TopK)
	m.TopOpportunities = acc.opportunities.top(opts.TopK)
	m.EconomicImpact = EconomicImpact(m.ResolvedCount, opts.Costs)
	return m
}

// EconomicImpact is the saving of resolving conversations automatically
// instead of through a human agent.
func EconomicImpact(resolved int, costs Costs) decimal.Decimal {
	return decimal.NewFromInt(int64(resolved)).Mul(costs.Human.Sub(costs.Bot)).Round(2)
}

// GrowthRate is the percentage change against the previous period; 0 when
// there is nothing to compare with.
func GrowthRate(total, previous int) float64 {
	if previous <= 0 {
		return 0
	}
	return float64(total-previous) / float64(previous) * 100
}

// FunnelAnomalies lists adjacent stage pairs where the later stage has more
// conversations than the earlier one.
func FunnelAnomalies(m *models.ServiceMetric) [][2]models.FunnelStage {
	var anomalies [][2]models.FunnelStage
	for i := 1; i < len(models.FunnelStages); i++ {
		prev, cur := models.FunnelStages[i-1], models.FunnelStages[i]
		if m.Funnel[string(cur)] > m.Funnel[string(prev)] {
			anomalies = append(anomalies, [2]models.FunnelStage{prev, cur})
		}
	}
	return anomalies
}

func emptyHistogram[T ~string](keys []T) map[string]int {
	h := make(map[string]int, len(keys))
	for _, k := range keys {
		h[string(k)] = 0
	}
	return h
}

type frequency struct {
	counts map[string]int
	order  []string
}

func newFrequency() *frequency {
	return &frequency{counts: make(map[string]int)}
}

func (f *frequency) add(items ...string) {
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, seen := f.counts[item]; !seen {
			f.order = append(f.order, item)
		}
		f.counts[item]++
	}
}

// top returns the k most frequent items; ties keep first-seen order.
func (f *frequency) top(k int) []string {
	ranked := make([]string, len(f.order))
	copy(ranked, f.order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return f.counts[ranked[i]] > f.counts[ranked[j]]
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
