package classifier

import (
	"context"
	"strings"

	"github.com/xaenox/chat-metrics/internal/models"
)

// Tagger produces one analysis per conversation.
type Tagger interface {
	Tag(ctx context.Context, conv *models.Conversation) (*models.Analysis, error)
	Model() string
}

// HeuristicTagger is a keyword-based tagger for running the pipeline without
// a model. Its output is deterministic.
type HeuristicTagger struct {
	maxPhrases int
}

func NewHeuristicTagger(maxPhrases int) *HeuristicTagger {
	if maxPhrases <= 0 {
		maxPhrases = 5
	}
	return &HeuristicTagger{maxPhrases: maxPhrases}
}

func (c *HeuristicTagger) Model() string { return "heuristic" }

var serviceKeywords = []struct {
	service  models.Service
	keywords []string
}{
	{models.ServiceIPTU, []string{"iptu", "imposto predial", "carnê", "carne do imovel"}},
	{models.ServiceCertidaoNegativa, []string{"certidão", "certidao", "negativa de débito", "cnd"}},
	{models.ServiceDividaAtiva, []string{"dívida ativa", "divida ativa", "débito", "debito", "renegociar", "renegociação"}},
	{models.ServiceAlvara, []string{"alvará", "alvara", "funcionamento", "licença"}},
}

var (
	frustratedWords = []string{"absurdo", "ridículo", "ridiculo", "ninguém responde", "cansado", "péssimo", "pessimo"}
	negativeWords   = []string{"não consigo", "nao consigo", "problema", "erro", "demora"}
	positiveWords   = []string{"obrigad", "ótimo", "otimo", "perfeito", "resolvido"}
	urgentWords     = []string{"urgente", "hoje", "prazo", "rápido", "rapido"}
	confusedWords   = []string{"não entendi", "nao entendi", "como faço", "como faco", "?"}
	complaintWords  = []string{"reclamação", "reclamacao", "absurdo", "injusto"}
	actionWords     = []string{"segunda via", "emitir", "pagar", "parcelar", "solicitar"}
	resolvedWords   = []string{"protocolo", "segue o link", "segue o boleto", "emitido", "resolvido"}
)

func (c *HeuristicTagger) Tag(ctx context.Context, conv *models.Conversation) (*models.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var citizen, system []string
	for _, m := range conv.Messages {
		text := strings.ToLower(m.Content)
		if m.Sender.IsCitizen() {
			citizen = append(citizen, text)
		} else {
			system = append(system, text)
		}
	}
	citizenText := strings.Join(citizen, "\n")
	allText := citizenText + "\n" + strings.Join(system, "\n")

	analysis := &models.Analysis{
		ConversationID:    conv.ID,
		TicketID:          conv.TicketID,
		PrimaryService:    models.ServiceNaoIdentificado,
		SecondaryServices: []string{},
		KeyPhrases:        []string{},
		Opportunities:     []string{},
		Recommendations:   []string{},
		Model:             c.Model(),
	}

	for _, entry := range serviceKeywords {
		if !containsAny(allText, entry.keywords) {
			continue
		}
		if analysis.PrimaryService == models.ServiceNaoIdentificado {
			analysis.PrimaryService = entry.service
		} else {
			analysis.SecondaryServices = append(analysis.SecondaryServices, string(entry.service))
		}
	}

	switch {
	case containsAny(citizenText, frustratedWords):
		analysis.Sentiment = models.SentimentFrustrated
		analysis.FrustrationLevel = 8
	case containsAny(citizenText, negativeWords):
		analysis.Sentiment = models.SentimentNegative
		analysis.FrustrationLevel = 5
	case containsAny(citizenText, positiveWords):
		analysis.Sentiment = models.SentimentPositive
		analysis.FrustrationLevel = 1
	default:
		analysis.Sentiment = models.SentimentNeutral
		analysis.FrustrationLevel = 3
	}

	switch {
	case analysis.Sentiment == models.SentimentFrustrated:
		analysis.UserProfile = models.ProfileAngry
	case containsAny(citizenText, urgentWords):
		analysis.UserProfile = models.ProfileUrgent
	case containsAny(citizenText, confusedWords):
		analysis.UserProfile = models.ProfileConfused
	default:
		analysis.UserProfile = models.ProfileCalm
	}

	switch {
	case containsAny(citizenText, complaintWords):
		analysis.UserIntent = models.IntentComplaint
	case containsAny(citizenText, actionWords):
		analysis.UserIntent = models.IntentAction
	case strings.Contains(citizenText, "?"):
		analysis.UserIntent = models.IntentQuestion
	case citizenText != "":
		analysis.UserIntent = models.IntentInformation
	default:
		analysis.UserIntent = models.IntentOther
	}

	analysis.WasResolved = containsAny(allText, resolvedWords) || analysis.Sentiment == models.SentimentPositive
	analysis.FunnelStage = funnelFor(len(citizen), len(system), analysis.WasResolved)
	if analysis.WasResolved {
		stage := string(analysis.FunnelStage)
		analysis.ResolutionStage = &stage
	} else {
		stage := string(analysis.FunnelStage)
		analysis.DropoffPoint = &stage
		if analysis.Sentiment == models.SentimentFrustrated || analysis.Sentiment == models.SentimentNegative {
			reason := "Cidadão não obteve resposta satisfatória"
			analysis.AbandonmentReason = &reason
		}
	}

	for _, line := range citizen {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		analysis.KeyPhrases = append(analysis.KeyPhrases, line)
		if len(analysis.KeyPhrases) == c.maxPhrases {
			break
		}
	}
	return analysis, nil
}

func funnelFor(citizenLines, systemLines int, resolved bool) models.FunnelStage {
	switch {
	case resolved:
		return models.FunnelDone
	case citizenLines >= 3 && systemLines >= 3:
		return models.FunnelProcessing
	case citizenLines >= 2:
		return models.FunnelRequest
	case systemLines >= 1:
		return models.FunnelExplain
	default:
		return models.FunnelStart
	}
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
