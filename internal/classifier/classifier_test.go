package classifier

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/chat-metrics/internal/models"
)

func conversationOf(lines ...string) *models.Conversation {
	conv := &models.Conversation{ID: "c", TicketID: "ticket_c"}
	for i, line := range lines {
		sender := models.SenderUser
		if i%2 == 1 {
			sender = models.SenderBot
		}
		conv.Messages = append(conv.Messages, &models.Message{Sender: sender, Content: line})
	}
	return conv
}

func TestHeuristicTagger(t *testing.T) {
	tests := []struct {
		name      string
		conv      *models.Conversation
		service   models.Service
		sentiment models.Sentiment
		resolved  bool
	}{
		{
			name:      "resolved iptu",
			conv:      conversationOf("Preciso da segunda via do IPTU", "Segue o boleto", "Obrigado!"),
			service:   models.ServiceIPTU,
			sentiment: models.SentimentPositive,
			resolved:  true,
		},
		{
			name:      "frustrated debt",
			conv:      conversationOf("Minha dívida ativa está errada, isso é um absurdo", "Aguarde"),
			service:   models.ServiceDividaAtiva,
			sentiment: models.SentimentFrustrated,
			resolved:  false,
		},
		{
			name:      "unknown topic",
			conv:      conversationOf("Oi", "Olá! Como posso ajudar?"),
			service:   models.ServiceNaoIdentificado,
			sentiment: models.SentimentNeutral,
			resolved:  false,
		},
	}

	tagger := NewHeuristicTagger(5)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := tagger.Tag(context.Background(), tt.conv)
			require.NoError(t, err)
			assert.Equal(t, tt.service, a.PrimaryService)
			assert.Equal(t, tt.sentiment, a.Sentiment)
			assert.Equal(t, tt.resolved, a.WasResolved)
			assert.True(t, a.UserProfile.Valid())
			assert.True(t, a.UserIntent.Valid())
			assert.True(t, a.FunnelStage.Valid())
			assert.GreaterOrEqual(t, a.FrustrationLevel, 0.0)
			assert.LessOrEqual(t, a.FrustrationLevel, 10.0)
			assert.Equal(t, "heuristic", a.Model)
		})
	}
}

func TestTranscriptLabels(t *testing.T) {
	conv := conversationOf("Oi", "Olá!")
	conv.Messages = append(conv.Messages, &models.Message{Sender: models.SenderAgent, Content: "Sou atendente"})

	assert.Equal(t, "[CIDADÃO]: Oi\n[SISTEMA]: Olá!\n[SISTEMA]: Sou atendente", Transcript(conv.Messages))
}

func TestBuildPromptListsDomains(t *testing.T) {
	prompt := BuildPrompt(conversationOf("Oi").Messages)
	for _, want := range []string{
		"[CIDADÃO]: Oi",
		"IPTU, CERTIDAO_NEGATIVA, DIVIDA_ATIVA, ALVARA, OUTROS, NAO_IDENTIFICADO",
		"positivo, neutro, negativo, frustrado",
		"inicio, explicacao, solicitacao, processamento, conclusao",
		"dropoffPoint",
		"NÃO retorne um array",
	} {
		assert.True(t, strings.Contains(prompt, want), "prompt missing %q", want)
	}
}
