package classifier

import (
	"fmt"
	"strings"

	"github.com/xaenox/chat-metrics/internal/models"
)

const (
	citizenLabel = "CIDADÃO"
	systemLabel  = "SISTEMA"
)

// Transcript renders one line per message, labeled by who wrote it.
func Transcript(messages []*models.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		label := systemLabel
		if m.Sender.IsCitizen() {
			label = citizenLabel
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", label, m.Content))
	}
	return strings.Join(lines, "\n")
}

func BuildPrompt(messages []*models.Message) string {
	return fmt.Sprintf(`Analise esta conversa entre um cidadão e o sistema de atendimento da Secretaria de Finanças do município.

CONVERSA:
%s

CONTEXTO:
- IPTU: Imposto Predial, boletos, parcelamento, isenções
- Certidão Negativa: Documento para licitações, financiamentos
- Dívida Ativa: Débitos inscritos, renegociação
- Alvará: Funcionamento de empresas

ANALISE E RETORNE UM JSON COM:

1. primaryService: Serviço principal (%s)
2. secondaryServices: Array de outros serviços mencionados
3. sentiment: Sentimento geral (%s)
4. userProfile: Perfil do cidadão, APENAS UMA STRING (%s)
   - "urgente": Menciona urgência, prazo, "preciso hoje"
   - "confuso": Não entende, pede explicação repetida
   - "revoltado": Reclama, contesta valores, injustiça
   - "tranquilo": Educado, sem pressa
5. frustrationLevel: 0-10 (0=sem frustração, 10=extremamente frustrado)
6. keyPhrases: Array das 3-5 frases mais importantes do cidadão
7. userIntent: Intenção principal (%s)
8. wasResolved: Se o problema foi resolvido (true/false)
9. resolutionStage: Em que momento foi resolvido (ou null)
10. abandonmentReason: Motivo do abandono se não resolvido (ou null)
11. opportunities: Array de oportunidades identificadas
12. recommendations: Array de recomendações para melhorar o atendimento
13. funnelStage: Até onde chegou (%s)
14. dropoffPoint: Onde abandonou se não concluiu (ou null)

IMPORTANTE:
- Retorne APENAS um objeto JSON válido
- NÃO retorne um array, retorne um OBJETO
- NÃO inclua explicações, markdown ou qualquer outro texto
- O JSON deve começar com { e terminar com }`,
		Transcript(messages),
		join(models.Services),
		join(models.Sentiments),
		join(models.UserProfiles),
		join(models.UserIntents),
		join(models.FunnelStages),
	)
}

func join[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
