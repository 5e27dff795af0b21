package models

import "time"

type Service string

const (
	ServiceIPTU             Service = "IPTU"
	ServiceCertidaoNegativa Service = "CERTIDAO_NEGATIVA"
	ServiceDividaAtiva      Service = "DIVIDA_ATIVA"
	ServiceAlvara           Service = "ALVARA"
	ServiceOutros           Service = "OUTROS"
	ServiceNaoIdentificado  Service = "NAO_IDENTIFICADO"
)

type Sentiment string

const (
	SentimentPositive   Sentiment = "positivo"
	SentimentNeutral    Sentiment = "neutro"
	SentimentNegative   Sentiment = "negativo"
	SentimentFrustrated Sentiment = "frustrado"
)

type UserProfile string

const (
	ProfileUrgent   UserProfile = "urgente"
	ProfileConfused UserProfile = "confuso"
	ProfileAngry    UserProfile = "revoltado"
	ProfileCalm     UserProfile = "tranquilo"
)

type UserIntent string

const (
	IntentInformation UserIntent = "informacao"
	IntentAction      UserIntent = "acao"
	IntentComplaint   UserIntent = "reclamacao"
	IntentQuestion    UserIntent = "duvida"
	IntentOther       UserIntent = "outros"
)

type FunnelStage string

const (
	FunnelStart      FunnelStage = "inicio"
	FunnelExplain    FunnelStage = "explicacao"
	FunnelRequest    FunnelStage = "solicitacao"
	FunnelProcessing FunnelStage = "processamento"
	FunnelDone       FunnelStage = "conclusao"
)

var (
	Services     = []Service{ServiceIPTU, ServiceCertidaoNegativa, ServiceDividaAtiva, ServiceAlvara, ServiceOutros, ServiceNaoIdentificado}
	Sentiments   = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative, SentimentFrustrated}
	UserProfiles = []UserProfile{ProfileUrgent, ProfileConfused, ProfileAngry, ProfileCalm}
	UserIntents  = []UserIntent{IntentInformation, IntentAction, IntentComplaint, IntentQuestion, IntentOther}
	// FunnelStages is ordered from the first contact to the finished request.
	FunnelStages = []FunnelStage{FunnelStart, FunnelExplain, FunnelRequest, FunnelProcessing, FunnelDone}
)

func (s Service) Valid() bool     { return contains(Services, s) }
func (s Sentiment) Valid() bool   { return contains(Sentiments, s) }
func (p UserProfile) Valid() bool { return contains(UserProfiles, p) }
func (i UserIntent) Valid() bool  { return contains(UserIntents, i) }
func (f FunnelStage) Valid() bool { return contains(FunnelStages, f) }

// Rank returns the position of the stage in FunnelStages, or -1.
func (f FunnelStage) Rank() int {
	for i, s := range FunnelStages {
		if s == f {
			return i
		}
	}
	return -1
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Analysis is the model-produced classification of one conversation.
type Analysis struct {
	ID                string      `json:"id"`
	ConversationID    string      `json:"conversation_id"`
	TicketID          string      `json:"ticket_id,omitempty"`
	PrimaryService    Service     `json:"primaryService"`
	SecondaryServices []string    `json:"secondaryServices"`
	Sentiment         Sentiment   `json:"sentiment"`
	UserProfile       UserProfile `json:"userProfile"`
	FrustrationLevel  float64     `json:"frustrationLevel"`
	KeyPhrases        []string    `json:"keyPhrases"`
	UserIntent        UserIntent  `json:"userIntent"`
	WasResolved       bool        `json:"wasResolved"`
	ResolutionStage   *string     `json:"resolutionStage"`
	AbandonmentReason *string     `json:"abandonmentReason"`
	Opportunities     []string    `json:"opportunities"`
	Recommendations   []string    `json:"recommendations"`
	FunnelStage       FunnelStage `json:"funnelStage"`
	DropoffPoint      *string     `json:"dropoffPoint"`
	Model             string      `json:"model"`
	CreatedAt         time.Time   `json:"created_at"`
}
