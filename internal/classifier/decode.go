package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xaenox/chat-metrics/internal/models"
)

var (
	ErrParse      = errors.New("model output is not a JSON object")
	ErrValidation = errors.New("model output failed schema validation")
	ErrCompletion = errors.New("completion request failed")
)

type DecodeStatus string

const (
	StatusOK              DecodeStatus = "ok"
	StatusParseError      DecodeStatus = "parse_error"
	StatusValidationError DecodeStatus = "validation_error"
	StatusCompletionError DecodeStatus = "completion_error"
)

// DecodeResult is the outcome of decoding one model response. Analysis is
// set only when Status is StatusOK.
type DecodeResult struct {
	Status   DecodeStatus
	Analysis *models.Analysis
	// Repaired is true when the model wrapped the object in an array.
	Repaired bool
	Err      error
}

// analysisSchema mirrors the JSON the model is asked to produce. Pointers
// distinguish a missing field from a zero value.
type analysisSchema struct {
	PrimaryService    string   `json:"primaryService" validate:"required,oneof=IPTU CERTIDAO_NEGATIVA DIVIDA_ATIVA ALVARA OUTROS NAO_IDENTIFICADO"`
	SecondaryServices []string `json:"secondaryServices"`
	Sentiment         string   `json:"sentiment" validate:"required,oneof=positivo neutro negativo frustrado"`
	UserProfile       string   `json:"userProfile" validate:"required,oneof=urgente confuso revoltado tranquilo"`
	FrustrationLevel  *float64 `json:"frustrationLevel" validate:"required,min=0,max=10"`
	KeyPhrases        []string `json:"keyPhrases"`
	UserIntent        string   `json:"userIntent" validate:"required,oneof=informacao acao reclamacao duvida outros"`
	WasResolved       *bool    `json:"wasResolved" validate:"required"`
	ResolutionStage   *string  `json:"resolutionStage"`
	AbandonmentReason *string  `json:"abandonmentReason"`
	Opportunities     []string `json:"opportunities"`
	Recommendations   []string `json:"recommendations"`
	FunnelStage       string   `json:"funnelStage" validate:"required,oneof=inicio explicacao solicitacao processamento conclusao"`
	DropoffPoint      *string  `json:"dropoffPoint"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

// Decode parses a model response into an Analysis. It tolerates markdown
// fences and a top-level array (first element is used); everything else
// that does not match the schema is rejected.
func Decode(text string) DecodeResult {
	body := extractJSON(text)

	var top any
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&top); err != nil {
		return DecodeResult{Status: StatusParseError, Err: fmt.Errorf("%w: %v", ErrParse, err)}
	}

	repaired := false
	if arr, ok := top.([]any); ok {
		if len(arr) == 0 {
			return DecodeResult{Status: StatusParseError, Err: fmt.Errorf("%w: empty array", ErrParse)}
		}
		top = arr[0]
		repaired = true
	}
	obj, ok := top.(map[string]any)
	if !ok {
		return DecodeResult{Status: StatusParseError, Repaired: repaired, Err: fmt.Errorf("%w: got %T", ErrParse, top)}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return DecodeResult{Status: StatusParseError, Repaired: repaired, Err: fmt.Errorf("%w: %v", ErrParse, err)}
	}
	var schema analysisSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		// Wrong JSON types, e.g. "wasResolved": "sim".
		return DecodeResult{Status: StatusValidationError, Repaired: repaired, Err: fmt.Errorf("%w: %v", ErrValidation, err)}
	}
	if err := validate.Struct(schema); err != nil {
		return DecodeResult{Status: StatusValidationError, Repaired: repaired, Err: fmt.Errorf("%w: %s", ErrValidation, describe(err))}
	}

	return DecodeResult{Status: StatusOK, Analysis: schema.toAnalysis(), Repaired: repaired}
}

func (s analysisSchema) toAnalysis() *models.Analysis {
	return &models.Analysis{
		PrimaryService:    models.Service(s.PrimaryService),
		SecondaryServices: orEmpty(s.SecondaryServices),
		Sentiment:         models.Sentiment(s.Sentiment),
		UserProfile:       models.UserProfile(s.UserProfile),
		FrustrationLevel:  *s.FrustrationLevel,
		KeyPhrases:        orEmpty(s.KeyPhrases),
		UserIntent:        models.UserIntent(s.UserIntent),
		WasResolved:       *s.WasResolved,
		ResolutionStage:   s.ResolutionStage,
		AbandonmentReason: s.AbandonmentReason,
		Opportunities:     orEmpty(s.Opportunities),
		Recommendations:   orEmpty(s.Recommendations),
		FunnelStage:       models.FunnelStage(s.FunnelStage),
		DropoffPoint:      s.DropoffPoint,
	}
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// extractJSON strips a ```json fence if the model added one.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	if i := strings.LastIndex(text, "```"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
