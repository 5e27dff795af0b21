package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/chat-metrics/internal/models"
)

const validResponse = `{
  "primaryService": "IPTU",
  "secondaryServices": ["CERTIDAO_NEGATIVA"],
  "sentiment": "positivo",
  "userProfile": "tranquilo",
  "frustrationLevel": 2,
  "keyPhrases": ["segunda via", "boleto"],
  "userIntent": "acao",
  "wasResolved": true,
  "resolutionStage": "conclusao",
  "abandonmentReason": null,
  "opportunities": [],
  "recommendations": ["Melhorar processo"],
  "funnelStage": "conclusao",
  "dropoffPoint": null
}`

func TestDecodeValidObject(t *testing.T) {
	result := Decode(validResponse)
	require.Equal(t, StatusOK, result.Status, "%v", result.Err)
	assert.False(t, result.Repaired)

	a := result.Analysis
	assert.Equal(t, models.ServiceIPTU, a.PrimaryService)
	assert.Equal(t, []string{"CERTIDAO_NEGATIVA"}, a.SecondaryServices)
	assert.Equal(t, float64(2), a.FrustrationLevel)
	assert.True(t, a.WasResolved)
	require.NotNil(t, a.ResolutionStage)
	assert.Equal(t, "conclusao", *a.ResolutionStage)
	assert.Nil(t, a.AbandonmentReason)
	assert.Equal(t, models.FunnelDone, a.FunnelStage)
}

func TestDecodeRepairsArray(t *testing.T) {
	result := Decode("[" + validResponse + ", {}]")
	require.Equal(t, StatusOK, result.Status)
	assert.True(t, result.Repaired)
	assert.Equal(t, models.ServiceIPTU, result.Analysis.PrimaryService)
}

func TestDecodeStripsMarkdownFence(t *testing.T) {
	result := Decode("```json\n" + validResponse + "\n```")
	require.Equal(t, StatusOK, result.Status)
}

func TestDecodeDefaultsMissingLists(t *testing.T) {
	result := Decode(`{"primaryService":"ALVARA","sentiment":"neutro","userProfile":"confuso","frustrationLevel":0,
		"userIntent":"duvida","wasResolved":false,"funnelStage":"inicio"}`)
	require.Equal(t, StatusOK, result.Status, "%v", result.Err)

	a := result.Analysis
	assert.Equal(t, []string{}, a.SecondaryServices)
	assert.Equal(t, []string{}, a.KeyPhrases)
	assert.Equal(t, []string{}, a.Opportunities)
	assert.Equal(t, []string{}, a.Recommendations)
	assert.Zero(t, a.FrustrationLevel)
	assert.False(t, a.WasResolved)
}

func TestDecodeRejections(t *testing.T) {
	base := `"primaryService":"IPTU","sentiment":"neutro","userProfile":"tranquilo","userIntent":"acao","funnelStage":"inicio"`

	tests := []struct {
		name   string
		input  string
		status DecodeStatus
		field  string
	}{
		{"not json", "I think the citizen wanted IPTU", StatusParseError, ""},
		{"empty array", "[]", StatusParseError, ""},
		{"scalar", "42", StatusParseError, ""},
		{"array of strings", `["IPTU"]`, StatusParseError, ""},
		{"missing wasResolved", `{` + base + `,"frustrationLevel":3}`, StatusValidationError, "wasResolved"},
		{"missing frustrationLevel", `{` + base + `,"wasResolved":true}`, StatusValidationError, "frustrationLevel"},
		{"frustration above range", `{` + base + `,"frustrationLevel":11,"wasResolved":true}`, StatusValidationError, "frustrationLevel"},
		{"frustration below range", `{` + base + `,"frustrationLevel":-1,"wasResolved":true}`, StatusValidationError, "frustrationLevel"},
		{"non boolean resolved", `{` + base + `,"frustrationLevel":3,"wasResolved":"sim"}`, StatusValidationError, ""},
		{"unknown service", `{"primaryService":"ISS","sentiment":"neutro","userProfile":"tranquilo","userIntent":"acao","funnelStage":"inicio","frustrationLevel":3,"wasResolved":true}`, StatusValidationError, "primaryService"},
		{"unknown funnel stage", `{"primaryService":"IPTU","sentiment":"neutro","userProfile":"tranquilo","userIntent":"acao","funnelStage":"fim","frustrationLevel":3,"wasResolved":true}`, StatusValidationError, "funnelStage"},
		{"profile as array", `{"primaryService":"IPTU","sentiment":"neutro","userProfile":["urgente"],"userIntent":"acao","funnelStage":"inicio","frustrationLevel":3,"wasResolved":true}`, StatusValidationError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Decode(tt.input)
			assert.Equal(t, tt.status, result.Status)
			assert.Nil(t, result.Analysis)
			require.Error(t, result.Err)
			if tt.status == StatusParseError {
				assert.ErrorIs(t, result.Err, ErrParse)
			} else {
				assert.ErrorIs(t, result.Err, ErrValidation)
			}
			if tt.field != "" {
				assert.Contains(t, result.Err.Error(), tt.field)
			}
		})
	}
}
