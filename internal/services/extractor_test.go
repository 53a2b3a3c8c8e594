package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, data map[string]interface{}, uncertain ...string) string {
	t.Helper()
	if uncertain == nil {
		uncertain = []string{}
	}
	raw, err := json.Marshal(map[string]interface{}{"data": data, "uncertainFields": uncertain})
	require.NoError(t, err)
	return string(raw)
}

func TestExtractStructured_ValidBillOfLading(t *testing.T) {
	gen := staticGenerator("```json\n" + envelope(t, validBillOfLading(), "containers[0].sealNumber") + "\n```")
	ext := NewStructuredExtractor(gen, time.Second, DefaultScoringWeights())

	res, err := ext.ExtractStructured(context.Background(), ExtractionRequest{
		Text:         sampleBillOfLading,
		DocumentType: models.DocumentTypeBillOfLading,
		Carrier:      "msc",
		FewShotExamples: []models.FewShotExample{
			{DocumentType: models.DocumentTypeBillOfLading, Carrier: "msc", InputText: "x", Output: map[string]interface{}{"a": "b"}},
		},
	})
	require.NoError(t, err)

	assert.True(t, res.Validation.Valid)
	assert.Equal(t, 0.97, res.ConfidenceScore)
	assert.Equal(t, "MSCU1234567", res.Data["containers"].([]interface{})[0].(map[string]interface{})["containerNumber"])
	assert.Equal(t, "2025-01-15", res.Data["documentDate"])
	assert.Equal(t, []string{"containers[0].sealNumber"}, res.Metadata.UncertainFields)
	assert.Equal(t, "scripted", res.Metadata.ModelName)
	assert.Equal(t, 42, res.Metadata.TokensUsed)
	assert.Equal(t, 1, res.Metadata.FewShotExamplesUsed)
	assert.Equal(t, res.ConfidenceScore, res.Metadata.ConfidenceScore)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestExtractStructured_PromptCarriesTypeCarrierAndExamples(t *testing.T) {
	var prompt string
	gen := &scriptedGenerator{respond: func(_ context.Context, p string) (string, error) {
		prompt = p
		return envelope(t, validBillOfLading()), nil
	}}
	ext := NewStructuredExtractor(gen, time.Second, DefaultScoringWeights())

	_, err := ext.ExtractStructured(context.Background(), ExtractionRequest{
		Text:         "DOCUMENT-BODY-MARKER",
		DocumentType: models.DocumentTypeBillOfLading,
		Carrier:      "msc",
		FewShotExamples: []models.FewShotExample{
			{Carrier: "msc", InputText: strings.Repeat("y", 5000), Output: map[string]interface{}{"billOfLadingNumber": "EXAMPLE-1"}},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, `"data.documentType" MUST be "bill_of_lading"`)
	assert.Contains(t, prompt, "The detected carrier is: msc")
	assert.Contains(t, prompt, "EXAMPLE-1")
	assert.Contains(t, prompt, "DOCUMENT-BODY-MARKER")
	assert.NotContains(t, prompt, strings.Repeat("y", 4001))
}

func TestExtractStructured_ExampleTruncationKeepsUTF8(t *testing.T) {
	var prompt string
	gen := &scriptedGenerator{respond: func(_ context.Context, p string) (string, error) {
		prompt = p
		return envelope(t, validBillOfLading()), nil
	}}
	ext := NewStructuredExtractor(gen, time.Second, DefaultScoringWeights())

	_, err := ext.ExtractStructured(context.Background(), ExtractionRequest{
		Text:         "x",
		DocumentType: models.DocumentTypeBillOfLading,
		FewShotExamples: []models.FewShotExample{
			{Carrier: "msc", InputText: strings.Repeat("a", 3999) + "\u00e9 tail", Output: map[string]interface{}{"billOfLadingNumber": "B1"}},
		},
	})
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(prompt))
	assert.Contains(t, prompt, strings.Repeat("a", 3999)+"\n")
	assert.NotContains(t, prompt, "tail")
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"ab\u00e9", 3, "ab"},
		{"\u65e5\u672c\u8a9e", 7, "\u65e5\u672c"},
		{"\u00e9", 1, ""},
	}
	for _, tt := range tests {
		got := truncateUTF8(tt.in, tt.n)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, utf8.ValidString(got))
	}
}

func TestExtractStructured_InvalidDataScoresHalf(t *testing.T) {
	data := validBillOfLading()
	delete(data, "billOfLadingNumber")
	ext := NewStructuredExtractor(staticGenerator(envelope(t, data)), time.Second, DefaultScoringWeights())

	res, err := ext.ExtractStructured(context.Background(), ExtractionRequest{Text: "x", DocumentType: models.DocumentTypeBillOfLading})
	require.NoError(t, err)

	assert.False(t, res.Validation.Valid)
	assert.Equal(t, 0.5, res.ConfidenceScore)
	assert.Contains(t, res.Metadata.ValidationErrors, "billOfLadingNumber is required")
}

func TestExtractStructured_UnknownTypeNeverCallsModel(t *testing.T) {
	gen := staticGenerator("{}")
	ext := NewStructuredExtractor(gen, time.Second, DefaultScoringWeights())

	_, err := ext.ExtractStructured(context.Background(), ExtractionRequest{Text: "x", DocumentType: models.DocumentTypeUnknown})
	assert.ErrorIs(t, err, ErrUnknownDocumentType)
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestExtractStructured_Timeout(t *testing.T) {
	gen := &scriptedGenerator{respond: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	ext := NewStructuredExtractor(gen, 20*time.Millisecond, DefaultScoringWeights())

	_, err := ext.ExtractStructured(context.Background(), ExtractionRequest{Text: "x", DocumentType: models.DocumentTypeDeliveryOrder})
	assert.ErrorIs(t, err, ErrExtractionTimeout)
}

func TestExtractStructured_ParentCancellationIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &scriptedGenerator{respond: func(c context.Context, _ string) (string, error) {
		cancel()
		<-c.Done()
		return "", c.Err()
	}}
	ext := NewStructuredExtractor(gen, time.Minute, DefaultScoringWeights())

	_, err := ext.ExtractStructured(ctx, ExtractionRequest{Text: "x", DocumentType: models.DocumentTypeDeliveryOrder})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExtractionTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractStructured_GeneratorError(t *testing.T) {
	boom := errors.New("quota exceeded")
	gen := &scriptedGenerator{respond: func(context.Context, string) (string, error) { return "", boom }}
	ext := NewStructuredExtractor(gen, time.Second, DefaultScoringWeights())

	_, err := ext.ExtractStructured(context.Background(), ExtractionRequest{Text: "x", DocumentType: models.DocumentTypeTransportOrder})
	assert.ErrorIs(t, err, boom)
}

func TestParseModelResponse(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantErr       error
		wantKey       string
		wantUncertain []string
	}{
		{
			name:          "envelope",
			text:          `{"data":{"billOfLadingNumber":"B1"},"uncertainFields":["vesselName",""]}`,
			wantKey:       "billOfLadingNumber",
			wantUncertain: []string{"vesselName"},
		},
		{
			name:          "fenced envelope with prose",
			text:          "Here you go:\n```json\n{\"data\":{\"deliveryOrderNumber\":\"D1\"}}\n```",
			wantKey:       "deliveryOrderNumber",
			wantUncertain: []string{},
		},
		{
			name:          "bare object",
			text:          `{"transportOrderNumber":"TO-99","uncertainFields":["pickUp.date"]}`,
			wantKey:       "transportOrderNumber",
			wantUncertain: []string{"pickUp.date"},
		},
		{name: "empty", text: "  ```json\n```  ", wantErr: ErrEmptyModelResponse},
		{name: "refusal", text: "I'm unable to help with extracting this document.", wantErr: ErrModelRefusal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, uncertain, err := parseModelResponse(tt.text)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, data, tt.wantKey)
			assert.NotContains(t, data, "uncertainFields")
			assert.Equal(t, tt.wantUncertain, uncertain)
		})
	}

	_, _, err := parseModelResponse("not json at all")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrModelRefusal)
}
