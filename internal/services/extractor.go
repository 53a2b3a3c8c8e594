package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

const DefaultExtractionTimeout = 90 * time.Second

var refusalPhrases = []string{
	"i am unable to",
	"i'm unable to",
	"i cannot fulfill",
	"i cannot help",
	"i cannot provide",
	"i can't assist",
	"as a large language model",
	"as an ai",
}

// ScoringWeights calibrate the confidence formula.
type ScoringWeights struct {
	Error        float64
	Warning      float64
	Uncertain    float64
	InvalidScore float64
}

func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Error:        0.2,
		Warning:      0.05,
		Uncertain:    0.03,
		InvalidScore: 0.5,
	}
}

// ComputeConfidence scores an extraction in [0, 1]. A structurally invalid
// result always scores InvalidScore.
func ComputeConfidence(v ValidationResult, uncertainCount int, w ScoringWeights) float64 {
	if !v.Valid {
		return w.InvalidScore
	}
	score := 1.0 -
		w.Error*float64(len(v.Errors)) -
		w.Warning*float64(len(v.Warnings)) -
		w.Uncertain*float64(uncertainCount)
	score = math.Max(0, math.Min(1, score))
	return math.Round(score*10000) / 10000
}

// ExtractionRequest is one document group to be turned into structured data.
type ExtractionRequest struct {
	Text            string
	DocumentType    models.DocumentType
	Carrier         string
	FewShotExamples []models.FewShotExample
}

type ExtractionResult struct {
	Data            map[string]interface{}
	ConfidenceScore float64
	Validation      ValidationResult
	Metadata        models.ExtractionMetadata
}

// StructuredExtractor turns group text into validated, scored structured data
// using an LLM backend.
type StructuredExtractor struct {
	generator Generator
	validator *SchemaValidator
	weights   ScoringWeights
	timeout   time.Duration
}

func NewStructuredExtractor(generator Generator, timeout time.Duration, weights ScoringWeights) *StructuredExtractor {
	if timeout <= 0 {
		timeout = DefaultExtractionTimeout
	}
	return &StructuredExtractor{
		generator: generator,
		validator: NewSchemaValidator(),
		weights:   weights,
		timeout:   timeout,
	}
}

// ExtractStructured runs one bounded LLM call and validates its output.
// A call that outlives the extraction timeout fails with ErrExtractionTimeout.
func (e *StructuredExtractor) ExtractStructured(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error) {
	if !req.DocumentType.IsKnown() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentType, req.DocumentType)
	}
	prompt, err := buildExtractionPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction prompt: %w", err)
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	completion, err := e.generator.Generate(callCtx, ExtractionSystemPrompt, prompt)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrExtractionTimeout, e.timeout, err)
		}
		return nil, fmt.Errorf("failed to generate structured data: %w", err)
	}
	elapsed := time.Since(start)

	data, uncertain, err := parseModelResponse(completion.Text)
	if err != nil {
		return nil, err
	}

	validation := e.validator.Validate(req.DocumentType, data)
	score := ComputeConfidence(validation, len(uncertain), e.weights)

	slog.Info("Structured extraction finished",
		"documentType", req.DocumentType,
		"carrier", req.Carrier,
		"model", completion.Model,
		"tokens", completion.TokensUsed,
		"confidence", score,
		"errors", len(validation.Errors),
		"warnings", len(validation.Warnings))

	return &ExtractionResult{
		Data:            data,
		ConfidenceScore: score,
		Validation:      validation,
		Metadata: models.ExtractionMetadata{
			ModelName:           completion.Model,
			TokensUsed:          completion.TokensUsed,
			ProcessingTimeMs:    elapsed.Milliseconds(),
			ConfidenceScore:     score,
			UncertainFields:     uncertain,
			ExtractionTimestamp: time.Now().UTC(),
			FewShotExamplesUsed: len(req.FewShotExamples),
			ValidationErrors:    validation.Errors,
			ValidationWarnings:  validation.Warnings,
		},
	}, nil
}

// parseModelResponse reads the {data, uncertainFields} envelope. A bare
// object without the envelope is taken as the data itself.
func parseModelResponse(text string) (map[string]interface{}, []string, error) {
	cleaned := stripCodeFences(text)
	if cleaned == "" {
		return nil, nil, ErrEmptyModelResponse
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal([]byte(jsonObjectSpan(cleaned)), &envelope); err != nil {
		if isRefusal(cleaned) {
			return nil, nil, fmt.Errorf("%w: %.200s", ErrModelRefusal, cleaned)
		}
		return nil, nil, fmt.Errorf("model response is not a JSON object: %w", err)
	}

	uncertain := []string{}
	if raw, ok := envelope["uncertainFields"].([]interface{}); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok && s != "" {
				uncertain = append(uncertain, s)
			}
		}
	}

	data, ok := envelope["data"].(map[string]interface{})
	if !ok {
		data = envelope
		delete(data, "uncertainFields")
	}
	return data, uncertain, nil
}

func stripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// jsonObjectSpan trims any prose around the outermost JSON object.
func jsonObjectSpan(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
