package services

import (
	"encoding/json"
	"testing"

	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBillOfLading() map[string]interface{} {
	return map[string]interface{}{
		"documentType":       "bill_of_lading",
		"billOfLadingNumber": "MEDUAB123456",
		"documentDate":       "2025-01-15",
		"shipper":            map[string]interface{}{"partyName": "ACME Exports Ltd"},
		"consignee":          map[string]interface{}{"partyName": "Globex BV"},
		"vesselName":         "MSC OSCAR",
		"voyageNumber":       "FE502W",
		"portOfLoading":      "NLRTM",
		"portOfDischarge":    "SGSIN",
		"containers": []interface{}{
			map[string]interface{}{"containerNumber": "MSCU1234567", "weightUnit": "KGM", "grossWeight": 12000.5},
		},
	}
}

func TestSchemaValidator_ValidBillOfLading(t *testing.T) {
	res := NewSchemaValidator().Validate(models.DocumentTypeBillOfLading, validBillOfLading())

	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1.0, ComputeConfidence(res, 0, DefaultScoringWeights()))
}

func TestSchemaValidator_ErrorsAndWarnings(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(map[string]interface{})
		wantValid    bool
		wantError    string
		wantWarning  string
		warningCount int
	}{
		{
			name:      "missing bill of lading number",
			mutate:    func(d map[string]interface{}) { delete(d, "billOfLadingNumber") },
			wantValid: false,
			wantError: "billOfLadingNumber is required",
		},
		{
			name:      "non ISO date",
			mutate:    func(d map[string]interface{}) { d["documentDate"] = "15/01/2025" },
			wantValid: false,
			wantError: `documentDate must be an ISO date (YYYY-MM-DD), got "15/01/2025"`,
		},
		{
			name:      "missing documentType",
			mutate:    func(d map[string]interface{}) { delete(d, "documentType") },
			wantValid: false,
			wantError: "documentType is required",
		},
		{
			name: "malformed container number",
			mutate: func(d map[string]interface{}) {
				d["containers"] = []interface{}{map[string]interface{}{"containerNumber": "MSCU-123"}}
			},
			wantValid:    true,
			wantWarning:  `containers[0].containerNumber "MSCU-123" is not a valid container number`,
			warningCount: 1,
		},
		{
			name:         "port name instead of UN/LOCODE",
			mutate:       func(d map[string]interface{}) { d["portOfLoading"] = "Rotterdam" },
			wantValid:    true,
			wantWarning:  `portOfLoading "Rotterdam" is not a valid UN/LOCODE`,
			warningCount: 1,
		},
		{
			name:         "missing shipper name",
			mutate:       func(d map[string]interface{}) { delete(d, "shipper") },
			wantValid:    true,
			wantWarning:  "shipper.partyName is missing",
			warningCount: 1,
		},
		{
			name:         "no containers",
			mutate:       func(d map[string]interface{}) { delete(d, "containers") },
			wantValid:    true,
			wantWarning:  "containers is missing",
			warningCount: 1,
		},
		{
			name:         "documentType disagrees with classification",
			mutate:       func(d map[string]interface{}) { d["documentType"] = "delivery_order" },
			wantValid:    true,
			wantWarning:  `documentType "delivery_order" does not match classified type "bill_of_lading"`,
			warningCount: 1,
		},
		{
			name:      "wrong JSON type",
			mutate:    func(d map[string]interface{}) { d["containers"] = "MSCU1234567" },
			wantValid: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validBillOfLading()
			tt.mutate(data)

			res := NewSchemaValidator().Validate(models.DocumentTypeBillOfLading, data)

			assert.Equal(t, tt.wantValid, res.Valid, "errors: %v", res.Errors)
			if tt.wantError != "" {
				assert.Contains(t, res.Errors, tt.wantError)
			}
			if !tt.wantValid {
				assert.NotEmpty(t, res.Errors)
			}
			if tt.wantWarning != "" {
				assert.Contains(t, res.Warnings, tt.wantWarning)
				assert.Len(t, res.Warnings, tt.warningCount)
			}
		})
	}
}

func TestSchemaValidator_StringTypedNumbersAreWarnings(t *testing.T) {
	data := validBillOfLading()
	delete(data, "billOfLadingNumber")
	data["numberOfOriginals"] = "3"

	res := NewSchemaValidator().Validate(models.DocumentTypeBillOfLading, data)

	assert.False(t, res.Valid)
	assert.Equal(t, []string{"billOfLadingNumber is required"}, res.Errors)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "numberOfOriginals")
}

func TestSchemaValidator_NestedStringNumberKeepsRecordValid(t *testing.T) {
	data := validBillOfLading()
	data["containers"] = []interface{}{
		map[string]interface{}{"containerNumber": "MSCU1234567", "weightUnit": "KGM", "grossWeight": "12000.5"},
	}

	res := NewSchemaValidator().Validate(models.DocumentTypeBillOfLading, data)

	assert.True(t, res.Valid, "errors: %v", res.Errors)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "grossWeight")
	assert.InDelta(t, 0.95, ComputeConfidence(res, 0, DefaultScoringWeights()), 1e-9)
}

func TestSchemaValidator_UnsupportedType(t *testing.T) {
	res := NewSchemaValidator().Validate(models.DocumentTypeUnknown, map[string]interface{}{"documentType": "unknown"})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, `unsupported documentType "unknown"`)
}

func TestSchemaValidator_TransportOrder(t *testing.T) {
	data := map[string]interface{}{
		"documentType":         "transport_order",
		"transportOrderNumber": "TO-99",
		"pickUp":               map[string]interface{}{"address": "Europoort", "locationCode": "NLRTM", "date": "2025-01-20"},
		"delivery":             map[string]interface{}{"address": "Venlo", "date": "20-01-2025"},
		"containers":           []interface{}{map[string]interface{}{"containerNumber": "MSCU1234567"}},
	}
	res := NewSchemaValidator().Validate(models.DocumentTypeTransportOrder, data)

	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, `delivery.date must be an ISO date (YYYY-MM-DD), got "20-01-2025"`)
	assert.Contains(t, res.Warnings, "haulier.partyName is missing")
}

func TestComputeConfidence(t *testing.T) {
	w := DefaultScoringWeights()
	tests := []struct {
		name      string
		v         ValidationResult
		uncertain int
		want      float64
	}{
		{"perfect", ValidationResult{Valid: true}, 0, 1.0},
		{"two warnings", ValidationResult{Valid: true, Warnings: []string{"a", "b"}}, 0, 0.9},
		{"warnings and uncertain", ValidationResult{Valid: true, Warnings: []string{"a"}}, 3, 0.86},
		{"clamped at zero", ValidationResult{Valid: true, Warnings: make([]string, 30)}, 10, 0.0},
		{"invalid with one error", ValidationResult{Valid: false, Errors: []string{"x"}}, 0, 0.5},
		{"invalid with many errors", ValidationResult{Valid: false, Errors: make([]string, 12)}, 9, 0.5},
		{"invalid with no penalties", ValidationResult{Valid: false}, 0, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeConfidence(tt.v, tt.uncertain, w)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestComputeConfidence_AlwaysWithinBounds(t *testing.T) {
	w := DefaultScoringWeights()
	for e := 0; e < 8; e++ {
		for warn := 0; warn < 25; warn += 3 {
			for u := 0; u < 40; u += 7 {
				v := ValidationResult{Valid: e == 0, Errors: make([]string, e), Warnings: make([]string, warn)}
				got := ComputeConfidence(v, u, w)
				require.GreaterOrEqual(t, got, 0.0)
				require.LessOrEqual(t, got, 1.0)
				if e > 0 {
					require.Equal(t, 0.5, got)
				}
			}
		}
	}
}

func TestSchemaSkeleton(t *testing.T) {
	for _, dt := range models.KnownDocumentTypes {
		raw, err := schemaSkeleton(dt)
		require.NoError(t, err, dt)

		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &parsed), dt)
		assert.Equal(t, string(dt), parsed["documentType"])
		containers, ok := parsed["containers"].([]interface{})
		require.True(t, ok, dt)
		assert.Len(t, containers, 1)
	}

	_, err := schemaSkeleton(models.DocumentTypeUnknown)
	assert.ErrorIs(t, err, ErrUnknownDocumentType)
}
