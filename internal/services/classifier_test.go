package services

import (
	"testing"

	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/stretchr/testify/assert"
)

const sampleBillOfLading = `MEDITERRANEAN SHIPPING COMPANY
BILL OF LADING
B/L No: MEDUAB123456
Shipper: ACME Exports Ltd
Notify Party: Same as consignee
Port of Loading: NLRTM
Port of Discharge: SGSIN
Container: MSCU1234567 Seal 998877
Shipped on board 2025-01-15
Freight prepaid`

func TestClassifyDocument(t *testing.T) {
	c := NewDocumentClassifier()

	tests := []struct {
		name        string
		text        string
		wantType    models.DocumentType
		wantCarrier string
	}{
		{
			name:        "bill of lading",
			text:        sampleBillOfLading,
			wantType:    models.DocumentTypeBillOfLading,
			wantCarrier: "msc",
		},
		{
			name: "booking confirmation",
			text: `Maersk A/S
BOOKING CONFIRMATION
Booking No.: 234567890
Equipment type: 40HC
Cargo cut-off: 2025-01-10
ETD: 2025-01-12`,
			wantType:    models.DocumentTypeBookingConfirmation,
			wantCarrier: "maersk",
		},
		{
			name: "delivery order",
			text: `Hapag-Lloyd
DELIVERY ORDER
D/O No: 55512
Release reference: PIN4471
Valid until 2025-02-01
Terminal: ECT Delta`,
			wantType:    models.DocumentTypeDeliveryOrder,
			wantCarrier: "hapag-lloyd",
		},
		{
			name: "transport order",
			text: `TRANSPORT ORDER
Transport order no: TO-99
Pick-up address: Europoort
Delivery address: Venlo DC
Haulier: Van der Berg`,
			wantType:    models.DocumentTypeTransportOrder,
			wantCarrier: "unknown",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ClassifyDocument(tt.text)
			assert.Equal(t, tt.wantType, got.DocumentType)
			assert.Equal(t, tt.wantCarrier, got.Carrier)
			assert.Greater(t, got.Confidence, 0.5)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestClassifyDocument_UnknownText(t *testing.T) {
	got := NewDocumentClassifier().ClassifyDocument("Lorem ipsum dolor sit amet, invoice totals follow.")

	assert.Equal(t, models.DocumentTypeUnknown, got.DocumentType)
	assert.Equal(t, "unknown", got.Carrier)
	assert.Equal(t, 0.1, got.Confidence)
}

func TestClassifyDocument_SingleFieldLabelIsNotEnough(t *testing.T) {
	got := NewDocumentClassifier().ClassifyDocument("Shipper: ACME")
	assert.Equal(t, models.DocumentTypeUnknown, got.DocumentType)
}

func TestClassifyDocument_TitleInBodyScoresLower(t *testing.T) {
	c := NewDocumentClassifier()
	inHeader := c.ClassifyDocument("BILL OF LADING\nShipper: A\nNotify party: B")
	inBody := c.ClassifyDocument("l1\nl2\nl3\nl4\nl5\nl6\nl7\nl8\nbill of lading\nShipper: A\nNotify party: B")

	assert.Equal(t, models.DocumentTypeBillOfLading, inHeader.DocumentType)
	assert.Equal(t, models.DocumentTypeBillOfLading, inBody.DocumentType)
	assert.Greater(t, inHeader.Confidence, inBody.Confidence)
}

func TestDetectCarrier_ContainerPrefixes(t *testing.T) {
	assert.Equal(t, "cma cgm", detectCarrier("Containers CMAU1234567, CMAU7654321"))
	assert.Equal(t, "evergreen", detectCarrier("EGHU1234567"))
	assert.Equal(t, "unknown", detectCarrier("no carrier here"))
}
