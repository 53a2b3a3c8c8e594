package models

import "time"

// DocumentType identifies which freight document schema a record follows.
type DocumentType string

const (
	DocumentTypeBookingConfirmation DocumentType = "booking_confirmation"
	DocumentTypeBillOfLading        DocumentType = "bill_of_lading"
	DocumentTypeDeliveryOrder       DocumentType = "delivery_order"
	DocumentTypeTransportOrder      DocumentType = "transport_order"
	DocumentTypeUnknown             DocumentType = "unknown"
)

// KnownDocumentTypes lists every type the extractor has a schema for.
var KnownDocumentTypes = []DocumentType{
	DocumentTypeBookingConfirmation,
	DocumentTypeBillOfLading,
	DocumentTypeDeliveryOrder,
	DocumentTypeTransportOrder,
}

// IsKnown reports whether t has an extraction schema.
func (t DocumentType) IsKnown() bool {
	for _, known := range KnownDocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ProcessingStatus is the review state of a stored record.
type ProcessingStatus string

const (
	StatusValidated ProcessingStatus = "validated"
	StatusPending   ProcessingStatus = "pending"
	StatusRejected  ProcessingStatus = "rejected"
)

// Classification is the classifier's best guess for a document group.
type Classification struct {
	DocumentType DocumentType `json:"documentType"`
	Carrier      string       `json:"carrier"`
	Confidence   float64      `json:"confidence"`
}

// ExtractionMetadata records how a record's data was produced.
type ExtractionMetadata struct {
	ModelName           string    `firestore:"modelName" json:"modelName"`
	TokensUsed          int       `firestore:"tokensUsed" json:"tokensUsed"`
	ProcessingTimeMs    int64     `firestore:"processingTimeMs" json:"processingTimeMs"`
	ConfidenceScore     float64   `firestore:"confidenceScore" json:"confidenceScore"`
	UncertainFields     []string  `firestore:"uncertainFields" json:"uncertainFields"`
	ExtractionTimestamp time.Time `firestore:"extractionTimestamp" json:"extractionTimestamp"`
	FewShotExamplesUsed int       `firestore:"fewShotExamplesUsed" json:"fewShotExamplesUsed"`
	ValidationErrors    []string  `firestore:"validationErrors" json:"validationErrors"`
	ValidationWarnings  []string  `firestore:"validationWarnings" json:"validationWarnings"`
}

// ValidationEntry is one human review action on a record.
type ValidationEntry struct {
	Reviewer       string           `firestore:"reviewer" json:"reviewer"`
	Action         ProcessingStatus `firestore:"action" json:"action"`
	PreviousStatus ProcessingStatus `firestore:"previousStatus" json:"previousStatus"`
	Notes          string           `firestore:"notes,omitempty" json:"notes,omitempty"`
	CorrectedKeys  []string         `firestore:"correctedKeys,omitempty" json:"correctedKeys,omitempty"`
	Timestamp      time.Time        `firestore:"timestamp" json:"timestamp"`
}

// DocumentRecord is the persisted result for one classified document group.
// It is always addressed by the (ID, TenantID) pair.
type DocumentRecord struct {
	ID                 string                 `firestore:"id" json:"id"`
	TenantID           string                 `firestore:"tenantId" json:"tenantId"`
	DocumentType       DocumentType           `firestore:"documentType" json:"documentType"`
	DocumentNumber     string                 `firestore:"documentNumber" json:"documentNumber"`
	Carrier            string                 `firestore:"carrier" json:"carrier"`
	UploadedBy         string                 `firestore:"uploadedBy" json:"uploadedBy"`
	UploadTimestamp    time.Time              `firestore:"uploadTimestamp" json:"uploadTimestamp"`
	ProcessingStatus   ProcessingStatus       `firestore:"processingStatus" json:"processingStatus"`
	Data               map[string]interface{} `firestore:"data" json:"data"`
	ExtractionMetadata ExtractionMetadata     `firestore:"extractionMetadata" json:"extractionMetadata"`
	DocumentURL        string                 `firestore:"documentUrl" json:"documentUrl"`
	OriginalFilename   string                 `firestore:"originalFilename,omitempty" json:"originalFilename,omitempty"`
	PageNumber         int                    `firestore:"pageNumber" json:"pageNumber"`
	EndPage            int                    `firestore:"endPage" json:"endPage"`
	TotalPages         int                    `firestore:"totalPages" json:"totalPages"`
	ValidationHistory  []ValidationEntry      `firestore:"validationHistory" json:"validationHistory"`
}

// DefaultQueryLimit and MaxQueryLimit bound a page of query results.
const (
	DefaultQueryLimit = 25
	MaxQueryLimit     = 100
)

// DocumentQuery filters a tenant's records. TenantID is mandatory.
type DocumentQuery struct {
	TenantID          string
	Status            ProcessingStatus
	DocumentType      DocumentType
	Carrier           string
	Limit             int
	ContinuationToken string
}

// DocumentPage is one page of query results.
type DocumentPage struct {
	Items             []*DocumentRecord `json:"items"`
	ContinuationToken string            `json:"continuationToken,omitempty"`
	HasMore           bool              `json:"hasMore"`
}

// FewShotExample is a previously validated extraction used to steer the model.
type FewShotExample struct {
	ID           string                 `firestore:"id" json:"id"`
	DocumentType DocumentType           `firestore:"documentType" json:"documentType"`
	Carrier      string                 `firestore:"carrier" json:"carrier"`
	InputText    string                 `firestore:"inputText" json:"inputText"`
	Output       map[string]interface{} `firestore:"output" json:"output"`
	SourceID     string                 `firestore:"sourceId,omitempty" json:"sourceId,omitempty"`
	CreatedAt    time.Time              `firestore:"createdAt" json:"createdAt"`
}

// User identifies who uploaded a file and which tenant owns it.
type User struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
}
