package models

// These structs define the JSON payloads exchanged between the intake
// function, the Cloud Workflow and the HTTP functions.

// DocumentOutcome is one entry of a ProcessResult. Successful groups carry
// the record summary; failed groups carry Error=true, DocumentID and Message.
type DocumentOutcome struct {
	Error            bool             `firestore:"error,omitempty" json:"error,omitempty"`
	DocumentID       string           `firestore:"documentId" json:"documentId"`
	Message          string           `firestore:"message,omitempty" json:"message,omitempty"`
	DocumentType     DocumentType     `firestore:"documentType,omitempty" json:"documentType,omitempty"`
	DocumentNumber   string           `firestore:"documentNumber,omitempty" json:"documentNumber,omitempty"`
	Carrier          string           `firestore:"carrier,omitempty" json:"carrier,omitempty"`
	StartPage        int              `firestore:"startPage" json:"startPage"`
	EndPage          int              `firestore:"endPage" json:"endPage"`
	ConfidenceScore  float64          `firestore:"confidenceScore,omitempty" json:"confidenceScore,omitempty"`
	ProcessingStatus ProcessingStatus `firestore:"processingStatus,omitempty" json:"processingStatus,omitempty"`
	DocumentURL      string           `firestore:"documentUrl,omitempty" json:"documentUrl,omitempty"`
	Warnings         []string         `firestore:"warnings,omitempty" json:"warnings,omitempty"`
}

// ProcessResult is the full accounting of one upload. Success is true when at
// least one group succeeded; callers inspect ErrorCount for partial failure.
type ProcessResult struct {
	Success          bool              `firestore:"success" json:"success"`
	Message          string            `firestore:"message" json:"message"`
	OriginalFilename string            `firestore:"originalFilename" json:"originalFilename"`
	TotalPages       int               `firestore:"totalPages" json:"totalPages"`
	DocumentsFound   int               `firestore:"documentsFound" json:"documentsFound"`
	SuccessCount     int               `firestore:"successCount" json:"successCount"`
	ErrorCount       int               `firestore:"errorCount" json:"errorCount"`
	Documents        []DocumentOutcome `firestore:"documents" json:"documents"`
}

// WorkflowArgs is the argument of the processing workflow execution,
// produced by the intake function.
type WorkflowArgs struct {
	JobID            string `json:"jobId"`
	TenantID         string `json:"tenantId"`
	UserID           string `json:"userId"`
	Bucket           string `json:"bucket"`
	Object           string `json:"object"`
	OriginalFilename string `json:"originalFilename"`
}

// ProcessDocumentRequest is the input of the document-processor function.
type ProcessDocumentRequest struct {
	JobID            string `json:"jobId"`
	TenantID         string `json:"tenantId"`
	UserID           string `json:"userId"`
	Object           string `json:"object"`
	OriginalFilename string `json:"originalFilename"`
	ExecutionID      string `json:"executionId"`
}

// ReviewRequest is a human decision on an extracted record.
type ReviewRequest struct {
	Reviewer    string                 `json:"reviewer"`
	Approved    bool                   `json:"approved"`
	Corrections map[string]interface{} `json:"corrections,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
}
