package services

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

var (
	ErrInvalidPDF          = errors.New("invalid or unreadable PDF")
	ErrUnknownDocumentType = errors.New("document type could not be determined")
	ErrExtractionTimeout   = errors.New("structured extraction timed out")
	ErrModelRefusal        = errors.New("model refused to extract the document")
	ErrEmptyModelResponse  = errors.New("model returned an empty response")
	ErrReviewerRequired    = errors.New("reviewer is required")
)

// GroupError is a failure isolated to one document group.
type GroupError struct {
	DocumentID string
	Stage      models.Stage
	Err        error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("document %s failed during %s: %v", e.DocumentID, e.Stage, e.Err)
}

func (e *GroupError) Unwrap() error {
	return e.Err
}
