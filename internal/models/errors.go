package models

import "errors"

// Sentinel errors shared by the stores and the pipeline.
var (
	ErrTenantRequired    = errors.New("tenantId is required")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrJobNotFound       = errors.New("processing job not found")
	ErrJobTerminal       = errors.New("processing job is already in a terminal stage")
	ErrInvalidTransition = errors.New("invalid processing stage transition")
	ErrBlobNotFound      = errors.New("blob not found")
	ErrJobExists         = errors.New("processing job already exists")
	ErrInvalidToken      = errors.New("invalid continuation token")
)
