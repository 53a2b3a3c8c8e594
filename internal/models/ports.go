package models

import "time"

// BlobRef locates an uploaded object.
type BlobRef struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

// BlobInfo describes a stored object without its content.
type BlobInfo struct {
	Name        string
	ContentType string
	Size        int64
	Metadata    map[string]string
	Created     time.Time
}

// Completion is one LLM response.
type Completion struct {
	Text       string
	Model      string
	TokensUsed int
}
