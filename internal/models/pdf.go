package models

// PDFPage is the text of one physical page. PageNumber is 1-indexed.
type PDFPage struct {
	PageNumber int    `json:"pageNumber"`
	Text       string `json:"text"`
}

// PDFMetadata describes the source file of an extraction pass.
// PageCountMismatch is set when the structural page tree and the text reader
// disagree on the page count, so page numbers cannot address the file.
type PDFMetadata struct {
	TotalPages        int  `json:"totalPages"`
	Encrypted         bool `json:"encrypted"`
	PageCountMismatch bool `json:"pageCountMismatch,omitempty"`
}

// PDFExtractionResult is the immutable output of the single text extraction
// performed per upload.
type PDFExtractionResult struct {
	Pages    []PDFPage   `json:"pages"`
	Metadata PDFMetadata `json:"metadata"`
}

// DocumentGroup is a contiguous run of pages believed to form one logical
// freight document. StartPage and EndPage are inclusive.
type DocumentGroup struct {
	StartPage    int
	EndPage      int
	Pages        []PDFPage
	CombinedText string
}

// PageCount returns the number of pages in the group.
func (g DocumentGroup) PageCount() int {
	return g.EndPage - g.StartPage + 1
}
