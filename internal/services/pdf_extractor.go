package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfHeaderWindow is how far into the buffer the %PDF- marker may appear.
const pdfHeaderWindow = 1024

func init() {
	// Functions run on a read-only filesystem; pdfcpu must not look for its config dir.
	api.DisableConfigDir()
}

// PDFTextExtractor reads per-page text from a PDF buffer. It validates and,
// where needed, decrypts the file with pdfcpu and extracts text with
// ledongthuc/pdf.
type PDFTextExtractor struct{}

func NewPDFTextExtractor() *PDFTextExtractor {
	return &PDFTextExtractor{}
}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// ExtractTextFromPDF returns one page entry per physical page, 1-indexed and in
// document order. Owner-password restrictions are ignored; a file that cannot
// be parsed fails the whole call with ErrInvalidPDF.
func (e *PDFTextExtractor) ExtractTextFromPDF(ctx context.Context, buf []byte) (*models.PDFExtractionResult, error) {
	if !looksLikePDF(buf) {
		return nil, fmt.Errorf("%w: missing %%PDF- header", ErrInvalidPDF)
	}

	pdfCtx, err := api.ReadContext(bytes.NewReader(buf), relaxedConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	encrypted := pdfCtx.Encrypt != nil

	readable := buf
	if encrypted {
		decrypted, err := decryptPDF(buf)
		if err != nil {
			// ledongthuc/pdf can still open RC4/AES-128 files with an empty user password.
			slog.Warn("pdfcpu could not decrypt PDF, reading encrypted bytes directly", "error", err)
		} else {
			readable = decrypted
		}
	}

	pages, err := readPageTexts(ctx, readable)
	if err != nil {
		return nil, err
	}
	mismatch := pageCountMismatch(pdfCtx.PageCount, len(pages))
	if mismatch {
		slog.Warn("Page count mismatch between PDF readers, groups will not be sliced", "pdfcpu", pdfCtx.PageCount, "textReader", len(pages))
	}

	return &models.PDFExtractionResult{
		Pages: pages,
		Metadata: models.PDFMetadata{
			TotalPages:        len(pages),
			Encrypted:         encrypted,
			PageCountMismatch: mismatch,
		},
	}, nil
}

// pageCountMismatch reports whether pdfcpu and the text reader disagree. An
// unknown structural count is not a mismatch.
func pageCountMismatch(structural, text int) bool {
	return structural > 0 && structural != text
}

// SlicePages returns a new PDF containing only pages start..end (inclusive).
func (e *PDFTextExtractor) SlicePages(buf []byte, start, end int) ([]byte, error) {
	if start < 1 || end < start {
		return nil, fmt.Errorf("invalid page range %d-%d", start, end)
	}
	selection := fmt.Sprintf("%d-%d", start, end)
	if start == end {
		selection = fmt.Sprintf("%d", start)
	}
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(buf), &out, []string{selection}, relaxedConfig()); err != nil {
		return nil, fmt.Errorf("failed to slice pages %s: %w", selection, err)
	}
	return out.Bytes(), nil
}

func decryptPDF(buf []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(buf), &out, relaxedConfig()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func readPageTexts(ctx context.Context, buf []byte) (pages []models.PDFPage, err error) {
	// ledongthuc/pdf panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: text reader panic: %v", ErrInvalidPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrInvalidPDF)
	}

	pages = make([]models.PDFPage, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := models.PDFPage{PageNumber: i}
		p := reader.Page(i)
		if !p.V.IsNull() {
			text, err := p.GetPlainText(nil)
			if err != nil {
				slog.Warn("Failed to extract text from page, keeping it empty", "page", i, "error", err)
			} else {
				page.Text = strings.TrimSpace(text)
			}
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func looksLikePDF(buf []byte) bool {
	head := buf
	if len(head) > pdfHeaderWindow {
		head = head[:pdfHeaderWindow]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}
