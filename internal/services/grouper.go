package services

import (
	"regexp"
	"strings"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

// headerLines is how many leading non-empty lines of a page are treated as its header.
const headerLines = 8

const pageSeparator = "\n\n"

var (
	documentTitlePattern = regexp.MustCompile(`(?i)\b(booking\s+confirmation|bill\s+of\s+lading|sea\s*way\s*bill|delivery\s+order|release\s+order|transport\s+order|haulage\s+order|transportopdracht)\b`)
	firstPagePattern     = regexp.MustCompile(`(?i)\bpage\s*1\s*(?:of|/)\s*\d+\b`)
	continuationPattern  = regexp.MustCompile(`(?i)\bpage\s*(?:[2-9]|[1-9]\d+)\s*(?:of|/)\s*\d+\b`)
)

// DetectDocumentStart reports whether a page looks like the first page of a
// new document. Only text content is examined.
func DetectDocumentStart(pageText string) bool {
	if continuationPattern.MatchString(pageText) {
		return false
	}
	if firstPagePattern.MatchString(pageText) {
		return true
	}
	return documentTitlePattern.MatchString(pageHeader(pageText))
}

// GroupPagesIntoDocuments partitions pages into contiguous document groups.
// The first page always opens a group; a PDF without further start markers
// yields a single group spanning every page.
func GroupPagesIntoDocuments(pages []models.PDFPage) []models.DocumentGroup {
	var groups []models.DocumentGroup
	var current []models.PDFPage

	for i, page := range pages {
		if i > 0 && len(current) > 0 && DetectDocumentStart(page.Text) {
			groups = append(groups, newDocumentGroup(current))
			current = nil
		}
		current = append(current, page)
	}
	if len(current) > 0 {
		groups = append(groups, newDocumentGroup(current))
	}
	return groups
}

func newDocumentGroup(pages []models.PDFPage) models.DocumentGroup {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return models.DocumentGroup{
		StartPage:    pages[0].PageNumber,
		EndPage:      pages[len(pages)-1].PageNumber,
		Pages:        pages,
		CombinedText: strings.Join(texts, pageSeparator),
	}
}

func pageHeader(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == headerLines {
			break
		}
	}
	return strings.Join(lines, "\n")
}
