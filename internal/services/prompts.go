package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

// maxExampleInputChars bounds how much of a few-shot example's source text is
// repeated in the prompt.
const maxExampleInputChars = 4000

const ExtractionSystemPrompt = "You are a freight document data extraction engine. You read the text of shipping documents (booking confirmations, bills of lading, delivery orders, transport orders) and return their content as structured JSON following DCSA naming conventions. You never invent values: a field that is not in the document is left empty. You must output a single valid JSON object and nothing else."

const extractionInstructions = `Extract the %s below into JSON.

Follow these rules precisely:
1.  The output MUST be a single JSON object with exactly two keys:
    - "data": an object with the shape shown in the schema below.
    - "uncertainFields": an array of the dotted field paths (e.g. "containers[0].sealNumber") whose values you are not confident about.
2.  "data.documentType" MUST be "%s".
3.  Dates MUST be ISO dates in the form YYYY-MM-DD.
4.  Ports and places MUST be five character UN/LOCODEs (e.g. "NLRTM", "SGSIN"). If only a name is printed, use the UN/LOCODE you are sure of, otherwise leave it empty and list the field as uncertain.
5.  Container numbers MUST be four capital letters followed by seven digits, without spaces or dashes.
6.  Leave fields that are not present in the document as empty strings, zero, or empty arrays. Do not guess.
7.  Do not include any text, explanation, or markdown fences before or after the JSON.

The detected carrier is: %s

Schema:
%s`

// buildExtractionPrompt renders the user prompt for one document group.
func buildExtractionPrompt(req ExtractionRequest) (string, error) {
	skeleton, err := schemaSkeleton(req.DocumentType)
	if err != nil {
		return "", err
	}
	carrier := req.Carrier
	if carrier == "" {
		carrier = unknownCarrier
	}

	var b strings.Builder
	fmt.Fprintf(&b, extractionInstructions, humanDocumentType(req.DocumentType), req.DocumentType, carrier, skeleton)

	for i, ex := range req.FewShotExamples {
		output, err := json.Marshal(ex.Output)
		if err != nil {
			continue
		}
		input := truncateUTF8(ex.InputText, maxExampleInputChars)
		fmt.Fprintf(&b, "\n\n--- Example %d (carrier: %s) ---\nDocument text:\n%s\n\nExpected data:\n%s", i+1, ex.Carrier, input, output)
	}

	fmt.Fprintf(&b, "\n\n--- Document to extract ---\n%s", req.Text)
	return b.String(), nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func humanDocumentType(t models.DocumentType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}
