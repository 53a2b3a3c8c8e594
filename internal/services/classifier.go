package services

import (
	"math"
	"regexp"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

const (
	unknownCarrier    = "unknown"
	unknownConfidence = 0.1

	headerTitleWeight = 3
	bodyTitleWeight   = 1
)

type documentPattern struct {
	docType models.DocumentType
	title   *regexp.Regexp
	fields  []*regexp.Regexp
}

var documentPatterns = []documentPattern{
	{
		docType: models.DocumentTypeBookingConfirmation,
		title:   regexp.MustCompile(`(?i)\bbooking\s+(confirmation|acknowledg(e)?ment)\b`),
		fields: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bbooking\s*(no|number|ref(erence)?)\b`),
			regexp.MustCompile(`(?i)\b(cargo|container|vgm|si)\s*cut[\s-]*off\b`),
			regexp.MustCompile(`(?i)\bempty\s+(pick[\s-]*up|release)\b`),
			regexp.MustCompile(`(?i)\b(etd|estimated\s+time\s+of\s+departure)\b`),
			regexp.MustCompile(`(?i)\bequipment\s+(type|size)\b`),
		},
	},
	{
		docType: models.DocumentTypeBillOfLading,
		title:   regexp.MustCompile(`(?i)\b(bill\s+of\s+lading|sea\s*way\s*bill)\b`),
		fields: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(b/l|bl|bill\s+of\s+lading)\s*(no|number)\b`),
			regexp.MustCompile(`(?i)\bshipper\b`),
			regexp.MustCompile(`(?i)\bnotify\s+party\b`),
			regexp.MustCompile(`(?i)\bport\s+of\s+loading\b`),
			regexp.MustCompile(`(?i)\bnumber\s+of\s+originals?\b`),
			regexp.MustCompile(`(?i)\bshipped\s+on\s+board\b`),
			regexp.MustCompile(`(?i)\bfreight\s+(prepaid|collect|payable)\b`),
		},
	},
	{
		docType: models.DocumentTypeDeliveryOrder,
		title:   regexp.MustCompile(`(?i)\b(delivery|release)\s+order\b`),
		fields: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(d/o|do|delivery\s+order)\s*(no|number)\b`),
			regexp.MustCompile(`(?i)\brelease\s+(date|ref(erence)?|pin|code)\b`),
			regexp.MustCompile(`(?i)\bvalid\s+(until|till|through)\b`),
			regexp.MustCompile(`(?i)\b(please\s+)?deliver\s+to\b`),
			regexp.MustCompile(`(?i)\bterminal\b`),
		},
	},
	{
		docType: models.DocumentTypeTransportOrder,
		title:   regexp.MustCompile(`(?i)\b(transport|haulage|trucking)\s+order\b|\btransportopdracht\b`),
		fields: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(transport|haulage)\s*order\s*(no|number)\b`),
			regexp.MustCompile(`(?i)\bpick[\s-]*up\s+(address|location|date)\b`),
			regexp.MustCompile(`(?i)\b(delivery|drop[\s-]*off)\s+(address|location)\b`),
			regexp.MustCompile(`(?i)\b(haulier|trucker|transporter|carrier\s+haulage)\b`),
			regexp.MustCompile(`(?i)\b(loading|unloading)\s+(time|slot)\b`),
		},
	},
}

type carrierPattern struct {
	name    string
	pattern *regexp.Regexp
}

// Carriers are matched on name aliases, SCAC codes and container owner prefixes.
var carrierPatterns = []carrierPattern{
	{"maersk", regexp.MustCompile(`(?i:\bmaersk\b)|\bMAEU\b|\b(MSKU|MRKU|MAEU)\d{7}`)},
	{"msc", regexp.MustCompile(`(?i:\bmediterranean\s+shipping\b)|\bMSC\b|\b(MSCU|MEDU)\d{7}`)},
	{"cma cgm", regexp.MustCompile(`(?i:\bcma[\s-]*cgm\b)|\bCMDU\b|\b(CMAU|CMDU)\d{7}`)},
	{"hapag-lloyd", regexp.MustCompile(`(?i:\bhapag[\s-]*lloyd\b)|\bHLCU\b|\b(HLCU|HLXU)\d{7}`)},
	{"one", regexp.MustCompile(`(?i:\bocean\s+network\s+express\b)|\bONEY\b|\bONEU\d{7}`)},
	{"evergreen", regexp.MustCompile(`(?i:\bevergreen\b)|\bEGLV\b|\b(EGHU|EISU|EMCU)\d{7}`)},
	{"cosco", regexp.MustCompile(`(?i:\bcosco\b)|\bCOSU\b|\b(CSNU|CBHU)\d{7}`)},
	{"yang ming", regexp.MustCompile(`(?i:\byang\s*ming\b)|\bYMLU\b|\bYMLU\d{7}`)},
	{"hmm", regexp.MustCompile(`(?i:\bhyundai\s+merchant\s+marine\b)|\bHMM\b|\bHDMU\d{7}`)},
	{"zim", regexp.MustCompile(`(?i:\bzim\b)|\bZIMU\b|\bZIMU\d{7}`)},
}

// DocumentClassifier assigns a document type and carrier to a document group
// from its combined text.
type DocumentClassifier struct{}

func NewDocumentClassifier() *DocumentClassifier {
	return &DocumentClassifier{}
}

// ClassifyDocument never fails; text matching no pattern yields
// DocumentTypeUnknown with a low confidence.
func (c *DocumentClassifier) ClassifyDocument(combinedText string) models.Classification {
	header := pageHeader(combinedText)

	bestType := models.DocumentTypeUnknown
	bestScore, runnerUp := 0.0, 0.0
	bestConfidence := unknownConfidence

	for _, dp := range documentPatterns {
		titleWeight := 0
		switch {
		case dp.title.MatchString(header):
			titleWeight = headerTitleWeight
		case dp.title.MatchString(combinedText):
			titleWeight = bodyTitleWeight
		}
		fieldHits := 0
		for _, f := range dp.fields {
			if f.MatchString(combinedText) {
				fieldHits++
			}
		}

		score := float64(titleWeight + fieldHits)
		if score == 0 {
			continue
		}
		if score > bestScore {
			runnerUp = bestScore
			bestScore = score
			bestType = dp.docType
			bestConfidence = 0.5*float64(titleWeight)/headerTitleWeight + 0.5*float64(fieldHits)/float64(len(dp.fields))
		} else if score > runnerUp {
			runnerUp = score
		}
	}

	// A lone field label with no title is not enough to commit to a type.
	if bestType != models.DocumentTypeUnknown && bestScore < 2 {
		bestType = models.DocumentTypeUnknown
		bestConfidence = unknownConfidence
	}
	if bestType != models.DocumentTypeUnknown && runnerUp == bestScore {
		bestConfidence *= 0.75
	}

	return models.Classification{
		DocumentType: bestType,
		Carrier:      detectCarrier(combinedText),
		Confidence:   math.Round(bestConfidence*100) / 100,
	}
}

func detectCarrier(text string) string {
	best, bestHits := unknownCarrier, 0
	for _, cp := range carrierPatterns {
		hits := len(cp.pattern.FindAllStringIndex(text, -1))
		if hits > bestHits {
			best, bestHits = cp.name, hits
		}
	}
	return best
}
