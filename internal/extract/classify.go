package extract

import (
	"regexp"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	aadhaarRe = regexp.MustCompile(`\b\d{4}\s\d{4}\s\d{4}\b|\b\d{12}\b`)
	panRe     = regexp.MustCompile(`\b[A-Za-z]{5}\d{4}[A-Za-z]\b`)
	dlRe      = regexp.MustCompile(`\b[A-Za-z]{2}\d{2}\s?\d{6,12}\b`)
)

// classifier pairs a document type with its number pattern and canonical
// form. Order matters: the first classifier whose pattern matches wins.
type classifier struct {
	docType   domain.DocumentType
	baseScore int
	pattern   *regexp.Regexp
	canonical func(string) string
}

var classifiers = []classifier{
	{domain.DocTypeAadhaar, domain.BaseScoreAadhaar, aadhaarRe, canonicalAadhaar},
	{domain.DocTypePAN, domain.BaseScorePAN, panRe, strings.ToUpper},
	{domain.DocTypeDrivingLicence, domain.BaseScoreDrivingLicence, dlRe, strings.ToUpper},
}

// canonicalAadhaar regroups a 12-digit Aadhaar number as "dddd dddd dddd".
func canonicalAadhaar(raw string) string {
	digits := strings.ReplaceAll(raw, " ", "")
	return digits[0:4] + " " + digits[4:8] + " " + digits[8:12]
}

// Classify finds the first classifier whose pattern occurs in text and
// returns the document type, the canonical number and the base fraud score.
// Text with no recognizable number classifies as Unknown with no number.
func Classify(text string) (domain.DocumentType, string, int) {
	for _, c := range classifiers {
		if m := c.pattern.FindString(text); m != "" {
			return c.docType, c.canonical(m), c.baseScore
		}
	}
	return domain.DocTypeUnknown, "", domain.BaseScoreUnknown
}

// Extract normalizes raw OCR text, classifies it and recovers identity
// fields. It returns the extracted fields, the base fraud score and any
// classification reasons. Empty text short-circuits to Unknown.
func Extract(raw string) (domain.ExtractedFields, int, []string) {
	text := NormalizeText(raw)
	if text == "" {
		return domain.ExtractedFields{DocumentType: domain.DocTypeUnknown},
			domain.BaseScoreUnknown, []string{domain.ReasonNoOCRText}
	}

	docType, number, base := Classify(text)

	// Field recovery runs even for Unknown documents: partial identity data
	// still feeds the comparison rules downstream.
	fields := domain.ExtractedFields{
		DocumentType: docType,
		Number:       number,
		Name:         ExtractName(text),
		FatherName:   ExtractFatherName(text),
		DateOfBirth:  ExtractDOB(text),
		Gender:       ExtractGender(text),
	}

	var reasons []string
	if docType == domain.DocTypeUnknown {
		reasons = append(reasons, domain.ReasonNotRecognized)
	}
	return fields, base, reasons
}
