package domain

// DocumentType identifies the document family recognized by the classifier.
// Classification is a tagged variant, never a free-form string.
type DocumentType string

const (
	DocTypeAadhaar        DocumentType = "Aadhaar"
	DocTypePAN            DocumentType = "PAN"
	DocTypeDrivingLicence DocumentType = "DrivingLicence"
	DocTypeUnknown        DocumentType = "Unknown"
)

// Base fraud scores assigned by the classifier per document family.
const (
	BaseScoreAadhaar        = 10
	BaseScorePAN            = 15
	BaseScoreDrivingLicence = 20
	BaseScoreUnknown        = 80
)

// RiskLevel is the categorical bucket derived from a fraud score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// DeriveRiskLevel maps a fraud score to its risk bucket.
// Thresholds are behavioral contracts: Low < 30, Medium 30-69, High >= 70.
func DeriveRiskLevel(score int) RiskLevel {
	switch {
	case score >= 70:
		return RiskHigh
	case score >= 30:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ExtractedFields holds the identity fields recovered from one document.
// Empty string means the field was not found; absence is a normal outcome,
// not an error. Number is set for every type except Unknown and is
// canonicalized per family (Aadhaar "dddd dddd dddd", PAN/DL uppercase).
type ExtractedFields struct {
	DocumentType DocumentType `json:"documentType"`
	Number       string       `json:"number,omitempty"`
	Name         string       `json:"name,omitempty"`
	FatherName   string       `json:"fatherName,omitempty"`
	DateOfBirth  string       `json:"dateOfBirth,omitempty"` // DD/MM/YYYY
	Gender       string       `json:"gender,omitempty"`      // Male, Female, Other
}

// DocumentScoreResult is the complete scoring outcome for one document.
type DocumentScoreResult struct {
	ExtractedFields

	FraudScore int       `json:"fraudScore"`
	RiskLevel  RiskLevel `json:"riskLevel"`
	MatchRatio float64   `json:"matchRatio"` // name similarity vs declared, 0.0 if not computable
	Reasons    []string  `json:"reasons,omitempty"`
}

// Reason strings attached by the scoring rules. These are part of the
// external contract and must not be reworded.
const (
	ReasonNoOCRText         = "No OCR text"
	ReasonNotRecognized     = "Document not recognized"
	ReasonNameSimilarityLow = "Name similarity low vs user input"
	ReasonDOBMismatch       = "DOB mismatch vs user input"
	ReasonDOBNotFound       = "DOB not found on document"
	ReasonGenderMismatch    = "Gender mismatch vs user input"
	ReasonBlacklisted       = "Document number is blacklisted (AML)"
	ReasonDuplicate         = "Duplicate document number detected in DB (possible synthetic identity / reuse)"
)
