package domain

import (
	"time"
)

// DeclaredIdentity is the identity the user claims at upload time.
// DateOfBirth is DD/MM/YYYY. Empty fields mean the user declared nothing,
// which skips the corresponding mismatch rule entirely.
type DeclaredIdentity struct {
	Name        string `json:"name"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
}

// FinalStatus is the automated disposition of a submission.
type FinalStatus string

const (
	StatusAutoPass FinalStatus = "Auto-Pass"
	StatusReview   FinalStatus = "Review"
	StatusFlagged  FinalStatus = "Flagged"
)

// LifecycleStatus tracks the admin review state of a submission.
type LifecycleStatus string

const (
	LifecyclePending  LifecycleStatus = "Pending"
	LifecycleApproved LifecycleStatus = "Approved"
	LifecycleRejected LifecycleStatus = "Rejected"
)

// SubmissionRecord is one upload call's result: the user-declared identity,
// one score result per document slot, and the aggregated decision.
// Fraud and extraction fields are immutable after creation; only the
// lifecycle status mutates on admin review.
type SubmissionRecord struct {
	ID string `json:"id"`

	UserName   string `json:"userName"`
	UserDOB    string `json:"userDob"`
	UserGender string `json:"userGender"`

	Documents []DocumentScoreResult `json:"documents"`

	OverallFraudScore int         `json:"overallFraudScore"`
	OverallRiskLevel  RiskLevel   `json:"overallRiskLevel"`
	FinalStatus       FinalStatus `json:"finalStatus"`
	IsValid           bool        `json:"isValid"` // riskLevel != High, kept for dashboard compatibility

	AmlAlerts []AmlAlert `json:"amlAlerts,omitempty"`
	Reasons   []string   `json:"reasons,omitempty"`

	Status      LifecycleStatus `json:"status"`
	AdminStatus LifecycleStatus `json:"adminStatus,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AmlAlert is an Anti-Money-Laundering flag raised on a blacklist hit or a
// duplicate document number.
type AmlAlert struct {
	Type    string   `json:"type"` // "Blacklisted Number" or "Duplicate Number"
	Number  string   `json:"number"`
	Reason  string   `json:"reason,omitempty"`
	Matches []string `json:"matches,omitempty"` // matching record ids, capped at MaxDuplicateMatches
}

const (
	AlertTypeBlacklisted = "Blacklisted Number"
	AlertTypeDuplicate   = "Duplicate Number"

	// MaxDuplicateMatches caps the match ids carried on a duplicate alert.
	MaxDuplicateMatches = 8
)

// AmlAlertSet groups the alerts raised for one submission, persisted
// independently for audit purposes.
type AmlAlertSet struct {
	ID           string     `json:"id"`
	SubmissionID string     `json:"submissionId"`
	Alerts       []AmlAlert `json:"alerts"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// BlacklistEntry is an independently administered blocked document number.
// Matching is exact on the full number string, case-insensitive.
type BlacklistEntry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Number    string    `json:"number"`
	CreatedAt time.Time `json:"createdAt"`
}
