package scoring

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Aggregate combines one-or-more per-document results into a submission
// record. Callers guarantee at least one document; the API layer rejects
// empty uploads before scoring starts.
func Aggregate(declared domain.DeclaredIdentity, docs []domain.DocumentScoreResult, alerts []domain.AmlAlert) *domain.SubmissionRecord {
	total := 0
	for _, d := range docs {
		total += d.FraudScore
	}
	mean := float64(total) / float64(len(docs))
	overall := int(math.Floor(mean + 0.5))

	level := domain.DeriveRiskLevel(overall)

	status := domain.StatusAutoPass
	switch {
	case level == domain.RiskHigh || len(alerts) > 0:
		status = domain.StatusFlagged
	case level == domain.RiskMedium:
		status = domain.StatusReview
	}

	now := time.Now().UTC()
	return &domain.SubmissionRecord{
		ID:                uuid.New().String(),
		UserName:          declared.Name,
		UserDOB:           declared.DateOfBirth,
		UserGender:        declared.Gender,
		Documents:         docs,
		OverallFraudScore: overall,
		OverallRiskLevel:  level,
		FinalStatus:       status,
		IsValid:           level != domain.RiskHigh,
		AmlAlerts:         alerts,
		Reasons:           dedupReasons(docs),
		Status:            domain.LifecyclePending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// dedupReasons unions the per-document reasons, keeping first-occurrence
// order across documents.
func dedupReasons(docs []domain.DocumentScoreResult) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range docs {
		for _, r := range d.Reasons {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
